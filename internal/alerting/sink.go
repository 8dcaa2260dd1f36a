package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nova-universe/pulse/pkg/types"
)

// IncidentSink hands incident signals to the external on-call system.
// Implementations must be safe for concurrent use.
type IncidentSink interface {
	Open(ctx context.Context, inc types.OpenIncident) error
	Close(ctx context.Context, inc types.CloseIncident) error
}

// =============================================================================
// WEBHOOK SINK
// =============================================================================

// WebhookConfig holds configuration for the webhook incident sink.
type WebhookConfig struct {
	URL           string        // Endpoint receiving incident payloads
	Timeout       time.Duration // HTTP timeout (default: 10s)
	RatePerSecond float64       // Outbound request rate bound (default: 5)
}

// WebhookSink delivers incidents as JSON POSTs to a single endpoint. The
// receiving integration fans out to the actual paging provider.
type WebhookSink struct {
	url         string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewWebhookSink creates a webhook incident sink.
func NewWebhookSink(cfg WebhookConfig, logger *slog.Logger) *WebhookSink {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond == 0 {
		perSecond = 5
	}

	return &WebhookSink{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:      logger.With("component", "webhook_sink"),
	}
}

// Open posts an open-incident payload.
func (s *WebhookSink) Open(ctx context.Context, inc types.OpenIncident) error {
	return s.post(ctx, "open", inc)
}

// Close posts a close-incident payload.
func (s *WebhookSink) Close(ctx context.Context, inc types.CloseIncident) error {
	return s.post(ctx, "close", inc)
}

func (s *WebhookSink) post(ctx context.Context, action string, payload any) error {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"action":   action,
		"incident": payload,
	})
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post incident: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("incident endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink records incidents in the log only. Used when no webhook is
// configured, so the escalation path stays observable in development.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-only incident sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "log_sink")}
}

// Open logs the open-incident signal.
func (s *LogSink) Open(ctx context.Context, inc types.OpenIncident) error {
	s.logger.Info("incident opened",
		"monitor_id", inc.MonitorID,
		"service_ref", inc.ExternalServiceRef,
		"summary", inc.Summary,
	)
	return nil
}

// Close logs the close-incident signal.
func (s *LogSink) Close(ctx context.Context, inc types.CloseIncident) error {
	s.logger.Info("incident closed",
		"monitor_id", inc.MonitorID,
		"reason", inc.Reason,
	)
	return nil
}
