package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/sessionwatch/internal/metrics"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
	userAgent      = "sessionwatch-alert/1"
)

var (
	httpClient = &http.Client{Timeout: requestTimeout}
	// retryDelay is the backoff unit; attempt n waits n*retryDelay.
	retryDelay = time.Second
)

// Send posts an alert event to a webhook endpoint. Transport errors and
// 5xx responses are retried with linear backoff; 4xx responses are final.
func Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert: format payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				metrics.AlertDeliveriesTotal.WithLabelValues(event.Event, "canceled").Inc()
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * retryDelay):
			}
		}

		retry, err := post(ctx, cfg, body)
		if err == nil {
			metrics.AlertDeliveriesTotal.WithLabelValues(event.Event, "delivered").Inc()
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	metrics.AlertDeliveriesTotal.WithLabelValues(event.Event, "failed").Inc()
	return fmt.Errorf("alert: %s: %w", cfg.URL, lastErr)
}

// post makes one delivery attempt and reports whether a failure is worth
// retrying.
func post(ctx context.Context, cfg AlertConfig, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return true, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
	}
}
