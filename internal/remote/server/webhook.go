package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// WebhookEvent is the envelope posted to webhook URLs.
type WebhookEvent struct {
	ID        string           `json:"id"`
	Event     models.EventType `json:"event"`
	TokenID   *models.TokenID  `json:"token_id,omitempty"`
	Timestamp string           `json:"timestamp"`
	Data      models.Event     `json:"data"`
}

// WebhookConfig holds the list of configured webhook URLs.
type WebhookConfig struct {
	URLs []string
}

// WebhookNotifier posts registry events to configured webhook URLs. It
// implements passport.Notifier.
type WebhookNotifier struct {
	config  *WebhookConfig
	client  *http.Client
	logger  *slog.Logger
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		backoff: time.Second,
	}
}

// Notify delivers ev to all configured URLs in the background. It never
// blocks the caller.
func (wn *WebhookNotifier) Notify(_ context.Context, ev models.Event) {
	if wn == nil {
		return
	}

	event := &WebhookEvent{
		ID:        ulid.Make().String(),
		Event:     ev.Type,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      ev,
	}
	if id, ok := ev.TokenID(); ok {
		event.TokenID = &id
	}

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.send(event)
	}()
}

// Wait blocks until every pending delivery has finished.
func (wn *WebhookNotifier) Wait() {
	if wn == nil {
		return
	}
	wn.wg.Wait()
}

// send delivers the webhook event to all configured URLs concurrently.
func (wn *WebhookNotifier) send(event *WebhookEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	var g errgroup.Group
	for _, url := range wn.config.URLs {
		g.Go(func() error {
			if err := wn.post(url, data); err != nil {
				wn.logger.Warn("webhook: delivery failed", "url", url, "event", event.Event, "error", err)
				return err
			}
			wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event, "id", event.ID)
			return nil
		})
	}
	_ = g.Wait()
}

// post sends a single webhook POST with retry (up to 2 retries).
func (wn *WebhookNotifier) post(url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "dpp-server/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * wn.backoff)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
		time.Sleep(time.Duration(attempt+1) * wn.backoff)
	}

	return lastErr
}
