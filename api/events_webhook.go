package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const webhookQueueSize = 1024

// webhookEvent is the JSON payload POSTed to the external endpoint.
type webhookEvent struct {
	ID        string            `json:"id"`
	Event     string            `json:"event"`
	VaultID   int64             `json:"vault_id"`
	Timestamp string            `json:"timestamp"`
	Error     string            `json:"error,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// eventWebhook forwards lifecycle events to an HTTP endpoint from a
// background goroutine. A full queue drops events.
type eventWebhook struct {
	url        string
	authHeader string // "Header: Value"
	client     *http.Client
	retryDelay time.Duration
	events     chan webhookEvent
	wg         sync.WaitGroup
}

func newEventWebhook(url, authHeader string) *eventWebhook {
	w := &eventWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: time.Second,
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// enqueue never blocks.
func (w *eventWebhook) enqueue(evt webhookEvent) {
	select {
	case w.events <- evt:
	default:
		slog.Warn("event webhook: queue full, dropping event", "event", evt.Event, "vault_id", evt.VaultID)
	}
}

// close stops the dispatcher after the queued events are sent.
func (w *eventWebhook) close() {
	close(w.events)
	w.wg.Wait()
}

func (w *eventWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs evt, retrying once on a transport error or 5xx.
func (w *eventWebhook) send(evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("event webhook: marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			slog.Warn("event webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "rencfs-desktop-webhook/1.0")
		if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			slog.Warn("event webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			slog.Warn("event webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		slog.Warn("event webhook: client error", "status", resp.StatusCode)
		return
	}
}
