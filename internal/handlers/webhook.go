package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/khaitqy99/otp-sender/internal/services"
	pkghttp "github.com/khaitqy99/otp-sender/pkg/http"
)

// WebhookServiceInterface defines the interface for delivery-event ingestion
type WebhookServiceInterface interface {
	Ingest(ctx context.Context, event *services.WebhookEvent) error
}

// WebhookHandler handles delivery-status callbacks from the email provider
type WebhookHandler struct {
	service WebhookServiceInterface
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(service WebhookServiceInterface, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger,
	}
}

// Receive ingests one delivery event or a batch of them. The provider only
// cares that we acknowledged receipt, so this endpoint always answers 200:
// a non-2xx response would make the provider retry and eventually disable
// the webhook. Ingestion failures are logged and swallowed.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", slog.Any("error", err))
		h.acknowledge(w)
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		h.logger.Warn("unparseable webhook payload", slog.Any("error", err))
		h.acknowledge(w)
		return
	}

	for _, event := range events {
		if err := h.service.Ingest(r.Context(), event); err != nil {
			h.logger.Error("failed to ingest delivery event",
				slog.String("event_type", event.Type),
				slog.Any("error", err))
		}
	}

	h.acknowledge(w)
}

// Liveness answers provider endpoint-verification probes
func (h *WebhookHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{
		"received": true,
	})
}

// decodeEvents accepts either a single event object or an array of events.
// Null array elements are dropped; a provider payload must never turn into
// a nil event downstream.
func decodeEvents(body []byte) ([]*services.WebhookEvent, error) {
	var batch []*services.WebhookEvent
	if err := json.Unmarshal(body, &batch); err == nil {
		events := make([]*services.WebhookEvent, 0, len(batch))
		for _, event := range batch {
			if event != nil {
				events = append(events, event)
			}
		}
		return events, nil
	}

	var single services.WebhookEvent
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []*services.WebhookEvent{&single}, nil
}
