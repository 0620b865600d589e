package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khaitqy99/otp-sender/internal/config"
	"github.com/khaitqy99/otp-sender/internal/models"
	pkglogger "github.com/khaitqy99/otp-sender/pkg/logger"
)

// WebhookEvent is a delivery-status event from the email provider.
// Providers vary in the exact payload, so only the fields the lifecycle
// needs are modeled; everything else is ignored.
type WebhookEvent struct {
	Type      string           `json:"type"`
	CreatedAt string           `json:"created_at,omitempty"`
	Data      WebhookEventData `json:"data"`
}

// WebhookEventData carries the event payload
type WebhookEventData struct {
	EmailID    string             `json:"email_id"`
	From       string             `json:"from,omitempty"`
	To         []string           `json:"to"`
	Subject    string             `json:"subject,omitempty"`
	BounceType string             `json:"bounce_type,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Error      *WebhookEventError `json:"error,omitempty"`
}

// WebhookEventError is the provider's structured failure detail, when present
type WebhookEventError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Fixed user-facing failure categories. Raw provider reasons are translated
// into exactly one of these so the UI never renders provider SMTP text.
const (
	FailureRejectedPermanently = "rejected-permanently"
	FailureMailboxFull         = "mailbox-full"
	FailureUnknownRecipient    = "unknown-recipient"
	FailureMarkedSpam          = "marked-spam"
	FailureGeneric             = "generic-failure"
)

var failureMessages = map[string]string{
	FailureRejectedPermanently: "The recipient's mail server permanently rejected the email. The address does not exist or is invalid.",
	FailureMailboxFull:         "The recipient's mailbox is full. The email could not be delivered.",
	FailureUnknownRecipient:    "The recipient is unknown. The email address is invalid.",
	FailureMarkedSpam:          "The recipient marked the email as spam.",
	FailureGeneric:             "The email could not be delivered. The recipient's mail server rejected it.",
}

// WebhookService ingests delivery-status events and updates OTP records
type WebhookService struct {
	records  OtpRecordRepository
	logger   *slog.Logger
	lookback time.Duration
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(records OtpRecordRepository, logger *slog.Logger, cfg config.OtpConfig) *WebhookService {
	return &WebhookService{
		records:  records,
		logger:   logger,
		lookback: cfg.WebhookLookback,
	}
}

// Ingest applies one delivery event to its OTP record. Failure-class events
// mark the record failed with a categorized reason; success-class events
// promote dispatched to delivered; everything else is a no-op. A missing or
// unmatched record is not an error: the caller acknowledges the provider
// regardless, and this method only returns errors for storage failures.
func (s *WebhookService) Ingest(ctx context.Context, event *WebhookEvent) error {
	ingestID := uuid.New().String()
	eventType := normalizeEventType(event.Type)

	log := s.logger.With(
		slog.String("ingest_id", ingestID),
		slog.String("event_type", eventType),
		slog.String("provider_message_id", event.Data.EmailID),
	)

	record, err := s.resolveRecord(ctx, event, log)
	if err != nil {
		return err
	}
	if record == nil {
		log.Warn("no otp record matched delivery event")
		return nil
	}

	switch eventType {
	case "bounced", "failed":
		code, reason := categorizeFailure(rawErrorCode(event, "BOUNCED"), rawErrorReason(event), false)
		return s.markFailed(ctx, record, code, reason, log)

	case "complained":
		code, reason := categorizeFailure(rawErrorCode(event, "COMPLAINED"), rawErrorReason(event), true)
		return s.markFailed(ctx, record, code, reason, log)

	case "delivered":
		promoted, err := s.records.MarkDelivered(ctx, record.ID)
		if err != nil {
			return err
		}
		if promoted {
			log.Info("otp record marked delivered", slog.Int64("record_id", record.ID))
		}
		return nil

	case "sent", "delivery_delayed", "received", "opened", "clicked":
		// Informational only; the record already reflects dispatch
		return nil

	default:
		log.Warn("unhandled delivery event type")
		return nil
	}
}

func (s *WebhookService) markFailed(ctx context.Context, record *models.OtpRecord, errorCode, reason string, log *slog.Logger) error {
	updated, err := s.records.MarkDeliveryFailed(ctx, record.ID, errorCode, reason)
	if err != nil {
		return err
	}
	if updated {
		log.Warn("otp record marked delivery failed",
			slog.Int64("record_id", record.ID),
			slog.String("error_code", errorCode),
			slog.String("email", pkglogger.SanitizedEmail(record.Email)))
	}
	return nil
}

// resolveRecord finds the OTP record a delivery event belongs to: first by
// provider message id, then by the most recent record for the destination
// email inside the lookback window. The fallback tolerates the race where
// the webhook arrives before the issuance side persisted the provider id;
// when it matches, the id is backfilled.
func (s *WebhookService) resolveRecord(ctx context.Context, event *WebhookEvent, log *slog.Logger) (*models.OtpRecord, error) {
	if event.Data.EmailID != "" {
		record, err := s.records.GetByProviderMessageID(ctx, event.Data.EmailID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	if len(event.Data.To) == 0 {
		return nil, nil
	}
	email := strings.ToLower(strings.TrimSpace(event.Data.To[0]))
	if email == "" {
		return nil, nil
	}

	since := time.Now().Add(-s.lookback)
	candidates, err := s.records.ListRecentByEmail(ctx, email, since)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Prefer a record still waiting for its provider id
	match := candidates[0]
	for _, candidate := range candidates {
		if candidate.ProviderMessageID == nil {
			match = candidate
			break
		}
	}

	if match.ProviderMessageID == nil && event.Data.EmailID != "" {
		if err := s.records.SetProviderMessageID(ctx, match.ID, event.Data.EmailID); err != nil {
			log.Error("failed to backfill provider message id",
				slog.Int64("record_id", match.ID), slog.Any("error", err))
		}
	}

	log.Info("delivery event matched via email fallback", slog.Int64("record_id", match.ID))
	return match, nil
}

// normalizeEventType strips the provider's "email." prefix
func normalizeEventType(eventType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(eventType)), "email.")
}

func rawErrorCode(event *WebhookEvent, fallback string) string {
	if event.Data.Error != nil && event.Data.Error.Code != "" {
		return event.Data.Error.Code
	}
	if event.Data.BounceType != "" {
		return event.Data.BounceType
	}
	return fallback
}

func rawErrorReason(event *WebhookEvent) string {
	if event.Data.Reason != "" {
		return event.Data.Reason
	}
	if event.Data.Error != nil {
		return event.Data.Error.Message
	}
	return ""
}

// categorizeFailure translates a provider's raw code and reason into one of
// the fixed user-facing categories plus its display message
func categorizeFailure(rawCode, rawReason string, complaint bool) (errorCode, reason string) {
	lower := strings.ToLower(rawReason)

	category := FailureGeneric
	switch {
	case complaint || strings.Contains(lower, "spam"):
		category = FailureMarkedSpam
	case strings.Contains(lower, "permanently rejected"), strings.Contains(lower, "permanently refused"):
		category = FailureRejectedPermanently
	case strings.Contains(lower, "mailbox full"), strings.Contains(lower, "quota exceeded"):
		category = FailureMailboxFull
	case strings.Contains(lower, "user unknown"), strings.Contains(lower, "user not found"),
		strings.Contains(lower, "does not exist"):
		category = FailureUnknownRecipient
	}

	code := strings.ToUpper(rawCode)
	if code == "" {
		code = "FAILED"
	}

	return code, fmt.Sprintf("%s (%s)", failureMessages[category], category)
}
