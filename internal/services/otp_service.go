package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/khaitqy99/otp-sender/internal/config"
	"github.com/khaitqy99/otp-sender/internal/models"
	pkglogger "github.com/khaitqy99/otp-sender/pkg/logger"
)

// OtpRecordRepository defines the interface for OTP record operations
type OtpRecordRepository interface {
	Create(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error)
	GetByID(ctx context.Context, id int64) (*models.OtpRecord, error)
	GetLatestByEmail(ctx context.Context, email string) (*models.OtpRecord, error)
	GetByProviderMessageID(ctx context.Context, messageID string) (*models.OtpRecord, error)
	ListRecentByEmail(ctx context.Context, email string, since time.Time) ([]*models.OtpRecord, error)
	List(ctx context.Context, limit int) ([]*models.OtpRecord, error)
	ListWithoutVerification(ctx context.Context, limit int) ([]*models.OtpRecord, error)
	SetProviderMessageID(ctx context.Context, id int64, messageID string) error
	MarkDelivered(ctx context.Context, id int64) (bool, error)
	MarkDeliveryFailed(ctx context.Context, id int64, errorCode, errorReason string) (bool, error)
	Delete(ctx context.Context, id int64) error
}

// FailedAttemptRepository defines the interface for the wrong-code attempt log
type FailedAttemptRepository interface {
	Record(ctx context.Context, attempt *models.FailedAttempt) (*models.FailedAttempt, error)
	CountByRecord(ctx context.Context, otpRecordID int64) (int, error)
	ListByRecord(ctx context.Context, otpRecordID int64) ([]*models.FailedAttempt, error)
	CountByRecordIDs(ctx context.Context, otpRecordIDs []int64) (map[int64]int, error)
}

// IssueParams are the inputs for issuing a new OTP
type IssueParams struct {
	Email         string
	Expiry        time.Duration
	IssuedBy      string
	CustomerLabel *string
}

// RecordView is an OTP record decorated with its derived approval
// classification and failed-attempt count for list and detail reads
type RecordView struct {
	Record         *models.OtpRecord     `json:"record"`
	Code           string                `json:"code"`
	ApprovalStatus models.ApprovalStatus `json:"approval_status"`
	FailedAttempts int                   `json:"failed_attempts"`
}

// OtpService handles OTP issuance and record reads
type OtpService struct {
	records       OtpRecordRepository
	attempts      FailedAttemptRepository
	verifications VerificationRepository
	emailSender   EmailSender
	logger        *slog.Logger
	audit         *pkglogger.AuditLogger
	cfg           config.OtpConfig
}

// NewOtpService creates a new OtpService
func NewOtpService(
	records OtpRecordRepository,
	attempts FailedAttemptRepository,
	verifications VerificationRepository,
	emailSender EmailSender,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
	cfg config.OtpConfig,
) *OtpService {
	return &OtpService{
		records:       records,
		attempts:      attempts,
		verifications: verifications,
		emailSender:   emailSender,
		logger:        logger,
		audit:         audit,
		cfg:           cfg,
	}
}

// Issue generates a fresh 6-digit code, dispatches it by email and persists
// the record. The record is persisted even when the transport fails: failed
// sends are kept for audit with delivery_status=failed, and no retry happens
// at this layer. The issuer may simply issue again for a new code.
func (s *OtpService) Issue(ctx context.Context, params IssueParams) (*models.OtpRecord, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email must contain '@'", models.ErrBadRequest)
	}
	if strings.TrimSpace(params.IssuedBy) == "" {
		return nil, fmt.Errorf("%w: issued_by is required", models.ErrBadRequest)
	}

	expiry := s.clampExpiry(params.Expiry)

	code, err := generateCode()
	if err != nil {
		s.logger.Error("failed to generate otp code", slog.Any("error", err))
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := time.Now()
	record := &models.OtpRecord{
		Email:         email,
		Code:          code,
		IssuedBy:      strings.TrimSpace(params.IssuedBy),
		CustomerLabel: params.CustomerLabel,
		ExpiresAt:     now.Add(expiry),
	}

	messageID, sendErr := s.emailSender.SendOtpEmail(ctx, email, code, params.CustomerLabel, record.ExpiresAt)
	if sendErr != nil {
		reason := sendErr.Error()
		errorCode := "SEND_FAILED"
		record.DeliveryStatus = models.DeliveryFailed
		record.DeliveryErrorCode = &errorCode
		record.DeliveryErrorReason = &reason
		s.logger.Warn("otp dispatch failed, recording for audit",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", sendErr))
	} else {
		record.DeliveryStatus = models.DeliveryDispatched
		record.ProviderMessageID = &messageID
	}

	created, err := s.records.Create(ctx, record)
	if err != nil {
		s.logger.Error("failed to persist otp record",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to create otp record: %w", err)
	}

	s.audit.LogOtpEvent(pkglogger.AuditEvent{
		EventType: "otp_issued",
		Actor:     created.IssuedBy,
		Email:     email,
		Success:   sendErr == nil,
		Metadata:  map[string]string{"record_id": fmt.Sprintf("%d", created.ID)},
	})

	return created, nil
}

// clampExpiry bounds the caller-supplied duration to the configured range;
// the zero value selects the default
func (s *OtpService) clampExpiry(expiry time.Duration) time.Duration {
	if expiry == 0 {
		return s.cfg.DefaultExpiry
	}
	if expiry < s.cfg.MinExpiry {
		return s.cfg.MinExpiry
	}
	if expiry > s.cfg.MaxExpiry {
		return s.cfg.MaxExpiry
	}
	return expiry
}

// generateCode returns a uniformly random 6-digit code in [100000, 999999].
// The lower bound keeps leading zeros impossible, so the string is always
// exactly six digits.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// GetRecord returns one record with its derived approval classification
func (s *OtpService) GetRecord(ctx context.Context, id int64) (*RecordView, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	verification, err := s.verifications.GetByRecordID(ctx, record.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	failedCount, err := s.attempts.CountByRecord(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	return &RecordView{
		Record:         record,
		Code:           record.Code,
		ApprovalStatus: models.Classify(record, failedCount, verification, s.cfg.LockoutThreshold, time.Now()),
		FailedAttempts: failedCount,
	}, nil
}

// ListRecords returns recent records, each classified on the fly. With
// activeOnly set, records whose derived status is terminal are filtered out,
// so the issuer view never depends on the sweep having run.
func (s *OtpService) ListRecords(ctx context.Context, activeOnly bool, limit int) ([]*RecordView, error) {
	records, err := s.records.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	verifications, err := s.verifications.GetByRecordIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	counts, err := s.attempts.CountByRecordIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]*RecordView, 0, len(records))
	for _, record := range records {
		status := models.Classify(record, counts[record.ID], verifications[record.ID], s.cfg.LockoutThreshold, now)
		if activeOnly && status.IsTerminal() {
			continue
		}
		views = append(views, &RecordView{
			Record:         record,
			Code:           record.Code,
			ApprovalStatus: status,
			FailedAttempts: counts[record.ID],
		})
	}

	return views, nil
}

// DeleteRecord removes a record and its attempts and verification by
// cascade. Deletion is refused once a terminal verification row has been
// recorded; terminal outcomes are part of the audit trail.
func (s *OtpService) DeleteRecord(ctx context.Context, id int64, deletedBy string) error {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}

	verification, err := s.verifications.GetByRecordID(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if verification != nil && verification.ApprovalStatus.IsTerminal() {
		return fmt.Errorf("%w: verification already %s", models.ErrInvalidState, verification.ApprovalStatus)
	}

	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogOtpEvent(pkglogger.AuditEvent{
		EventType: "otp_deleted",
		Actor:     deletedBy,
		Email:     record.Email,
		Success:   true,
		Metadata:  map[string]string{"record_id": fmt.Sprintf("%d", id)},
	})

	return nil
}
