package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/khaitqy99/otp-sender/internal/config"
	"github.com/khaitqy99/otp-sender/internal/models"
	pkglogger "github.com/khaitqy99/otp-sender/pkg/logger"
)

// TestOtpConfig returns lifecycle tunables suitable for unit tests
func TestOtpConfig() config.OtpConfig {
	return config.OtpConfig{
		DefaultExpiry:    30 * time.Minute,
		MinExpiry:        6 * time.Minute,
		MaxExpiry:        24 * time.Hour,
		LockoutThreshold: 3,
		SweepInterval:    time.Minute,
		WebhookLookback:  2 * time.Hour,
	}
}

// TestLogger returns a logger that discards output
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestAuditLogger returns an audit logger backed by the discard logger
func TestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(TestLogger())
}

// MockOtpRecordRepository implements OtpRecordRepository for testing
type MockOtpRecordRepository struct {
	CreateFunc                  func(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error)
	GetByIDFunc                 func(ctx context.Context, id int64) (*models.OtpRecord, error)
	GetLatestByEmailFunc        func(ctx context.Context, email string) (*models.OtpRecord, error)
	GetByProviderMessageIDFunc  func(ctx context.Context, messageID string) (*models.OtpRecord, error)
	ListRecentByEmailFunc       func(ctx context.Context, email string, since time.Time) ([]*models.OtpRecord, error)
	ListFunc                    func(ctx context.Context, limit int) ([]*models.OtpRecord, error)
	ListWithoutVerificationFunc func(ctx context.Context, limit int) ([]*models.OtpRecord, error)
	SetProviderMessageIDFunc    func(ctx context.Context, id int64, messageID string) error
	MarkDeliveredFunc           func(ctx context.Context, id int64) (bool, error)
	MarkDeliveryFailedFunc      func(ctx context.Context, id int64, errorCode, errorReason string) (bool, error)
	DeleteFunc                  func(ctx context.Context, id int64) error
}

func (m *MockOtpRecordRepository) Create(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error) {
	if m.CreateFunc == nil {
		record.ID = 1
		return record, nil
	}
	return m.CreateFunc(ctx, record)
}

func (m *MockOtpRecordRepository) GetByID(ctx context.Context, id int64) (*models.OtpRecord, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, id)
}

func (m *MockOtpRecordRepository) GetLatestByEmail(ctx context.Context, email string) (*models.OtpRecord, error) {
	if m.GetLatestByEmailFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetLatestByEmailFunc(ctx, email)
}

func (m *MockOtpRecordRepository) GetByProviderMessageID(ctx context.Context, messageID string) (*models.OtpRecord, error) {
	if m.GetByProviderMessageIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByProviderMessageIDFunc(ctx, messageID)
}

func (m *MockOtpRecordRepository) ListRecentByEmail(ctx context.Context, email string, since time.Time) ([]*models.OtpRecord, error) {
	if m.ListRecentByEmailFunc == nil {
		return []*models.OtpRecord{}, nil
	}
	return m.ListRecentByEmailFunc(ctx, email, since)
}

func (m *MockOtpRecordRepository) List(ctx context.Context, limit int) ([]*models.OtpRecord, error) {
	if m.ListFunc == nil {
		return []*models.OtpRecord{}, nil
	}
	return m.ListFunc(ctx, limit)
}

func (m *MockOtpRecordRepository) ListWithoutVerification(ctx context.Context, limit int) ([]*models.OtpRecord, error) {
	if m.ListWithoutVerificationFunc == nil {
		return []*models.OtpRecord{}, nil
	}
	return m.ListWithoutVerificationFunc(ctx, limit)
}

func (m *MockOtpRecordRepository) SetProviderMessageID(ctx context.Context, id int64, messageID string) error {
	if m.SetProviderMessageIDFunc == nil {
		return nil
	}
	return m.SetProviderMessageIDFunc(ctx, id, messageID)
}

func (m *MockOtpRecordRepository) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	if m.MarkDeliveredFunc == nil {
		return false, nil
	}
	return m.MarkDeliveredFunc(ctx, id)
}

func (m *MockOtpRecordRepository) MarkDeliveryFailed(ctx context.Context, id int64, errorCode, errorReason string) (bool, error) {
	if m.MarkDeliveryFailedFunc == nil {
		return false, nil
	}
	return m.MarkDeliveryFailedFunc(ctx, id, errorCode, errorReason)
}

func (m *MockOtpRecordRepository) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteFunc(ctx, id)
}

// MockFailedAttemptRepository implements FailedAttemptRepository for testing
type MockFailedAttemptRepository struct {
	RecordFunc           func(ctx context.Context, attempt *models.FailedAttempt) (*models.FailedAttempt, error)
	CountByRecordFunc    func(ctx context.Context, otpRecordID int64) (int, error)
	ListByRecordFunc     func(ctx context.Context, otpRecordID int64) ([]*models.FailedAttempt, error)
	CountByRecordIDsFunc func(ctx context.Context, otpRecordIDs []int64) (map[int64]int, error)
}

func (m *MockFailedAttemptRepository) Record(ctx context.Context, attempt *models.FailedAttempt) (*models.FailedAttempt, error) {
	if m.RecordFunc == nil {
		attempt.ID = 1
		attempt.AttemptedAt = time.Now()
		return attempt, nil
	}
	return m.RecordFunc(ctx, attempt)
}

func (m *MockFailedAttemptRepository) CountByRecord(ctx context.Context, otpRecordID int64) (int, error) {
	if m.CountByRecordFunc == nil {
		return 0, nil
	}
	return m.CountByRecordFunc(ctx, otpRecordID)
}

func (m *MockFailedAttemptRepository) ListByRecord(ctx context.Context, otpRecordID int64) ([]*models.FailedAttempt, error) {
	if m.ListByRecordFunc == nil {
		return []*models.FailedAttempt{}, nil
	}
	return m.ListByRecordFunc(ctx, otpRecordID)
}

func (m *MockFailedAttemptRepository) CountByRecordIDs(ctx context.Context, otpRecordIDs []int64) (map[int64]int, error) {
	if m.CountByRecordIDsFunc == nil {
		return map[int64]int{}, nil
	}
	return m.CountByRecordIDsFunc(ctx, otpRecordIDs)
}

// MockVerificationRepository implements VerificationRepository for testing
type MockVerificationRepository struct {
	CreateFunc          func(ctx context.Context, v *models.Verification) (*models.Verification, error)
	GetByIDFunc         func(ctx context.Context, id int64) (*models.Verification, error)
	GetByRecordIDFunc   func(ctx context.Context, otpRecordID int64) (*models.Verification, error)
	GetByRecordIDsFunc  func(ctx context.Context, otpRecordIDs []int64) (map[int64]*models.Verification, error)
	ListByStatusFunc    func(ctx context.Context, status models.ApprovalStatus, limit int) ([]*models.Verification, error)
	ListRecentFunc      func(ctx context.Context, limit int) ([]*models.Verification, error)
	ApproveFunc         func(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) (bool, error)
	RejectFunc          func(ctx context.Context, id int64, rejectedBy string, rejectedAt time.Time) (bool, error)
	ExpireOverdueFunc   func(ctx context.Context, now time.Time) (int64, error)
	LockOverLimitFunc   func(ctx context.Context, threshold int, now time.Time) (int64, error)
}

func (m *MockVerificationRepository) Create(ctx context.Context, v *models.Verification) (*models.Verification, error) {
	if m.CreateFunc == nil {
		v.ID = 1
		return v, nil
	}
	return m.CreateFunc(ctx, v)
}

func (m *MockVerificationRepository) GetByID(ctx context.Context, id int64) (*models.Verification, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, id)
}

func (m *MockVerificationRepository) GetByRecordID(ctx context.Context, otpRecordID int64) (*models.Verification, error) {
	if m.GetByRecordIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByRecordIDFunc(ctx, otpRecordID)
}

func (m *MockVerificationRepository) GetByRecordIDs(ctx context.Context, otpRecordIDs []int64) (map[int64]*models.Verification, error) {
	if m.GetByRecordIDsFunc == nil {
		return map[int64]*models.Verification{}, nil
	}
	return m.GetByRecordIDsFunc(ctx, otpRecordIDs)
}

func (m *MockVerificationRepository) ListByStatus(ctx context.Context, status models.ApprovalStatus, limit int) ([]*models.Verification, error) {
	if m.ListByStatusFunc == nil {
		return []*models.Verification{}, nil
	}
	return m.ListByStatusFunc(ctx, status, limit)
}

func (m *MockVerificationRepository) ListRecent(ctx context.Context, limit int) ([]*models.Verification, error) {
	if m.ListRecentFunc == nil {
		return []*models.Verification{}, nil
	}
	return m.ListRecentFunc(ctx, limit)
}

func (m *MockVerificationRepository) Approve(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) (bool, error) {
	if m.ApproveFunc == nil {
		return false, models.ErrNotFound
	}
	return m.ApproveFunc(ctx, id, approvedBy, approvedAt)
}

func (m *MockVerificationRepository) Reject(ctx context.Context, id int64, rejectedBy string, rejectedAt time.Time) (bool, error) {
	if m.RejectFunc == nil {
		return false, models.ErrNotFound
	}
	return m.RejectFunc(ctx, id, rejectedBy, rejectedAt)
}

func (m *MockVerificationRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	if m.ExpireOverdueFunc == nil {
		return 0, nil
	}
	return m.ExpireOverdueFunc(ctx, now)
}

func (m *MockVerificationRepository) LockOverLimit(ctx context.Context, threshold int, now time.Time) (int64, error) {
	if m.LockOverLimitFunc == nil {
		return 0, nil
	}
	return m.LockOverLimitFunc(ctx, threshold, now)
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendOtpEmailFunc func(ctx context.Context, email, code string, customerLabel *string, expiresAt time.Time) (string, error)
}

func (m *MockEmailSender) SendOtpEmail(ctx context.Context, email, code string, customerLabel *string, expiresAt time.Time) (string, error) {
	if m.SendOtpEmailFunc == nil {
		return "mock-message-id", nil
	}
	return m.SendOtpEmailFunc(ctx, email, code, customerLabel, expiresAt)
}
