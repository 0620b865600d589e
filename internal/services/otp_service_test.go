package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/khaitqy99/otp-sender/internal/models"
)

func newTestOtpService(records *MockOtpRecordRepository, attempts *MockFailedAttemptRepository, verifications *MockVerificationRepository, sender *MockEmailSender) *OtpService {
	return NewOtpService(records, attempts, verifications, sender, TestLogger(), TestAuditLogger(), TestOtpConfig())
}

func TestIssue_GeneratesSixDigitCode(t *testing.T) {
	var persisted *models.OtpRecord
	records := &MockOtpRecordRepository{
		CreateFunc: func(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error) {
			persisted = record
			record.ID = 1
			return record, nil
		},
	}

	service := newTestOtpService(records, &MockFailedAttemptRepository{}, &MockVerificationRepository{}, &MockEmailSender{})

	created, err := service.Issue(context.Background(), IssueParams{
		Email:    "User@Example.com ",
		IssuedBy: "agent-7",
	})

	assert.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[1-9]\d{5}$`), created.Code)
	assert.Equal(t, "user@example.com", persisted.Email, "email should be normalized")
	assert.Equal(t, models.DeliveryDispatched, created.DeliveryStatus)
	if assert.NotNil(t, created.ProviderMessageID) {
		assert.Equal(t, "mock-message-id", *created.ProviderMessageID)
	}
}

func TestIssue_CodesVary(t *testing.T) {
	records := &MockOtpRecordRepository{
		CreateFunc: func(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error) {
			return record, nil
		},
	}
	service := newTestOtpService(records, &MockFailedAttemptRepository{}, &MockVerificationRepository{}, &MockEmailSender{})

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		created, err := service.Issue(context.Background(), IssueParams{Email: "user@example.com", IssuedBy: "agent-7"})
		assert.NoError(t, err)
		seen[created.Code] = true
	}

	assert.Greater(t, len(seen), 1, "repeated issuance should not produce a constant code")
}

func TestIssue_DefaultAndClampedExpiry(t *testing.T) {
	cfg := TestOtpConfig()
	var persisted *models.OtpRecord
	records := &MockOtpRecordRepository{
		CreateFunc: func(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error) {
			persisted = record
			return record, nil
		},
	}
	service := newTestOtpService(records, &MockFailedAttemptRepository{}, &MockVerificationRepository{}, &MockEmailSender{})

	tests := []struct {
		name      string
		requested time.Duration
		want      time.Duration
	}{
		{"zero selects default", 0, cfg.DefaultExpiry},
		{"below minimum clamps up", time.Minute, cfg.MinExpiry},
		{"above maximum clamps down", 48 * time.Hour, cfg.MaxExpiry},
		{"in range passes through", 15 * time.Minute, 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			_, err := service.Issue(context.Background(), IssueParams{
				Email:    "user@example.com",
				Expiry:   tt.requested,
				IssuedBy: "agent-7",
			})
			assert.NoError(t, err)

			got := persisted.ExpiresAt.Sub(before)
			assert.InDelta(t, tt.want.Seconds(), got.Seconds(), 2)
		})
	}
}

func TestIssue_TransportFailureStillPersists(t *testing.T) {
	var persisted *models.OtpRecord
	records := &MockOtpRecordRepository{
		CreateFunc: func(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error) {
			persisted = record
			return record, nil
		},
	}
	sender := &MockEmailSender{
		SendOtpEmailFunc: func(ctx context.Context, email, code string, customerLabel *string, expiresAt time.Time) (string, error) {
			return "", errors.New("ses unavailable")
		},
	}
	service := newTestOtpService(records, &MockFailedAttemptRepository{}, &MockVerificationRepository{}, sender)

	created, err := service.Issue(context.Background(), IssueParams{Email: "user@example.com", IssuedBy: "agent-7"})

	assert.NoError(t, err, "transport failure must not fail issuance")
	assert.Equal(t, models.DeliveryFailed, persisted.DeliveryStatus)
	if assert.NotNil(t, persisted.DeliveryErrorCode) {
		assert.Equal(t, "SEND_FAILED", *persisted.DeliveryErrorCode)
	}
	if assert.NotNil(t, persisted.DeliveryErrorReason) {
		assert.Contains(t, *persisted.DeliveryErrorReason, "ses unavailable")
	}
	assert.Nil(t, created.ProviderMessageID)
}

func TestIssue_RejectsBadInputs(t *testing.T) {
	service := newTestOtpService(&MockOtpRecordRepository{}, &MockFailedAttemptRepository{}, &MockVerificationRepository{}, &MockEmailSender{})

	_, err := service.Issue(context.Background(), IssueParams{Email: "no-at-sign", IssuedBy: "agent-7"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = service.Issue(context.Background(), IssueParams{Email: "user@example.com", IssuedBy: "  "})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestGetRecord_ClassifiesOnRead(t *testing.T) {
	records := &MockOtpRecordRepository{
		GetByIDFunc: func(ctx context.Context, id int64) (*models.OtpRecord, error) {
			return &models.OtpRecord{
				ID:        id,
				Email:     "user@example.com",
				Code:      "123456",
				ExpiresAt: time.Now().Add(-time.Minute),
			}, nil
		},
	}
	service := newTestOtpService(records, &MockFailedAttemptRepository{}, &MockVerificationRepository{}, &MockEmailSender{})

	view, err := service.GetRecord(context.Background(), 42)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusExpired, view.ApprovalStatus, "overdue record reads as expired without any write")
}

func TestListRecords_ActiveOnlyFiltersTerminal(t *testing.T) {
	now := time.Now()
	records := &MockOtpRecordRepository{
		ListFunc: func(ctx context.Context, limit int) ([]*models.OtpRecord, error) {
			return []*models.OtpRecord{
				{ID: 1, Email: "a@example.com", ExpiresAt: now.Add(10 * time.Minute)},
				{ID: 2, Email: "b@example.com", ExpiresAt: now.Add(-time.Minute)},
				{ID: 3, Email: "c@example.com", ExpiresAt: now.Add(10 * time.Minute)},
			}, nil
		},
	}
	attempts := &MockFailedAttemptRepository{
		CountByRecordIDsFunc: func(ctx context.Context, ids []int64) (map[int64]int, error) {
			return map[int64]int{3: 3}, nil
		},
	}
	service := newTestOtpService(records, attempts, &MockVerificationRepository{}, &MockEmailSender{})

	views, err := service.ListRecords(context.Background(), true, 50)

	assert.NoError(t, err)
	if assert.Len(t, views, 1) {
		assert.Equal(t, int64(1), views[0].Record.ID, "expired and locked records are filtered")
	}
}

func TestDeleteRecord_RefusesFinalizedVerification(t *testing.T) {
	records := &MockOtpRecordRepository{
		GetByIDFunc: func(ctx context.Context, id int64) (*models.OtpRecord, error) {
			return &models.OtpRecord{ID: id, Email: "user@example.com", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	verifications := &MockVerificationRepository{
		GetByRecordIDFunc: func(ctx context.Context, otpRecordID int64) (*models.Verification, error) {
			return &models.Verification{ID: 7, OtpRecordID: otpRecordID, ApprovalStatus: models.StatusApproved}, nil
		},
	}
	service := newTestOtpService(records, &MockFailedAttemptRepository{}, verifications, &MockEmailSender{})

	err := service.DeleteRecord(context.Background(), 42, "agent-7")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestDeleteRecord_AllowsPendingVerification(t *testing.T) {
	deleted := false
	records := &MockOtpRecordRepository{
		GetByIDFunc: func(ctx context.Context, id int64) (*models.OtpRecord, error) {
			return &models.OtpRecord{ID: id, Email: "user@example.com", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		DeleteFunc: func(ctx context.Context, id int64) error {
			deleted = true
			return nil
		},
	}
	verifications := &MockVerificationRepository{
		GetByRecordIDFunc: func(ctx context.Context, otpRecordID int64) (*models.Verification, error) {
			return &models.Verification{ID: 7, OtpRecordID: otpRecordID, ApprovalStatus: models.StatusPending}, nil
		},
	}
	service := newTestOtpService(records, &MockFailedAttemptRepository{}, verifications, &MockEmailSender{})

	err := service.DeleteRecord(context.Background(), 42, "agent-7")
	assert.NoError(t, err)
	assert.True(t, deleted)
}
