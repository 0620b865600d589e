package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/khaitqy99/otp-sender/internal/config"
	"github.com/khaitqy99/otp-sender/internal/models"
	pkglogger "github.com/khaitqy99/otp-sender/pkg/logger"
)

// VerificationRepository defines the interface for approval lifecycle operations
type VerificationRepository interface {
	Create(ctx context.Context, v *models.Verification) (*models.Verification, error)
	GetByID(ctx context.Context, id int64) (*models.Verification, error)
	GetByRecordID(ctx context.Context, otpRecordID int64) (*models.Verification, error)
	GetByRecordIDs(ctx context.Context, otpRecordIDs []int64) (map[int64]*models.Verification, error)
	ListByStatus(ctx context.Context, status models.ApprovalStatus, limit int) ([]*models.Verification, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Verification, error)
	Approve(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) (bool, error)
	Reject(ctx context.Context, id int64, rejectedBy string, rejectedAt time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	LockOverLimit(ctx context.Context, threshold int, now time.Time) (int64, error)
}

// SubmitOutcome is the tagged result of a code submission. Business-rule
// rejections are outcomes, not errors, so the agent UI can render a
// specific message for each.
type SubmitOutcome string

const (
	OutcomeAccepted        SubmitOutcome = "accepted"
	OutcomeWrongCode       SubmitOutcome = "wrong_code"
	OutcomeNotFound        SubmitOutcome = "otp_not_found"
	OutcomeExpired         SubmitOutcome = "otp_expired"
	OutcomeLocked          SubmitOutcome = "otp_locked"
	OutcomeAlreadyVerified SubmitOutcome = "already_verified"
)

// SubmitParams are the inputs for a candidate code submission
type SubmitParams struct {
	Email      string
	Code       string
	VerifiedBy string
}

// SubmitResult reports the outcome of a code submission. RemainingAttempts
// is meaningful only for wrong_code.
type SubmitResult struct {
	Outcome           SubmitOutcome        `json:"outcome"`
	RemainingAttempts int                  `json:"remaining_attempts"`
	Verification      *models.Verification `json:"verification,omitempty"`
}

// ApprovalView is one entry in the approver's list: either a stored
// verification row or a virtual terminal classification derived for a
// record that never reached a verification.
type ApprovalView struct {
	ID             int64                 `json:"id,omitempty"`
	OtpRecordID    int64                 `json:"otp_record_id"`
	Email          string                `json:"email"`
	VerifiedBy     string                `json:"verified_by"`
	VerifiedAt     time.Time             `json:"verified_at"`
	ApprovalStatus models.ApprovalStatus `json:"approval_status"`
	ApprovedBy     *string               `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time            `json:"approved_at,omitempty"`
	RejectedBy     *string               `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time            `json:"rejected_at,omitempty"`
	Virtual        bool                  `json:"virtual"`
	ExpiresAt      *time.Time            `json:"expires_at,omitempty"`
	LockedAt       *time.Time            `json:"locked_at,omitempty"`
}

// VerificationService drives the approval lifecycle state machine:
// submission gating, approve/reject decisions and the reconciliation sweep.
type VerificationService struct {
	records       OtpRecordRepository
	attempts      FailedAttemptRepository
	verifications VerificationRepository
	logger        *slog.Logger
	audit         *pkglogger.AuditLogger
	cfg           config.OtpConfig
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(
	records OtpRecordRepository,
	attempts FailedAttemptRepository,
	verifications VerificationRepository,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
	cfg config.OtpConfig,
) *VerificationService {
	return &VerificationService{
		records:       records,
		attempts:      attempts,
		verifications: verifications,
		logger:        logger,
		audit:         audit,
		cfg:           cfg,
	}
}

// SubmitCode checks a candidate code against the most recent OTP issued for
// the email. Gates run in a fixed order: resolution, expiry, lockout, code
// match, duplicate verification. Expiry and lockout are checked before
// correctness so a stale or locked OTP can never become verified, even by a
// correct guess. The order must not change.
func (s *VerificationService) SubmitCode(ctx context.Context, params SubmitParams) (*SubmitResult, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	verifiedBy := strings.TrimSpace(params.VerifiedBy)
	if verifiedBy == "" {
		return nil, fmt.Errorf("%w: verified_by is required", models.ErrBadRequest)
	}

	record, err := s.records.GetLatestByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &SubmitResult{Outcome: OutcomeNotFound}, nil
		}
		return nil, err
	}

	now := time.Now()
	if record.IsExpired(now) {
		// Expired submissions are not logged as failed attempts
		return &SubmitResult{Outcome: OutcomeExpired}, nil
	}

	failedCount, err := s.attempts.CountByRecord(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if failedCount >= s.cfg.LockoutThreshold {
		return &SubmitResult{Outcome: OutcomeLocked}, nil
	}

	if params.Code != record.Code {
		if _, err := s.attempts.Record(ctx, &models.FailedAttempt{
			OtpRecordID:   record.ID,
			Email:         email,
			AttemptedCode: params.Code,
		}); err != nil {
			return nil, err
		}

		// Re-derive from the store rather than trusting the earlier count:
		// a concurrent submission may have appended in between.
		newCount, err := s.attempts.CountByRecord(ctx, record.ID)
		if err != nil {
			return nil, err
		}

		s.audit.LogOtpEvent(pkglogger.AuditEvent{
			EventType: "otp_submit_wrong_code",
			Actor:     verifiedBy,
			Email:     email,
			Success:   false,
			Metadata:  map[string]string{"record_id": fmt.Sprintf("%d", record.ID), "failed_count": fmt.Sprintf("%d", newCount)},
		})

		if newCount >= s.cfg.LockoutThreshold {
			return &SubmitResult{Outcome: OutcomeLocked}, nil
		}
		return &SubmitResult{
			Outcome:           OutcomeWrongCode,
			RemainingAttempts: s.cfg.LockoutThreshold - newCount,
		}, nil
	}

	existing, err := s.verifications.GetByRecordID(ctx, record.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return &SubmitResult{Outcome: OutcomeAlreadyVerified, Verification: existing}, nil
	}

	created, err := s.verifications.Create(ctx, &models.Verification{
		OtpRecordID:    record.ID,
		Email:          record.Email,
		Code:           record.Code,
		VerifiedBy:     verifiedBy,
		VerifiedAt:     now,
		ApprovalStatus: models.StatusPending,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost a race with a concurrent correct submission; report the
			// winner's row instead of failing.
			winner, getErr := s.verifications.GetByRecordID(ctx, record.ID)
			if getErr != nil {
				return nil, getErr
			}
			return &SubmitResult{Outcome: OutcomeAlreadyVerified, Verification: winner}, nil
		}
		return nil, err
	}

	s.audit.LogOtpEvent(pkglogger.AuditEvent{
		EventType: "otp_verified",
		Actor:     verifiedBy,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{"record_id": fmt.Sprintf("%d", record.ID), "verification_id": fmt.Sprintf("%d", created.ID)},
	})

	return &SubmitResult{Outcome: OutcomeAccepted, Verification: created}, nil
}

// Approve finalizes a pending verification. Returns ErrInvalidState when
// the row is no longer pending (already decided, expired or locked).
func (s *VerificationService) Approve(ctx context.Context, id int64, approvedBy string) (*models.Verification, error) {
	return s.finalize(ctx, id, approvedBy, models.StatusApproved)
}

// Reject finalizes a pending verification as rejected
func (s *VerificationService) Reject(ctx context.Context, id int64, rejectedBy string) (*models.Verification, error) {
	return s.finalize(ctx, id, rejectedBy, models.StatusRejected)
}

func (s *VerificationService) finalize(ctx context.Context, id int64, actor string, target models.ApprovalStatus) (*models.Verification, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor identity is required", models.ErrBadRequest)
	}

	now := time.Now()
	var updated bool
	var err error
	if target == models.StatusApproved {
		updated, err = s.verifications.Approve(ctx, id, actor, now)
	} else {
		updated, err = s.verifications.Reject(ctx, id, actor, now)
	}
	if err != nil {
		return nil, err
	}

	verification, getErr := s.verifications.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	if !updated {
		// The conditional write lost: the row was not pending. Report the
		// state the caller raced against.
		return nil, fmt.Errorf("%w: verification is %s", models.ErrInvalidState, verification.ApprovalStatus)
	}

	s.audit.LogOtpEvent(pkglogger.AuditEvent{
		EventType: "otp_" + string(target),
		Actor:     actor,
		Email:     verification.Email,
		Success:   true,
		Metadata:  map[string]string{"verification_id": fmt.Sprintf("%d", id)},
	})

	return verification, nil
}

// Reconcile materializes time-based transitions on stored pending rows:
// pending -> expired once the owning record's deadline passed, and
// pending -> locked once its failed-attempt count reached the threshold.
// Both updates are conditional on pending, which makes the sweep idempotent
// and safe to run concurrently with submissions and approvals. Records that
// never reached a verification are left alone; their terminal states stay
// virtual and are served by classification on read.
func (s *VerificationService) Reconcile(ctx context.Context) error {
	now := time.Now()

	expired, expireErr := s.verifications.ExpireOverdue(ctx, now)
	if expireErr != nil {
		s.logger.Error("sweep failed to expire overdue verifications", slog.Any("error", expireErr))
	} else if expired > 0 {
		s.logger.Info("sweep expired overdue verifications", slog.Int64("count", expired))
	}

	locked, lockErr := s.verifications.LockOverLimit(ctx, s.cfg.LockoutThreshold, now)
	if lockErr != nil {
		s.logger.Error("sweep failed to lock verifications over attempt limit", slog.Any("error", lockErr))
	} else if locked > 0 {
		s.logger.Info("sweep locked verifications over attempt limit", slog.Int64("count", locked))
	}

	return errors.Join(expireErr, lockErr)
}

// History returns recent stored verifications for the agent view
func (s *VerificationService) History(ctx context.Context, limit int) ([]*models.Verification, error) {
	return s.verifications.ListRecent(ctx, limit)
}

// ListApprovals returns the approver's work list. Stored rows are filtered
// by status; for the expired and locked views, virtual entries are derived
// for records that never got a verification row, so the approver sees those
// outcomes without anything being written.
func (s *VerificationService) ListApprovals(ctx context.Context, filter models.ApprovalStatus, limit int) ([]*ApprovalView, error) {
	var stored []*models.Verification
	var err error
	if filter == models.StatusNone {
		stored, err = s.verifications.ListRecent(ctx, limit)
	} else {
		stored, err = s.verifications.ListByStatus(ctx, filter, limit)
	}
	if err != nil {
		return nil, err
	}

	views := make([]*ApprovalView, 0, len(stored))
	for _, v := range stored {
		views = append(views, storedApprovalView(v))
	}

	if filter == models.StatusNone || filter == models.StatusExpired || filter == models.StatusLocked {
		virtual, err := s.virtualApprovals(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		views = append(views, virtual...)
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].VerifiedAt.After(views[j].VerifiedAt)
	})

	if len(views) > limit {
		views = views[:limit]
	}

	return views, nil
}

func storedApprovalView(v *models.Verification) *ApprovalView {
	return &ApprovalView{
		ID:             v.ID,
		OtpRecordID:    v.OtpRecordID,
		Email:          v.Email,
		VerifiedBy:     v.VerifiedBy,
		VerifiedAt:     v.VerifiedAt,
		ApprovalStatus: v.ApprovalStatus,
		ApprovedBy:     v.ApprovedBy,
		ApprovedAt:     v.ApprovedAt,
		RejectedBy:     v.RejectedBy,
		RejectedAt:     v.RejectedAt,
	}
}

// virtualApprovals derives expired/locked entries for records lacking any
// verification row, using the same classification as the sweep. The query
// excludes records with verdicts up front, so never-verified records are
// not pushed out of the window by newer verified ones.
func (s *VerificationService) virtualApprovals(ctx context.Context, filter models.ApprovalStatus, limit int) ([]*ApprovalView, error) {
	records, err := s.records.ListWithoutVerification(ctx, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	counts, err := s.attempts.CountByRecordIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]*ApprovalView, 0)
	for _, record := range records {
		status := models.Classify(record, counts[record.ID], nil, s.cfg.LockoutThreshold, now)
		if !status.IsTerminal() {
			continue
		}
		if filter != models.StatusNone && status != filter {
			continue
		}

		view := &ApprovalView{
			OtpRecordID:    record.ID,
			Email:          record.Email,
			VerifiedBy:     models.SystemActor,
			ApprovalStatus: status,
			Virtual:        true,
		}

		switch status {
		case models.StatusExpired:
			expiresAt := record.ExpiresAt
			view.ExpiresAt = &expiresAt
			view.VerifiedAt = expiresAt
		case models.StatusLocked:
			lockedAt, err := s.lockedAt(ctx, record.ID)
			if err != nil {
				return nil, err
			}
			view.LockedAt = &lockedAt
			view.VerifiedAt = lockedAt
		}

		views = append(views, view)
	}

	return views, nil
}

// lockedAt is the timestamp of the attempt that crossed the lockout threshold
func (s *VerificationService) lockedAt(ctx context.Context, otpRecordID int64) (time.Time, error) {
	attempts, err := s.attempts.ListByRecord(ctx, otpRecordID)
	if err != nil {
		return time.Time{}, err
	}
	if len(attempts) >= s.cfg.LockoutThreshold {
		return attempts[s.cfg.LockoutThreshold-1].AttemptedAt, nil
	}
	if len(attempts) > 0 {
		return attempts[len(attempts)-1].AttemptedAt, nil
	}
	return time.Time{}, nil
}
