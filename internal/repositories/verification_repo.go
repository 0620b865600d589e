package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khaitqy99/otp-sender/internal/database"
	"github.com/khaitqy99/otp-sender/internal/models"
)

// VerificationRepository handles approval lifecycle data access
type VerificationRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationRepository creates a new VerificationRepository
func NewVerificationRepository(db *database.DB) *VerificationRepository {
	return &VerificationRepository{pool: db.Pool}
}

const verificationColumns = `id, otp_record_id, email, code, verified_by, verified_at,
	approval_status, approved_by, approved_at, rejected_by, rejected_at, created_at`

// scanVerificationRow populates a Verification model from a database row
func scanVerificationRow(row rowScanner) (*models.Verification, error) {
	var v models.Verification

	err := row.Scan(
		&v.ID, &v.OtpRecordID, &v.Email, &v.Code, &v.VerifiedBy, &v.VerifiedAt,
		&v.ApprovalStatus, &v.ApprovedBy, &v.ApprovedAt,
		&v.RejectedBy, &v.RejectedAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &v, nil
}

// scanVerificationRows iterates through rows and scans each into Verification models
func scanVerificationRows(rows pgx.Rows) ([]*models.Verification, error) {
	defer rows.Close()

	verifications := make([]*models.Verification, 0)

	for rows.Next() {
		v, err := scanVerificationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		verifications = append(verifications, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verification rows: %w", err)
	}

	return verifications, nil
}

// Create persists a pending verification for a record. The unique constraint
// on otp_record_id surfaces a concurrent duplicate as models.ErrConflict.
func (r *VerificationRepository) Create(ctx context.Context, v *models.Verification) (*models.Verification, error) {
	query := `
		INSERT INTO otp_verifications (otp_record_id, email, code, verified_by, verified_at, approval_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + verificationColumns

	created, err := scanVerificationRow(r.pool.QueryRow(ctx, query,
		v.OtpRecordID, v.Email, v.Code, v.VerifiedBy, v.VerifiedAt, v.ApprovalStatus,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByID retrieves a verification by its ID
func (r *VerificationRepository) GetByID(ctx context.Context, id int64) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM otp_verifications WHERE id = $1`

	return scanVerificationRow(r.pool.QueryRow(ctx, query, id))
}

// GetByRecordID retrieves the verification for an OTP record, if any
func (r *VerificationRepository) GetByRecordID(ctx context.Context, otpRecordID int64) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM otp_verifications WHERE otp_record_id = $1`

	return scanVerificationRow(r.pool.QueryRow(ctx, query, otpRecordID))
}

// GetByRecordIDs retrieves verifications for a batch of OTP records
func (r *VerificationRepository) GetByRecordIDs(ctx context.Context, otpRecordIDs []int64) (map[int64]*models.Verification, error) {
	byRecord := make(map[int64]*models.Verification, len(otpRecordIDs))
	if len(otpRecordIDs) == 0 {
		return byRecord, nil
	}

	query := `SELECT ` + verificationColumns + ` FROM otp_verifications WHERE otp_record_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, otpRecordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get verifications by record: %w", err)
	}

	verifications, err := scanVerificationRows(rows)
	if err != nil {
		return nil, err
	}

	for _, v := range verifications {
		byRecord[v.OtpRecordID] = v
	}

	return byRecord, nil
}

// ListByStatus returns verifications with the given approval status, newest first
func (r *VerificationRepository) ListByStatus(ctx context.Context, status models.ApprovalStatus, limit int) ([]*models.Verification, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM otp_verifications
		WHERE approval_status = $1
		ORDER BY verified_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications by status: %w", err)
	}

	return scanVerificationRows(rows)
}

// ListRecent returns the most recent verifications regardless of status
func (r *VerificationRepository) ListRecent(ctx context.Context, limit int) ([]*models.Verification, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM otp_verifications
		ORDER BY verified_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent verifications: %w", err)
	}

	return scanVerificationRows(rows)
}

// Approve finalizes a pending verification. The update is conditional on
// the row still being pending, so a racing sweep or a second approver
// cannot overwrite a terminal state; exactly one conditional write wins.
func (r *VerificationRepository) Approve(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) (bool, error) {
	query := `
		UPDATE otp_verifications
		SET approval_status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND approval_status = $5
	`

	result, err := r.pool.Exec(ctx, query, id, models.StatusApproved, approvedBy, approvedAt, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to approve verification: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Reject finalizes a pending verification as rejected, conditionally like Approve
func (r *VerificationRepository) Reject(ctx context.Context, id int64, rejectedBy string, rejectedAt time.Time) (bool, error) {
	query := `
		UPDATE otp_verifications
		SET approval_status = $2, rejected_by = $3, rejected_at = $4
		WHERE id = $1 AND approval_status = $5
	`

	result, err := r.pool.Exec(ctx, query, id, models.StatusRejected, rejectedBy, rejectedAt, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to reject verification: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ExpireOverdue transitions pending verifications whose owning record's
// expiry deadline has passed. Conditional on pending, so repeated sweeps
// and concurrent approvals cannot double-transition a row.
func (r *VerificationRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE otp_verifications v
		SET approval_status = $1, rejected_by = $2, rejected_at = $3
		FROM otp_records r
		WHERE v.otp_record_id = r.id
		  AND v.approval_status = $4
		  AND r.expires_at < $3
	`

	result, err := r.pool.Exec(ctx, query, models.StatusExpired, models.SystemActor, now, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue verifications: %w", err)
	}

	return result.RowsAffected(), nil
}

// LockOverLimit transitions pending verifications whose owning record has
// accumulated at least threshold failed attempts
func (r *VerificationRepository) LockOverLimit(ctx context.Context, threshold int, now time.Time) (int64, error) {
	query := `
		UPDATE otp_verifications v
		SET approval_status = $1, rejected_by = $2, rejected_at = $3
		WHERE v.approval_status = $4
		  AND (SELECT COUNT(*) FROM otp_failed_attempts a WHERE a.otp_record_id = v.otp_record_id) >= $5
	`

	result, err := r.pool.Exec(ctx, query, models.StatusLocked, models.SystemActor, now, models.StatusPending, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to lock verifications over attempt limit: %w", err)
	}

	return result.RowsAffected(), nil
}
