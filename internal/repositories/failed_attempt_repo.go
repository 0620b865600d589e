package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khaitqy99/otp-sender/internal/database"
	"github.com/khaitqy99/otp-sender/internal/models"
)

// FailedAttemptRepository handles the append-only wrong-code submission log
type FailedAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewFailedAttemptRepository creates a new FailedAttemptRepository
func NewFailedAttemptRepository(db *database.DB) *FailedAttemptRepository {
	return &FailedAttemptRepository{pool: db.Pool}
}

// Record appends a wrong-code submission for an OTP record
func (r *FailedAttemptRepository) Record(ctx context.Context, attempt *models.FailedAttempt) (*models.FailedAttempt, error) {
	query := `
		INSERT INTO otp_failed_attempts (otp_record_id, email, attempted_code)
		VALUES ($1, $2, $3)
		RETURNING id, otp_record_id, email, attempted_code, attempted_at
	`

	var created models.FailedAttempt
	err := r.pool.QueryRow(ctx, query,
		attempt.OtpRecordID, attempt.Email, attempt.AttemptedCode,
	).Scan(&created.ID, &created.OtpRecordID, &created.Email,
		&created.AttemptedCode, &created.AttemptedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record failed attempt: %w", database.MapPostgresError(err))
	}

	return &created, nil
}

// CountByRecord returns the number of failed attempts for one OTP record
func (r *FailedAttemptRepository) CountByRecord(ctx context.Context, otpRecordID int64) (int, error) {
	query := `SELECT COUNT(*) FROM otp_failed_attempts WHERE otp_record_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, otpRecordID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed attempts: %w", err)
	}

	return count, nil
}

// ListByRecord returns all failed attempts for a record in submission order.
// The attempt at the lockout threshold carries the locked-at timestamp.
func (r *FailedAttemptRepository) ListByRecord(ctx context.Context, otpRecordID int64) ([]*models.FailedAttempt, error) {
	query := `
		SELECT id, otp_record_id, email, attempted_code, attempted_at
		FROM otp_failed_attempts
		WHERE otp_record_id = $1
		ORDER BY attempted_at ASC
	`

	rows, err := r.pool.Query(ctx, query, otpRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.FailedAttempt, 0)
	for rows.Next() {
		var attempt models.FailedAttempt
		if err := rows.Scan(&attempt.ID, &attempt.OtpRecordID, &attempt.Email,
			&attempt.AttemptedCode, &attempt.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failed attempt: %w", err)
		}
		attempts = append(attempts, &attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed attempt rows: %w", err)
	}

	return attempts, nil
}

// CountByRecordIDs returns failed-attempt counts for a batch of records.
// Records with no attempts are absent from the result map.
func (r *FailedAttemptRepository) CountByRecordIDs(ctx context.Context, otpRecordIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(otpRecordIDs))
	if len(otpRecordIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT otp_record_id, COUNT(*)
		FROM otp_failed_attempts
		WHERE otp_record_id = ANY($1)
		GROUP BY otp_record_id
	`

	rows, err := r.pool.Query(ctx, query, otpRecordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed attempts by record: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recordID int64
		var count int
		if err := rows.Scan(&recordID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan attempt count: %w", err)
		}
		counts[recordID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt count rows: %w", err)
	}

	return counts, nil
}
