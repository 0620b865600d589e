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

// OtpRecordRepository handles OTP record data access
type OtpRecordRepository struct {
	pool *pgxpool.Pool
}

// NewOtpRecordRepository creates a new OtpRecordRepository
func NewOtpRecordRepository(db *database.DB) *OtpRecordRepository {
	return &OtpRecordRepository{pool: db.Pool}
}

const otpRecordColumns = `id, email, code, provider_message_id, delivery_status,
	delivery_error_code, delivery_error_reason, issued_by, customer_label,
	created_at, expires_at`

// scanOtpRecordRow populates an OtpRecord model from a database row
func scanOtpRecordRow(row rowScanner) (*models.OtpRecord, error) {
	var record models.OtpRecord

	err := row.Scan(
		&record.ID, &record.Email, &record.Code, &record.ProviderMessageID,
		&record.DeliveryStatus, &record.DeliveryErrorCode, &record.DeliveryErrorReason,
		&record.IssuedBy, &record.CustomerLabel, &record.CreatedAt, &record.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &record, nil
}

// scanOtpRecordRows iterates through rows and scans each into OtpRecord models
func scanOtpRecordRows(rows pgx.Rows) ([]*models.OtpRecord, error) {
	defer rows.Close()

	records := make([]*models.OtpRecord, 0)

	for rows.Next() {
		record, err := scanOtpRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan otp record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating otp record rows: %w", err)
	}

	return records, nil
}

// Create persists a new OTP record
func (r *OtpRecordRepository) Create(ctx context.Context, record *models.OtpRecord) (*models.OtpRecord, error) {
	query := `
		INSERT INTO otp_records (email, code, provider_message_id, delivery_status,
			delivery_error_code, delivery_error_reason, issued_by, customer_label, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + otpRecordColumns

	created, err := scanOtpRecordRow(r.pool.QueryRow(ctx, query,
		record.Email, record.Code, record.ProviderMessageID, record.DeliveryStatus,
		record.DeliveryErrorCode, record.DeliveryErrorReason,
		record.IssuedBy, record.CustomerLabel, record.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create otp record: %w", err)
	}

	return created, nil
}

// GetByID retrieves a record by its ID
func (r *OtpRecordRepository) GetByID(ctx context.Context, id int64) (*models.OtpRecord, error) {
	query := `SELECT ` + otpRecordColumns + ` FROM otp_records WHERE id = $1`

	return scanOtpRecordRow(r.pool.QueryRow(ctx, query, id))
}

// GetLatestByEmail retrieves the most recently created record for an email
func (r *OtpRecordRepository) GetLatestByEmail(ctx context.Context, email string) (*models.OtpRecord, error) {
	query := `
		SELECT ` + otpRecordColumns + `
		FROM otp_records
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanOtpRecordRow(r.pool.QueryRow(ctx, query, email))
}

// GetByProviderMessageID retrieves the record matched to a transport message id
func (r *OtpRecordRepository) GetByProviderMessageID(ctx context.Context, messageID string) (*models.OtpRecord, error) {
	query := `
		SELECT ` + otpRecordColumns + `
		FROM otp_records
		WHERE provider_message_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanOtpRecordRow(r.pool.QueryRow(ctx, query, messageID))
}

// ListRecentByEmail returns records for an email created at or after the
// given time, newest first. Used by the webhook fallback lookup.
func (r *OtpRecordRepository) ListRecentByEmail(ctx context.Context, email string, since time.Time) ([]*models.OtpRecord, error) {
	query := `
		SELECT ` + otpRecordColumns + `
		FROM otp_records
		WHERE email = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 5
	`

	rows, err := r.pool.Query(ctx, query, email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent otp records: %w", err)
	}

	return scanOtpRecordRows(rows)
}

// List returns the most recent records, newest first
func (r *OtpRecordRepository) List(ctx context.Context, limit int) ([]*models.OtpRecord, error) {
	query := `
		SELECT ` + otpRecordColumns + `
		FROM otp_records
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list otp records: %w", err)
	}

	return scanOtpRecordRows(rows)
}

// ListWithoutVerification returns the most recent records that have no
// verification row, newest first. Backs the approver view's derived
// expired/locked entries, so an old never-verified record is not crowded
// out of the window by newer records that already have verdicts.
func (r *OtpRecordRepository) ListWithoutVerification(ctx context.Context, limit int) ([]*models.OtpRecord, error) {
	query := `
		SELECT ` + otpRecordColumns + `
		FROM otp_records
		WHERE NOT EXISTS (
			SELECT 1 FROM otp_verifications v WHERE v.otp_record_id = otp_records.id
		)
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unverified otp records: %w", err)
	}

	return scanOtpRecordRows(rows)
}

// SetProviderMessageID backfills the transport message id on a record that
// was created before the provider id became known
func (r *OtpRecordRepository) SetProviderMessageID(ctx context.Context, id int64, messageID string) error {
	query := `
		UPDATE otp_records
		SET provider_message_id = $2
		WHERE id = $1 AND provider_message_id IS NULL
	`

	_, err := r.pool.Exec(ctx, query, id, messageID)
	if err != nil {
		return fmt.Errorf("failed to set provider message id: %w", err)
	}

	return nil
}

// MarkDelivered promotes a dispatched record to delivered. The update is
// conditional so delivery status only ever moves forward.
func (r *OtpRecordRepository) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE otp_records
		SET delivery_status = $2
		WHERE id = $1 AND delivery_status = $3
	`

	result, err := r.pool.Exec(ctx, query, id, models.DeliveryDelivered, models.DeliveryDispatched)
	if err != nil {
		return false, fmt.Errorf("failed to mark record delivered: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkDeliveryFailed records a failure-class delivery outcome. Repeat
// failure reports refresh the stored error code and reason so the record
// carries the provider's latest detail.
func (r *OtpRecordRepository) MarkDeliveryFailed(ctx context.Context, id int64, errorCode, errorReason string) (bool, error) {
	query := `
		UPDATE otp_records
		SET delivery_status = $2, delivery_error_code = $3, delivery_error_reason = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, models.DeliveryFailed, errorCode, errorReason)
	if err != nil {
		return false, fmt.Errorf("failed to mark record delivery failed: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Delete removes a record; failed attempts and the verification row cascade
func (r *OtpRecordRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM otp_records WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete otp record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
