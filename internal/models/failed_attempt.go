package models

import "time"

// FailedAttempt represents a single wrong-code submission against an OTP
// record. Rows are append-only; ordering by AttemptedAt is significant
// because the attempt that crosses the lockout threshold defines locked-at.
type FailedAttempt struct {
	ID            int64     `json:"id"`
	OtpRecordID   int64     `json:"otp_record_id"`
	Email         string    `json:"email"`
	AttemptedCode string    `json:"attempted_code"`
	AttemptedAt   time.Time `json:"attempted_at"`
}
