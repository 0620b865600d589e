package models

import "time"

// ApprovalStatus is the approval lifecycle state for a verified OTP entry.
//
// pending is the only non-terminal state. approved and rejected are set by
// an approver and are immune to later expiry or lockout reclassification.
// expired and locked are machine-driven: the reconciliation sweep persists
// them onto pending rows, while records that never reached a verification
// report them as derived (virtual) states without a stored row.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	StatusExpired  ApprovalStatus = "expired"
	StatusLocked   ApprovalStatus = "locked"

	// StatusNone means no approval lifecycle exists yet for a record:
	// no successful code entry, not expired, not locked.
	StatusNone ApprovalStatus = ""
)

// SystemActor is recorded as the rejecting identity for sweep-driven
// transitions, distinguishing them from explicit human decisions.
const SystemActor = "system"

// IsTerminal reports whether the status permits no further transitions.
func (s ApprovalStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusLocked:
		return true
	}
	return false
}

// Valid reports whether s is a known stored status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusLocked:
		return true
	}
	return false
}

// Verification is the approval lifecycle row for one OTP record's
// successful code entry. At most one row exists per record. It is created
// once (on first correct submission) and mutated once more: by an approver
// (approved/rejected) or by the reconciliation sweep (expired/locked).
type Verification struct {
	ID             int64          `json:"id"`
	OtpRecordID    int64          `json:"otp_record_id"`
	Email          string         `json:"email"`
	Code           string         `json:"-"`
	VerifiedBy     string         `json:"verified_by"`
	VerifiedAt     time.Time      `json:"verified_at"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ApprovedBy     *string        `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty"`
	RejectedBy     *string        `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time     `json:"rejected_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Classify derives the current approval status for an OTP record from
// persisted facts. It is the single derivation shared by the reconciliation
// sweep (which persists its result onto pending rows) and every read path
// (which does not persist anything).
//
// Rules, in order:
//  1. A stored terminal status is immutable.
//  2. Expiry beats lockout: once the deadline passed the record is expired.
//  3. failedCount >= lockoutThreshold locks the record.
//  4. Otherwise the stored row's pending status stands, or StatusNone when
//     no row exists.
func Classify(record *OtpRecord, failedCount int, verification *Verification, lockoutThreshold int, now time.Time) ApprovalStatus {
	if verification != nil && verification.ApprovalStatus != StatusPending {
		return verification.ApprovalStatus
	}

	if record.IsExpired(now) {
		return StatusExpired
	}

	if failedCount >= lockoutThreshold {
		return StatusLocked
	}

	if verification != nil {
		return StatusPending
	}

	return StatusNone
}
