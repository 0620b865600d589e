package models

import "time"

// DeliveryStatus tracks the email dispatch outcome for an OTP record.
// Transitions are forward-only: pending_dispatch -> dispatched ->
// delivered or failed. A record never returns to pending_dispatch.
type DeliveryStatus string

const (
	DeliveryPendingDispatch DeliveryStatus = "pending_dispatch"
	DeliveryDispatched      DeliveryStatus = "dispatched"
	DeliveryDelivered       DeliveryStatus = "delivered"
	DeliveryFailed          DeliveryStatus = "failed"
)

// OtpRecord represents one issued one-time passcode. Code and ExpiresAt
// are immutable after creation; only the delivery fields are mutated later,
// and only by the delivery-status ingester.
type OtpRecord struct {
	ID                  int64          `json:"id"`
	Email               string         `json:"email"`
	Code                string         `json:"-"` // Never expose in list responses by default
	ProviderMessageID   *string        `json:"provider_message_id,omitempty"`
	DeliveryStatus      DeliveryStatus `json:"delivery_status"`
	DeliveryErrorCode   *string        `json:"delivery_error_code,omitempty"`
	DeliveryErrorReason *string        `json:"delivery_error_reason,omitempty"`
	IssuedBy            string         `json:"issued_by"`
	CustomerLabel       *string        `json:"customer_label,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	ExpiresAt           time.Time      `json:"expires_at"`
}

// IsExpired reports whether the record's expiry deadline has passed.
func (r *OtpRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
