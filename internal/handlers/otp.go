package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khaitqy99/otp-sender/internal/models"
	"github.com/khaitqy99/otp-sender/internal/services"
	pkghttp "github.com/khaitqy99/otp-sender/pkg/http"
)

// OtpServiceInterface defines the interface for OTP issuance business logic
type OtpServiceInterface interface {
	Issue(ctx context.Context, params services.IssueParams) (*models.OtpRecord, error)
	GetRecord(ctx context.Context, id int64) (*services.RecordView, error)
	ListRecords(ctx context.Context, activeOnly bool, limit int) ([]*services.RecordView, error)
	DeleteRecord(ctx context.Context, id int64, deletedBy string) error
}

// OtpHandler handles OTP issuance and record HTTP requests
type OtpHandler struct {
	service OtpServiceInterface
}

// NewOtpHandler creates a new OtpHandler
func NewOtpHandler(service OtpServiceInterface) *OtpHandler {
	return &OtpHandler{
		service: service,
	}
}

// Request/Response DTOs

// IssueOtpRequest represents the request body for issuing an OTP
type IssueOtpRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	ExpiryMinutes float64 `json:"expiry_minutes" validate:"omitempty,gt=0"`
	IssuedBy      string  `json:"issued_by" validate:"required,min=1"`
	CustomerLabel string  `json:"customer_label" validate:"omitempty,max=200"`
}

// OtpRecordResponse represents an OTP record in the HTTP response
type OtpRecordResponse struct {
	ID                  int64   `json:"id"`
	Email               string  `json:"email"`
	Code                string  `json:"code"`
	DeliveryStatus      string  `json:"delivery_status"`
	DeliveryErrorCode   *string `json:"delivery_error_code,omitempty"`
	DeliveryErrorReason *string `json:"delivery_error_reason,omitempty"`
	IssuedBy            string  `json:"issued_by"`
	CustomerLabel       *string `json:"customer_label,omitempty"`
	CreatedAt           string  `json:"created_at"`
	ExpiresAt           string  `json:"expires_at"`
	ApprovalStatus      string  `json:"approval_status,omitempty"`
	FailedAttempts      int     `json:"failed_attempts"`
}

// ListOtpRecordsResponse represents a list of OTP records
type ListOtpRecordsResponse struct {
	Records []*OtpRecordResponse `json:"records"`
	Total   int                  `json:"total"`
}

func recordToResponse(record *models.OtpRecord) *OtpRecordResponse {
	return &OtpRecordResponse{
		ID:                  record.ID,
		Email:               record.Email,
		Code:                record.Code,
		DeliveryStatus:      string(record.DeliveryStatus),
		DeliveryErrorCode:   record.DeliveryErrorCode,
		DeliveryErrorReason: record.DeliveryErrorReason,
		IssuedBy:            record.IssuedBy,
		CustomerLabel:       record.CustomerLabel,
		CreatedAt:           record.CreatedAt.Format(time.RFC3339),
		ExpiresAt:           record.ExpiresAt.Format(time.RFC3339),
	}
}

func viewToResponse(view *services.RecordView) *OtpRecordResponse {
	resp := recordToResponse(view.Record)
	resp.Code = view.Code
	resp.ApprovalStatus = string(view.ApprovalStatus)
	resp.FailedAttempts = view.FailedAttempts
	return resp
}

// Issue creates a new OTP record and dispatches the code by email
func (h *OtpHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueOtpRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	params := services.IssueParams{
		Email:    req.Email,
		Expiry:   time.Duration(req.ExpiryMinutes * float64(time.Minute)),
		IssuedBy: req.IssuedBy,
	}
	if req.CustomerLabel != "" {
		params.CustomerLabel = &req.CustomerLabel
	}

	record, err := h.service.Issue(r.Context(), params)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Failed to issue OTP")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, recordToResponse(record))
}

// ListRecords returns recent OTP records. With ?active=true, records whose
// derived approval status is terminal are filtered out.
func (h *OtpHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	limit := parseLimit(r.URL.Query().Get("limit"), 50)

	views, err := h.service.ListRecords(r.Context(), activeOnly, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list OTP records")
		return
	}

	records := make([]*OtpRecordResponse, 0, len(views))
	for _, view := range views {
		records = append(records, viewToResponse(view))
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListOtpRecordsResponse{
		Records: records,
		Total:   len(records),
	})
}

// GetRecord returns one OTP record with its derived approval status
func (h *OtpHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid record ID")
		return
	}

	view, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "OTP record not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to get OTP record")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, viewToResponse(view))
}

// DeleteRecord removes an OTP record while its lifecycle is still
// non-terminal; attempts and the verification row cascade with it
func (h *OtpHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid record ID")
		return
	}

	deletedBy := r.URL.Query().Get("deleted_by")
	if deletedBy == "" {
		pkghttp.WriteBadRequest(w, "deleted_by is required")
		return
	}

	if err := h.service.DeleteRecord(r.Context(), id, deletedBy); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "OTP record not found")
		case errors.Is(err, models.ErrInvalidState):
			pkghttp.WriteInvalidState(w, "Cannot delete a record with a finalized verification")
		default:
			pkghttp.WriteInternalError(w, "Failed to delete OTP record")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func parseLimit(raw string, defaultLimit int) int {
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		return defaultLimit
	}
	return limit
}
