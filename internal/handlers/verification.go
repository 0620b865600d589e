package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khaitqy99/otp-sender/internal/models"
	"github.com/khaitqy99/otp-sender/internal/services"
	pkghttp "github.com/khaitqy99/otp-sender/pkg/http"
)

// VerificationServiceInterface defines the interface for the approval
// lifecycle business logic
type VerificationServiceInterface interface {
	SubmitCode(ctx context.Context, params services.SubmitParams) (*services.SubmitResult, error)
	Approve(ctx context.Context, id int64, approvedBy string) (*models.Verification, error)
	Reject(ctx context.Context, id int64, rejectedBy string) (*models.Verification, error)
	History(ctx context.Context, limit int) ([]*models.Verification, error)
	ListApprovals(ctx context.Context, filter models.ApprovalStatus, limit int) ([]*services.ApprovalView, error)
}

// VerificationHandler handles code submission and approval HTTP requests
type VerificationHandler struct {
	service VerificationServiceInterface
}

// NewVerificationHandler creates a new VerificationHandler
func NewVerificationHandler(service VerificationServiceInterface) *VerificationHandler {
	return &VerificationHandler{
		service: service,
	}
}

// Request/Response DTOs

// SubmitCodeRequest represents the request body for submitting a candidate code
type SubmitCodeRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
	VerifiedBy string `json:"verified_by" validate:"required,min=1"`
}

// DecisionRequest represents the request body for an approve or reject decision
type DecisionRequest struct {
	DecidedBy string `json:"decided_by" validate:"required,min=1"`
}

// ListVerificationsResponse represents a list of verifications
type ListVerificationsResponse struct {
	Verifications []*models.Verification `json:"verifications"`
	Total         int                    `json:"total"`
}

// ListApprovalsResponse represents the approver's work list
type ListApprovalsResponse struct {
	Approvals []*services.ApprovalView `json:"approvals"`
	Total     int                      `json:"total"`
}

// SubmitCode checks a candidate code against the latest OTP for an email.
// Business-rule rejections (wrong code, expired, locked) come back 200 with
// a tagged outcome; only transport and storage failures are HTTP errors.
func (h *VerificationHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req SubmitCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.SubmitCode(r.Context(), services.SubmitParams{
		Email:      req.Email,
		Code:       req.Code,
		VerifiedBy: req.VerifiedBy,
	})
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Failed to process code submission")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// ListApprovals returns the approver's work list, optionally filtered by
// status. Expired and locked views include virtual entries for records that
// never reached a verification.
func (h *VerificationHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	filter := models.ApprovalStatus(r.URL.Query().Get("status"))
	if filter != models.StatusNone && !filter.Valid() {
		pkghttp.WriteBadRequest(w, "Invalid status filter")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 50)

	approvals, err := h.service.ListApprovals(r.Context(), filter, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list approvals")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListApprovalsResponse{
		Approvals: approvals,
		Total:     len(approvals),
	})
}

// History returns recent stored verifications for the agent view
func (h *VerificationHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)

	verifications, err := h.service.History(r.Context(), limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list verification history")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListVerificationsResponse{
		Verifications: verifications,
		Total:         len(verifications),
	})
}

// Approve finalizes a pending verification as approved
func (h *VerificationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// Reject finalizes a pending verification as rejected
func (h *VerificationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *VerificationHandler) decide(w http.ResponseWriter, r *http.Request, decision func(context.Context, int64, string) (*models.Verification, error)) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid verification ID")
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	verification, err := decision(r.Context(), id, req.DecidedBy)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, err.Error())
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Verification not found")
		case errors.Is(err, models.ErrInvalidState):
			pkghttp.WriteInvalidState(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "Failed to finalize verification")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, verification)
}
