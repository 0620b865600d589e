package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/khaitqy99/otp-sender/internal/handlers"
	"github.com/khaitqy99/otp-sender/internal/models"
	"github.com/khaitqy99/otp-sender/internal/services"
)

func pendingVerification() *models.Verification {
	return &models.Verification{
		ID:             7,
		OtpRecordID:    42,
		Email:          "user@example.com",
		Code:           "123456",
		VerifiedBy:     "agent-7",
		VerifiedAt:     time.Now(),
		ApprovalStatus: models.StatusPending,
	}
}

func TestSubmitCode_Accepted(t *testing.T) {
	mockService := &handlers.MockVerificationService{
		SubmitCodeFunc: func(ctx context.Context, params services.SubmitParams) (*services.SubmitResult, error) {
			assert.Equal(t, "user@example.com", params.Email)
			assert.Equal(t, "123456", params.Code)
			assert.Equal(t, "agent-7", params.VerifiedBy)
			return &services.SubmitResult{
				Outcome:      services.OutcomeAccepted,
				Verification: pendingVerification(),
			}, nil
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/submit", map[string]string{
		"email":       "user@example.com",
		"code":        "123456",
		"verified_by": "agent-7",
	})

	w := httptest.NewRecorder()
	handler.SubmitCode(w, req)

	var resp services.SubmitResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, services.OutcomeAccepted, resp.Outcome)
	assert.NotNil(t, resp.Verification)
}

func TestSubmitCode_WrongCodeIs200(t *testing.T) {
	mockService := &handlers.MockVerificationService{
		SubmitCodeFunc: func(ctx context.Context, params services.SubmitParams) (*services.SubmitResult, error) {
			return &services.SubmitResult{
				Outcome:           services.OutcomeWrongCode,
				RemainingAttempts: 2,
			}, nil
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/submit", map[string]string{
		"email":       "user@example.com",
		"code":        "000000",
		"verified_by": "agent-7",
	})

	w := httptest.NewRecorder()
	handler.SubmitCode(w, req)

	var resp services.SubmitResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, services.OutcomeWrongCode, resp.Outcome)
	assert.Equal(t, 2, resp.RemainingAttempts)
}

func TestSubmitCode_RejectsNonNumericCode(t *testing.T) {
	mockService := &handlers.MockVerificationService{}
	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/submit", map[string]string{
		"email":       "user@example.com",
		"code":        "12a456",
		"verified_by": "agent-7",
	})

	w := httptest.NewRecorder()
	handler.SubmitCode(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestSubmitCode_RejectsShortCode(t *testing.T) {
	mockService := &handlers.MockVerificationService{}
	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/submit", map[string]string{
		"email":       "user@example.com",
		"code":        "123",
		"verified_by": "agent-7",
	})

	w := httptest.NewRecorder()
	handler.SubmitCode(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestListApprovals_StatusFilter(t *testing.T) {
	var gotFilter models.ApprovalStatus
	mockService := &handlers.MockVerificationService{
		ListApprovalsFunc: func(ctx context.Context, filter models.ApprovalStatus, limit int) ([]*services.ApprovalView, error) {
			gotFilter = filter
			return []*services.ApprovalView{
				{OtpRecordID: 42, Email: "user@example.com", ApprovalStatus: models.StatusExpired, Virtual: true},
			}, nil
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/verifications?status=expired", nil)

	w := httptest.NewRecorder()
	handler.ListApprovals(w, req)

	var resp handlers.ListApprovalsResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, models.StatusExpired, gotFilter)
	assert.Equal(t, 1, resp.Total)
	assert.True(t, resp.Approvals[0].Virtual)
}

func TestListApprovals_InvalidStatusFilter(t *testing.T) {
	mockService := &handlers.MockVerificationService{}
	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/verifications?status=bogus", nil)

	w := httptest.NewRecorder()
	handler.ListApprovals(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestHistory_Success(t *testing.T) {
	mockService := &handlers.MockVerificationService{
		HistoryFunc: func(ctx context.Context, limit int) ([]*models.Verification, error) {
			return []*models.Verification{pendingVerification()}, nil
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/verifications/history", nil)

	w := httptest.NewRecorder()
	handler.History(w, req)

	var resp handlers.ListVerificationsResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 1, resp.Total)
}

func TestApprove_Success(t *testing.T) {
	mockService := &handlers.MockVerificationService{
		ApproveFunc: func(ctx context.Context, id int64, approvedBy string) (*models.Verification, error) {
			assert.Equal(t, int64(7), id)
			assert.Equal(t, "approver-1", approvedBy)
			v := pendingVerification()
			v.ApprovalStatus = models.StatusApproved
			v.ApprovedBy = &approvedBy
			now := time.Now()
			v.ApprovedAt = &now
			return v, nil
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/7/approve", map[string]string{
		"decided_by": "approver-1",
	})
	req = handlers.WithURLParam(req, "id", "7")

	w := httptest.NewRecorder()
	handler.Approve(w, req)

	var resp models.Verification
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, models.StatusApproved, resp.ApprovalStatus)
}

func TestApprove_MissingActor(t *testing.T) {
	mockService := &handlers.MockVerificationService{}
	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/7/approve", map[string]string{})
	req = handlers.WithURLParam(req, "id", "7")

	w := httptest.NewRecorder()
	handler.Approve(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestApprove_NotFound(t *testing.T) {
	mockService := &handlers.MockVerificationService{
		ApproveFunc: func(ctx context.Context, id int64, approvedBy string) (*models.Verification, error) {
			return nil, models.ErrNotFound
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/99/approve", map[string]string{
		"decided_by": "approver-1",
	})
	req = handlers.WithURLParam(req, "id", "99")

	w := httptest.NewRecorder()
	handler.Approve(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestReject_AlreadyFinalized(t *testing.T) {
	mockService := &handlers.MockVerificationService{
		RejectFunc: func(ctx context.Context, id int64, rejectedBy string) (*models.Verification, error) {
			return nil, models.ErrInvalidState
		},
	}

	handler := handlers.NewVerificationHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/verifications/7/reject", map[string]string{
		"decided_by": "approver-1",
	})
	req = handlers.WithURLParam(req, "id", "7")

	w := httptest.NewRecorder()
	handler.Reject(w, req)

	handlers.AssertErrorResponse(t, w, 409, "invalid_state")
}
