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

func sampleRecord() *models.OtpRecord {
	msgID := "msg-abc123"
	return &models.OtpRecord{
		ID:                42,
		Email:             "user@example.com",
		Code:              "123456",
		ProviderMessageID: &msgID,
		DeliveryStatus:    models.DeliveryDispatched,
		IssuedBy:          "agent-7",
		CreatedAt:         time.Now(),
		ExpiresAt:         time.Now().Add(30 * time.Minute),
	}
}

func TestIssueOtp_Success(t *testing.T) {
	var gotParams services.IssueParams
	mockService := &handlers.MockOtpService{
		IssueFunc: func(ctx context.Context, params services.IssueParams) (*models.OtpRecord, error) {
			gotParams = params
			return sampleRecord(), nil
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/otps", map[string]interface{}{
		"email":          "user@example.com",
		"expiry_minutes": 15,
		"issued_by":      "agent-7",
	})

	w := httptest.NewRecorder()
	handler.Issue(w, req)

	var resp handlers.OtpRecordResponse
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, int64(42), resp.ID)
	assert.Equal(t, "user@example.com", resp.Email)
	assert.Equal(t, "123456", resp.Code)
	assert.Equal(t, "dispatched", resp.DeliveryStatus)

	assert.Equal(t, "user@example.com", gotParams.Email)
	assert.Equal(t, 15*time.Minute, gotParams.Expiry)
	assert.Equal(t, "agent-7", gotParams.IssuedBy)
	assert.Nil(t, gotParams.CustomerLabel)
}

func TestIssueOtp_CustomerLabelForwarded(t *testing.T) {
	mockService := &handlers.MockOtpService{
		IssueFunc: func(ctx context.Context, params services.IssueParams) (*models.OtpRecord, error) {
			if assert.NotNil(t, params.CustomerLabel) {
				assert.Equal(t, "ACME Corp", *params.CustomerLabel)
			}
			return sampleRecord(), nil
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/otps", map[string]interface{}{
		"email":          "user@example.com",
		"issued_by":      "agent-7",
		"customer_label": "ACME Corp",
	})

	w := httptest.NewRecorder()
	handler.Issue(w, req)

	assert.Equal(t, 201, w.Code)
}

func TestIssueOtp_InvalidEmail(t *testing.T) {
	mockService := &handlers.MockOtpService{}
	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/otps", map[string]interface{}{
		"email":     "not-an-email",
		"issued_by": "agent-7",
	})

	w := httptest.NewRecorder()
	handler.Issue(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestIssueOtp_MissingIssuedBy(t *testing.T) {
	mockService := &handlers.MockOtpService{}
	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/otps", map[string]interface{}{
		"email": "user@example.com",
	})

	w := httptest.NewRecorder()
	handler.Issue(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestIssueOtp_MalformedBody(t *testing.T) {
	mockService := &handlers.MockOtpService{}
	handler := handlers.NewOtpHandler(mockService)
	req := httptest.NewRequest("POST", "/otps", nil)

	w := httptest.NewRecorder()
	handler.Issue(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestListOtps_ActiveFlagAndLimit(t *testing.T) {
	var gotActive bool
	var gotLimit int
	mockService := &handlers.MockOtpService{
		ListRecordsFunc: func(ctx context.Context, activeOnly bool, limit int) ([]*services.RecordView, error) {
			gotActive = activeOnly
			gotLimit = limit
			return []*services.RecordView{
				{Record: sampleRecord(), Code: "123456", ApprovalStatus: models.StatusPending, FailedAttempts: 1},
			}, nil
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/otps?active=true&limit=10", nil)

	w := httptest.NewRecorder()
	handler.ListRecords(w, req)

	var resp handlers.ListOtpRecordsResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, gotActive)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "pending", resp.Records[0].ApprovalStatus)
	assert.Equal(t, 1, resp.Records[0].FailedAttempts)
}

func TestGetOtp_Success(t *testing.T) {
	mockService := &handlers.MockOtpService{
		GetRecordFunc: func(ctx context.Context, id int64) (*services.RecordView, error) {
			assert.Equal(t, int64(42), id)
			return &services.RecordView{
				Record:         sampleRecord(),
				Code:           "123456",
				ApprovalStatus: models.StatusApproved,
			}, nil
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/otps/42", nil)
	req = handlers.WithURLParam(req, "id", "42")

	w := httptest.NewRecorder()
	handler.GetRecord(w, req)

	var resp handlers.OtpRecordResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "approved", resp.ApprovalStatus)
}

func TestGetOtp_NotFound(t *testing.T) {
	mockService := &handlers.MockOtpService{
		GetRecordFunc: func(ctx context.Context, id int64) (*services.RecordView, error) {
			return nil, models.ErrNotFound
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/otps/99", nil)
	req = handlers.WithURLParam(req, "id", "99")

	w := httptest.NewRecorder()
	handler.GetRecord(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestGetOtp_InvalidID(t *testing.T) {
	mockService := &handlers.MockOtpService{}
	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/otps/abc", nil)
	req = handlers.WithURLParam(req, "id", "abc")

	w := httptest.NewRecorder()
	handler.GetRecord(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestDeleteOtp_Success(t *testing.T) {
	mockService := &handlers.MockOtpService{
		DeleteRecordFunc: func(ctx context.Context, id int64, deletedBy string) error {
			assert.Equal(t, int64(42), id)
			assert.Equal(t, "agent-7", deletedBy)
			return nil
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "DELETE", "/otps/42?deleted_by=agent-7", nil)
	req = handlers.WithURLParam(req, "id", "42")

	w := httptest.NewRecorder()
	handler.DeleteRecord(w, req)

	assert.Equal(t, 204, w.Code)
}

func TestDeleteOtp_MissingDeletedBy(t *testing.T) {
	mockService := &handlers.MockOtpService{}
	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "DELETE", "/otps/42", nil)
	req = handlers.WithURLParam(req, "id", "42")

	w := httptest.NewRecorder()
	handler.DeleteRecord(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestDeleteOtp_FinalizedRecord(t *testing.T) {
	mockService := &handlers.MockOtpService{
		DeleteRecordFunc: func(ctx context.Context, id int64, deletedBy string) error {
			return models.ErrInvalidState
		},
	}

	handler := handlers.NewOtpHandler(mockService)
	req := handlers.NewTestRequest(t, "DELETE", "/otps/42?deleted_by=agent-7", nil)
	req = handlers.WithURLParam(req, "id", "42")

	w := httptest.NewRecorder()
	handler.DeleteRecord(w, req)

	handlers.AssertErrorResponse(t, w, 409, "invalid_state")
}
