package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/khaitqy99/otp-sender/internal/models"
	"github.com/khaitqy99/otp-sender/internal/services"
	pkghttp "github.com/khaitqy99/otp-sender/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParam adds a chi route parameter to the request context
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockOtpService implements OtpServiceInterface for testing
type MockOtpService struct {
	IssueFunc        func(ctx context.Context, params services.IssueParams) (*models.OtpRecord, error)
	GetRecordFunc    func(ctx context.Context, id int64) (*services.RecordView, error)
	ListRecordsFunc  func(ctx context.Context, activeOnly bool, limit int) ([]*services.RecordView, error)
	DeleteRecordFunc func(ctx context.Context, id int64, deletedBy string) error
}

func (m *MockOtpService) Issue(ctx context.Context, params services.IssueParams) (*models.OtpRecord, error) {
	if m.IssueFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.IssueFunc(ctx, params)
}

func (m *MockOtpService) GetRecord(ctx context.Context, id int64) (*services.RecordView, error) {
	if m.GetRecordFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetRecordFunc(ctx, id)
}

func (m *MockOtpService) ListRecords(ctx context.Context, activeOnly bool, limit int) ([]*services.RecordView, error) {
	if m.ListRecordsFunc == nil {
		return []*services.RecordView{}, nil
	}
	return m.ListRecordsFunc(ctx, activeOnly, limit)
}

func (m *MockOtpService) DeleteRecord(ctx context.Context, id int64, deletedBy string) error {
	if m.DeleteRecordFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteRecordFunc(ctx, id, deletedBy)
}

// MockVerificationService implements VerificationServiceInterface for testing
type MockVerificationService struct {
	SubmitCodeFunc    func(ctx context.Context, params services.SubmitParams) (*services.SubmitResult, error)
	ApproveFunc       func(ctx context.Context, id int64, approvedBy string) (*models.Verification, error)
	RejectFunc        func(ctx context.Context, id int64, rejectedBy string) (*models.Verification, error)
	HistoryFunc       func(ctx context.Context, limit int) ([]*models.Verification, error)
	ListApprovalsFunc func(ctx context.Context, filter models.ApprovalStatus, limit int) ([]*services.ApprovalView, error)
}

func (m *MockVerificationService) SubmitCode(ctx context.Context, params services.SubmitParams) (*services.SubmitResult, error) {
	if m.SubmitCodeFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SubmitCodeFunc(ctx, params)
}

func (m *MockVerificationService) Approve(ctx context.Context, id int64, approvedBy string) (*models.Verification, error) {
	if m.ApproveFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ApproveFunc(ctx, id, approvedBy)
}

func (m *MockVerificationService) Reject(ctx context.Context, id int64, rejectedBy string) (*models.Verification, error) {
	if m.RejectFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RejectFunc(ctx, id, rejectedBy)
}

func (m *MockVerificationService) History(ctx context.Context, limit int) ([]*models.Verification, error) {
	if m.HistoryFunc == nil {
		return []*models.Verification{}, nil
	}
	return m.HistoryFunc(ctx, limit)
}

func (m *MockVerificationService) ListApprovals(ctx context.Context, filter models.ApprovalStatus, limit int) ([]*services.ApprovalView, error) {
	if m.ListApprovalsFunc == nil {
		return []*services.ApprovalView{}, nil
	}
	return m.ListApprovalsFunc(ctx, filter, limit)
}

// MockWebhookService implements WebhookServiceInterface for testing
type MockWebhookService struct {
	IngestFunc func(ctx context.Context, event *services.WebhookEvent) error
}

func (m *MockWebhookService) Ingest(ctx context.Context, event *services.WebhookEvent) error {
	if m.IngestFunc == nil {
		return nil
	}
	return m.IngestFunc(ctx, event)
}
