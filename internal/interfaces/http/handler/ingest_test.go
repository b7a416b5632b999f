package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	ingestapp "github.com/reconcile/backend/internal/application/ingest"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/shared"
)

// MockRunRepository implements ingest.RunRepository for testing
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*ingest.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Run), args.Error(1)
}

func (m *MockRunRepository) FindAll(ctx context.Context, filter ingest.RunFilter, page, pageSize int) (*ingest.RunListResult, error) {
	args := m.Called(ctx, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.RunListResult), args.Error(1)
}

func (m *MockRunRepository) FindByStatus(ctx context.Context, status ingest.RunStatus) ([]*ingest.Run, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingest.Run), args.Error(1)
}

func (m *MockRunRepository) FindStale(ctx context.Context, cutoff time.Time) ([]*ingest.Run, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingest.Run), args.Error(1)
}

func (m *MockRunRepository) Save(ctx context.Context, run *ingest.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ ingest.RunRepository = (*MockRunRepository)(nil)

// Test helpers

func setupIngestTestRouter() (*gin.Engine, *MockRunRepository, *IngestHandler) {
	gin.SetMode(gin.TestMode)

	mockRepo := new(MockRunRepository)
	batchService := ingestapp.NewBatchService(mockRepo, nil, nil, nil, nil, ingestapp.BatchConfig{})
	runService := ingestapp.NewRunService(mockRepo, nil, nil)
	handler := NewIngestHandler(batchService, runService)

	router := gin.New()
	return router, mockRepo, handler
}

// buildUploadRequest assembles a multipart upload. An empty fileName skips the
// file part entirely; an empty contentType leaves the part's type header off.
func buildUploadRequest(url, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		_ = writer.WriteField(key, value)
	}
	if fileName != "" {
		partHeader := textproto.MIMEHeader{}
		partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
		if contentType != "" {
			partHeader.Set("Content-Type", contentType)
		}
		part, _ := writer.CreatePart(partHeader)
		_, _ = part.Write(data)
	}
	_ = writer.Close()

	req, _ := http.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newProcessingRun(kind ingest.RunKind) *ingest.Run {
	run, _ := ingest.NewRun(kind, identity.SourceFeed, "orders.csv", 2048)
	_ = run.StartProcessing(10)
	run.ClearDomainEvents()
	return run
}

// Tests

func TestIngestHandler_UploadOrders(t *testing.T) {
	t.Run("should reject request without file", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.POST("/ingest/orders", handler.UploadOrders)

		req := buildUploadRequest("/ingest/orders", "", "", nil, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockRepo.AssertNotCalled(t, "Save")
	})

	t.Run("should reject unknown source", func(t *testing.T) {
		router, _, handler := setupIngestTestRouter()
		router.POST("/ingest/orders", handler.UploadOrders)

		req := buildUploadRequest("/ingest/orders", "orders.csv", "text/csv",
			[]byte("external_key,name\n"), map[string]string{"source": "guesswork"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should reject unsupported content type", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.POST("/ingest/orders", handler.UploadOrders)

		req := buildUploadRequest("/ingest/orders", "orders.pdf", "application/pdf",
			[]byte("%PDF-1.4"), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		mockRepo.AssertNotCalled(t, "Save")
	})

	t.Run("should reject oversized file", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.POST("/ingest/orders", handler.UploadOrders)

		oversized := bytes.Repeat([]byte("x"), maxUploadFileSize+1)
		req := buildUploadRequest("/ingest/orders", "orders.csv", "text/csv", oversized, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		mockRepo.AssertNotCalled(t, "Save")
	})
}

func TestIngestHandler_GetRun(t *testing.T) {
	t.Run("should return run", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.GET("/ingest/runs/:id", handler.GetRun)

		run := newProcessingRun(ingest.RunKindOrders)
		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs/"+run.ID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, run.ID.String(), data["id"])
		assert.Equal(t, "orders", data["kind"])
		assert.Equal(t, "processing", data["status"])

		mockRepo.AssertExpectations(t)
	})

	t.Run("should return 404 when run does not exist", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.GET("/ingest/runs/:id", handler.GetRun)

		runID := uuid.New()
		mockRepo.On("FindByID", mock.Anything, runID).Return(nil, shared.ErrNotFound)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs/"+runID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should return 400 for malformed ID", func(t *testing.T) {
		router, _, handler := setupIngestTestRouter()
		router.GET("/ingest/runs/:id", handler.GetRun)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs/not-a-uuid", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIngestHandler_ListRuns(t *testing.T) {
	t.Run("should return paginated runs", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.GET("/ingest/runs", handler.ListRuns)

		run := newProcessingRun(ingest.RunKindOrders)
		mockRepo.On("FindAll", mock.Anything, mock.AnythingOfType("ingest.RunFilter"), 1, 20).
			Return(&ingest.RunListResult{
				Items:      []*ingest.Run{run},
				TotalCount: 1,
				Page:       1,
				PageSize:   20,
			}, nil)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs?kind=orders", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].([]interface{})
		assert.Len(t, data, 1)

		meta := response["meta"].(map[string]interface{})
		assert.Equal(t, float64(1), meta["total"])

		mockRepo.AssertExpectations(t)
	})

	t.Run("should reject unknown status filter", func(t *testing.T) {
		router, _, handler := setupIngestTestRouter()
		router.GET("/ingest/runs", handler.ListRuns)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs?status=exploded", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should reject malformed started_from", func(t *testing.T) {
		router, _, handler := setupIngestTestRouter()
		router.GET("/ingest/runs", handler.ListRuns)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs?started_from=yesterday", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIngestHandler_CancelRun(t *testing.T) {
	t.Run("should cancel processing run", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.POST("/ingest/runs/:id/cancel", handler.CancelRun)

		run := newProcessingRun(ingest.RunKindDistributions)
		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)
		mockRepo.On("Save", mock.Anything, run).Return(nil)

		req, _ := http.NewRequest(http.MethodPost, "/ingest/runs/"+run.ID.String()+"/cancel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, "cancelled", data["status"])

		mockRepo.AssertExpectations(t)
	})

	t.Run("should return 422 for terminal run", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.POST("/ingest/runs/:id/cancel", handler.CancelRun)

		run := newProcessingRun(ingest.RunKindOrders)
		_ = run.Fail([]ingest.RunErrorDetail{{Code: "PARSE_FAILED", Message: "bad header"}})
		run.ClearDomainEvents()
		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)

		req, _ := http.NewRequest(http.MethodPost, "/ingest/runs/"+run.ID.String()+"/cancel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		mockRepo.AssertNotCalled(t, "Save")
	})
}

func TestIngestHandler_DeleteRun(t *testing.T) {
	t.Run("should delete finished run", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.DELETE("/ingest/runs/:id", handler.DeleteRun)

		run := newProcessingRun(ingest.RunKindOrders)
		_ = run.RecordPage(ingest.Report{Created: 5}, nil)
		_ = run.Complete()
		run.ClearDomainEvents()

		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)
		mockRepo.On("Delete", mock.Anything, run.ID).Return(nil)

		req, _ := http.NewRequest(http.MethodDelete, "/ingest/runs/"+run.ID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should return 422 for run still processing", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.DELETE("/ingest/runs/:id", handler.DeleteRun)

		run := newProcessingRun(ingest.RunKindOrders)
		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)

		req, _ := http.NewRequest(http.MethodDelete, "/ingest/runs/"+run.ID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		mockRepo.AssertNotCalled(t, "Delete")
	})
}

func TestIngestHandler_DownloadRunErrors(t *testing.T) {
	t.Run("should render failure details as CSV", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.GET("/ingest/runs/:id/errors", handler.DownloadRunErrors)

		run := newProcessingRun(ingest.RunKindOrders)
		_ = run.RecordPage(ingest.Report{Failed: 1}, []ingest.RunErrorDetail{
			{Row: 3, ExternalKey: "ORD-1001", Code: "IDENTITY_RESOLVE_FAILED", Message: "name is blank"},
		})
		_ = run.Complete()
		run.ClearDomainEvents()

		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs/"+run.ID.String()+"/errors", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "ingest_errors_orders_")

		body := w.Body.String()
		assert.Contains(t, body, "row,external_key,code,message")
		assert.Contains(t, body, "3,ORD-1001,IDENTITY_RESOLVE_FAILED,name is blank")
	})

	t.Run("should return 404 when run has no failure details", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.GET("/ingest/runs/:id/errors", handler.DownloadRunErrors)

		run := newProcessingRun(ingest.RunKindOrders)
		_ = run.RecordPage(ingest.Report{Created: 5}, nil)
		_ = run.Complete()
		run.ClearDomainEvents()

		mockRepo.On("FindByID", mock.Anything, run.ID).Return(run, nil)

		req, _ := http.NewRequest(http.MethodGet, "/ingest/runs/"+run.ID.String()+"/errors", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestIngestHandler_RecoverStaleRuns(t *testing.T) {
	t.Run("should fail stale runs and report the count", func(t *testing.T) {
		router, mockRepo, handler := setupIngestTestRouter()
		router.POST("/ingest/runs/recover-stale", handler.RecoverStaleRuns)

		stale := newProcessingRun(ingest.RunKindOrders)
		mockRepo.On("FindStale", mock.Anything, mock.AnythingOfType("time.Time")).
			Return([]*ingest.Run{stale}, nil)
		mockRepo.On("Save", mock.Anything, stale).Return(nil)

		req, _ := http.NewRequest(http.MethodPost, "/ingest/runs/recover-stale?older_than_minutes=60", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(1), data["count"])
		assert.Equal(t, ingest.RunStatusFailed, stale.Status)

		mockRepo.AssertExpectations(t)
	})

	t.Run("should reject non-positive cutoff", func(t *testing.T) {
		router, _, handler := setupIngestTestRouter()
		router.POST("/ingest/runs/recover-stale", handler.RecoverStaleRuns)

		req, _ := http.NewRequest(http.MethodPost, "/ingest/runs/recover-stale?older_than_minutes=-5", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
