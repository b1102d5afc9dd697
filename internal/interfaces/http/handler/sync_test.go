package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSyncOperator struct {
	mock.Mock
}

func (m *mockSyncOperator) BindingStatus(ctx context.Context, localID uuid.UUID) (*appintegration.BindingStatusResponse, error) {
	args := m.Called(ctx, localID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.BindingStatusResponse), args.Error(1)
}

func (m *mockSyncOperator) ListBindings(ctx context.Context, status integration.SyncStatus, filter shared.Filter) ([]appintegration.BindingStatusResponse, int64, error) {
	args := m.Called(ctx, status, filter)
	return args.Get(0).([]appintegration.BindingStatusResponse), args.Get(1).(int64), args.Error(2)
}

func (m *mockSyncOperator) ListJobs(ctx context.Context, status integration.JobStatus, filter shared.Filter) ([]appintegration.JobResponse, int64, error) {
	args := m.Called(ctx, status, filter)
	return args.Get(0).([]appintegration.JobResponse), args.Get(1).(int64), args.Error(2)
}

func (m *mockSyncOperator) GetJob(ctx context.Context, id uuid.UUID) (*appintegration.JobResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.JobResponse), args.Error(1)
}

func (m *mockSyncOperator) RetryJob(ctx context.Context, id uuid.UUID) (*appintegration.JobResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.JobResponse), args.Error(1)
}

func (m *mockSyncOperator) JobStats(ctx context.Context) (map[integration.JobStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[integration.JobStatus]int64), args.Error(1)
}

func (m *mockSyncOperator) TriggerSync(ctx context.Context, req appintegration.TriggerSyncRequest) (appintegration.CycleStats, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(appintegration.CycleStats), args.Error(1)
}

func (m *mockSyncOperator) TriggerImport(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, remoteID string) (bool, error) {
	args := m.Called(ctx, principal, entityType, remoteID)
	return args.Bool(0), args.Error(1)
}

func (m *mockSyncOperator) SaveSubscription(ctx context.Context, req appintegration.SubscriptionRequest) (*integration.SyncSubscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncSubscription), args.Error(1)
}

func newSyncRouter(op SyncOperator) *gin.Engine {
	router := gin.New()
	NewSyncHandler(op).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSyncHandler_GetBindingStatus(t *testing.T) {
	localID := uuid.New()

	t.Run("found", func(t *testing.T) {
		op := new(mockSyncOperator)
		op.On("BindingStatus", mock.Anything, localID).Return(&appintegration.BindingStatusResponse{
			LocalID:  localID,
			System:   integration.SystemCode("exchange"),
			RemoteID: "AAMk-1",
			Status:   integration.SyncStatusSynced,
		}, nil)

		w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/bindings/"+localID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data appintegration.BindingStatusResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "AAMk-1", resp.Data.RemoteID)
		assert.Equal(t, integration.SyncStatusSynced, resp.Data.Status)
		op.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		op := new(mockSyncOperator)
		w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/bindings/not-a-uuid", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		op.AssertNotCalled(t, "BindingStatus", mock.Anything, mock.Anything)
	})

	t.Run("record not found", func(t *testing.T) {
		op := new(mockSyncOperator)
		op.On("BindingStatus", mock.Anything, localID).Return(nil, integration.ErrRecordNotFound)

		w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/bindings/"+localID.String(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})
}

func TestSyncHandler_ListBindings_DefaultsToConflictDeferred(t *testing.T) {
	op := new(mockSyncOperator)
	op.On("ListBindings", mock.Anything, integration.SyncStatusConflictDeferred, mock.MatchedBy(func(f shared.Filter) bool {
		return f.Page == 1 && f.PageSize == 20
	})).Return([]appintegration.BindingStatusResponse{{LocalID: uuid.New()}}, int64(1), nil)

	w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/bindings", "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
	op.AssertExpectations(t)
}

func TestSyncHandler_ListBindings_RejectsUnknownStatus(t *testing.T) {
	op := new(mockSyncOperator)

	w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/bindings?status=lost", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "status", resp.Error.Details[0].Field)
}

func TestSyncHandler_ListJobs(t *testing.T) {
	op := new(mockSyncOperator)
	op.On("ListJobs", mock.Anything, integration.JobStatusDead, mock.MatchedBy(func(f shared.Filter) bool {
		return f.Page == 2 && f.PageSize == 5
	})).Return([]appintegration.JobResponse{{ID: uuid.New(), Status: "DEAD"}}, int64(6), nil)

	w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/jobs?status=DEAD&page=2&page_size=5", "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	op.AssertExpectations(t)
}

func TestSyncHandler_ListJobs_DefaultsToFailed(t *testing.T) {
	op := new(mockSyncOperator)
	op.On("ListJobs", mock.Anything, integration.JobStatusFailed, mock.Anything).
		Return([]appintegration.JobResponse{}, int64(0), nil)

	w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/jobs", "")

	assert.Equal(t, http.StatusOK, w.Code)
	op.AssertExpectations(t)
}

func TestSyncHandler_JobStatsRoute(t *testing.T) {
	op := new(mockSyncOperator)
	op.On("JobStats", mock.Anything).Return(map[integration.JobStatus]int64{
		integration.JobStatusPending: 3,
		integration.JobStatusDead:    1,
	}, nil)

	w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/jobs/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Data["PENDING"])
	assert.Equal(t, int64(1), resp.Data["DEAD"])
	op.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
}

func TestSyncHandler_RetryJob(t *testing.T) {
	jobID := uuid.New()

	t.Run("requeued", func(t *testing.T) {
		op := new(mockSyncOperator)
		op.On("RetryJob", mock.Anything, jobID).Return(&appintegration.JobResponse{ID: jobID, Status: "PENDING"}, nil)

		w := serve(newSyncRouter(op), http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/retry", "")

		assert.Equal(t, http.StatusOK, w.Code)
		op.AssertExpectations(t)
	})

	t.Run("not retryable", func(t *testing.T) {
		op := new(mockSyncOperator)
		op.On("RetryJob", mock.Anything, jobID).Return(nil, integration.ErrJobInvalidState)

		w := serve(newSyncRouter(op), http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/retry", "")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decodeResponse(t, w).Error.Code)
	})
}

func TestSyncHandler_GetJob_NotFound(t *testing.T) {
	jobID := uuid.New()
	op := new(mockSyncOperator)
	op.On("GetJob", mock.Anything, jobID).Return(nil, integration.ErrJobNotFound)

	w := serve(newSyncRouter(op), http.MethodGet, "/api/v1/jobs/"+jobID.String(), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	t.Run("returns cycle stats", func(t *testing.T) {
		op := new(mockSyncOperator)
		op.On("TriggerSync", mock.Anything, appintegration.TriggerSyncRequest{Direction: "import", Full: true}).
			Return(appintegration.CycleStats{Enumerated: 7, Enqueued: 2}, nil)

		w := serve(newSyncRouter(op), http.MethodPost, "/api/v1/sync", `{"direction":"import","full":true}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data appintegration.CycleStats `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 7, resp.Data.Enumerated)
		assert.Equal(t, 2, resp.Data.Enqueued)
	})

	t.Run("rejects unknown direction", func(t *testing.T) {
		op := new(mockSyncOperator)

		w := serve(newSyncRouter(op), http.MethodPost, "/api/v1/sync", `{"direction":"sideways"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		op.AssertNotCalled(t, "TriggerSync", mock.Anything, mock.Anything)
	})
}

func TestSyncHandler_TriggerImport(t *testing.T) {
	principal := uuid.New()
	op := new(mockSyncOperator)
	op.On("TriggerImport", mock.Anything, principal, integration.EntityTypeContact, "AAMk-9").Return(true, nil)

	body := `{"principal":"` + principal.String() + `","entity_type":"contact","remote_id":"AAMk-9"}`
	w := serve(newSyncRouter(op), http.MethodPost, "/api/v1/sync/import", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Data TriggerImportResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Enqueued)
	op.AssertExpectations(t)
}

func TestSyncHandler_SaveSubscription(t *testing.T) {
	principal := uuid.New()
	req := appintegration.SubscriptionRequest{
		Principal:     principal,
		EntityType:    "calendar_event",
		ImportEnabled: true,
		Mailbox:       "calendar",
	}
	op := new(mockSyncOperator)
	op.On("SaveSubscription", mock.Anything, req).Return(&integration.SyncSubscription{
		ID:            uuid.New(),
		Principal:     principal,
		EntityType:    integration.EntityTypeCalendarEvent,
		ImportEnabled: true,
		Mailbox:       "calendar",
	}, nil)

	body := `{"principal":"` + principal.String() + `","entity_type":"calendar_event","import_enabled":true,"mailbox":"calendar"}`
	w := serve(newSyncRouter(op), http.MethodPut, "/api/v1/subscriptions", body)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data appintegration.SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.ImportEnabled)
	assert.False(t, resp.Data.ExportEnabled)
	assert.Equal(t, "calendar", resp.Data.Mailbox)
	op.AssertExpectations(t)
}
