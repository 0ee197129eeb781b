package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/lussekatt/internal/app"
	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
	"github.com/shrimpsizemoose/lussekatt/internal/jobs"
	"github.com/shrimpsizemoose/lussekatt/internal/models"
	"github.com/shrimpsizemoose/lussekatt/internal/progress"
	"github.com/shrimpsizemoose/lussekatt/internal/store/sqlite"
	"github.com/shrimpsizemoose/lussekatt/internal/syncer"
)

// fakeCanvasServer serves just enough of the Canvas API for an empty course
// to sync end to end.
func fakeCanvasServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/courses/{courseID}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%s,"name":"Data Ops","course_code":"OPS-1","workflow_state":"available"}`, r.PathValue("courseID"))
	})
	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, queueSize int) *app.Service {
	t.Helper()

	srv := fakeCanvasServer(t)

	st, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := canvas.New(srv.URL, "test-token", 5*time.Second)
	tracker := progress.NewMemoryTracker(time.Hour)
	queue := jobs.NewQueue(1, queueSize)
	t.Cleanup(queue.Shutdown)

	return &app.Service{
		Store:    st,
		Canvas:   client,
		Progress: tracker,
		Syncer:   syncer.New(client, st, tracker),
		Jobs:     queue,
	}
}

func newTestRouter(service *app.Service) *http.ServeMux {
	h := NewSyncHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/courses/{courseID}/sync", h.HandleCourseSync)
	mux.HandleFunc("GET /api/v1/courses/{courseID}/sync", h.HandleCourseSyncStatus)
	mux.HandleFunc("DELETE /api/v1/courses/{courseID}", h.HandleCourseDelete)
	mux.HandleFunc("GET /api/v1/courses/{courseID}/gradebook", h.HandleGradebook)
	mux.HandleFunc("POST /api/v1/sync/batch", h.HandleBatchSync)
	mux.HandleFunc("GET /api/v1/sync/batch/{batchID}", h.HandleBatchSyncStatus)
	mux.HandleFunc("POST /api/v1/group-categories/{categoryID}/reassignments", h.HandleReassignments)
	mux.HandleFunc("POST /api/v1/teams/{teamID}/push", h.HandleTeamPush)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestCourseSyncQueuedAndCompletes(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/courses/1001/sync", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, "queued", payload["status"])

	require.Eventually(t, func() bool {
		record, err := service.Progress.Get(context.Background(), "api", 1001)
		return err == nil && record != nil && record.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	record, err := service.Progress.Get(context.Background(), "api", 1001)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, record.Status)

	course, err := service.Store.GetCourseByCanvasID(1001)
	require.NoError(t, err)
	require.NotNil(t, course)
	assert.Equal(t, "Data Ops", course.Name)

	statusRec := doRequest(t, mux, http.MethodGet, "/api/v1/courses/1001/sync", nil)
	require.Equal(t, http.StatusOK, statusRec.Code)
	statusPayload := decodeBody(t, statusRec)
	assert.Contains(t, statusPayload, "progress")
}

func TestCourseSyncConflictWhileRunning(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	require.NoError(t, service.Progress.Start(context.Background(), "api", 1001))

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/courses/1001/sync", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, "already_running", payload["status"])
}

func TestCourseSyncRejectsBadID(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/courses/nope/sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCourseSyncStatusNotFound(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodGet, "/api/v1/courses/1001/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCourseSyncQueueFull(t *testing.T) {
	service := newTestService(t, 1)
	mux := newTestRouter(service)

	// Park the single worker and fill the buffer
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, service.Jobs.Enqueue(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, service.Jobs.Enqueue(func(ctx context.Context) {}))

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/courses/1001/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(release)
}

func TestBatchSyncValidation(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/sync/batch", []byte(`{"course_ids":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/v1/sync/batch", []byte(`{"course_ids":[1001,-5]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/v1/sync/batch", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchSyncLifecycle(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/sync/batch", []byte(`{"course_ids":[1001,1002]}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	payload := decodeBody(t, rec)
	batchID, ok := payload["batch_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, batchID)

	require.Eventually(t, func() bool {
		record, err := service.Progress.GetBatch(context.Background(), "api", batchID)
		return err == nil && record != nil && record.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	record, err := service.Progress.GetBatch(context.Background(), "api", batchID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, record.Status)
	assert.Len(t, record.Courses, 2)

	statusRec := doRequest(t, mux, http.MethodGet, "/api/v1/sync/batch/"+batchID, nil)
	assert.Equal(t, http.StatusOK, statusRec.Code)
}

func TestBatchSyncStatusNotFound(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodGet, "/api/v1/sync/batch/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCourseDelete(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	course := &models.Course{CanvasID: 1001, Name: "Data Ops", CourseCode: "OPS-1", WorkflowState: "available"}
	_, err := service.Store.UpsertCourse(course)
	require.NoError(t, err)

	rec := doRequest(t, mux, http.MethodDelete, "/api/v1/courses/1001", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	gone, err := service.Store.GetCourseByCanvasID(1001)
	require.NoError(t, err)
	assert.Nil(t, gone)

	rec = doRequest(t, mux, http.MethodDelete, "/api/v1/courses/1001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGradebookEndpoint(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	course := &models.Course{CanvasID: 1001, Name: "Data Ops", CourseCode: "OPS-1", WorkflowState: "available"}
	_, err := service.Store.UpsertCourse(course)
	require.NoError(t, err)

	rec := doRequest(t, mux, http.MethodGet, "/api/v1/courses/1001/gradebook", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Contains(t, payload, "rows")
}

func TestReassignmentsRejectsEmptyBody(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/group-categories/1/reassignments", []byte(`[]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamPushUnknownTeam(t *testing.T) {
	service := newTestService(t, 8)
	mux := newTestRouter(service)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/teams/9999/push", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
