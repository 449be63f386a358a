package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/trickplay/internal/database"
	"github.com/mantonx/trickplay/internal/events"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/session"
	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

type fakeService struct {
	mu        sync.Mutex
	jobs      map[string]*database.TrickplayJob
	results   map[string]*types.Result
	submitted []types.JobRequest
	filter    session.ListFilter
	submitErr error
	cancelErr error
	events    chan events.Event
}

func newFakeService() *fakeService {
	return &fakeService{
		jobs:    make(map[string]*database.TrickplayJob),
		results: make(map[string]*types.Result),
		events:  make(chan events.Event, 10),
	}
}

func (f *fakeService) Submit(_ context.Context, req types.JobRequest) (*database.TrickplayJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	job := &database.TrickplayJob{ID: "job-new", SourcePath: req.SourcePath, Status: database.JobStatusQueued, Trigger: req.Trigger}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*database.TrickplayJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, tperrors.JobNotFound("get_job", id)
	}
	return job, nil
}

func (f *fakeService) List(_ context.Context, filter session.ListFilter) ([]database.TrickplayJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	var out []database.TrickplayJob
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeService) Result(_ context.Context, id string) (*types.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[id], nil
}

func (f *fakeService) Cancel(_ context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.jobs[id]; !ok {
		return tperrors.JobNotFound("cancel_job", id)
	}
	return nil
}

func (f *fakeService) Subscribe(string) (<-chan events.Event, func()) {
	return f.events, func() {}
}

func setupRouter(svc JobService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, NewHandler(svc, hclog.NewNullLogger()))
	return router
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitJob(t *testing.T) {
	svc := newFakeService()
	router := setupRouter(svc)

	body := []byte(`{"source_path": "/media/a.mp4", "options": {"frame_width": 160, "timestamps": [0, 5]}}`)
	w := doRequest(router, http.MethodPost, "/api/v1/trickplay/jobs", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, svc.submitted, 1)
	req := svc.submitted[0]
	assert.Equal(t, "/media/a.mp4", req.SourcePath)
	assert.Equal(t, types.TriggerAPI, req.Trigger)
	require.NotNil(t, req.Options.FrameWidth)
	assert.Equal(t, 160, *req.Options.FrameWidth)
	assert.Equal(t, []float64{0, 5}, req.Options.ExplicitTimestamps)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-new", resp["id"])
	assert.Equal(t, "queued", resp["status"])
}

func TestSubmitJob_BadRequests(t *testing.T) {
	svc := newFakeService()
	router := setupRouter(svc)

	w := doRequest(router, http.MethodPost, "/api/v1/trickplay/jobs", []byte(`{"options": {}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/trickplay/jobs", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.submitErr = tperrors.InvalidConfig("build_config", assert.AnError)
	w = doRequest(router, http.MethodPost, "/api/v1/trickplay/jobs", []byte(`{"source_path": "/a.mp4"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_config")

	svc.submitErr = tperrors.InputNotFound("submit_job", tperrors.ErrInputNotFound)
	w = doRequest(router, http.MethodPost, "/api/v1/trickplay/jobs", []byte(`{"source_path": "/a.mp4"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs(t *testing.T) {
	svc := newFakeService()
	svc.jobs["a"] = &database.TrickplayJob{ID: "a", Status: database.JobStatusRunning}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs?status=running&limit=5&offset=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, database.JobStatusRunning, svc.filter.Status)
	assert.Equal(t, 5, svc.filter.Limit)
	assert.Equal(t, 2, svc.filter.Offset)

	var resp struct {
		Jobs  []database.TrickplayJob `json:"jobs"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs?limit=9999&offset=-3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultListLimit, svc.filter.Limit)
	assert.Equal(t, 0, svc.filter.Offset)
}

func TestGetJob(t *testing.T) {
	svc := newFakeService()
	svc.jobs["done"] = &database.TrickplayJob{ID: "done", Status: database.JobStatusCompleted}
	svc.results["done"] = &types.Result{OutputDir: "/out", SheetPaths: []string{"/out/x/0.jpg"}}
	svc.jobs["busy"] = &database.TrickplayJob{ID: "busy", Status: database.JobStatusRunning, Stage: "compositing"}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/out", result["output_dir"])

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/busy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"result"`)
	assert.Contains(t, w.Body.String(), "compositing")

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "job_not_found")
}

func TestCancelJob(t *testing.T) {
	svc := newFakeService()
	svc.jobs["a"] = &database.TrickplayJob{ID: "a", Status: database.JobStatusRunning}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodDelete, "/api/v1/trickplay/jobs/a", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/trickplay/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.cancelErr = tperrors.InvalidTransition("cancel_job", assert.AnError)
	w = doRequest(router, http.MethodDelete, "/api/v1/trickplay/jobs/a", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServeSheet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.jpg"), []byte("jpegdata"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumbnails.vtt"), []byte("WEBVTT\n"), 0644))

	svc := newFakeService()
	svc.jobs["done"] = &database.TrickplayJob{ID: "done", Status: database.JobStatusCompleted}
	svc.results["done"] = &types.Result{TilesheetDir: dir}
	svc.jobs["busy"] = &database.TrickplayJob{ID: "busy", Status: database.JobStatusRunning}
	svc.jobs["empty"] = &database.TrickplayJob{ID: "empty", Status: database.JobStatusCompleted}
	svc.results["empty"] = &types.Result{}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/done/sheets/0.jpg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpegdata", w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/done/sheets/thumbnails.vtt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/vtt"))

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/done/sheets/7.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/done/sheets/..", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/busy/sheets/0.jpg", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/trickplay/jobs/empty/sheets/0.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamEvents(t *testing.T) {
	svc := newFakeService()
	svc.jobs["a"] = &database.TrickplayJob{ID: "a", Status: database.JobStatusRunning}
	server := httptest.NewServer(setupRouter(svc))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/trickplay/jobs/a/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot events.Event
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, EventSnapshot, snapshot.Type)
	assert.Equal(t, "a", snapshot.JobID)

	svc.events <- events.NewJobEvent(events.EventJobProgress, events.JobEventData{JobID: "a", Stage: "compositing", Done: 1, Total: 2})
	svc.events <- events.NewJobEvent(events.EventJobCompleted, events.JobEventData{JobID: "a", SheetCount: 1, OutputDir: "/out"})

	var progress, completed events.Event
	require.NoError(t, conn.ReadJSON(&progress))
	assert.Equal(t, events.EventJobProgress, progress.Type)
	require.NoError(t, conn.ReadJSON(&completed))
	assert.Equal(t, events.EventJobCompleted, completed.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamEvents_FinishedJob(t *testing.T) {
	svc := newFakeService()
	svc.jobs["done"] = &database.TrickplayJob{ID: "done", Status: database.JobStatusFailed, Error: "boom"}
	server := httptest.NewServer(setupRouter(svc))
	defer server.Close()

	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/trickplay/jobs/"
	conn, _, err := websocket.DefaultDialer.Dial(base+"done/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot events.Event
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "failed", snapshot.Message)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	_, resp, err := websocket.DefaultDialer.Dial(base+"missing/events", nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
