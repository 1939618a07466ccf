package server

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/jobs"
	"github.com/jmylchreest/pagecast/internal/render"
	"github.com/jmylchreest/pagecast/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *jobs.Tracker) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	tracker := jobs.NewTracker(logger)
	cfg := &config.Config{}
	cfg.Storage.BaseDir = t.TempDir()
	paths := storage.NewPaths(cfg.Storage)
	renderer := render.New(cfg, nil, nil, logger)
	return New(config.ServerConfig{}, tracker, renderer, paths, "test", logger), tracker
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Greater(t, resp.Goroutines, 0)
}

func TestRenderRejectsInvalidRequest(t *testing.T) {
	s, tracker := newTestServer(t)

	body := strings.NewReader(`{"width": 1280, "height": 720, "fps": 30, "scenes": []}`)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/render", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one scene")

	// The rejected job is tracked as failed.
	list := tracker.List()
	require.Len(t, list, 1)
	assert.Equal(t, jobs.StateFailed, list[0].State)
}

func TestRenderRejectsMalformedJSON(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/render", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobEndpoints(t *testing.T) {
	s, tracker := newTestServer(t)

	job := tracker.Create(nil)
	tracker.SetProgress(job.ID, 33)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
	assert.InDelta(t, 33, got.Progress, 0.001)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	s, tracker := newTestServer(t)

	job := tracker.Create(func() {})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second cancel conflicts.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// recordingControl counts pause/resume calls from the job endpoints.
type recordingControl struct {
	pauses  int
	resumes int
}

func (c *recordingControl) Pause(context.Context) error  { c.pauses++; return nil }
func (c *recordingControl) Resume(context.Context) error { c.resumes++; return nil }

func TestPauseResumeEndpoints(t *testing.T) {
	s, tracker := newTestServer(t)

	ctrl := &recordingControl{}
	job := tracker.Create(nil)
	tracker.AttachControl(job.ID, ctrl)
	tracker.MarkRendering(job.ID)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/pause", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/resume", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1, ctrl.pauses)
	assert.Equal(t, 1, ctrl.resumes)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/unknown/pause", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Terminal jobs have no capture to pause.
	tracker.MarkCompleted(job.ID, "/tmp/out.mp4")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/pause", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEventsStream(t *testing.T) {
	s, tracker := newTestServer(t)

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Let the subscription register before emitting.
	time.Sleep(100 * time.Millisecond)
	job := tracker.Create(nil)

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(3 * time.Second)
	lines := make(chan string, 16)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "data: ") {
				var ev jobs.Event
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
				assert.Equal(t, job.ID, ev.JobID)
				assert.Equal(t, jobs.StateQueued, ev.State)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for SSE event")
		}
	}
}
