package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/pagecast/internal/jobs"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/render"
)

var serverStart = time.Now()

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	MemoryUsedPct float64 `json:"memory_used_pct,omitempty"`
	Load1         float64 `json:"load1,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(serverStart).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		resp.Load1 = avg.Load1
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRender accepts a render request, queues it and returns the job.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req render.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding render request: %w", err))
		return
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := s.tracker.Create(cancel)

	if req.OutputPath == "" {
		dir := filepath.Join(s.paths.Base(), "output")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cancel()
			s.tracker.MarkFailed(job.ID, err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		req.OutputPath = filepath.Join(dir, job.ID+"."+string(req.Format))
		if req.Format == "" {
			req.OutputPath = filepath.Join(dir, job.ID+".mp4")
		}
	}

	if err := req.Validate(); err != nil {
		cancel()
		s.tracker.MarkFailed(job.ID, err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctrl := &render.Control{}
	s.tracker.AttachControl(job.ID, ctrl)

	go func() {
		defer cancel()
		s.tracker.MarkRendering(job.ID)
		out, err := s.renderer.RenderControlled(jobCtx, &req, s.paths, func(percent float64) {
			s.tracker.SetProgress(job.ID, percent)
		}, ctrl)
		if err != nil {
			s.logger.Error("render job failed", observability.Err(err))
			s.tracker.MarkFailed(job.ID, err)
			return
		}
		s.tracker.MarkCompleted(job.ID, out)
	}()

	writeJSON(w, http.StatusAccepted, job)
}

// frameRequest asks for a single still of a page.
type frameRequest struct {
	URL    string  `json:"url"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps,omitempty"`
	// At is the virtual timestamp of the captured frame in milliseconds.
	At int64 `json:"at,omitempty"`
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding frame request: %w", err))
		return
	}
	if req.URL == "" || req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("frame request needs url, width and height"))
		return
	}

	frame, err := s.renderer.RenderFrame(r.Context(), req.URL, req.Width, req.Height, req.FPS, req.At)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(frame))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.tracker.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	err := s.tracker.Cancel(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, jobs.ErrJobNotCancellable):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	s.jobControl(w, r, s.tracker.Pause)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	s.jobControl(w, r, s.tracker.Resume)
}

func (s *Server) jobControl(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	err := fn(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, jobs.ErrJobNotRunning), errors.Is(err, render.ErrNoActiveCapture):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleEvents streams job progress as server-sent events. The optional
// job_id query parameter filters to one job.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	sub := s.tracker.Subscribe(r.URL.Query().Get("job_id"))
	defer s.tracker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
