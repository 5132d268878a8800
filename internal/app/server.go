package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sha1n/relic-digest/internal/auth"
	"github.com/sha1n/relic-digest/internal/config"
	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/jobs"
)

// maxJobRequestBytes caps the POST /jobs body.
const maxJobRequestBytes = 64 * 1024

// JobService is the job API used by the HTTP surface.
type JobService interface {
	Submit(repoURL string) (jobs.Submission, error)
	Status(ctx context.Context, repoURL string) (domain.StatusRecord, bool, error)
}

// StartSSEServer starts the SSE server with authentication
func StartSSEServer(ctx context.Context, srv *http.Server, settings *config.Settings) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	}
}

// NewSSEServer creates the HTTP server with authentication middleware. jobSvc and
// gatherer are optional; their routes are only mounted when set.
func NewSSEServer(s *mcp.Server, jobSvc JobService, gatherer prometheus.Gatherer, settings *config.Settings) (*http.Server, error) {
	// Factory function returns the server instance for each request
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sse", sseHandler)

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if jobSvc != nil {
		mux.Handle("/jobs", NewJobsHandler(jobSvc))
	}

	authMiddleware, err := auth.NewMiddleware(settings.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	handler := authMiddleware(mux)
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)

	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}, nil
}

// JobRequest is the POST /jobs body.
type JobRequest struct {
	URL string `json:"url"`
}

// JobResponse is returned by /jobs.
type JobResponse struct {
	Message    string `json:"message"`
	Repository string `json:"repository,omitempty"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Commit     string `json:"commit,omitempty"`
}

// NewJobsHandler serves POST /jobs (submit) and GET /jobs?url= (status).
func NewJobsHandler(svc JobService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			submitJob(w, r, svc)
		case http.MethodGet:
			jobStatus(w, r, svc)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSON(w, http.StatusMethodNotAllowed, JobResponse{Message: "method not allowed"})
		}
	})
}

func submitJob(w http.ResponseWriter, r *http.Request, svc JobService) {
	var req JobRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobRequestBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, JobResponse{Message: "invalid request body"})
			return
		}
	}
	if req.URL == "" {
		req.URL = r.URL.Query().Get("url")
	}

	sub, err := svc.Submit(req.URL)
	switch {
	case errors.Is(err, jobs.ErrMissingURL):
		writeJSON(w, http.StatusBadRequest, JobResponse{Message: "No repo url provided"})
	case errors.Is(err, jobs.ErrInvalidURL):
		writeJSON(w, http.StatusBadRequest, JobResponse{Message: "Invalid repo url"})
	case errors.Is(err, jobs.ErrJobInProgress):
		writeJSON(w, http.StatusConflict, JobResponse{Message: "job in progress", Repository: sub.Repository})
	case err != nil:
		slog.Error("Job submission failed", "url", req.URL, "error", err)
		writeJSON(w, http.StatusInternalServerError, JobResponse{Message: "job submission failed", Repository: sub.Repository})
	case !sub.Accepted:
		writeJSON(w, http.StatusOK, JobResponse{Message: "repo processed", Repository: sub.Repository, Status: string(sub.Status)})
	default:
		writeJSON(w, http.StatusAccepted, JobResponse{Message: "job submitted", Repository: sub.Repository, Status: string(sub.Status)})
	}
}

func jobStatus(w http.ResponseWriter, r *http.Request, svc JobService) {
	rec, found, err := svc.Status(r.Context(), r.URL.Query().Get("url"))
	switch {
	case errors.Is(err, jobs.ErrMissingURL):
		writeJSON(w, http.StatusBadRequest, JobResponse{Message: "No repo url provided"})
	case errors.Is(err, jobs.ErrInvalidURL):
		writeJSON(w, http.StatusBadRequest, JobResponse{Message: "Invalid repo url"})
	case err != nil:
		slog.Error("Job status lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, JobResponse{Message: "status lookup failed"})
	case !found:
		writeJSON(w, http.StatusNotFound, JobResponse{Message: "job not found"})
	default:
		writeJSON(w, http.StatusOK, JobResponse{
			Message:    "job found",
			Repository: rec.Repository,
			Status:     string(rec.Status),
			Reason:     rec.Reason,
			Commit:     rec.Commit,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body JobResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
