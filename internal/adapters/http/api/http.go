// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// JobDependencies covers the job routes.
type JobDependencies interface {
	CreateJob(ctx context.Context, job model.Job) (model.Job, error)
	GetJob(ctx context.Context, id string) (model.Job, error)
	ListJobs(ctx context.Context, status model.Status) ([]model.Job, error)
	AutoMatch(ctx context.Context, jobID string) (types.ClaimResult, error)
	SelfClaim(ctx context.Context, jobID, workerID string) (types.ClaimResult, error)
	AdvanceStatus(ctx context.Context, jobID string, next model.Status) (model.Job, error)
	Relist(ctx context.Context, jobID string) (model.Job, error)
	SubmitRating(ctx context.Context, r model.Rating) (model.Rating, error)
	Suggestions(ctx context.Context, jobID string, limit int) ([]types.Entry, error)
}

// WorkerDependencies covers the worker routes.
type WorkerDependencies interface {
	UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error)
	GetWorker(ctx context.Context, id string) (model.Worker, error)
	SetAvailability(ctx context.Context, id string, available bool) (model.Worker, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	JobDependencies
	WorkerDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	jobsHandler   *JobsHandler
	workerHandler *WorkersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		jobsHandler:   NewJobsHandler(deps),
		workerHandler: NewWorkersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	j := s.jobsHandler
	mux.HandleFunc("POST /jobs", MetricsMiddleware(j.HandleCreate, "create_job"))
	mux.HandleFunc("GET /jobs", MetricsMiddleware(j.HandleList, "list_jobs"))
	mux.HandleFunc("GET /jobs/{id}", MetricsMiddleware(j.HandleGet, "get_job"))
	mux.HandleFunc("POST /jobs/{id}/auto-match", MetricsMiddleware(j.HandleAutoMatch, "auto_match"))
	mux.HandleFunc("POST /jobs/{id}/claim", MetricsMiddleware(j.HandleClaim, "claim"))
	mux.HandleFunc("POST /jobs/{id}/status", MetricsMiddleware(j.HandleStatus, "advance_status"))
	mux.HandleFunc("POST /jobs/{id}/relist", MetricsMiddleware(j.HandleRelist, "relist"))
	mux.HandleFunc("POST /jobs/{id}/ratings", MetricsMiddleware(j.HandleRating, "submit_rating"))
	mux.HandleFunc("GET /jobs/{id}/suggestions", MetricsMiddleware(j.HandleSuggestions, "suggestions"))

	wk := s.workerHandler
	mux.HandleFunc("PUT /workers/{id}", MetricsMiddleware(wk.HandleUpsert, "upsert_worker"))
	mux.HandleFunc("GET /workers/{id}", MetricsMiddleware(wk.HandleGet, "get_worker"))
	mux.HandleFunc("PUT /workers/{id}/availability", MetricsMiddleware(wk.HandleAvailability, "set_availability"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	noteError(w, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body of at most maxBodyBytes into v.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return WrapKind(op, ErrTooLarge, err)
		}
		return WrapKind(op, ErrBadRequest, fmt.Errorf("decode body: %w", err))
	}
	return nil
}
