package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/movers/internal/domain/model"
)

// workerRequest mirrors the OpenAPI schema for PUT /workers/{id}.
// performance_score only seeds new workers; existing scores are kept.
type workerRequest struct {
	Name             string   `json:"name"`
	Available        bool     `json:"available"`
	PerformanceScore float64  `json:"performance_score"`
	Skills           []string `json:"skills"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

// WorkersHandler handles the /workers routes.
type WorkersHandler struct {
	deps WorkerDependencies
}

// NewWorkersHandler creates a new workers handler.
func NewWorkersHandler(deps WorkerDependencies) *WorkersHandler {
	return &WorkersHandler{deps: deps}
}

// HandleUpsert handles PUT /workers/{id}.
func (h *WorkersHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_worker"
	var req workerRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	worker, err := h.deps.UpsertWorker(r.Context(), model.Worker{
		ID:               strings.TrimSpace(r.PathValue("id")),
		Name:             req.Name,
		Available:        req.Available,
		PerformanceScore: req.PerformanceScore,
		Skills:           req.Skills,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

// HandleGet handles GET /workers/{id}.
func (h *WorkersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	worker, err := h.deps.GetWorker(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap("api.get_worker", err))
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

// HandleAvailability handles PUT /workers/{id}/availability.
func (h *WorkersHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_availability"
	var req availabilityRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Available == nil {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("missing available")))
		return
	}
	worker, err := h.deps.SetAvailability(r.Context(), r.PathValue("id"), *req.Available)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, worker)
}
