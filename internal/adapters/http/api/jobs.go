package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/movers/internal/domain/model"
)

// jobRequest mirrors the OpenAPI schema for POST /jobs.
type jobRequest struct {
	ID             string            `json:"id"`
	Size           model.Size        `json:"size"`
	Price          int64             `json:"price"`
	RequiredSkills []string          `json:"required_skills"`
	Attributes     map[string]string `json:"attributes"`
}

type claimRequest struct {
	WorkerID string `json:"worker_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type ratingRequest struct {
	WorkerID string `json:"worker_id"`
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
}

type jobListResponse struct {
	Jobs  []model.Job `json:"jobs"`
	Count int         `json:"count"`
}

// JobsHandler handles the /jobs routes.
type JobsHandler struct {
	deps JobDependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobDependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandleCreate handles POST /jobs.
func (h *JobsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_job"
	var req jobRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	job, err := h.deps.CreateJob(r.Context(), model.Job{
		ID:             strings.TrimSpace(req.ID),
		Size:           model.Size(strings.ToLower(strings.TrimSpace(string(req.Size)))),
		Price:          req.Price,
		Status:         model.StatusOpen,
		RequiredSkills: req.RequiredSkills,
		Attributes:     req.Attributes,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// HandleList handles GET /jobs?status=.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_jobs"
	var status model.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		status = s
	}
	jobs, err := h.deps.ListJobs(r.Context(), status)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Count: len(jobs)})
}

// HandleGet handles GET /jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap("api.get_job", err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleAutoMatch handles POST /jobs/{id}/auto-match. Granted and
// no_eligible_worker both answer 200 with the claim result.
func (h *JobsHandler) HandleAutoMatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.AutoMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap("api.auto_match", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleClaim handles POST /jobs/{id}/claim.
func (h *JobsHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.claim"
	var req claimRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("missing worker_id")))
		return
	}
	res, err := h.deps.SelfClaim(r.Context(), r.PathValue("id"), req.WorkerID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStatus handles POST /jobs/{id}/status.
func (h *JobsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.advance_status"
	var req statusRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	next, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	job, err := h.deps.AdvanceStatus(r.Context(), r.PathValue("id"), next)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleRelist handles POST /jobs/{id}/relist.
func (h *JobsHandler) HandleRelist(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Relist(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap("api.relist", err))
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// HandleRating handles POST /jobs/{id}/ratings.
func (h *JobsHandler) HandleRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_rating"
	var req ratingRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("missing worker_id")))
		return
	}
	rating, err := h.deps.SubmitRating(r.Context(), model.Rating{
		JobID:    r.PathValue("id"),
		WorkerID: req.WorkerID,
		Score:    req.Score,
		Comment:  req.Comment,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

// HandleSuggestions handles GET /jobs/{id}/suggestions?limit=.
func (h *JobsHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	const op = "api.suggestions"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}
	entries, err := h.deps.Suggestions(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
