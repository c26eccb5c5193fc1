package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/service"
	"github.com/agentfleet/task-planner/internal/store/model"
)

type JobHandler struct {
	jobSrv *service.JobService
}

func NewJobHandler(jobSrv *service.JobService) *JobHandler {
	return &JobHandler{jobSrv: jobSrv}
}

func (h *JobHandler) Routes(r chi.Router) {
	r.Post("/jobs", h.Submit)
	r.Get("/jobs", h.List)
	r.Get("/jobs/{id}", h.GetStatus)
	r.Get("/jobs/{id}/logs", h.GetLogs)
}

type submitJobRequest struct {
	Query string `json:"query"`
}

type jobResponse struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status"`
	Query       string            `json:"query"`
	SubmittedBy string            `json:"submitted_by"`
	Error       *string           `json:"error,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

func toJobResponse(job model.Job, outputs map[string]string) jobResponse {
	return jobResponse{
		JobID:       job.ID.String(),
		Status:      string(job.Status),
		Query:       job.Query,
		SubmittedBy: job.SubmittedBy,
		Error:       job.ErrorDetail,
		Outputs:     outputs,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		ExpiresAt:   job.ExpiresAt,
	}
}

func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation("malformed request body"))
		return
	}

	job, err := h.jobSrv.Submit(r.Context(), user, req.Query)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, toJobResponse(*job, nil))
}

type jobListResponse struct {
	Jobs      []jobResponse `json:"jobs"`
	NextToken *string       `json:"next_token,omitempty"`
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	limit, err := limitParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	jobs, token, err := h.jobSrv.List(r.Context(), user, limit, r.URL.Query().Get("next_token"))
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := jobListResponse{Jobs: make([]jobResponse, 0, len(jobs)), NextToken: token}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(job, nil))
	}
	render.JSON(w, r, resp)
}

func (h *JobHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	id, err := jobIDParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	view, err := h.jobSrv.GetStatus(r.Context(), user, id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, toJobResponse(view.Job, view.Outputs))
}

type logLineResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type jobLogsResponse struct {
	JobID     string            `json:"job_id"`
	Status    string            `json:"status"`
	Stream    string            `json:"stream"`
	Events    []logLineResponse `json:"events"`
	NextToken *string           `json:"next_token,omitempty"`
}

func (h *JobHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	id, err := jobIDParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	limit, err := limitParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	page, err := h.jobSrv.GetLogs(r.Context(), user, id, limit, r.URL.Query().Get("next_token"))
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := jobLogsResponse{
		JobID:     id.String(),
		Status:    string(page.Status),
		Stream:    page.Stream,
		Events:    make([]logLineResponse, 0, len(page.Events)),
		NextToken: page.NextToken,
	}
	for _, ev := range page.Events {
		resp.Events = append(resp.Events, logLineResponse{Timestamp: ev.Timestamp, Message: ev.Message})
	}
	render.JSON(w, r, resp)
}

func jobIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, service.NewErrValidation("invalid job id")
	}
	return id, nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, service.NewErrValidation("invalid limit")
	}
	return limit, nil
}
