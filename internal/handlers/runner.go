package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/service"
	"github.com/agentfleet/task-planner/internal/store/model"
)

const maxArtifactSize = 10 << 20

// RunnerHandler is the executor-facing surface. The runner's token is
// scoped to one job; every route additionally checks that the job in the
// path is the job in the claims.
type RunnerHandler struct {
	runnerSrv *service.RunnerService
}

func NewRunnerHandler(runnerSrv *service.RunnerService) *RunnerHandler {
	return &RunnerHandler{runnerSrv: runnerSrv}
}

func (h *RunnerHandler) Routes(r chi.Router) {
	r.Put("/jobs/{id}/status", h.UpdateStatus)
	r.Post("/jobs/{id}/heartbeat", h.Heartbeat)
	r.Post("/jobs/{id}/logs", h.AppendLogs)
	r.Put("/jobs/{id}/artifacts/{name}", h.UploadArtifact)
}

func runnerClaims(r *http.Request) (auth.RunnerClaims, error) {
	claims := auth.MustHaveRunner(r.Context())
	if chi.URLParam(r, "id") != claims.JobID {
		return auth.RunnerClaims{}, service.NewErrForbidden("token is not scoped to this job")
	}
	return claims, nil
}

type updateStatusRequest struct {
	Status string  `json:"status"`
	Error  *string `json:"error,omitempty"`
}

func (h *RunnerHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, err := runnerClaims(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation("malformed request body"))
		return
	}

	job, err := h.runnerSrv.UpdateStatus(r.Context(), claims, model.JobStatus(req.Status), req.Error)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, toJobResponse(*job, nil))
}

func (h *RunnerHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	claims, err := runnerClaims(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if err := h.runnerSrv.Heartbeat(r.Context(), claims); err != nil {
		renderError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

type appendLogsRequest struct {
	Lines []service.LogLine `json:"lines"`
}

func (h *RunnerHandler) AppendLogs(w http.ResponseWriter, r *http.Request) {
	claims, err := runnerClaims(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var req appendLogsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation("malformed request body"))
		return
	}
	if len(req.Lines) == 0 {
		render.NoContent(w, r)
		return
	}

	if err := h.runnerSrv.AppendLogs(r.Context(), claims, req.Lines); err != nil {
		renderError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

func (h *RunnerHandler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	claims, err := runnerClaims(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArtifactSize))
	if err != nil {
		renderError(w, r, service.NewErrValidation("artifact too large"))
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.runnerSrv.UploadArtifact(r.Context(), claims, chi.URLParam(r, "name"), data, contentType); err != nil {
		renderError(w, r, err)
		return
	}

	render.NoContent(w, r)
}
