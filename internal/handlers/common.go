package handlers

import (
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}

// renderError maps a typed service error onto a status code and the
// common error body. Unknown errors are logged and reported opaquely.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *service.ErrValidation:
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: e.Error()})
	case *service.ErrResourceNotFound:
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: e.Error()})
	case *service.ErrForbidden:
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, errorResponse{Error: e.Error()})
	case *service.ErrConflict:
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Error: e.Error()})
	case *service.ErrJobNotStarted:
		// the job exists but has no log stream yet; the current state
		// lets the caller tell queued from provisioning
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Error: e.Error(), State: string(e.State)})
	case *service.ErrUpstreamFailure:
		zap.S().Named("handlers").Errorw("upstream failure", "error", err)
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, errorResponse{Error: "upstream failure"})
	default:
		zap.S().Named("handlers").Errorw("request failed", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: "internal server error"})
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
