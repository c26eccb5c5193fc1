package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/service"
	"github.com/agentfleet/task-planner/internal/store/model"
)

type TenantHandler struct {
	membershipSrv *service.MembershipService
}

func NewTenantHandler(membershipSrv *service.MembershipService) *TenantHandler {
	return &TenantHandler{membershipSrv: membershipSrv}
}

func (h *TenantHandler) Routes(r chi.Router) {
	r.Post("/tenants/register", h.Register)
	r.Post("/tenants/users", h.Invite)
	r.Get("/tenants/users", h.List)
	r.Delete("/tenants/users/{id}", h.Remove)
}

type registerRequest struct {
	TenantName string `json:"tenant_name"`
}

type registrationResponse struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Outcome  string `json:"outcome"`
}

func (h *TenantHandler) Register(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	var req registerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, service.NewErrValidation("malformed request body"))
			return
		}
	}

	reg, err := h.membershipSrv.Register(r.Context(), user, req.TenantName)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if reg.Outcome == service.OutcomeCreated {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, registrationResponse{
		TenantID: reg.TenantID,
		Role:     string(reg.Role),
		Outcome:  string(reg.Outcome),
	})
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type memberResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	TenantID  string     `json:"tenant_id"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	AddedBy   string     `json:"added_by,omitempty"`
	InvitedAt *time.Time `json:"invited_at,omitempty"`
}

func toMemberResponse(m model.Membership) memberResponse {
	return memberResponse{
		ID:        m.ID,
		Email:     m.Email,
		TenantID:  m.TenantID,
		Role:      string(m.Role),
		Status:    string(m.Status),
		AddedBy:   m.AddedBy,
		InvitedAt: m.InvitedAt,
	}
}

func (h *TenantHandler) Invite(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation("malformed request body"))
		return
	}
	if req.Email == "" {
		renderError(w, r, service.NewErrValidation("'email' is required"))
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		renderError(w, r, service.NewErrValidation(err.Error()))
		return
	}

	invite, err := h.membershipSrv.Invite(r.Context(), user, req.Email, role)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toMemberResponse(*invite))
}

type memberListResponse struct {
	Members []memberResponse `json:"members"`
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	members, err := h.membershipSrv.List(r.Context(), user)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := memberListResponse{Members: make([]memberResponse, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}
	render.JSON(w, r, resp)
}

type removeResponse struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

func (h *TenantHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	memberID := chi.URLParam(r, "id")
	if memberID == "" {
		renderError(w, r, service.NewErrValidation("member id is required"))
		return
	}

	if err := h.membershipSrv.Remove(r.Context(), user, memberID); err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, removeResponse{ID: memberID, Removed: true})
}
