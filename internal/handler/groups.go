package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/service"
)

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type inviteRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type groupListResponse struct {
	Groups []model.Group `json:"groups"`
}

type memberListResponse struct {
	Members []model.Membership `json:"members"`
}

// ListGroups handles GET /groups.
func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	groups, err := h.groups.List(r.Context(), id.TenantID)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groupListResponse{Groups: groups})
}

// CreateGroup handles POST /groups.
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	group, err := h.groups.Create(r.Context(), id.TenantID, req.Name, req.Description)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, group)
}

// GetGroup handles GET /groups/{id}.
func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	group, err := h.groups.Get(r.Context(), id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

// UpdateGroup handles PUT /groups/{id}.
func (h *Handlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req updateGroupRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	group, err := h.groups.Update(r.Context(), id.TenantID, mux.Vars(r)["id"], service.GroupUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

// DeleteGroup handles DELETE /groups/{id}.
func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.groups.Delete(r.Context(), id.TenantID, mux.Vars(r)["id"]); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// ListGroupMembers handles GET /groups/{id}/members.
func (h *Handlers) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	members, err := h.groups.ListMembers(r.Context(), id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, memberListResponse{Members: members})
}

// InviteGroupMember handles POST /groups/{id}/invite.
func (h *Handlers) InviteGroupMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.errors.WriteError(w, r, apierrors.BadRequest("user_id required"))
		return
	}

	member, err := h.groups.Invite(r.Context(), id.TenantID, mux.Vars(r)["id"], req.UserID, req.Role)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, member)
}
