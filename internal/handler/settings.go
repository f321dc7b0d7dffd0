package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/service"
)

type createSettingRequest struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	IsPublic bool   `json:"is_public"`
}

type updateSettingRequest struct {
	Name  *string `json:"name"`
	Value *string `json:"value"`
}

type rollbackRequest struct {
	Version int64 `json:"version"`
}

type visibilityRequest struct {
	IsPublic bool `json:"is_public"`
}

type settingListResponse struct {
	Settings []model.Setting `json:"settings"`
}

type settingHistoryResponse struct {
	History []model.Setting `json:"history"`
}

// ListSettings handles GET /settings.
func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.List(r.Context(), id.TenantID)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settingListResponse{Settings: settings})
}

// CreateSetting handles POST /settings.
func (h *Handlers) CreateSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createSettingRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	setting, err := h.settings.Create(r.Context(), id.TenantID, req.Name, req.Value, req.IsPublic)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, setting)
}

// GetSetting handles GET /settings/{id}.
func (h *Handlers) GetSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	setting, err := h.settings.Get(r.Context(), id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, setting)
}

// UpdateSetting handles PUT /settings/{id}.
func (h *Handlers) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req updateSettingRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	setting, err := h.settings.Update(r.Context(), id.TenantID, mux.Vars(r)["id"], service.SettingUpdate{
		Name:  req.Name,
		Value: req.Value,
	})
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, setting)
}

// DeleteSetting handles DELETE /settings/{id}.
func (h *Handlers) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.settings.Delete(r.Context(), id.TenantID, mux.Vars(r)["id"]); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// GetSettingHistory handles GET /settings/{id}/history.
func (h *Handlers) GetSettingHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	history, err := h.settings.History(r.Context(), id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settingHistoryResponse{History: history})
}

// RollbackSetting handles POST /settings/{id}/rollback.
func (h *Handlers) RollbackSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Version == 0 {
		h.errors.WriteError(w, r, apierrors.BadRequest("version required"))
		return
	}

	setting, err := h.settings.Rollback(r.Context(), id.TenantID, mux.Vars(r)["id"], req.Version)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, setting)
}

// UpdateSettingVisibility handles PUT /settings/{id}/visibility.
func (h *Handlers) UpdateSettingVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req visibilityRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.settings.SetVisibility(r.Context(), id.TenantID, mux.Vars(r)["id"], req.IsPublic); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, visibilityRequest{IsPublic: req.IsPublic})
}

// ListPublicSettings handles GET /settings/public. This route bypasses
// authorization: it is the one cross-tenant read the API offers.
func (h *Handlers) ListPublicSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.ListPublic(r.Context())
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settingListResponse{Settings: settings})
}
