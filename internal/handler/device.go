package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synchub/api/internal/apierrors"
)

type startDeviceFlowResponse struct {
	DeviceCode string `json:"device_code"`
	SessionID  string `json:"session_id"`
	ExpiresIn  int64  `json:"expires_in"`
}

type confirmDeviceFlowRequest struct {
	DeviceCode string `json:"device_code"`
}

type confirmDeviceFlowResponse struct {
	Status string `json:"status"`
}

type emojiRequest struct {
	Emoji string `json:"emoji"`
}

type emojiResponse struct {
	Emoji     string `json:"emoji"`
	SessionID string `json:"session_id"`
}

// StartDeviceFlow handles POST /auth/device/start.
func (h *Handlers) StartDeviceFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	session, err := h.devices.StartDeviceFlow(r.Context(), id.TenantID)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, startDeviceFlowResponse{
		DeviceCode: session.DeviceCode,
		SessionID:  session.SessionID,
		ExpiresIn:  h.devices.ExpiresIn(),
	})
}

// ConfirmDeviceFlow handles POST /auth/device/confirm. The confirming caller
// is not yet tenant-scoped, so this route bypasses authorization.
func (h *Handlers) ConfirmDeviceFlow(w http.ResponseWriter, r *http.Request) {
	var req confirmDeviceFlowRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.DeviceCode == "" {
		h.errors.WriteError(w, r, apierrors.BadRequest("device_code required"))
		return
	}

	session, err := h.devices.ConfirmDeviceFlow(r.Context(), req.DeviceCode)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, confirmDeviceFlowResponse{Status: session.Status})
}

// SessionEmoji handles POST /sessions/{id}/emoji.
func (h *Handlers) SessionEmoji(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req emojiRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Emoji == "" {
		h.errors.WriteError(w, r, apierrors.BadRequest("emoji required"))
		return
	}

	sessionID := mux.Vars(r)["id"]
	if err := h.devices.RecordFeedback(r.Context(), id.TenantID, sessionID, req.Emoji); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, emojiResponse{Emoji: req.Emoji, SessionID: sessionID})
}
