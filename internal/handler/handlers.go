// Package handler provides the HTTP request handlers for the resource API.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/auth"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/service"
)

// Handlers bundles the resource handlers and their dependencies.
type Handlers struct {
	settings  *service.SettingService
	bookmarks *service.BookmarkService
	groups    *service.GroupService
	devices   *service.DeviceService
	errors    *apierrors.Writer
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	settings *service.SettingService,
	bookmarks *service.BookmarkService,
	groups *service.GroupService,
	devices *service.DeviceService,
	errors *apierrors.Writer,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		settings:  settings,
		bookmarks: bookmarks,
		groups:    groups,
		devices:   devices,
		errors:    errors,
		logger:    logger,
	}
}

// identity pulls the resolved tenant scope off the request context. Routes
// behind the auth middleware always carry one; its absence is a wiring bug
// surfaced as 401 rather than a cross-tenant read.
func (h *Handlers) identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.errors.WriteError(w, r, apierrors.Unauthenticated("no tenant scope"))
		return model.Identity{}, false
	}
	return id, true
}

// decodeBody parses an optional JSON request body into dst. An empty body is
// treated as an empty object, matching the upstream event contract.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.errors.WriteError(w, r, apierrors.BadRequest("invalid JSON body"))
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.logger.Error("failed to encode response", zap.Error(err))
		}
	}
}
