package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/service"
)

type createBookmarkRequest struct {
	Title string   `json:"title"`
	URL   string   `json:"url"`
	Tags  []string `json:"tags"`
}

type updateBookmarkRequest struct {
	Title *string  `json:"title"`
	URL   *string  `json:"url"`
	Tags  []string `json:"tags"`
}

type bookmarkListResponse struct {
	Bookmarks []model.Bookmark `json:"bookmarks"`
}

// ListBookmarks handles GET /bookmarks.
func (h *Handlers) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	bookmarks, err := h.bookmarks.List(r.Context(), id.TenantID)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookmarkListResponse{Bookmarks: bookmarks})
}

// CreateBookmark handles POST /bookmarks.
func (h *Handlers) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createBookmarkRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	bookmark, err := h.bookmarks.Create(r.Context(), id.TenantID, req.Title, req.URL, req.Tags)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, bookmark)
}

// GetBookmark handles GET /bookmarks/{id}.
func (h *Handlers) GetBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	bookmark, err := h.bookmarks.Get(r.Context(), id.TenantID, mux.Vars(r)["id"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookmark)
}

// UpdateBookmark handles PUT /bookmarks/{id}.
func (h *Handlers) UpdateBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req updateBookmarkRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	bookmark, err := h.bookmarks.Update(r.Context(), id.TenantID, mux.Vars(r)["id"], service.BookmarkUpdate{
		Title: req.Title,
		URL:   req.URL,
		Tags:  req.Tags,
	})
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookmark)
}

// DeleteBookmark handles DELETE /bookmarks/{id}.
func (h *Handlers) DeleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.bookmarks.Delete(r.Context(), id.TenantID, mux.Vars(r)["id"]); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
