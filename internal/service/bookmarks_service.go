package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/store"
)

// BookmarkUpdate carries the partial fields of a bookmark update request.
type BookmarkUpdate struct {
	Title *string
	URL   *string
	Tags  []string
}

// BookmarkService manages plain, unversioned bookmark records.
type BookmarkService struct {
	bookmarks store.Store
	logger    *zap.Logger
}

// NewBookmarkService creates a new bookmark service.
func NewBookmarkService(bookmarks store.Store, logger *zap.Logger) *BookmarkService {
	return &BookmarkService{
		bookmarks: bookmarks,
		logger:    logger,
	}
}

// Create mints a new bookmark.
func (s *BookmarkService) Create(ctx context.Context, tenantID, title, url string, tags []string) (*model.Bookmark, error) {
	if tags == nil {
		tags = []string{}
	}
	now := time.Now().Unix()
	bookmark := &model.Bookmark{
		TenantID:   tenantID,
		BookmarkID: uuid.New().String(),
		Title:      title,
		URL:        url,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	rec, err := model.Encode(bookmark)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if err := s.bookmarks.Put(ctx, tenantID, bookmark.BookmarkID, rec); err != nil {
		return nil, apierrors.Internal(err)
	}
	return bookmark, nil
}

// Get returns a bookmark record.
func (s *BookmarkService) Get(ctx context.Context, tenantID, bookmarkID string) (*model.Bookmark, error) {
	rec, err := s.bookmarks.Get(ctx, tenantID, bookmarkID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.NotFound("bookmark not found")
	}
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	var bookmark model.Bookmark
	if err := model.Decode(rec, &bookmark); err != nil {
		return nil, apierrors.Internal(err)
	}
	return &bookmark, nil
}

// List returns the tenant's bookmarks.
func (s *BookmarkService) List(ctx context.Context, tenantID string) ([]model.Bookmark, error) {
	recs, err := s.bookmarks.QueryPrefix(ctx, tenantID, "")
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	bookmarks, err := model.DecodeAll[model.Bookmark](recs)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return bookmarks, nil
}

// Update applies partial fields to a bookmark record.
func (s *BookmarkService) Update(ctx context.Context, tenantID, bookmarkID string, upd BookmarkUpdate) (*model.Bookmark, error) {
	if _, err := s.Get(ctx, tenantID, bookmarkID); err != nil {
		return nil, err
	}

	fields := store.Record{}
	if upd.Title != nil {
		fields["title"] = *upd.Title
	}
	if upd.URL != nil {
		fields["url"] = *upd.URL
	}
	if upd.Tags != nil {
		fields["tags"] = upd.Tags
	}
	if err := s.bookmarks.Update(ctx, tenantID, bookmarkID, fields); err != nil {
		return nil, apierrors.Internal(err)
	}

	return s.Get(ctx, tenantID, bookmarkID)
}

// Delete removes a bookmark; deleting a missing bookmark is a no-op.
func (s *BookmarkService) Delete(ctx context.Context, tenantID, bookmarkID string) error {
	if err := s.bookmarks.Delete(ctx, tenantID, bookmarkID); err != nil {
		return apierrors.Internal(err)
	}
	return nil
}
