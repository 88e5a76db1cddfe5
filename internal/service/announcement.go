package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/unichat/internal/model"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/storage"
)

type AnnouncementService struct {
	store   *storage.Store
	dir     *roster.Directory
	adminID string
}

func NewAnnouncementService(store *storage.Store, dir *roster.Directory, adminID string) *AnnouncementService {
	return &AnnouncementService{store: store, dir: dir, adminID: adminID}
}

// List returns announcements newest first.
func (s *AnnouncementService) List(ctx context.Context) ([]model.Announcement, error) {
	list, err := s.store.Announcements.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("announcement.List: %w", err)
	}
	slices.Reverse(list)
	return list, nil
}

func (s *AnnouncementService) Post(ctx context.Context, author, text string) (model.Announcement, error) {
	if author != s.adminID {
		return model.Announcement{}, fail(ErrForbidden, "Only admin can post announcements")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Announcement{}, fail(ErrInvalidInput, "Announcement text is required")
	}
	name := model.AdminPlaceholderName
	if p, ok := s.dir.Lookup(author); ok && p.Name != "" {
		name = p.Name
	}
	a := model.Announcement{
		ID:              newID("ann"),
		Text:            text,
		AuthorName:      name,
		AuthorRegNumber: author,
		CreatedAt:       now(),
	}
	if err := s.store.Announcements.Append(ctx, a); err != nil {
		return model.Announcement{}, fmt.Errorf("announcement.Post: %w", err)
	}
	return a, nil
}
