package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/internal/repository"
)

type announcementRepository struct {
	*BaseRepository
}

func NewAnnouncementRepository(base *BaseRepository) repository.AnnouncementRepository {
	return &announcementRepository{base}
}

func (r *announcementRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*model.Announcement, error) {
	query := `
		SELECT id, entity_id, title, body, published_at FROM announcements
		WHERE published_at > $1
		ORDER BY published_at DESC
	`

	var anns []*model.Announcement
	err := r.db.SelectContext(ctx, &anns, query, since)
	r.observe("list_announcements", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	return anns, nil
}
