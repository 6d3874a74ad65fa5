// Package composer builds the content of a digest email: the items pending in
// the user's window, the per-tier subject line and the rendered HTML body.
package composer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/timezone"
)

//go:embed templates/digest.html.tmpl
var templateFS embed.FS

const DefaultBrand = "Notify"

type NotificationReader interface {
	ListUnseen(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*model.NotificationEvent, error)
	CountUnseen(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	HasViewedAnnouncement(ctx context.Context, userID uuid.UUID, entityID int64) (bool, error)
}

type Composer struct {
	notifications NotificationReader
	zones         *timezone.Cache
	brand         string
	tmpl          *template.Template
}

func New(notifications NotificationReader, zones *timezone.Cache, brand string) (*Composer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}
	if brand == "" {
		brand = DefaultBrand
	}
	return &Composer{
		notifications: notifications,
		zones:         zones,
		brand:         brand,
		tmpl:          tmpl,
	}, nil
}

type renderProps struct {
	Title   string
	Heading string
	Brand   string
	Items   []model.DigestItem
	More    int
}

// ComposeDigest collects unviewed announcements published after req.Since and
// the user's unseen notifications newer than req.Since. ItemCount is the full
// total; only the first req.MaxItems are rendered, announcements first.
func (c *Composer) ComposeDigest(ctx context.Context, req digest.ComposeRequest) (*model.Digest, error) {
	if req.User == nil {
		return nil, fmt.Errorf("compose request without user")
	}
	limit := req.MaxItems
	if limit <= 0 {
		limit = digest.DefaultMaxItems
	}
	loc, _ := c.zones.Resolve(req.User.TimezoneName())

	annItems, err := c.announcementItems(ctx, req)
	if err != nil {
		return nil, err
	}

	unseen, err := c.notifications.CountUnseen(ctx, req.User.ID, req.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to count unseen notifications: %w", err)
	}

	items := annItems
	if room := limit - len(items); room > 0 && unseen > 0 {
		events, err := c.notifications.ListUnseen(ctx, req.User.ID, req.Since, room)
		if err != nil {
			return nil, fmt.Errorf("failed to list unseen notifications: %w", err)
		}
		for _, e := range events {
			items = append(items, model.DigestItem{
				Kind:      string(e.Type),
				EntityID:  e.EntityID,
				Text:      e.Message,
				Timestamp: e.Timestamp,
			})
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	for i := range items {
		items[i].Timestamp = items[i].Timestamp.In(loc)
	}

	count := len(annItems) + unseen
	d := &model.Digest{
		UserID:    req.User.ID,
		Tier:      req.Tier,
		Title:     Title(req.Tier, req.User.Email),
		Heading:   Heading(req.Tier, count, req.Now.In(loc)),
		Subject:   MailSubject(count, c.brand),
		Items:     items,
		ItemCount: count,
		Since:     req.Since,
	}
	if count == 0 {
		return d, nil
	}

	var buf bytes.Buffer
	err = c.tmpl.Execute(&buf, renderProps{
		Title:   d.Title,
		Heading: d.Heading,
		Brand:   c.brand,
		Items:   items,
		More:    count - len(items),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render digest: %w", err)
	}
	d.HTML = buf.String()
	return d, nil
}

func (c *Composer) announcementItems(ctx context.Context, req digest.ComposeRequest) ([]model.DigestItem, error) {
	anns := make([]*model.Announcement, 0, len(req.Announcements))
	for _, a := range req.Announcements {
		if !a.PublishedAt.After(req.Since) || a.PublishedAt.After(req.Now) {
			continue
		}
		viewed, err := c.notifications.HasViewedAnnouncement(ctx, req.User.ID, a.EntityID)
		if err != nil {
			return nil, fmt.Errorf("failed to check announcement %s: %w", a.ID, err)
		}
		if !viewed {
			anns = append(anns, a)
		}
	}
	sort.SliceStable(anns, func(i, j int) bool {
		return anns[i].PublishedAt.After(anns[j].PublishedAt)
	})

	items := make([]model.DigestItem, 0, len(anns))
	for _, a := range anns {
		items = append(items, model.DigestItem{
			Kind:      string(model.NotificationTypeAnnouncement),
			EntityID:  a.EntityID,
			Text:      a.Title,
			Timestamp: a.PublishedAt,
		})
	}
	return items, nil
}
