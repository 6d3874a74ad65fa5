package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
)

var errStore = errors.New("store unavailable")

// memStore backs every repository the engine reads, keyed the way the
// postgres tables are.
type memStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*model.User
	tiers         map[uuid.UUID]model.Tier
	tierOrder     []uuid.UUID
	events        []*model.NotificationEvent
	announcements []*model.Announcement
	deliveries    map[uuid.UUID][]*model.DeliveryRecord

	unseenCalls int
	failTiers   error
	failUnseen  error
	failViewed  map[uuid.UUID]error
	failLedger  map[uuid.UUID]error
	failCommit  error
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[uuid.UUID]*model.User),
		tiers:      make(map[uuid.UUID]model.Tier),
		deliveries: make(map[uuid.UUID][]*model.DeliveryRecord),
		failViewed: make(map[uuid.UUID]error),
		failLedger: make(map[uuid.UUID]error),
	}
}

func (s *memStore) addUser(tier model.Tier, zone string, createdAt time.Time) *model.User {
	id := uuid.New()
	u := &model.User{ID: id, Email: fmt.Sprintf("%s@example.com", id.String()[:8]), CreatedAt: createdAt}
	if zone != "" {
		u.Timezone = &zone
	}
	s.users[id] = u
	s.setTier(id, tier)
	return u
}

func (s *memStore) setTier(id uuid.UUID, tier model.Tier) {
	if _, ok := s.tiers[id]; !ok {
		s.tierOrder = append(s.tierOrder, id)
	}
	s.tiers[id] = tier
}

func (s *memStore) addEvent(userID uuid.UUID, typ model.NotificationType, entityID int64, viewed bool, ts time.Time) {
	s.events = append(s.events, &model.NotificationEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		EntityID:  entityID,
		Viewed:    viewed,
		Message:   string(typ),
		Timestamp: ts,
	})
}

func (s *memStore) addAnnouncement(entityID int64, publishedAt time.Time) *model.Announcement {
	a := &model.Announcement{ID: uuid.New(), EntityID: entityID, Title: "release", PublishedAt: publishedAt}
	s.announcements = append(s.announcements, a)
	return a
}

func (s *memStore) setWatermark(userID uuid.UUID, tier model.Tier, ts time.Time) {
	s.deliveries[userID] = append(s.deliveries[userID], &model.DeliveryRecord{UserID: userID, Tier: tier, Timestamp: ts})
}

func (s *memStore) commits(userID uuid.UUID) []*model.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[userID]
}

func (s *memStore) UsersByTier(_ context.Context, tier model.Tier) ([]uuid.UUID, error) {
	if s.failTiers != nil {
		return nil, s.failTiers
	}
	var ids []uuid.UUID
	for _, id := range s.tierOrder {
		if s.tiers[id] == tier {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) UsersCreatedBefore(_ context.Context, ts time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, id := range s.tierOrder {
		if u, ok := s.users[id]; ok && u.CreatedAt.Before(ts) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) UserRecords(_ context.Context, ids []uuid.UUID) ([]*model.User, error) {
	var out []*model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) UsersWithUnseenNotifications(_ context.Context, users []uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	s.unseenCalls++
	if s.failUnseen != nil {
		return nil, s.failUnseen
	}
	wanted := NewPendingSet(users...)
	found := NewPendingSet()
	for _, e := range s.events {
		if !e.Viewed && e.Timestamp.After(since) && wanted.Has(e.UserID) {
			found.Add(e.UserID)
		}
	}
	return found.IDs(), nil
}

func (s *memStore) HasViewedAnnouncement(_ context.Context, userID uuid.UUID, entityID int64) (bool, error) {
	if err := s.failViewed[userID]; err != nil {
		return false, err
	}
	for _, e := range s.events {
		if e.UserID == userID && e.Type == model.NotificationTypeAnnouncement && e.EntityID == entityID && e.Viewed {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListPublishedSince(_ context.Context, since time.Time) ([]*model.Announcement, error) {
	var out []*model.Announcement
	for _, a := range s.announcements {
		if a.PublishedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) LastDelivery(_ context.Context, userID uuid.UUID) (*model.DeliveryRecord, error) {
	if err := s.failLedger[userID]; err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.deliveries[userID]
	if len(records) == 0 {
		return nil, nil
	}
	return records[len(records)-1], nil
}

func (s *memStore) CommitDelivery(_ context.Context, record *model.DeliveryRecord) error {
	if s.failCommit != nil {
		return s.failCommit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[record.UserID] = append(s.deliveries[record.UserID], record)
	return nil
}

// storeComposer counts unseen notifications and unviewed announcements
// newer than the window start.
type storeComposer struct {
	store     *memStore
	requests  []ComposeRequest
	err       error
	onCompose func(req ComposeRequest)
}

func (c *storeComposer) ComposeDigest(ctx context.Context, req ComposeRequest) (*model.Digest, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if c.onCompose != nil {
		defer c.onCompose(req)
	}
	count := 0
	for _, e := range c.store.events {
		if e.UserID == req.User.ID && !e.Viewed && e.Timestamp.After(req.Since) && !e.Timestamp.After(req.Now) {
			count++
		}
	}
	for _, a := range req.Announcements {
		viewed, _ := c.store.HasViewedAnnouncement(ctx, req.User.ID, a.EntityID)
		if !viewed && a.PublishedAt.After(req.Since) {
			count++
		}
	}
	return &model.Digest{
		UserID:    req.User.ID,
		Tier:      req.Tier,
		Subject:   fmt.Sprintf("%d unread notifications", count),
		HTML:      "<p>digest</p>",
		ItemCount: count,
		Since:     req.Since,
	}, nil
}

func (c *storeComposer) lastRequest(userID uuid.UUID) (ComposeRequest, bool) {
	for i := len(c.requests) - 1; i >= 0; i-- {
		if c.requests[i].User.ID == userID {
			return c.requests[i], true
		}
	}
	return ComposeRequest{}, false
}

type fakeDispatcher struct {
	readyErr error
	fail     map[string]error
	sent     []*model.Message
	onSend   func(msg *model.Message)
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{fail: make(map[string]error)}
}

func (d *fakeDispatcher) Ready() error { return d.readyErr }

func (d *fakeDispatcher) Dispatch(ctx context.Context, msg *model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.fail[msg.To]; err != nil {
		return err
	}
	d.sent = append(d.sent, msg)
	if d.onSend != nil {
		d.onSend(msg)
	}
	return nil
}

type fakeArchiver struct {
	err    error
	copies []*model.SentCopy
}

func (a *fakeArchiver) ArchiveSentCopy(_ context.Context, sent *model.SentCopy) error {
	if a.err != nil {
		return a.err
	}
	a.copies = append(a.copies, sent)
	return nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
