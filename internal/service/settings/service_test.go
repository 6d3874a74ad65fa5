package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-digest/internal/model"
	apperrors "github.com/jwalitptl/notify-digest/pkg/errors"
)

type memUsers map[uuid.UUID]*model.User

func (m memUsers) UsersCreatedBefore(context.Context, time.Time) ([]uuid.UUID, error) {
	return nil, nil
}

func (m memUsers) UserRecords(context.Context, []uuid.UUID) ([]*model.User, error) {
	return nil, nil
}

func (m memUsers) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user", nil)
}

type memSettings struct {
	rows      map[uuid.UUID]*model.UserSettings
	upsertErr error
}

func (m *memSettings) UsersByTier(context.Context, model.Tier) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *memSettings) GetSettings(_ context.Context, id uuid.UUID) (*model.UserSettings, error) {
	if s, ok := m.rows[id]; ok {
		return s, nil
	}
	return nil, apperrors.NotFound("notification settings", nil)
}

func (m *memSettings) UpsertSettings(_ context.Context, s *model.UserSettings) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[s.UserID] = s
	return nil
}

func TestSetTier(t *testing.T) {
	id := uuid.New()
	store := &memSettings{rows: map[uuid.UUID]*model.UserSettings{}}
	svc := NewService(memUsers{id: {ID: id}}, store)

	got, err := svc.SetTier(context.Background(), id, "weekly")
	require.NoError(t, err)
	assert.Equal(t, model.TierWeekly, got.Tier)

	// legacy alias
	got, err = svc.SetTier(context.Background(), id, "live")
	require.NoError(t, err)
	assert.Equal(t, model.TierImmediate, got.Tier)

	stored, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TierImmediate, stored.Tier)
}

func TestSetTierErrors(t *testing.T) {
	id := uuid.New()
	store := &memSettings{rows: map[uuid.UUID]*model.UserSettings{}}
	svc := NewService(memUsers{id: {ID: id}}, store)

	_, err := svc.SetTier(context.Background(), id, "hourly")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	_, err = svc.SetTier(context.Background(), uuid.New(), "daily")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	store.upsertErr = errors.New("db down")
	_, err = svc.SetTier(context.Background(), id, "daily")
	assert.ErrorIs(t, err, store.upsertErr)
}
