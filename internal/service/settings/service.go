package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/internal/repository"
	apperrors "github.com/jwalitptl/notify-digest/pkg/errors"
)

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.UserSettings, error)
	SetTier(ctx context.Context, userID uuid.UUID, tier string) (*model.UserSettings, error)
}

type service struct {
	users    repository.UserRepository
	settings repository.SettingsRepository
}

func NewService(users repository.UserRepository, settings repository.SettingsRepository) Service {
	return &service{users: users, settings: settings}
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*model.UserSettings, error) {
	return s.settings.GetSettings(ctx, userID)
}

// SetTier changes the digest frequency. The change applies from the next
// cycle; the delivery ledger is left alone.
func (s *service) SetTier(ctx context.Context, userID uuid.UUID, tier string) (*model.UserSettings, error) {
	parsed, err := model.ParseTier(tier)
	if err != nil {
		return nil, apperrors.BadRequest("invalid email frequency", err)
	}

	if _, err := s.users.Get(ctx, userID); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	settings := &model.UserSettings{UserID: userID, Tier: parsed}
	if err := s.settings.UpsertSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}
