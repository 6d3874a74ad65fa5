package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/internal/repository"
	apperrors "github.com/jwalitptl/notify-digest/pkg/errors"
)

type settingsRepository struct {
	*BaseRepository
}

func NewSettingsRepository(base *BaseRepository) repository.SettingsRepository {
	return &settingsRepository{base}
}

func (r *settingsRepository) UsersByTier(ctx context.Context, tier model.Tier) ([]uuid.UUID, error) {
	query := `
		SELECT user_id FROM user_notification_settings
		WHERE email_frequency = $1
		ORDER BY user_id
	`

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, tier)
	r.observe("users_by_tier", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s users: %w", tier, err)
	}
	return ids, nil
}

func (r *settingsRepository) GetSettings(ctx context.Context, userID uuid.UUID) (*model.UserSettings, error) {
	query := `
		SELECT user_id, email_frequency, updated_at FROM user_notification_settings
		WHERE user_id = $1
	`

	var settings model.UserSettings
	err := r.db.GetContext(ctx, &settings, query, userID)
	r.observe("get_settings", err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("notification settings", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification settings: %w", err)
	}
	return &settings, nil
}

func (r *settingsRepository) UpsertSettings(ctx context.Context, settings *model.UserSettings) error {
	query := `
		INSERT INTO user_notification_settings (user_id, email_frequency, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			email_frequency = EXCLUDED.email_frequency,
			updated_at = EXCLUDED.updated_at
	`

	settings.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query, settings.UserID, settings.Tier, settings.UpdatedAt)
	r.observe("upsert_settings", err)
	if err != nil {
		return fmt.Errorf("failed to save notification settings: %w", err)
	}
	return nil
}
