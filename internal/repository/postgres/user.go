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

type userRepository struct {
	*BaseRepository
}

func NewUserRepository(base *BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) UsersCreatedBefore(ctx context.Context, ts time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM users
		WHERE created_at < $1 AND email IS NOT NULL AND email <> ''
		ORDER BY id
	`

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, ts)
	r.observe("users_created_before", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list users created before %s: %w", ts.Format(time.RFC3339), err)
	}
	return ids, nil
}

func (r *userRepository) UserRecords(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, email, timezone, created_at FROM users
		WHERE id = ANY($1::uuid[]) AND email IS NOT NULL AND email <> ''
	`

	var users []*model.User
	err := r.db.SelectContext(ctx, &users, query, uuidArray(ids))
	r.observe("user_records", err)
	if err != nil {
		return nil, fmt.Errorf("failed to load user records: %w", err)
	}
	return users, nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT id, email, timezone, created_at FROM users WHERE id = $1`

	var user model.User
	err := r.db.GetContext(ctx, &user, query, id)
	r.observe("get_user", err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
