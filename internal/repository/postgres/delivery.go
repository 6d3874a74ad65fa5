package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/internal/repository"
)

type deliveryRepository struct {
	*BaseRepository
}

func NewDeliveryRepository(base *BaseRepository) repository.DeliveryRepository {
	return &deliveryRepository{base}
}

// LastDelivery returns nil, nil when the user never received a digest.
func (r *deliveryRepository) LastDelivery(ctx context.Context, userID uuid.UUID) (*model.DeliveryRecord, error) {
	query := `
		SELECT user_id, email_frequency, timestamp FROM notification_emails
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var record model.DeliveryRecord
	err := r.db.GetContext(ctx, &record, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		r.observe("last_delivery", nil)
		return nil, nil
	}
	r.observe("last_delivery", err)
	if err != nil {
		return nil, fmt.Errorf("failed to read last delivery: %w", err)
	}
	return &record, nil
}

func (r *deliveryRepository) CommitDelivery(ctx context.Context, record *model.DeliveryRecord) error {
	query := `
		INSERT INTO notification_emails (user_id, email_frequency, timestamp)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.ExecContext(ctx, query, record.UserID, record.Tier, record.Timestamp)
	r.observe("commit_delivery", err)
	if err != nil {
		return fmt.Errorf("failed to commit delivery: %w", err)
	}
	return nil
}

// PruneDeliveries deletes records older than cutoff, keeping the newest one
// per user.
func (r *deliveryRepository) PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM notification_emails e
		WHERE e.timestamp < $1
			AND e.timestamp < (
				SELECT MAX(latest.timestamp) FROM notification_emails latest
				WHERE latest.user_id = e.user_id
			)
	`

	var rows int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, cutoff)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	r.observe("prune_deliveries", err)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return rows, nil
}
