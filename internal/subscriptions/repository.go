package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskbounty/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const subColumns = `id, user_id, plan_type, start_at, end_at, price_paise, is_active, gateway_order_id, gateway_payment_id, created_at`

func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) error {
	return tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_type, start_at, end_at, price_paise, is_active, gateway_order_id, gateway_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, s.ID, s.UserID, s.PlanType, s.StartAt, s.EndAt, s.PricePaise, s.IsActive, s.GatewayOrderID, s.GatewayPaymentID).Scan(&s.CreatedAt)
}

// ActiveAt returns the user's subscription that is active at the instant t,
// or nil when there is none.
func (r *Repository) ActiveAt(ctx context.Context, userID uuid.UUID, t time.Time) (*models.Subscription, error) {
	var s models.Subscription
	err := r.pool.QueryRow(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE user_id = $1 AND is_active AND start_at <= $2 AND end_at > $2
		ORDER BY end_at DESC
		LIMIT 1
	`, userID, t).Scan(&s.ID, &s.UserID, &s.PlanType, &s.StartAt, &s.EndAt, &s.PricePaise, &s.IsActive, &s.GatewayOrderID, &s.GatewayPaymentID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeactivatePriorTx clears the active flag on the user's earlier
// subscriptions so at most one is effective after an activation.
func (r *Repository) DeactivatePriorTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE subscriptions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	return err
}

// ExpiringWithin lists active subscriptions that end on or before the
// given horizon, for expiry reminders.
func (r *Repository) ExpiringWithin(ctx context.Context, horizon time.Time) ([]*models.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE is_active AND end_at <= $1
	`, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.PlanType, &s.StartAt, &s.EndAt, &s.PricePaise, &s.IsActive, &s.GatewayOrderID, &s.GatewayPaymentID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
