package bids

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskbounty/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bidColumns = `id, task_id, hunter_id, amount_paise, comment, status, created_at, updated_at`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.TaskID, &b.HunterID, &b.AmountPaise, &b.Comment, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a pending bid. The (task_id, hunter_id) unique constraint
// enforces one bid per hunter per task; a violation maps to
// ErrDuplicateBid so there is no check-then-insert race.
func (r *Repository) Create(ctx context.Context, b *models.Bid) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bids (id, task_id, hunter_id, amount_paise, comment, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, b.ID, b.TaskID, b.HunterID, b.AmountPaise, b.Comment, b.Status).Scan(&b.CreatedAt, &b.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateBid
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return scanBid(r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
}

func (r *Repository) Update(ctx context.Context, b *models.Bid) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bids SET amount_paise = $2, comment = $3, updated_at = now()
		WHERE id = $1
	`, b.ID, b.AmountPaise, b.Comment)
	return err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bids WHERE id = $1`, id)
	return err
}

// AcceptTx flips the winning bid to accepted iff it is still pending.
// Zero rows affected means the bid was already resolved (or does not
// belong to the task), which callers surface as ErrBidResolved.
func (r *Repository) AcceptTx(ctx context.Context, tx pgx.Tx, bidID, taskID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE bids SET status = 'accepted', updated_at = now()
		WHERE id = $1 AND task_id = $2 AND status = 'pending'
	`, bidID, taskID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBidResolved
	}
	return nil
}

// RejectSiblingsTx rejects every other pending bid on the task.
func (r *Repository) RejectSiblingsTx(ctx context.Context, tx pgx.Tx, taskID, winnerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE bids SET status = 'rejected', updated_at = now()
		WHERE task_id = $1 AND id <> $2 AND status = 'pending'
	`, taskID, winnerID)
	return err
}

// AcceptedForTask returns the accepted bid for (task, hunter) — the agreed
// price used at payout.
func (r *Repository) AcceptedForTask(ctx context.Context, taskID, hunterID uuid.UUID) (*models.Bid, error) {
	return scanBid(r.pool.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE task_id = $1 AND hunter_id = $2 AND status = 'accepted'
	`, taskID, hunterID))
}

func (r *Repository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Bid, error) {
	return r.list(ctx, `SELECT `+bidColumns+` FROM bids WHERE task_id = $1 ORDER BY created_at`, taskID)
}

func (r *Repository) ListByHunter(ctx context.Context, hunterID uuid.UUID) ([]*models.Bid, error) {
	return r.list(ctx, `SELECT `+bidColumns+` FROM bids WHERE hunter_id = $1 ORDER BY created_at DESC`, hunterID)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]*models.Bid, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.TaskID, &b.HunterID, &b.AmountPaise, &b.Comment, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// CountByHunter returns the hunter's bid counts grouped by status.
func (r *Repository) CountByHunter(ctx context.Context, hunterID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM bids WHERE hunter_id = $1 GROUP BY status
	`, hunterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
