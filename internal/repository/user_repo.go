package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskbounty/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, name, email, phone, password_hash, role, bio, avatar, is_active, is_system_account, wallet_paise, total_earnings_paise, total_tasks_completed, subscription_id, streak_count, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.Bio, &u.Avatar, &u.IsActive, &u.IsSystemAccount, &u.WalletPaise, &u.TotalEarningsPaise, &u.TotalTasksCompleted, &u.SubscriptionID, &u.StreakCount, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, phone, password_hash, role, bio, avatar, is_active, is_system_account, wallet_paise)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.Bio, u.Avatar, u.IsActive, u.IsSystemAccount, u.WalletPaise).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepo) UpdateProfile(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET name = $2, phone = $3, bio = $4, avatar = $5, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Name, u.Phone, u.Bio, u.Avatar)
	return err
}

// ApplyPayoutTx bumps the hunter's aggregate earnings and completion count
// in the payout transaction and returns the new completion count so the
// caller can decide on badge awards without a separate read.
func (r *UserRepo) ApplyPayoutTx(ctx context.Context, tx pgx.Tx, hunterID uuid.UUID, payout int64) (completed int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET total_earnings_paise = total_earnings_paise + $1,
		    total_tasks_completed = total_tasks_completed + 1,
		    updated_at = now()
		WHERE id = $2
		RETURNING total_tasks_completed
	`, payout, hunterID).Scan(&completed)
	return completed, err
}

// GrantBadgeTx awards a badge at most once; re-granting is a no-op.
func (r *UserRepo) GrantBadgeTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_key) VALUES ($1, $2)
		ON CONFLICT (user_id, badge_key) DO NOTHING
	`, userID, key)
	return err
}

// GrantBadge is GrantBadgeTx outside a transaction.
func (r *UserRepo) GrantBadge(ctx context.Context, userID uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_key) VALUES ($1, $2)
		ON CONFLICT (user_id, badge_key) DO NOTHING
	`, userID, key)
	return err
}

func (r *UserRepo) Badges(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT badge_key FROM user_badges WHERE user_id = $1 ORDER BY granted_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *UserRepo) LinkSubscriptionTx(ctx context.Context, tx pgx.Tx, userID, subscriptionID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET subscription_id = $2, updated_at = now() WHERE id = $1
	`, userID, subscriptionID)
	return err
}

// RecordLogin updates streak bookkeeping: consecutive-day logins extend the
// streak, a gap resets it to 1. Returns the new streak count.
func (r *UserRepo) RecordLogin(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var streak int
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET streak_count = CASE
			WHEN last_login_at IS NULL THEN 1
			WHEN last_login_at::date = $2::date THEN streak_count
			WHEN last_login_at::date = $2::date - 1 THEN streak_count + 1
			ELSE 1
		END,
		last_login_at = $2,
		updated_at = now()
		WHERE id = $1
		RETURNING streak_count
	`, userID, now).Scan(&streak)
	return streak, err
}

// ResetStaleStreaks zeroes the streak of every user who has not logged in
// since the cutoff. Used by the daily sweep.
func (r *UserRepo) ResetStaleStreaks(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET streak_count = 0, updated_at = now()
		WHERE streak_count > 0 AND (last_login_at IS NULL OR last_login_at < $1)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// LeaderboardEntry is a leaderboard row: top hunters by completed tasks.
type LeaderboardEntry struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	TotalEarningsPaise  int64     `json:"total_earnings_paise"`
	TotalTasksCompleted int       `json:"total_tasks_completed"`
}

func (r *UserRepo) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, total_earnings_paise, total_tasks_completed
		FROM users
		WHERE is_active AND role = 'hunter'
		ORDER BY total_tasks_completed DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.TotalEarningsPaise, &e.TotalTasksCompleted); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveHunterEmails returns contact addresses for broadcast notifications.
func (r *UserRepo) ActiveHunterEmails(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT email FROM users WHERE is_active AND role = 'hunter'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
