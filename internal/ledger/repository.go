package ledger

import (
	"context"
	"fmt"
	"iter"
	"strings"

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

// DebitWallet atomically deducts amount from the user's wallet iff the
// balance covers it. The conditional UPDATE is what serializes concurrent
// debits: the balance check and the write are a single statement.
func (r *Repository) DebitWallet(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE users SET wallet_paise = wallet_paise - $1, updated_at = now()
		WHERE id = $2 AND wallet_paise >= $1
	`, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// CreditWallet adds amount to the user's wallet.
func (r *Repository) CreditWallet(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE users SET wallet_paise = wallet_paise + $1, updated_at = now()
		WHERE id = $2
	`, amount, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", accountID)
	}
	return nil
}

// InsertTransaction appends a ledger row inside the caller's transaction.
func (r *Repository) InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, task_id, subscription_id, kind, amount_paise, method, status, description, gateway_order_id, gateway_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, t.ID, t.AccountID, t.TaskID, t.SubscriptionID, t.Kind, t.AmountPaise, t.Method, t.Status, t.Description, t.GatewayOrderID, t.GatewayPaymentID).Scan(&t.CreatedAt)
}

// TaskHold returns the amount originally debited for the task's posting
// (budget plus any platform fee at creation time).
func (r *Repository) TaskHold(ctx context.Context, taskID uuid.UUID) (int64, error) {
	var amount int64
	err := r.pool.QueryRow(ctx, `
		SELECT amount_paise FROM transactions
		WHERE task_id = $1 AND kind = 'task_posting' AND status = 'success'
	`, taskID).Scan(&amount)
	return amount, err
}

var sortColumns = map[string]string{
	"":           "created_at",
	"created_at": "created_at",
	"amount":     "amount_paise",
	"kind":       "kind",
	"status":     "status",
}

// Transactions returns a restartable iterator over matching ledger rows.
// Each range over the sequence re-runs the query; rows stream lazily from
// the database.
func (r *Repository) Transactions(ctx context.Context, f Filter) iter.Seq2[*models.Transaction, error] {
	query, args := buildTransactionsQuery(f)
	return func(yield func(*models.Transaction, error) bool) {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var t models.Transaction
			if err := rows.Scan(&t.ID, &t.AccountID, &t.TaskID, &t.SubscriptionID, &t.Kind, &t.AmountPaise, &t.Method, &t.Status, &t.Description, &t.GatewayOrderID, &t.GatewayPaymentID, &t.CreatedAt); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func buildTransactionsQuery(f Filter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, account_id, task_id, subscription_id, kind, amount_paise, method, status, description, gateway_order_id, gateway_payment_id, created_at
		FROM transactions`)

	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AccountID != nil {
		add("account_id = $%d", *f.AccountID)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Search != "" {
		add("description ILIKE $%d", "%"+f.Search+"%")
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", col, dir))
	return sb.String(), args
}
