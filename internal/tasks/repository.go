package tasks

import (
	"context"
	"fmt"
	"strings"
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

const taskColumns = `id, title, description, category_id, budget_paise, posted_by, assigned_to, status, bid_close_at, deadline_at, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.BudgetPaise, &t.PostedBy, &t.AssignedTo, &t.Status, &t.BidCloseAt, &t.DeadlineAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx inserts the task inside the caller's transaction so creation
// and the wallet hold commit or roll back together.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, title, description, category_id, budget_paise, posted_by, status, bid_close_at, deadline_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, t.ID, t.Title, t.Description, t.CategoryID, t.BudgetPaise, t.PostedBy, t.Status, t.BidCloseAt, t.DeadlineAt).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// UpdateDetails mutates the poster-editable fields only.
func (r *Repository) UpdateDetails(ctx context.Context, t *models.Task) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET description = $2, bid_close_at = $3, deadline_at = $4, updated_at = now()
		WHERE id = $1
	`, t.ID, t.Description, t.BidCloseAt, t.DeadlineAt)
	return err
}

// AssignTx sets the assignee and moves the task to in_progress, resetting
// the bid window. Conditional on the task still being open; zero rows
// means a concurrent resolution won.
func (r *Repository) AssignTx(ctx context.Context, tx pgx.Tx, taskID, hunterID uuid.UUID, bidCloseAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE tasks SET assigned_to = $2, status = 'in_progress', bid_close_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, taskID, hunterID, bidCloseAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SetStatusTx transitions the task to status iff it currently holds one of
// from. Zero rows affected means the guard failed.
func (r *Repository) SetStatusTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, from []string, to string) error {
	result, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, taskID, to, from)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// AddSubmissionTx appends a work-file reference.
func (r *Repository) AddSubmissionTx(ctx context.Context, tx pgx.Tx, sub *models.Submission) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO task_submissions (id, task_id, file_url, submitted_at)
		VALUES ($1, $2, $3, $4)
	`, sub.ID, sub.TaskID, sub.FileURL, sub.SubmittedAt)
	return err
}

func (r *Repository) Submissions(ctx context.Context, taskID uuid.UUID) ([]models.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, file_url, submitted_at FROM task_submissions
		WHERE task_id = $1 ORDER BY submitted_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []models.Submission
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.TaskID, &s.FileURL, &s.SubmittedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// DeleteTx removes the task; submissions cascade at the schema level.
func (r *Repository) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

// ListFilter narrows and pages the public task listing.
type ListFilter struct {
	Search     string
	CategoryID *uuid.UUID
	EndingSoon bool // open tasks whose bid window is still running, soonest first
	Page       int
	Limit      int
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]*models.Task, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}

	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Search != "" {
		add("title ILIKE $%d", "%"+f.Search+"%")
	}
	if f.CategoryID != nil {
		add("category_id = $%d", *f.CategoryID)
	}
	order := "created_at DESC"
	if f.EndingSoon {
		conds = append(conds, "status = 'open'", "bid_close_at >= now()")
		order = "bid_close_at ASC"
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	query := fmt.Sprintf(`SELECT %s FROM tasks%s ORDER BY %s LIMIT %d OFFSET %d`, taskColumns, where, order, f.Limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.BudgetPaise, &t.PostedBy, &t.AssignedTo, &t.Status, &t.BidCloseAt, &t.DeadlineAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &t)
	}
	return out, total, rows.Err()
}

func (r *Repository) ListByPoster(ctx context.Context, posterID uuid.UUID) ([]*models.Task, error) {
	return r.listBy(ctx, `SELECT `+taskColumns+` FROM tasks WHERE posted_by = $1 ORDER BY created_at DESC`, posterID)
}

func (r *Repository) ListByAssignee(ctx context.Context, hunterID uuid.UUID) ([]*models.Task, error) {
	return r.listBy(ctx, `SELECT `+taskColumns+` FROM tasks WHERE assigned_to = $1 ORDER BY created_at DESC`, hunterID)
}

func (r *Repository) listBy(ctx context.Context, query string, arg any) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.BudgetPaise, &t.PostedBy, &t.AssignedTo, &t.Status, &t.BidCloseAt, &t.DeadlineAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// CountByAssigneeStatus returns how many tasks assigned to the hunter hold
// the given status.
func (r *Repository) CountByAssigneeStatus(ctx context.Context, hunterID uuid.UUID, status string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE assigned_to = $1 AND status = $2`, hunterID, status).Scan(&n)
	return n, err
}

// BidWindowsClosingBefore lists open tasks whose bid window ends by the
// horizon, for sweep reminders.
func (r *Repository) BidWindowsClosingBefore(ctx context.Context, horizon time.Time) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'open' AND bid_close_at <= $1 AND bid_close_at >= now()
	`, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.BudgetPaise, &t.PostedBy, &t.AssignedTo, &t.Status, &t.BidCloseAt, &t.DeadlineAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
