package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/badges"
	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/models"
)

var (
	// ErrPosterOnly is returned when a non-poster tries to create a task.
	ErrPosterOnly = errors.New("only posters can create tasks")
	// ErrNotOwner is returned when the caller does not own the task.
	ErrNotOwner = errors.New("caller does not own this task")
	// ErrNotAssignee is returned when someone other than the assigned
	// hunter submits work.
	ErrNotAssignee = errors.New("caller is not assigned to this task")
	// ErrInvalidTransition is returned when the task's current status does
	// not permit the requested transition.
	ErrInvalidTransition = errors.New("invalid task status transition")
	// ErrTaskAssigned is returned when deleting a task that already has an
	// assignee.
	ErrTaskAssigned = errors.New("assigned tasks cannot be deleted")
	// ErrInvalidDecision is returned for review outcomes other than
	// completed/incomplete.
	ErrInvalidDecision = errors.New("decision must be completed or incomplete")
)

// Refund policy on poster-initiated deletion of an unassigned task.
const (
	DeletePolicyRefund  = "refund"  // return the full hold as a task_refund credit
	DeletePolicyForfeit = "forfeit" // the hold stays with the platform
)

// Config holds the lifecycle policy knobs.
type Config struct {
	DeletePolicy string // DeletePolicyRefund (default) | DeletePolicyForfeit
}

// FeePaise is the platform's cut: a flat 10% of the amount, rounded down
// to the paisa.
func FeePaise(amount int64) int64 {
	return amount / 10
}

// Store is the task persistence interface the service needs.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	UpdateDetails(ctx context.Context, t *models.Task) error
	SetStatusTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, from []string, to string) error
	AddSubmissionTx(ctx context.Context, tx pgx.Tx, sub *models.Submission) error
	Submissions(ctx context.Context, taskID uuid.UUID) ([]models.Submission, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*models.Task, int, error)
	ListByPoster(ctx context.Context, posterID uuid.UUID) ([]*models.Task, error)
	ListByAssignee(ctx context.Context, hunterID uuid.UUID) ([]*models.Task, error)
}

// Ledger is the money side of the lifecycle: the posting hold, the payout
// split, and the deletion refund.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error)
	Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error)
	TaskHold(ctx context.Context, taskID uuid.UUID) (int64, error)
}

// FeeWaiver decides whether the poster skips the posting fee.
type FeeWaiver interface {
	EligibleForFeeWaiver(ctx context.Context, posterID uuid.UUID, now time.Time) (bool, error)
}

// BidReader resolves the accepted bid whose amount is the agreed payout
// base.
type BidReader interface {
	AcceptedForTask(ctx context.Context, taskID, hunterID uuid.UUID) (*models.Bid, error)
}

// Users applies payout counters and badges, and resolves contacts for
// notifications.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ApplyPayoutTx(ctx context.Context, tx pgx.Tx, hunterID uuid.UUID, payout int64) (completed int, err error)
	GrantBadgeTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key string) error
}

// Notifier delivers best-effort notifications; failures never surface.
type Notifier interface {
	Enqueue(ctx context.Context, recipient, subject, body string) error
	Broadcast(ctx context.Context, subject, body string) error
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service drives the task lifecycle. Every money-moving transition runs
// in a single transaction with its status change, so a crash or conflict
// leaves both the wallet and the task as they were.
type Service struct {
	pool   TxBeginner
	store  Store
	ledger Ledger
	waiver FeeWaiver
	bids   BidReader
	users  Users
	notify Notifier
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func NewService(pool TxBeginner, store Store, ledg Ledger, waiver FeeWaiver, bids BidReader, users Users, notify Notifier, cfg Config, log *slog.Logger) *Service {
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeletePolicyRefund
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		store:  store,
		ledger: ledg,
		waiver: waiver,
		bids:   bids,
		users:  users,
		notify: notify,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// CreateInput is the poster's new-task request.
type CreateInput struct {
	Title       string
	Description string
	CategoryID  *uuid.UUID
	BudgetPaise int64
	BidCloseAt  time.Time
	DeadlineAt  time.Time
}

func (in CreateInput) validate(now time.Time) error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("title is required")
	}
	if in.BudgetPaise <= 0 {
		return fmt.Errorf("budget must be positive, got %d", in.BudgetPaise)
	}
	if !in.BidCloseAt.After(now) {
		return errors.New("bid close must be in the future")
	}
	if !in.DeadlineAt.After(in.BidCloseAt) {
		return errors.New("deadline must be after bid close")
	}
	return nil
}

// Create opens a task, debiting the poster for the budget plus the
// posting fee up front. Subscribers skip the fee. The debit and the task
// row commit together; an insufficient wallet creates nothing.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Task, error) {
	if actor.Role != models.RolePoster {
		return nil, ErrPosterOnly
	}
	now := s.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	waived, err := s.waiver.EligibleForFeeWaiver(ctx, actor.ID, now)
	if err != nil {
		return nil, err
	}
	hold := in.BudgetPaise
	if !waived {
		hold += FeePaise(in.BudgetPaise)
	}

	task := &models.Task{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		CategoryID:  in.CategoryID,
		BudgetPaise: in.BudgetPaise,
		PostedBy:    actor.ID,
		Status:      models.TaskStatusOpen,
		BidCloseAt:  in.BidCloseAt,
		DeadlineAt:  in.DeadlineAt,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.ledger.Debit(ctx, tx, actor.ID, hold, models.TxKindTaskPosting, ledger.Ref{
		TaskID:      &task.ID,
		Description: fmt.Sprintf("Posting hold for task %q", task.Title),
	}); err != nil {
		return nil, err
	}
	if err := s.store.CreateTx(ctx, tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.announce(ctx, task)
	return task, nil
}

// announce tells hunters about the new task. Best-effort.
func (s *Service) announce(ctx context.Context, task *models.Task) {
	if s.notify == nil {
		return
	}
	body := fmt.Sprintf("A new task %q with a budget of ₹%.2f is open for bids.", task.Title, float64(task.BudgetPaise)/100)
	if err := s.notify.Broadcast(ctx, "New task posted", body); err != nil {
		s.log.Warn("task announcement failed", "task_id", task.ID, "error", err)
	}
}

// EditInput carries the poster-editable fields; nil means keep.
type EditInput struct {
	Description *string
	BidCloseAt  *time.Time
	DeadlineAt  *time.Time
}

// Edit updates the mutable details of the caller's open task. Budget and
// title are fixed once money is held against them.
func (s *Service) Edit(ctx context.Context, actor models.Actor, taskID uuid.UUID, in EditInput) (*models.Task, error) {
	task, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PostedBy != actor.ID && !actor.IsAdmin() {
		return nil, ErrNotOwner
	}
	if task.Status != models.TaskStatusOpen {
		return nil, ErrInvalidTransition
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.BidCloseAt != nil {
		task.BidCloseAt = *in.BidCloseAt
	}
	if in.DeadlineAt != nil {
		task.DeadlineAt = *in.DeadlineAt
	}
	if !task.DeadlineAt.After(task.BidCloseAt) {
		return nil, errors.New("deadline must be after bid close")
	}
	if err := s.store.UpdateDetails(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes an open, unassigned task. Under the refund policy the
// original hold comes back to the poster as an explicit task_refund
// credit in the same transaction as the deletion.
func (s *Service) Delete(ctx context.Context, actor models.Actor, taskID uuid.UUID) error {
	task, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.PostedBy != actor.ID && !actor.IsAdmin() {
		return ErrNotOwner
	}
	if task.Status != models.TaskStatusOpen || task.AssignedTo != nil {
		return ErrTaskAssigned
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if s.cfg.DeletePolicy == DeletePolicyRefund {
		hold, err := s.ledger.TaskHold(ctx, taskID)
		if err != nil {
			return fmt.Errorf("look up posting hold: %w", err)
		}
		if _, err := s.ledger.Credit(ctx, tx, task.PostedBy, hold, models.TxKindTaskRefund, ledger.Ref{
			TaskID:      &taskID,
			Description: fmt.Sprintf("Refund for deleted task %q", task.Title),
		}); err != nil {
			return err
		}
	}
	if err := s.store.DeleteTx(ctx, tx, taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Submit appends a work file and moves the task to submitted. Only the
// assigned hunter may submit; resubmission while already submitted just
// adds another file.
func (s *Service) Submit(ctx context.Context, actor models.Actor, taskID uuid.UUID, fileURL string) (*models.Submission, error) {
	if strings.TrimSpace(fileURL) == "" {
		return nil, errors.New("file URL is required")
	}
	task, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo == nil || *task.AssignedTo != actor.ID {
		return nil, ErrNotAssignee
	}

	sub := &models.Submission{
		ID:          uuid.New(),
		TaskID:      taskID,
		FileURL:     fileURL,
		SubmittedAt: s.now(),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.AddSubmissionTx(ctx, tx, sub); err != nil {
		return nil, err
	}
	from := []string{models.TaskStatusInProgress, models.TaskStatusSubmitted, models.TaskStatusUnderReview}
	if err := s.store.SetStatusTx(ctx, tx, taskID, from, models.TaskStatusSubmitted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifyUser(ctx, task.PostedBy, "Work submitted on your task",
		fmt.Sprintf("Work was submitted on your task %q and is awaiting your review.", task.Title))
	return sub, nil
}

// MarkUnderReview parks a submitted task while the poster evaluates the
// work. Purely informational; the decision endpoint accepts both states.
func (s *Service) MarkUnderReview(ctx context.Context, actor models.Actor, taskID uuid.UUID) error {
	task, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.PostedBy != actor.ID && !actor.IsAdmin() {
		return ErrNotOwner
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.store.SetStatusTx(ctx, tx, taskID, []string{models.TaskStatusSubmitted}, models.TaskStatusUnderReview); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Decide settles a submitted task. completed pays the hunter the accepted
// bid amount minus the 10% platform cut, credits the cut to the platform
// account, bumps the hunter's counters, and grants the champion badge at
// the threshold — one transaction, all or nothing. incomplete only moves
// the status; the poster's hold stays with the platform.
func (s *Service) Decide(ctx context.Context, actor models.Actor, taskID uuid.UUID, decision string) (*models.Task, error) {
	if decision != models.TaskStatusCompleted && decision != models.TaskStatusIncomplete {
		return nil, ErrInvalidDecision
	}
	task, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PostedBy != actor.ID && !actor.IsAdmin() {
		return nil, ErrNotOwner
	}
	if task.Status != models.TaskStatusSubmitted && task.Status != models.TaskStatusUnderReview {
		return nil, ErrInvalidTransition
	}
	if task.AssignedTo == nil {
		return nil, fmt.Errorf("task %s is submitted but has no assignee", taskID)
	}
	hunterID := *task.AssignedTo
	from := []string{models.TaskStatusSubmitted, models.TaskStatusUnderReview}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if decision == models.TaskStatusCompleted {
		bid, err := s.bids.AcceptedForTask(ctx, taskID, hunterID)
		if err != nil {
			return nil, fmt.Errorf("resolve accepted bid: %w", err)
		}
		fee := FeePaise(bid.AmountPaise)
		payout := bid.AmountPaise - fee

		if _, err := s.ledger.Credit(ctx, tx, hunterID, payout, models.TxKindTaskPayment, ledger.Ref{
			TaskID:      &taskID,
			Description: fmt.Sprintf("Payout for task %q", task.Title),
		}); err != nil {
			return nil, err
		}
		if _, err := s.ledger.Credit(ctx, tx, models.PlatformAccountID, fee, models.TxKindPlatformFee, ledger.Ref{
			TaskID:      &taskID,
			Description: fmt.Sprintf("Platform fee for task %q", task.Title),
		}); err != nil {
			return nil, err
		}
		completed, err := s.users.ApplyPayoutTx(ctx, tx, hunterID, payout)
		if err != nil {
			return nil, err
		}
		if completed >= badges.ChampionThreshold {
			if err := s.users.GrantBadgeTx(ctx, tx, hunterID, badges.BountyChampion); err != nil {
				return nil, err
			}
		}
	}
	if err := s.store.SetStatusTx(ctx, tx, taskID, from, decision); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	task.Status = decision
	subject := "Task marked incomplete"
	body := fmt.Sprintf("Your submission on %q was marked incomplete.", task.Title)
	if decision == models.TaskStatusCompleted {
		subject = "Task completed — payment released"
		body = fmt.Sprintf("Your work on %q was approved and the payout is in your wallet.", task.Title)
	}
	s.notifyUser(ctx, hunterID, subject, body)
	return task, nil
}

// Get returns a task with its submissions attached.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.Submissions(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Submissions = subs
	return task, nil
}

// Browse lists tasks for the public marketplace view.
func (s *Service) Browse(ctx context.Context, f ListFilter) ([]*models.Task, int, error) {
	return s.store.List(ctx, f)
}

// Mine lists the caller's tasks: posted for posters, assigned for hunters.
func (s *Service) Mine(ctx context.Context, actor models.Actor) ([]*models.Task, error) {
	if actor.Role == models.RoleHunter {
		return s.store.ListByAssignee(ctx, actor.ID)
	}
	return s.store.ListByPoster(ctx, actor.ID)
}

func (s *Service) notifyUser(ctx context.Context, userID uuid.UUID, subject, body string) {
	if s.notify == nil || s.users == nil {
		return
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.log.Warn("notification: user lookup failed", "user_id", userID, "error", err)
		return
	}
	if err := s.notify.Enqueue(ctx, u.Email, subject, body); err != nil {
		s.log.Warn("notification enqueue failed", "user_id", userID, "error", err)
	}
}
