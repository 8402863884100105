package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/models"
)

var (
	// ErrTaskNotOpen is returned when bidding on a task that is not open.
	ErrTaskNotOpen = errors.New("task is not open for bidding")
	// ErrBiddingClosed is returned when the bid window has passed.
	ErrBiddingClosed = errors.New("bidding period is over")
	// ErrDuplicateBid is returned when the hunter already has a bid on the task.
	ErrDuplicateBid = errors.New("hunter already has a bid on this task")
	// ErrBidResolved is returned when accepting a bid that is no longer pending.
	ErrBidResolved = errors.New("bid is already resolved")
	// ErrBidAccepted is returned when withdrawing or editing an accepted bid.
	ErrBidAccepted = errors.New("accepted bids cannot be modified")
	// ErrNotOwner is returned when the caller does not own the bid or task.
	ErrNotOwner = errors.New("caller does not own this resource")
	// ErrHunterOnly is returned when a non-hunter tries to bid.
	ErrHunterOnly = errors.New("only hunters can place bids")
)

// Config holds the arbitration policy knobs.
type Config struct {
	// AllowMutationAfterClose preserves the loose legacy behavior of letting
	// hunters edit or withdraw pending bids after the window closed or the
	// task left open. Default is the strict policy.
	AllowMutationAfterClose bool
}

// Store is the bid persistence interface the service needs.
type Store interface {
	Create(ctx context.Context, b *models.Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	Update(ctx context.Context, b *models.Bid) error
	Delete(ctx context.Context, id uuid.UUID) error
	AcceptTx(ctx context.Context, tx pgx.Tx, bidID, taskID uuid.UUID) error
	RejectSiblingsTx(ctx context.Context, tx pgx.Tx, taskID, winnerID uuid.UUID) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Bid, error)
	ListByHunter(ctx context.Context, hunterID uuid.UUID) ([]*models.Bid, error)
}

// TaskStore is the slice of the task repository arbitration needs: reads,
// plus the in-transaction assignment that accompanies acceptance.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	AssignTx(ctx context.Context, tx pgx.Tx, taskID, hunterID uuid.UUID, bidCloseAt time.Time) error
}

// Notifier delivers best-effort notifications; failures never surface.
type Notifier interface {
	Enqueue(ctx context.Context, recipient, subject, body string) error
}

// Users resolves contact details for notifications.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service manages the set of bids on a task: placement, mutation, and the
// all-or-nothing accept/reject resolution.
type Service struct {
	pool   TxBeginner
	store  Store
	tasks  TaskStore
	users  Users
	notify Notifier
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func NewService(pool TxBeginner, store Store, tasks TaskStore, users Users, notify Notifier, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: pool, store: store, tasks: tasks, users: users, notify: notify, cfg: cfg, log: log, now: time.Now}
}

// Place creates a pending bid for the hunter on an open task whose bid
// window is still running.
func (s *Service) Place(ctx context.Context, actor models.Actor, taskID uuid.UUID, amount int64, comment string) (*models.Bid, error) {
	if actor.Role != models.RoleHunter {
		return nil, ErrHunterOnly
	}
	if amount <= 0 {
		return nil, fmt.Errorf("bid amount must be positive, got %d", amount)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusOpen {
		return nil, ErrTaskNotOpen
	}
	if s.now().After(task.BidCloseAt) {
		return nil, ErrBiddingClosed
	}

	bid := &models.Bid{
		ID:          uuid.New(),
		TaskID:      taskID,
		HunterID:    actor.ID,
		AmountPaise: amount,
		Comment:     comment,
		Status:      models.BidStatusPending,
	}
	if err := s.store.Create(ctx, bid); err != nil {
		return nil, err
	}
	s.notifyPoster(ctx, task, bid)
	return bid, nil
}

// notifyPoster tells the task owner about a new bid. Best-effort: a
// lookup or enqueue failure is logged and never fails the placement.
func (s *Service) notifyPoster(ctx context.Context, task *models.Task, bid *models.Bid) {
	if s.notify == nil || s.users == nil {
		return
	}
	poster, err := s.users.GetByID(ctx, task.PostedBy)
	if err != nil {
		s.log.Warn("bid notification: poster lookup failed", "task_id", task.ID, "error", err)
		return
	}
	body := fmt.Sprintf("A new bid of ₹%.2f was placed on your task %q.", float64(bid.AmountPaise)/100, task.Title)
	if err := s.notify.Enqueue(ctx, poster.Email, "New bid received on your task", body); err != nil {
		s.log.Warn("bid notification enqueue failed", "task_id", task.ID, "error", err)
	}
}

// Update mutates the amount/comment of the caller's pending bid. Unless
// the loose policy is enabled, the task must still be open with the bid
// window running.
func (s *Service) Update(ctx context.Context, actor models.Actor, bidID uuid.UUID, amount *int64, comment *string) (*models.Bid, error) {
	bid, err := s.store.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.HunterID != actor.ID {
		return nil, ErrNotOwner
	}
	if bid.Status != models.BidStatusPending {
		return nil, ErrBidResolved
	}
	if !s.cfg.AllowMutationAfterClose {
		if err := s.windowOpen(ctx, bid.TaskID); err != nil {
			return nil, err
		}
	}
	if amount != nil {
		if *amount <= 0 {
			return nil, fmt.Errorf("bid amount must be positive, got %d", *amount)
		}
		bid.AmountPaise = *amount
	}
	if comment != nil {
		bid.Comment = *comment
	}
	if err := s.store.Update(ctx, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

// Resolve is the poster's acceptance: the winner goes accepted, every
// sibling pending bid goes rejected, and the task moves to in_progress
// with the winner as assignee — all in one transaction. A failure anywhere
// leaves the pre-resolution state intact.
func (s *Service) Resolve(ctx context.Context, actor models.Actor, taskID, bidID uuid.UUID) (*models.Bid, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PostedBy != actor.ID {
		return nil, ErrNotOwner
	}
	if task.Status != models.TaskStatusOpen {
		return nil, ErrTaskNotOpen
	}
	bid, err := s.store.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.TaskID != taskID {
		return nil, fmt.Errorf("bid %s does not belong to task %s", bidID, taskID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.AcceptTx(ctx, tx, bidID, taskID); err != nil {
		return nil, err
	}
	if err := s.store.RejectSiblingsTx(ctx, tx, taskID, bidID); err != nil {
		return nil, err
	}
	// Assignment also resets the bid window to now.
	if err := s.tasks.AssignTx(ctx, tx, taskID, bid.HunterID, s.now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	bid.Status = models.BidStatusAccepted
	return bid, nil
}

// Withdraw removes the caller's bid. Accepted bids are never withdrawable;
// withdrawal after the window closed follows the mutation policy.
func (s *Service) Withdraw(ctx context.Context, actor models.Actor, bidID uuid.UUID) error {
	bid, err := s.store.GetByID(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.HunterID != actor.ID && !actor.IsAdmin() {
		return ErrNotOwner
	}
	if bid.Status == models.BidStatusAccepted {
		return ErrBidAccepted
	}
	if !s.cfg.AllowMutationAfterClose {
		if err := s.windowOpen(ctx, bid.TaskID); err != nil {
			return err
		}
	}
	return s.store.Delete(ctx, bidID)
}

// ListForTask returns every bid on a task, for the poster's review.
func (s *Service) ListForTask(ctx context.Context, taskID uuid.UUID) ([]*models.Bid, error) {
	return s.store.ListByTask(ctx, taskID)
}

// ListMine returns the caller's own bids.
func (s *Service) ListMine(ctx context.Context, actor models.Actor) ([]*models.Bid, error) {
	return s.store.ListByHunter(ctx, actor.ID)
}

func (s *Service) windowOpen(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusOpen {
		return ErrTaskNotOpen
	}
	if s.now().After(task.BidCloseAt) {
		return ErrBiddingClosed
	}
	return nil
}
