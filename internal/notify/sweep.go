package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/taskbounty/backend/internal/models"
)

// SweepArgs is the daily maintenance job: stale streak resets plus
// expiry and bid-window reminders.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "daily_sweep" }

func (SweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByPeriod: 23 * time.Hour},
	}
}

// StreakResetter clears streaks for users who missed a day.
type StreakResetter interface {
	ResetStaleStreaks(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubscriptionLister finds subscriptions about to lapse.
type SubscriptionLister interface {
	ExpiringWithin(ctx context.Context, horizon time.Time) ([]*models.Subscription, error)
}

// TaskLister finds open tasks whose bid window is about to close.
type TaskLister interface {
	BidWindowsClosingBefore(ctx context.Context, horizon time.Time) ([]*models.Task, error)
}

// UserLookup resolves notification recipients.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SweepWorker runs the daily sweep. Each section is independent: a
// failure in one is logged and the others still run.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	streaks StreakResetter
	subs    SubscriptionLister
	tasks   TaskLister
	users   UserLookup
	notify  *Service
	log     *slog.Logger
	now     func() time.Time
}

func NewSweepWorker(streaks StreakResetter, subs SubscriptionLister, tasks TaskLister, users UserLookup, notify *Service, log *slog.Logger) *SweepWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SweepWorker{
		streaks: streaks,
		subs:    subs,
		tasks:   tasks,
		users:   users,
		notify:  notify,
		log:     log,
		now:     time.Now,
	}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	now := w.now()

	// A streak survives only if the user logged in since yesterday.
	cutoff := now.AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if n, err := w.streaks.ResetStaleStreaks(ctx, cutoff); err != nil {
		w.log.Error("sweep: streak reset failed", "error", err)
	} else if n > 0 {
		w.log.Info("sweep: streaks reset", "count", n)
	}

	w.remindExpiringSubscriptions(ctx, now)
	w.remindClosingBidWindows(ctx, now)
	return nil
}

func (w *SweepWorker) remindExpiringSubscriptions(ctx context.Context, now time.Time) {
	subs, err := w.subs.ExpiringWithin(ctx, now.AddDate(0, 0, 3))
	if err != nil {
		w.log.Error("sweep: list expiring subscriptions failed", "error", err)
		return
	}
	for _, sub := range subs {
		u, err := w.users.GetByID(ctx, sub.UserID)
		if err != nil {
			w.log.Warn("sweep: subscriber lookup failed", "user_id", sub.UserID, "error", err)
			continue
		}
		body := fmt.Sprintf("Your %s subscription ends on %s. Renew to keep posting without fees.",
			sub.PlanType, sub.EndAt.Format("2 Jan 2006"))
		if err := w.notify.Enqueue(ctx, u.Email, "Subscription expiring soon", body); err != nil {
			w.log.Warn("sweep: reminder enqueue failed", "user_id", sub.UserID, "error", err)
		}
	}
}

func (w *SweepWorker) remindClosingBidWindows(ctx context.Context, now time.Time) {
	tasks, err := w.tasks.BidWindowsClosingBefore(ctx, now.Add(24*time.Hour))
	if err != nil {
		w.log.Error("sweep: list closing bid windows failed", "error", err)
		return
	}
	for _, task := range tasks {
		u, err := w.users.GetByID(ctx, task.PostedBy)
		if err != nil {
			w.log.Warn("sweep: poster lookup failed", "user_id", task.PostedBy, "error", err)
			continue
		}
		body := fmt.Sprintf("Bidding on your task %q closes at %s. Review the bids and pick a winner.",
			task.Title, task.BidCloseAt.Format("2 Jan 2006 15:04"))
		if err := w.notify.Enqueue(ctx, u.Email, "Bid window closing", body); err != nil {
			w.log.Warn("sweep: reminder enqueue failed", "task_id", task.ID, "error", err)
		}
	}
}
