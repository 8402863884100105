package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/badges"
	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/models"
)

var (
	// ErrInvalidPlan is returned for plan types other than monthly/yearly.
	ErrInvalidPlan = errors.New("invalid plan type")
	// ErrPosterOnly is returned when a non-poster tries to subscribe.
	ErrPosterOnly = errors.New("only posters can hold a subscription")
)

// Store is the subscription persistence the service needs.
type Store interface {
	InsertTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) error
	ActiveAt(ctx context.Context, userID uuid.UUID, t time.Time) (*models.Subscription, error)
	DeactivatePriorTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

// UserLinker relinks the poster's current subscription reference.
type UserLinker interface {
	LinkSubscriptionTx(ctx context.Context, tx pgx.Tx, userID, subscriptionID uuid.UUID) error
	GrantBadgeTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key string) error
}

// Recorder appends the subscription_payment ledger record.
type Recorder interface {
	Record(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error)
}

// PaymentVerifier is the external gateway-signature check; the service
// trusts its verdict unconditionally.
type PaymentVerifier interface {
	Verify(orderID, paymentID, signature string) error
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service is the subscription gate plus the verified-payment activation
// path. Fee-waiver eligibility is always computed from the store at the
// instant asked, never cached.
type Service struct {
	pool     TxBeginner
	store    Store
	users    UserLinker
	ledger   Recorder
	verifier PaymentVerifier
	now      func() time.Time
}

func NewService(pool TxBeginner, store Store, users UserLinker, recorder Recorder, verifier PaymentVerifier) *Service {
	return &Service{
		pool:     pool,
		store:    store,
		users:    users,
		ledger:   recorder,
		verifier: verifier,
		now:      time.Now,
	}
}

// EligibleForFeeWaiver reports whether the poster holds a subscription
// active at now.
func (s *Service) EligibleForFeeWaiver(ctx context.Context, posterID uuid.UUID, now time.Time) (bool, error) {
	sub, err := s.store.ActiveAt(ctx, posterID, now)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// Current returns the caller's effective subscription, or nil.
func (s *Service) Current(ctx context.Context, actor models.Actor) (*models.Subscription, error) {
	return s.store.ActiveAt(ctx, actor.ID, s.now())
}

func planTerms(plan string) (price int64, duration time.Duration, err error) {
	switch plan {
	case models.PlanMonthly:
		return models.PlanMonthlyPricePaise, 30 * 24 * time.Hour, nil
	case models.PlanYearly:
		return models.PlanYearlyPricePaise, 365 * 24 * time.Hour, nil
	default:
		return 0, 0, ErrInvalidPlan
	}
}

// Activate consumes a gateway-verified payment and turns it into an active
// subscription. The signature check gates everything: on mismatch no state
// is touched. Activation, user relink, and the payment record share one
// transaction.
func (s *Service) Activate(ctx context.Context, actor models.Actor, plan, orderID, paymentID, signature string) (*models.Subscription, error) {
	if actor.Role != models.RolePoster {
		return nil, ErrPosterOnly
	}
	price, duration, err := planTerms(plan)
	if err != nil {
		return nil, err
	}
	if err := s.verifier.Verify(orderID, paymentID, signature); err != nil {
		return nil, err
	}

	now := s.now()
	sub := &models.Subscription{
		ID:               uuid.New(),
		UserID:           actor.ID,
		PlanType:         plan,
		StartAt:          now,
		EndAt:            now.Add(duration),
		PricePaise:       price,
		IsActive:         true,
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.DeactivatePriorTx(ctx, tx, actor.ID); err != nil {
		return nil, fmt.Errorf("deactivate prior subscriptions: %w", err)
	}
	if err := s.store.InsertTx(ctx, tx, sub); err != nil {
		return nil, err
	}
	if err := s.users.LinkSubscriptionTx(ctx, tx, actor.ID, sub.ID); err != nil {
		return nil, err
	}
	if err := s.users.GrantBadgeTx(ctx, tx, actor.ID, badges.PremiumPoster); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Record(ctx, tx, actor.ID, price, models.TxKindSubscriptionPayment, ledger.Ref{
		SubscriptionID:   &sub.ID,
		Description:      fmt.Sprintf("%s subscription", plan),
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}
