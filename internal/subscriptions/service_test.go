package subscriptions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/badges"
	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/models"
	"github.com/taskbounty/backend/internal/payments"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockSubStore struct {
	mu   sync.Mutex
	subs []*models.Subscription
}

func (m *mockSubStore) InsertTx(_ context.Context, _ pgx.Tx, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *mockSubStore) ActiveAt(_ context.Context, userID uuid.UUID, t time.Time) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.IsActive && !t.Before(s.StartAt) && t.Before(s.EndAt) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSubStore) DeactivatePriorTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

type mockUserLinker struct {
	mu     sync.Mutex
	linked map[uuid.UUID]uuid.UUID
	badges map[uuid.UUID][]string
}

func newMockUserLinker() *mockUserLinker {
	return &mockUserLinker{linked: make(map[uuid.UUID]uuid.UUID), badges: make(map[uuid.UUID][]string)}
}

func (m *mockUserLinker) LinkSubscriptionTx(_ context.Context, _ pgx.Tx, userID, subID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linked[userID] = subID
	return nil
}

func (m *mockUserLinker) GrantBadgeTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges[userID] = append(m.badges[userID], key)
	return nil
}

type mockRecorder struct {
	mu      sync.Mutex
	entries []*models.Transaction
}

func (m *mockRecorder) Record(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        kind,
		AmountPaise: amount,
		Method:      models.TxMethodGateway,
		Status:      models.TxStatusSuccess,
	}
	m.entries = append(m.entries, t)
	return t, nil
}

// ---------------------------------------------------------------------------

const gatewaySecret = "test_secret"

// signed produces the HMAC the gateway would attach to a real payment.
func signed(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestService() (*Service, *mockSubStore, *mockUserLinker, *mockRecorder) {
	store := &mockSubStore{}
	users := newMockUserLinker()
	rec := &mockRecorder{}
	svc := NewService(fakePool{}, store, users, rec, payments.NewVerifier(gatewaySecret))
	return svc, store, users, rec
}

func TestActivateRejectsInvalidPlan(t *testing.T) {
	svc, _, _, _ := newTestService()
	actor := models.Actor{ID: uuid.New(), Role: models.RolePoster}

	_, err := svc.Activate(context.Background(), actor, "weekly", "o1", "p1", signed("o1", "p1"))
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestActivateRejectsNonPoster(t *testing.T) {
	svc, _, _, _ := newTestService()
	actor := models.Actor{ID: uuid.New(), Role: models.RoleHunter}

	_, err := svc.Activate(context.Background(), actor, models.PlanMonthly, "o1", "p1", signed("o1", "p1"))
	if !errors.Is(err, ErrPosterOnly) {
		t.Fatalf("expected ErrPosterOnly, got %v", err)
	}
}

func TestActivateBadSignatureTouchesNothing(t *testing.T) {
	svc, store, users, rec := newTestService()
	actor := models.Actor{ID: uuid.New(), Role: models.RolePoster}

	_, err := svc.Activate(context.Background(), actor, models.PlanMonthly, "o1", "p1", "forged")
	if !errors.Is(err, payments.ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if len(store.subs) != 0 {
		t.Errorf("expected no subscriptions, got %d", len(store.subs))
	}
	if len(users.linked) != 0 || len(rec.entries) != 0 {
		t.Error("failed activation must not link users or record payments")
	}
}

func TestActivateMonthly(t *testing.T) {
	svc, store, users, rec := newTestService()
	poster := uuid.New()
	actor := models.Actor{ID: poster, Role: models.RolePoster}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	sub, err := svc.Activate(context.Background(), actor, models.PlanMonthly, "order_7", "pay_7", signed("order_7", "pay_7"))
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !sub.IsActive || sub.PlanType != models.PlanMonthly {
		t.Errorf("subscription: active %v plan %q", sub.IsActive, sub.PlanType)
	}
	if want := start.Add(30 * 24 * time.Hour); !sub.EndAt.Equal(want) {
		t.Errorf("end: got %v, want %v", sub.EndAt, want)
	}
	if sub.PricePaise != models.PlanMonthlyPricePaise {
		t.Errorf("price: got %d, want %d", sub.PricePaise, models.PlanMonthlyPricePaise)
	}
	if users.linked[poster] != sub.ID {
		t.Error("user should be linked to the new subscription")
	}
	if bs := users.badges[poster]; len(bs) != 1 || bs[0] != badges.PremiumPoster {
		t.Errorf("badges: %v, want [%s]", bs, badges.PremiumPoster)
	}
	if len(rec.entries) != 1 || rec.entries[0].Kind != models.TxKindSubscriptionPayment {
		t.Fatalf("payment records: %+v", rec.entries)
	}
	if rec.entries[0].AmountPaise != models.PlanMonthlyPricePaise {
		t.Errorf("recorded amount: %d", rec.entries[0].AmountPaise)
	}
	if len(store.subs) != 1 {
		t.Errorf("stored subscriptions: %d", len(store.subs))
	}
}

func TestActivateYearlyReplacesPrior(t *testing.T) {
	svc, store, _, _ := newTestService()
	poster := uuid.New()
	actor := models.Actor{ID: poster, Role: models.RolePoster}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	if _, err := svc.Activate(context.Background(), actor, models.PlanMonthly, "o1", "p1", signed("o1", "p1")); err != nil {
		t.Fatalf("monthly Activate: %v", err)
	}
	yearly, err := svc.Activate(context.Background(), actor, models.PlanYearly, "o2", "p2", signed("o2", "p2"))
	if err != nil {
		t.Fatalf("yearly Activate: %v", err)
	}
	if want := start.Add(365 * 24 * time.Hour); !yearly.EndAt.Equal(want) {
		t.Errorf("yearly end: got %v, want %v", yearly.EndAt, want)
	}

	// Only the new subscription is active.
	active := 0
	for _, s := range store.subs {
		if s.IsActive {
			active++
			if s.ID != yearly.ID {
				t.Error("prior subscription still active")
			}
		}
	}
	if active != 1 {
		t.Errorf("active subscriptions: got %d, want 1", active)
	}
}

func TestEligibleForFeeWaiverWindows(t *testing.T) {
	svc, _, _, _ := newTestService()
	poster := uuid.New()
	actor := models.Actor{ID: poster, Role: models.RolePoster}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	if _, err := svc.Activate(context.Background(), actor, models.PlanMonthly, "o1", "p1", signed("o1", "p1")); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before start", start.Add(-time.Hour), false},
		{"mid term", start.Add(15 * 24 * time.Hour), true},
		{"after expiry", start.Add(31 * 24 * time.Hour), false},
	}
	for _, c := range cases {
		got, err := svc.EligibleForFeeWaiver(context.Background(), poster, c.at)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}

	// A stranger is never eligible.
	got, err := svc.EligibleForFeeWaiver(context.Background(), uuid.New(), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("stranger: %v", err)
	}
	if got {
		t.Error("unsubscribed poster should not be eligible")
	}
}
