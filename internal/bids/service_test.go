package bids

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockBidStore struct {
	mu   sync.Mutex
	bids map[uuid.UUID]*models.Bid
}

func newMockBidStore(bs ...*models.Bid) *mockBidStore {
	m := &mockBidStore{bids: make(map[uuid.UUID]*models.Bid)}
	for _, b := range bs {
		cp := *b
		m.bids[b.ID] = &cp
	}
	return m
}

func (m *mockBidStore) Create(_ context.Context, b *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bids {
		if existing.TaskID == b.TaskID && existing.HunterID == b.HunterID {
			return ErrDuplicateBid
		}
	}
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *mockBidStore) GetByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *mockBidStore) Update(_ context.Context, b *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *mockBidStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bids[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.bids, id)
	return nil
}

func (m *mockBidStore) AcceptTx(_ context.Context, _ pgx.Tx, bidID, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[bidID]
	if !ok || b.TaskID != taskID || b.Status != models.BidStatusPending {
		return ErrBidResolved
	}
	b.Status = models.BidStatusAccepted
	return nil
}

func (m *mockBidStore) RejectSiblingsTx(_ context.Context, _ pgx.Tx, taskID, winnerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.TaskID == taskID && b.ID != winnerID && b.Status == models.BidStatusPending {
			b.Status = models.BidStatusRejected
		}
	}
	return nil
}

func (m *mockBidStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Bid
	for _, b := range m.bids {
		if b.TaskID == taskID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockBidStore) ListByHunter(_ context.Context, hunterID uuid.UUID) ([]*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Bid
	for _, b := range m.bids {
		if b.HunterID == hunterID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockBidStore) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bids[id]; ok {
		return b.Status
	}
	return ""
}

// ---

type mockTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMockTaskStore(ts ...*models.Task) *mockTaskStore {
	m := &mockTaskStore{tasks: make(map[uuid.UUID]*models.Task)}
	for _, t := range ts {
		cp := *t
		m.tasks[t.ID] = &cp
	}
	return m
}

func (m *mockTaskStore) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskStore) AssignTx(_ context.Context, _ pgx.Tx, taskID, hunterID uuid.UUID, bidCloseAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return pgx.ErrNoRows
	}
	if t.Status != models.TaskStatusOpen {
		return errors.New("task not open")
	}
	t.AssignedTo = &hunterID
	t.Status = models.TaskStatusInProgress
	t.BidCloseAt = bidCloseAt
	return nil
}

// ---

type mockUsers struct{ users map[uuid.UUID]*models.User }

func (m mockUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockNotifier) Enqueue(_ context.Context, recipient, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, recipient+": "+subject)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func openTask(poster uuid.UUID) *models.Task {
	now := time.Now()
	return &models.Task{
		ID:          uuid.New(),
		Title:       "Open task",
		BudgetPaise: 500_00,
		PostedBy:    poster,
		Status:      models.TaskStatusOpen,
		BidCloseAt:  now.Add(24 * time.Hour),
		DeadlineAt:  now.Add(72 * time.Hour),
	}
}

func pendingBid(taskID, hunterID uuid.UUID, amount int64) *models.Bid {
	return &models.Bid{
		ID:          uuid.New(),
		TaskID:      taskID,
		HunterID:    hunterID,
		AmountPaise: amount,
		Status:      models.BidStatusPending,
	}
}

func newBidService(store *mockBidStore, tasks *mockTaskStore, cfg Config) *Service {
	return NewService(fakePool{}, store, tasks, mockUsers{}, &mockNotifier{}, cfg, nil)
}

// ---------------------------------------------------------------------------
// Place
// ---------------------------------------------------------------------------

func TestPlaceRejectsNonHunter(t *testing.T) {
	task := openTask(uuid.New())
	svc := newBidService(newMockBidStore(), newMockTaskStore(task), Config{})

	_, err := svc.Place(context.Background(), models.Actor{ID: uuid.New(), Role: models.RolePoster}, task.ID, 100_00, "")
	if !errors.Is(err, ErrHunterOnly) {
		t.Fatalf("expected ErrHunterOnly, got %v", err)
	}
}

func TestPlaceRejectsClosedTask(t *testing.T) {
	task := openTask(uuid.New())
	task.Status = models.TaskStatusInProgress
	svc := newBidService(newMockBidStore(), newMockTaskStore(task), Config{})

	_, err := svc.Place(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleHunter}, task.ID, 100_00, "")
	if !errors.Is(err, ErrTaskNotOpen) {
		t.Fatalf("expected ErrTaskNotOpen, got %v", err)
	}
}

func TestPlaceRejectsAfterBidClose(t *testing.T) {
	task := openTask(uuid.New())
	svc := newBidService(newMockBidStore(), newMockTaskStore(task), Config{})
	svc.now = func() time.Time { return task.BidCloseAt.Add(time.Minute) }

	_, err := svc.Place(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleHunter}, task.ID, 100_00, "")
	if !errors.Is(err, ErrBiddingClosed) {
		t.Fatalf("expected ErrBiddingClosed, got %v", err)
	}
}

func TestPlaceRejectsDuplicate(t *testing.T) {
	task := openTask(uuid.New())
	hunter := uuid.New()
	svc := newBidService(newMockBidStore(), newMockTaskStore(task), Config{})
	actor := models.Actor{ID: hunter, Role: models.RoleHunter}

	if _, err := svc.Place(context.Background(), actor, task.ID, 100_00, "first"); err != nil {
		t.Fatalf("first Place: %v", err)
	}
	_, err := svc.Place(context.Background(), actor, task.ID, 90_00, "second")
	if !errors.Is(err, ErrDuplicateBid) {
		t.Fatalf("expected ErrDuplicateBid, got %v", err)
	}
}

func TestPlaceCreatesPendingBid(t *testing.T) {
	task := openTask(uuid.New())
	hunter := uuid.New()
	store := newMockBidStore()
	svc := newBidService(store, newMockTaskStore(task), Config{})

	bid, err := svc.Place(context.Background(), models.Actor{ID: hunter, Role: models.RoleHunter}, task.ID, 250_00, "can do")
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if bid.Status != models.BidStatusPending {
		t.Errorf("bid status: got %q, want pending", bid.Status)
	}
	if got := store.status(bid.ID); got != models.BidStatusPending {
		t.Errorf("stored status: got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolveAcceptsWinnerRejectsSiblings(t *testing.T) {
	poster := uuid.New()
	winner := uuid.New()
	task := openTask(poster)
	winning := pendingBid(task.ID, winner, 300_00)
	losing1 := pendingBid(task.ID, uuid.New(), 280_00)
	losing2 := pendingBid(task.ID, uuid.New(), 350_00)
	store := newMockBidStore(winning, losing1, losing2)
	tasks := newMockTaskStore(task)
	svc := newBidService(store, tasks, Config{})

	got, err := svc.Resolve(context.Background(), models.Actor{ID: poster, Role: models.RolePoster}, task.ID, winning.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != models.BidStatusAccepted {
		t.Errorf("winner status: got %q, want accepted", got.Status)
	}
	if s := store.status(losing1.ID); s != models.BidStatusRejected {
		t.Errorf("sibling 1 status: got %q, want rejected", s)
	}
	if s := store.status(losing2.ID); s != models.BidStatusRejected {
		t.Errorf("sibling 2 status: got %q, want rejected", s)
	}

	after, _ := tasks.GetByID(context.Background(), task.ID)
	if after.Status != models.TaskStatusInProgress {
		t.Errorf("task status: got %q, want in_progress", after.Status)
	}
	if after.AssignedTo == nil || *after.AssignedTo != winner {
		t.Error("task should be assigned to the winning hunter")
	}
}

func TestResolveRejectsNonOwner(t *testing.T) {
	task := openTask(uuid.New())
	bid := pendingBid(task.ID, uuid.New(), 100_00)
	svc := newBidService(newMockBidStore(bid), newMockTaskStore(task), Config{})

	_, err := svc.Resolve(context.Background(), models.Actor{ID: uuid.New(), Role: models.RolePoster}, task.ID, bid.ID)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestResolveRejectsForeignBid(t *testing.T) {
	poster := uuid.New()
	task := openTask(poster)
	otherTask := openTask(poster)
	bid := pendingBid(otherTask.ID, uuid.New(), 100_00)
	svc := newBidService(newMockBidStore(bid), newMockTaskStore(task, otherTask), Config{})

	_, err := svc.Resolve(context.Background(), models.Actor{ID: poster, Role: models.RolePoster}, task.ID, bid.ID)
	if err == nil {
		t.Fatal("expected error for bid on a different task")
	}
}

func TestResolveRejectsAlreadyResolved(t *testing.T) {
	poster := uuid.New()
	task := openTask(poster)
	bid := pendingBid(task.ID, uuid.New(), 100_00)
	bid.Status = models.BidStatusRejected
	svc := newBidService(newMockBidStore(bid), newMockTaskStore(task), Config{})

	_, err := svc.Resolve(context.Background(), models.Actor{ID: poster, Role: models.RolePoster}, task.ID, bid.ID)
	if !errors.Is(err, ErrBidResolved) {
		t.Fatalf("expected ErrBidResolved, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Withdraw / Update
// ---------------------------------------------------------------------------

func TestWithdrawRefusesAcceptedBid(t *testing.T) {
	hunter := uuid.New()
	task := openTask(uuid.New())
	bid := pendingBid(task.ID, hunter, 100_00)
	bid.Status = models.BidStatusAccepted
	svc := newBidService(newMockBidStore(bid), newMockTaskStore(task), Config{})

	err := svc.Withdraw(context.Background(), models.Actor{ID: hunter, Role: models.RoleHunter}, bid.ID)
	if !errors.Is(err, ErrBidAccepted) {
		t.Fatalf("expected ErrBidAccepted, got %v", err)
	}
}

func TestWithdrawAfterCloseFollowsPolicy(t *testing.T) {
	hunter := uuid.New()
	task := openTask(uuid.New())
	bid := pendingBid(task.ID, hunter, 100_00)
	actor := models.Actor{ID: hunter, Role: models.RoleHunter}
	after := func() time.Time { return task.BidCloseAt.Add(time.Hour) }

	// Strict policy: the closed window blocks withdrawal.
	strict := newBidService(newMockBidStore(bid), newMockTaskStore(task), Config{})
	strict.now = after
	if err := strict.Withdraw(context.Background(), actor, bid.ID); !errors.Is(err, ErrBiddingClosed) {
		t.Fatalf("strict: expected ErrBiddingClosed, got %v", err)
	}

	// Loose policy: pending bids stay withdrawable.
	looseStore := newMockBidStore(bid)
	loose := newBidService(looseStore, newMockTaskStore(task), Config{AllowMutationAfterClose: true})
	loose.now = after
	if err := loose.Withdraw(context.Background(), actor, bid.ID); err != nil {
		t.Fatalf("loose: Withdraw: %v", err)
	}
	if got := looseStore.status(bid.ID); got != "" {
		t.Errorf("bid should be gone, still has status %q", got)
	}
}

func TestUpdateChangesAmountWhileOpen(t *testing.T) {
	hunter := uuid.New()
	task := openTask(uuid.New())
	bid := pendingBid(task.ID, hunter, 100_00)
	store := newMockBidStore(bid)
	svc := newBidService(store, newMockTaskStore(task), Config{})

	amount := int64(120_00)
	got, err := svc.Update(context.Background(), models.Actor{ID: hunter, Role: models.RoleHunter}, bid.ID, &amount, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.AmountPaise != 120_00 {
		t.Errorf("amount: got %d, want 12000", got.AmountPaise)
	}
}

func TestUpdateRejectsForeignBid(t *testing.T) {
	task := openTask(uuid.New())
	bid := pendingBid(task.ID, uuid.New(), 100_00)
	svc := newBidService(newMockBidStore(bid), newMockTaskStore(task), Config{})

	amount := int64(90_00)
	_, err := svc.Update(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleHunter}, bid.ID, &amount, nil)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}
