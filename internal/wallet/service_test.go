package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/models"
	"github.com/taskbounty/backend/internal/payments"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	entries  []*models.Transaction
}

func (m *mockLedger) Deposit(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] += amount
	t := &models.Transaction{ID: uuid.New(), AccountID: accountID, Kind: kind, AmountPaise: amount, Method: models.TxMethodGateway}
	m.entries = append(m.entries, t)
	return t, nil
}

func (m *mockLedger) Debit(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[accountID] < amount {
		return nil, ledger.ErrInsufficientFunds
	}
	m.balances[accountID] -= amount
	t := &models.Transaction{ID: uuid.New(), AccountID: accountID, Kind: kind, AmountPaise: amount, Method: models.TxMethodWallet}
	m.entries = append(m.entries, t)
	return t, nil
}

type mockUsers struct{ users map[uuid.UUID]*models.User }

func (m mockUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

const gatewaySecret = "test_secret"

func signed(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func newWalletService(balances map[uuid.UUID]int64) (*Service, *mockLedger) {
	if balances == nil {
		balances = make(map[uuid.UUID]int64)
	}
	ledg := &mockLedger{balances: balances}
	svc := NewService(fakePool{}, ledg, mockUsers{}, payments.NewVerifier(gatewaySecret))
	return svc, ledg
}

func TestDepositVerifiedPayment(t *testing.T) {
	account := uuid.New()
	svc, ledg := newWalletService(map[uuid.UUID]int64{account: 0})
	actor := models.Actor{ID: account, Role: models.RolePoster}

	tx, err := svc.Deposit(context.Background(), actor, 500_00, "order_1", "pay_1", signed("order_1", "pay_1"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if tx.Kind != models.TxKindDeposit || tx.Method != models.TxMethodGateway {
		t.Errorf("entry: kind %q method %q", tx.Kind, tx.Method)
	}
	if got := ledg.balances[account]; got != 500_00 {
		t.Errorf("balance: got %d, want 50000", got)
	}
}

func TestDepositBadSignatureCreditsNothing(t *testing.T) {
	account := uuid.New()
	svc, ledg := newWalletService(map[uuid.UUID]int64{account: 0})
	actor := models.Actor{ID: account, Role: models.RolePoster}

	_, err := svc.Deposit(context.Background(), actor, 500_00, "order_1", "pay_1", "forged")
	if !errors.Is(err, payments.ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if got := ledg.balances[account]; got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
	if len(ledg.entries) != 0 {
		t.Errorf("expected no entries, got %d", len(ledg.entries))
	}
}

func TestWithdraw(t *testing.T) {
	account := uuid.New()
	svc, ledg := newWalletService(map[uuid.UUID]int64{account: 300_00})
	actor := models.Actor{ID: account, Role: models.RoleHunter}

	tx, err := svc.Withdraw(context.Background(), actor, 200_00)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if tx.Kind != models.TxKindWithdraw {
		t.Errorf("kind: got %q", tx.Kind)
	}
	if got := ledg.balances[account]; got != 100_00 {
		t.Errorf("balance: got %d, want 10000", got)
	}

	// Overdraw fails and moves nothing.
	if _, err := svc.Withdraw(context.Background(), actor, 500_00); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := ledg.balances[account]; got != 100_00 {
		t.Errorf("balance after failed withdraw: got %d, want 10000", got)
	}
}
