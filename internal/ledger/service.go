package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/models"
)

// ErrInsufficientFunds is returned when a debit would take a wallet below
// zero. The wallet is left unchanged.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Filter narrows and orders a transaction history query.
type Filter struct {
	AccountID *uuid.UUID
	Kind      string
	Status    string
	Search    string
	SortBy    string // created_at (default) | amount | kind | status
	Ascending bool
}

// Ref carries the optional references and settlement details a ledger
// entry records alongside the amount.
type Ref struct {
	TaskID           *uuid.UUID
	SubscriptionID   *uuid.UUID
	Description      string
	GatewayOrderID   string
	GatewayPaymentID string
}

// Store is the minimal persistence interface the ledger service needs.
type Store interface {
	DebitWallet(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
	CreditWallet(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
	InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	Transactions(ctx context.Context, f Filter) iter.Seq2[*models.Transaction, error]
	TaskHold(ctx context.Context, taskID uuid.UUID) (int64, error)
}

// Service couples every wallet balance change to exactly one transaction
// record. Debit/Credit/Record run inside the caller's pgx.Tx so a failure
// anywhere rolls back both the balance write and the ledger row.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Debit decreases the account's wallet by amount and appends a success
// transaction, or fails with ErrInsufficientFunds leaving no trace.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref Ref) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	if err := s.store.DebitWallet(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	return s.append(ctx, tx, accountID, amount, kind, models.TxMethodWallet, ref)
}

// Credit increases the account's wallet by amount and appends a success
// transaction. Always succeeds for positive amounts on existing accounts.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref Ref) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if err := s.store.CreditWallet(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	return s.append(ctx, tx, accountID, amount, kind, models.TxMethodWallet, ref)
}

// Deposit credits the wallet from an externally settled payment; the
// transaction records the gateway settlement details.
func (s *Service) Deposit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref Ref) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	if err := s.store.CreditWallet(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	return s.append(ctx, tx, accountID, amount, kind, models.TxMethodGateway, ref)
}

// Record appends a gateway-settled transaction that moves no wallet money
// (e.g. a subscription payment collected by the gateway).
func (s *Service) Record(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref Ref) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("recorded amount must be positive, got %d", amount)
	}
	return s.append(ctx, tx, accountID, amount, kind, models.TxMethodGateway, ref)
}

func (s *Service) append(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind, method string, ref Ref) (*models.Transaction, error) {
	t := &models.Transaction{
		ID:               uuid.New(),
		AccountID:        accountID,
		TaskID:           ref.TaskID,
		SubscriptionID:   ref.SubscriptionID,
		Kind:             kind,
		AmountPaise:      amount,
		Method:           method,
		Status:           models.TxStatusSuccess,
		Description:      ref.Description,
		GatewayOrderID:   ref.GatewayOrderID,
		GatewayPaymentID: ref.GatewayPaymentID,
	}
	if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// History produces a lazy, finite, restartable sequence of transactions
// matching the filter. Ranging over it again restarts the query.
func (s *Service) History(ctx context.Context, f Filter) iter.Seq2[*models.Transaction, error] {
	return s.store.Transactions(ctx, f)
}

// TaskHold reports the amount held for a task at posting time.
func (s *Service) TaskHold(ctx context.Context, taskID uuid.UUID) (int64, error) {
	return s.store.TaskHold(ctx, taskID)
}
