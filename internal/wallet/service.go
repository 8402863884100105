package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/models"
)

// Ledger is the money plumbing the wallet endpoints sit on.
type Ledger interface {
	Deposit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error)
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, kind string, ref ledger.Ref) (*models.Transaction, error)
}

// PaymentVerifier is the external gateway-signature check.
type PaymentVerifier interface {
	Verify(orderID, paymentID, signature string) error
}

// Users resolves the current balance.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service exposes the user-facing wallet operations: gateway-settled
// top-ups, withdrawals, and the balance view. All movements go through
// the ledger so each one leaves a transaction row.
type Service struct {
	pool     TxBeginner
	ledger   Ledger
	users    Users
	verifier PaymentVerifier
}

func NewService(pool TxBeginner, ledg Ledger, users Users, verifier PaymentVerifier) *Service {
	return &Service{pool: pool, ledger: ledg, users: users, verifier: verifier}
}

// Deposit credits the wallet from a gateway-verified payment. The
// signature check gates the credit: on mismatch nothing changes.
func (s *Service) Deposit(ctx context.Context, actor models.Actor, amount int64, orderID, paymentID, signature string) (*models.Transaction, error) {
	if err := s.verifier.Verify(orderID, paymentID, signature); err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.ledger.Deposit(ctx, tx, actor.ID, amount, models.TxKindDeposit, ledger.Ref{
		Description:      "Wallet top-up",
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Withdraw debits the wallet for an external payout request. Fails with
// ledger.ErrInsufficientFunds when the balance does not cover it.
func (s *Service) Withdraw(ctx context.Context, actor models.Actor, amount int64) (*models.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.ledger.Debit(ctx, tx, actor.ID, amount, models.TxKindWithdraw, ledger.Ref{
		Description: fmt.Sprintf("Withdrawal of ₹%.2f", float64(amount)/100),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Balance returns the caller's current wallet balance in paise.
func (s *Service) Balance(ctx context.Context, actor models.Actor) (int64, error) {
	u, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return 0, err
	}
	return u.WalletPaise, nil
}
