package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. platform_fee and task_refund are explicit records so
// the ledger alone accounts for every paisa of a hold.
const (
	TxKindTaskPosting         = "task_posting"
	TxKindTaskPayment         = "task_payment"
	TxKindPlatformFee         = "platform_fee"
	TxKindTaskRefund          = "task_refund"
	TxKindSubscriptionPayment = "subscription_payment"
	TxKindDeposit             = "deposit"
	TxKindWithdraw            = "withdraw"
)

// Settlement methods: wallet-method transactions always accompany a wallet
// balance change; gateway-method ones settle outside the wallet.
const (
	TxMethodWallet  = "wallet"
	TxMethodGateway = "gateway"
)

const (
	TxStatusPending = "pending"
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

// Transaction is immutable once created with status success; corrections
// are new offsetting rows, never edits.
type Transaction struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        uuid.UUID  `json:"account_id"`
	TaskID           *uuid.UUID `json:"task_id,omitempty"`
	SubscriptionID   *uuid.UUID `json:"subscription_id,omitempty"`
	Kind             string     `json:"kind"`
	AmountPaise      int64      `json:"amount_paise"`
	Method           string     `json:"method"`
	Status           string     `json:"status"`
	Description      string     `json:"description,omitempty"`
	GatewayOrderID   string     `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
