package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Plan prices in paise (₹299 and ₹2999).
const (
	PlanMonthlyPricePaise int64 = 299_00
	PlanYearlyPricePaise  int64 = 2999_00
)

type Subscription struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	PlanType         string    `json:"plan_type"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	PricePaise       int64     `json:"price_paise"`
	IsActive         bool      `json:"is_active"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// ActiveAt reports fee-waiver eligibility at the given instant: the active
// flag is set and t falls within [StartAt, EndAt).
func (s *Subscription) ActiveAt(t time.Time) bool {
	return s.IsActive && !t.Before(s.StartAt) && t.Before(s.EndAt)
}
