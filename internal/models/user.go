package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user account can hold. The core treats these as opaque
// capability strings supplied by auth.
const (
	RolePoster = "poster"
	RoleHunter = "hunter"
	RoleAdmin  = "admin"
)

// PlatformAccountID is the system account that collects platform fees.
var PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type User struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone,omitempty"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	Bio                 string     `json:"bio,omitempty"`
	Avatar              string     `json:"avatar,omitempty"`
	IsActive            bool       `json:"is_active"`
	IsSystemAccount     bool       `json:"is_system_account"`
	WalletPaise         int64      `json:"wallet_paise"`
	TotalEarningsPaise  int64      `json:"total_earnings_paise"`
	TotalTasksCompleted int        `json:"total_tasks_completed"`
	SubscriptionID      *uuid.UUID `json:"subscription_id,omitempty"`
	StreakCount         int        `json:"streak_count"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Actor is the authenticated caller of a core operation: identity plus the
// capability string the auth collaborator vouched for.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
