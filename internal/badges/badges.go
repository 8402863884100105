// Package badges defines the badge catalog and award thresholds.
package badges

// Badge keys. Stored in user_badges; granting is idempotent.
const (
	WelcomeBounty  = "WELCOME_BOUNTY"
	StreakMaster   = "STREAK_MASTER"
	PremiumPoster  = "PREMIUM_POSTER"
	BountyChampion = "BOUNTY_CHAMPION"
)

// ChampionThreshold is the completed-task count that earns BOUNTY_CHAMPION.
const ChampionThreshold = 25

// StreakThreshold is the consecutive-login-day count that earns STREAK_MASTER.
const StreakThreshold = 30

// Badge describes a badge for display.
type Badge struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog lists every badge the platform can award.
var Catalog = []Badge{
	{Key: WelcomeBounty, Name: "Welcome Bounty", Description: "Joined the platform."},
	{Key: StreakMaster, Name: "Streak Master", Description: "30 consecutive days of activity."},
	{Key: PremiumPoster, Name: "Premium Poster", Description: "Active subscription holder."},
	{Key: BountyChampion, Name: "Bounty Champion", Description: "25 tasks completed."},
}
