package router

import (
	"net/http"

	"github.com/taskbounty/backend/internal/auth"
	"github.com/taskbounty/backend/internal/bids"
	"github.com/taskbounty/backend/internal/categories"
	"github.com/taskbounty/backend/internal/dashboard"
	"github.com/taskbounty/backend/internal/middleware"
	"github.com/taskbounty/backend/internal/models"
	"github.com/taskbounty/backend/internal/subscriptions"
	"github.com/taskbounty/backend/internal/tasks"
	"github.com/taskbounty/backend/internal/wallet"
)

// Handlers bundles every feature handler the router mounts.
type Handlers struct {
	Auth          *auth.Handler
	Tasks         *tasks.Handler
	Bids          *bids.Handler
	Wallet        *wallet.Handler
	Subscriptions *subscriptions.Handler
	Categories    *categories.Handler
	Dashboard     *dashboard.Handler
}

// New returns an http.Handler serving the API under /api/v1.
// Public routes: register, login, task browsing, categories, leaderboard.
// Everything else sits behind JWT auth; role gates follow the operation's
// capability requirement.
func New(h Handlers, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(validator)
	posterOnly := middleware.RequireRole(models.RolePoster)
	hunterOnly := middleware.RequireRole(models.RoleHunter)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	precheck := middleware.TaskPrecheck()

	// Auth
	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	// Tasks
	mux.HandleFunc("GET "+base+"/tasks", h.Tasks.List)
	mux.Handle("POST "+base+"/tasks", authed(posterOnly(precheck(http.HandlerFunc(h.Tasks.Create)))))
	mux.Handle("GET "+base+"/tasks/mine", authed(http.HandlerFunc(h.Tasks.Mine)))
	mux.HandleFunc("GET "+base+"/tasks/{id}", h.Tasks.Get)
	mux.Handle("PATCH "+base+"/tasks/{id}", authed(posterOnly(http.HandlerFunc(h.Tasks.Edit))))
	mux.Handle("DELETE "+base+"/tasks/{id}", authed(posterOnly(http.HandlerFunc(h.Tasks.Delete))))
	mux.Handle("POST "+base+"/tasks/{id}/submissions", authed(hunterOnly(http.HandlerFunc(h.Tasks.Submit))))
	mux.Handle("POST "+base+"/tasks/{id}/review", authed(posterOnly(http.HandlerFunc(h.Tasks.Review))))
	mux.Handle("POST "+base+"/tasks/{id}/decision", authed(posterOnly(http.HandlerFunc(h.Tasks.Decide))))

	// Bids
	mux.Handle("POST "+base+"/tasks/{id}/bids", authed(hunterOnly(http.HandlerFunc(h.Bids.Place))))
	mux.Handle("GET "+base+"/tasks/{id}/bids", authed(http.HandlerFunc(h.Bids.ListForTask)))
	mux.Handle("POST "+base+"/tasks/{id}/bids/accept", authed(posterOnly(http.HandlerFunc(h.Bids.Resolve))))
	mux.Handle("GET "+base+"/bids/mine", authed(hunterOnly(http.HandlerFunc(h.Bids.ListMine))))
	mux.Handle("PATCH "+base+"/bids/{id}", authed(hunterOnly(http.HandlerFunc(h.Bids.Update))))
	mux.Handle("DELETE "+base+"/bids/{id}", authed(http.HandlerFunc(h.Bids.Withdraw)))

	// Wallet
	mux.Handle("GET "+base+"/wallet", authed(http.HandlerFunc(h.Wallet.Balance)))
	mux.Handle("POST "+base+"/wallet/deposit", authed(http.HandlerFunc(h.Wallet.Deposit)))
	mux.Handle("POST "+base+"/wallet/withdraw", authed(http.HandlerFunc(h.Wallet.Withdraw)))

	// Subscriptions
	mux.Handle("POST "+base+"/subscriptions", authed(posterOnly(http.HandlerFunc(h.Subscriptions.Activate))))
	mux.Handle("GET "+base+"/subscriptions/me", authed(http.HandlerFunc(h.Subscriptions.Current)))

	// Categories
	mux.HandleFunc("GET "+base+"/categories", h.Categories.List)
	mux.Handle("POST "+base+"/categories", authed(adminOnly(http.HandlerFunc(h.Categories.Create))))
	mux.Handle("PUT "+base+"/categories/{id}", authed(adminOnly(http.HandlerFunc(h.Categories.Update))))
	mux.Handle("DELETE "+base+"/categories/{id}", authed(adminOnly(http.HandlerFunc(h.Categories.Delete))))

	// Account & dashboard
	mux.Handle("GET "+base+"/account/me", authed(http.HandlerFunc(h.Dashboard.GetMe)))
	mux.Handle("PATCH "+base+"/account/me", authed(http.HandlerFunc(h.Dashboard.UpdateProfile)))
	mux.Handle("GET "+base+"/account/summary", authed(hunterOnly(http.HandlerFunc(h.Dashboard.Summary))))
	mux.Handle("GET "+base+"/transactions", authed(http.HandlerFunc(h.Dashboard.Transactions)))
	mux.HandleFunc("GET "+base+"/leaderboard", h.Dashboard.Leaderboard)

	return mux
}
