package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/middleware"
	"github.com/taskbounty/backend/internal/models"
	"github.com/taskbounty/backend/internal/repository"
)

// UserStore is the user persistence the dashboard needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
	Badges(ctx context.Context, userID uuid.UUID) ([]string, error)
	Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error)
}

// BidCounter summarizes a hunter's bids per status.
type BidCounter interface {
	CountByHunter(ctx context.Context, hunterID uuid.UUID) (map[string]int, error)
}

// TaskCounter counts a hunter's assigned tasks per status.
type TaskCounter interface {
	CountByAssigneeStatus(ctx context.Context, hunterID uuid.UUID, status string) (int, error)
}

// Handler serves the account, leaderboard, and history endpoints.
type Handler struct {
	users  UserStore
	bids   BidCounter
	tasks  TaskCounter
	ledger *ledger.Service
	log    *slog.Logger
}

func NewHandler(users UserStore, bids BidCounter, tasks TaskCounter, ledg *ledger.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, bids: bids, tasks: tasks, ledger: ledg, log: log}
}

type profileResponse struct {
	*models.User
	Badges []string `json:"badges"`
}

// GetMe handles GET /api/v1/account/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	u, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	keys, err := h.users.Badges(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("load badges", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{User: u, Badges: keys})
}

type updateProfileRequest struct {
	Name   *string `json:"name"`
	Phone  *string `json:"phone"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

// UpdateProfile handles PATCH /api/v1/account/me.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	u, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	if req.Bio != nil {
		u.Bio = *req.Bio
	}
	if req.Avatar != nil {
		u.Avatar = *req.Avatar
	}
	if err := h.users.UpdateProfile(r.Context(), u); err != nil {
		h.log.Error("update profile", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Leaderboard handles GET /api/v1/leaderboard — top hunters by completed
// tasks. Public.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	entries, err := h.users.Leaderboard(r.Context(), limit)
	if err != nil {
		h.log.Error("leaderboard", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type summaryResponse struct {
	TotalEarningsPaise  int64          `json:"total_earnings_paise"`
	TotalTasksCompleted int            `json:"total_tasks_completed"`
	TasksInProgress     int            `json:"tasks_in_progress"`
	StreakCount         int            `json:"streak_count"`
	Bids                map[string]int `json:"bids"`
}

// Summary handles GET /api/v1/account/summary — the hunter's work and
// bid counters in one view.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	u, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	bidCounts, err := h.bids.CountByHunter(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("summary: bid counts", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	inProgress, err := h.tasks.CountByAssigneeStatus(r.Context(), actor.ID, models.TaskStatusInProgress)
	if err != nil {
		h.log.Error("summary: task counts", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalEarningsPaise:  u.TotalEarningsPaise,
		TotalTasksCompleted: u.TotalTasksCompleted,
		TasksInProgress:     inProgress,
		StreakCount:         u.StreakCount,
		Bids:                bidCounts,
	})
}

// Transactions handles GET /api/v1/transactions — the caller's ledger
// history with kind/status/search/sort query params.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	f := ledger.Filter{
		AccountID: &actor.ID,
		Kind:      q.Get("kind"),
		Status:    q.Get("status"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		Ascending: q.Get("order") == "asc",
	}

	var out []*models.Transaction
	for t, err := range h.ledger.History(r.Context(), f) {
		if err != nil {
			h.log.Error("transaction history", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		out = append(out, t)
	}
	if out == nil {
		out = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
