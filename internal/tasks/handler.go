package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/middleware"
	"github.com/taskbounty/backend/internal/models"
	"github.com/taskbounty/backend/internal/services"
)

// Handler serves the /api/v1/tasks endpoints.
type Handler struct {
	svc       *Service
	validator *services.Validator
	log       *slog.Logger
}

func NewHandler(svc *Service, validator *services.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

type createTaskRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CategoryID  *string   `json:"category_id"`
	BudgetPaise int64     `json:"budget_paise"`
	BidCloseAt  time.Time `json:"bid_close_at"`
	DeadlineAt  time.Time `json:"deadline_at"`
}

// Create handles POST /api/v1/tasks.
// Auth -> Precheck (via middleware) -> Schema validate -> Hold funds -> 201.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if h.validator != nil {
		if err := h.validator.Validate(r.Context(), "task", body); err != nil {
			if errors.Is(err, services.ErrValidation) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			h.log.Error("validate task payload", "error", err)
			http.Error(w, `{"error":"payload validation failed"}`, http.StatusBadRequest)
			return
		}
	}

	var req createTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	var categoryID *uuid.UUID
	if req.CategoryID != nil && *req.CategoryID != "" {
		id, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			http.Error(w, `{"error":"invalid category_id"}`, http.StatusBadRequest)
			return
		}
		categoryID = &id
	}

	task, err := h.svc.Create(r.Context(), actor, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		CategoryID:  categoryID,
		BudgetPaise: req.BudgetPaise,
		BidCloseAt:  req.BidCloseAt,
		DeadlineAt:  req.DeadlineAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPosterOnly):
			http.Error(w, `{"error":"only posters can create tasks"}`, http.StatusForbidden)
		case errors.Is(err, ledger.ErrInsufficientFunds):
			http.Error(w, `{"error":"insufficient wallet balance"}`, http.StatusPaymentRequired)
		default:
			h.log.Error("create task", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /api/v1/tasks/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	task, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get task", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type listTasksResponse struct {
	Tasks []*models.Task `json:"tasks"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
}

// List handles GET /api/v1/tasks with search, category, ending_soon, and
// paging query params.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		Search:     q.Get("search"),
		EndingSoon: q.Get("ending_soon") == "true",
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid category_id"}`, http.StatusBadRequest)
			return
		}
		f.CategoryID = &id
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	tasks, total, err := h.svc.Browse(r.Context(), f)
	if err != nil {
		h.log.Error("list tasks", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if f.Page < 1 {
		f.Page = 1
	}
	writeJSON(w, http.StatusOK, listTasksResponse{Tasks: tasks, Total: total, Page: f.Page})
}

// Mine handles GET /api/v1/tasks/mine.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	tasks, err := h.svc.Mine(r.Context(), actor)
	if err != nil {
		h.log.Error("list own tasks", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type editTaskRequest struct {
	Description *string    `json:"description"`
	BidCloseAt  *time.Time `json:"bid_close_at"`
	DeadlineAt  *time.Time `json:"deadline_at"`
}

// Edit handles PATCH /api/v1/tasks/{id}.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	var req editTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	task, err := h.svc.Edit(r.Context(), actor, id, EditInput{
		Description: req.Description,
		BidCloseAt:  req.BidCloseAt,
		DeadlineAt:  req.DeadlineAt,
	})
	if err != nil {
		h.writeServiceError(w, "edit task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	FileURL string `json:"file_url"`
}

// Submit handles POST /api/v1/tasks/{id}/submissions — the assigned
// hunter's work upload.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.svc.Submit(r.Context(), actor, id, req.FileURL)
	if err != nil {
		h.writeServiceError(w, "submit work", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type decideRequest struct {
	Decision string `json:"decision"`
}

// Decide handles POST /api/v1/tasks/{id}/decision — the poster's review
// verdict, completed or incomplete.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	task, err := h.svc.Decide(r.Context(), actor, id, req.Decision)
	if err != nil {
		h.writeServiceError(w, "decide task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Review handles POST /api/v1/tasks/{id}/review — parks a submitted task
// under review.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	if err := h.svc.MarkUnderReview(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, "mark under review", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.TaskStatusUnderReview})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotAssignee), errors.Is(err, ErrPosterOnly):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrTaskAssigned):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidDecision):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, `{"error":"insufficient wallet balance"}`, http.StatusPaymentRequired)
	default:
		h.log.Error(op, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

// pathID parses the task UUID from the {id} path segment.
func pathID(r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		// Fallback for muxes without pattern params.
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		for i, p := range parts {
			if p == "tasks" && i+1 < len(parts) {
				raw = parts[i+1]
				break
			}
		}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
