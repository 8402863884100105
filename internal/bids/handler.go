package bids

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskbounty/backend/internal/middleware"
	"github.com/taskbounty/backend/internal/services"
)

// Handler serves the bid endpoints under /api/v1/tasks/{id}/bids and
// /api/v1/bids.
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

type placeBidRequest struct {
	AmountPaise int64  `json:"amount_paise"`
	Comment     string `json:"comment"`
}

// Place handles POST /api/v1/tasks/{id}/bids.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if h.validator != nil {
		if err := h.validator.Validate(r.Context(), "bid", body); err != nil {
			if errors.Is(err, services.ErrValidation) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			h.log.Error("validate bid payload", "error", err)
			http.Error(w, `{"error":"payload validation failed"}`, http.StatusBadRequest)
			return
		}
	}
	var req placeBidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	bid, err := h.svc.Place(r.Context(), actor, taskID, req.AmountPaise, req.Comment)
	if err != nil {
		h.writeServiceError(w, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// ListForTask handles GET /api/v1/tasks/{id}/bids.
func (h *Handler) ListForTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	bids, err := h.svc.ListForTask(r.Context(), taskID)
	if err != nil {
		h.log.Error("list bids", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// ListMine handles GET /api/v1/bids/mine.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	bids, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		h.log.Error("list own bids", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

type updateBidRequest struct {
	AmountPaise *int64  `json:"amount_paise"`
	Comment     *string `json:"comment"`
}

// Update handles PATCH /api/v1/bids/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	bidID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid bid id"}`, http.StatusBadRequest)
		return
	}
	var req updateBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	bid, err := h.svc.Update(r.Context(), actor, bidID, req.AmountPaise, req.Comment)
	if err != nil {
		h.writeServiceError(w, "update bid", err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// Withdraw handles DELETE /api/v1/bids/{id}.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	bidID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid bid id"}`, http.StatusBadRequest)
		return
	}
	if err := h.svc.Withdraw(r.Context(), actor, bidID); err != nil {
		h.writeServiceError(w, "withdraw bid", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resolveRequest struct {
	BidID string `json:"bid_id"`
}

// Resolve handles POST /api/v1/tasks/{id}/bids/accept — the poster picks
// the winning bid.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	bidID, err := uuid.Parse(req.BidID)
	if err != nil {
		http.Error(w, `{"error":"invalid bid_id"}`, http.StatusBadRequest)
		return
	}
	bid, err := h.svc.Resolve(r.Context(), actor, taskID, bidID)
	if err != nil {
		h.writeServiceError(w, "resolve bids", err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrHunterOnly), errors.Is(err, ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrDuplicateBid), errors.Is(err, ErrBidResolved),
		errors.Is(err, ErrBidAccepted), errors.Is(err, ErrTaskNotOpen),
		errors.Is(err, ErrBiddingClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.log.Error(op, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

// pathUUID parses a UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
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
