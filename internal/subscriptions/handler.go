package subscriptions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskbounty/backend/internal/middleware"
	"github.com/taskbounty/backend/internal/models"
	"github.com/taskbounty/backend/internal/payments"
)

// Handler serves the /api/v1/subscriptions endpoints.
type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type activateRequest struct {
	PlanType  string `json:"plan_type"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// Activate handles POST /api/v1/subscriptions — verified payment in,
// active subscription out.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		http.Error(w, `{"error":"missing payment details"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.svc.Activate(r.Context(), actor, req.PlanType, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPlan):
			http.Error(w, `{"error":"plan_type must be monthly or yearly"}`, http.StatusBadRequest)
		case errors.Is(err, ErrPosterOnly):
			http.Error(w, `{"error":"only posters can subscribe"}`, http.StatusForbidden)
		case errors.Is(err, payments.ErrSignatureMismatch):
			http.Error(w, `{"error":"payment verification failed"}`, http.StatusBadRequest)
		default:
			h.log.Error("activate subscription", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type currentResponse struct {
	Active       bool                 `json:"active"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Current handles GET /api/v1/subscriptions/me.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	sub, err := h.svc.Current(r.Context(), actor)
	if err != nil {
		h.log.Error("current subscription", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, currentResponse{Active: sub != nil, Subscription: sub})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
