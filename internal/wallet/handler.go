package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskbounty/backend/internal/ledger"
	"github.com/taskbounty/backend/internal/middleware"
	"github.com/taskbounty/backend/internal/payments"
)

// Handler serves the /api/v1/wallet endpoints.
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

type depositRequest struct {
	AmountPaise int64  `json:"amount_paise"`
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	Signature   string `json:"signature"`
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		http.Error(w, `{"error":"missing payment details"}`, http.StatusBadRequest)
		return
	}
	t, err := h.svc.Deposit(r.Context(), actor, req.AmountPaise, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		if errors.Is(err, payments.ErrSignatureMismatch) {
			http.Error(w, `{"error":"payment verification failed"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("wallet deposit", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type withdrawRequest struct {
	AmountPaise int64 `json:"amount_paise"`
}

// Withdraw handles POST /api/v1/wallet/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	t, err := h.svc.Withdraw(r.Context(), actor, req.AmountPaise)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			http.Error(w, `{"error":"insufficient wallet balance"}`, http.StatusPaymentRequired)
			return
		}
		h.log.Error("wallet withdraw", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Balance handles GET /api/v1/wallet.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.svc.Balance(r.Context(), actor)
	if err != nil {
		h.log.Error("wallet balance", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"wallet_paise": balance})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
