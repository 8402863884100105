package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const ctxTaskPeekKey contextKey = "parsed_task"

// taskPeek is the slice of a create-task body the precheck cares about.
// Stored in context so the handler can read it without re-parsing.
type taskPeek struct {
	BudgetPaise int64     `json:"budget_paise"`
	BidCloseAt  time.Time `json:"bid_close_at"`
	DeadlineAt  time.Time `json:"deadline_at"`
}

// BudgetFromCtx returns the budget parsed by TaskPrecheck, or 0 if not set.
func BudgetFromCtx(ctx context.Context) int64 {
	if p, ok := ctx.Value(ctxTaskPeekKey).(*taskPeek); ok {
		return p.BudgetPaise
	}
	return 0
}

// TaskPrecheck rejects obviously malformed create-task requests before
// they reach the handler: non-positive budget, or a bid window that ends
// after the deadline. Reads the body to peek at those fields, then
// replaces r.Body so the handler can re-read it.
func TaskPrecheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek taskPeek
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.BudgetPaise <= 0 {
				http.Error(w, `{"error":"budget_paise must be > 0"}`, http.StatusBadRequest)
				return
			}
			if !peek.BidCloseAt.IsZero() && !peek.DeadlineAt.IsZero() && !peek.DeadlineAt.After(peek.BidCloseAt) {
				http.Error(w, `{"error":"deadline_at must be after bid_close_at"}`, http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ctxTaskPeekKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
