package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTaskPrecheckPassesAndRestoresBody(t *testing.T) {
	body := `{"title":"Fix the roof","budget_paise":50000,"bid_close_at":"2026-10-01T12:00:00Z","deadline_at":"2026-10-05T12:00:00Z"}`

	var handlerBody string
	var budget int64
	handler := TaskPrecheck()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read restored body: %v", err)
		}
		handlerBody = string(b)
		budget = BudgetFromCtx(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rec.Code)
	}
	// The handler must see the full original body, not a drained reader.
	if handlerBody != body {
		t.Errorf("restored body: got %q", handlerBody)
	}
	if budget != 50000 {
		t.Errorf("budget from context: got %d, want 50000", budget)
	}
}

func TestTaskPrecheckRejections(t *testing.T) {
	handler := TaskPrecheck()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	cases := []struct {
		name string
		body string
	}{
		{"not JSON", `title=x&budget=5`},
		{"zero budget", `{"budget_paise":0}`},
		{"negative budget", `{"budget_paise":-100}`},
		{"deadline before bid close", `{"budget_paise":100,"bid_close_at":"2026-10-05T12:00:00Z","deadline_at":"2026-10-01T12:00:00Z"}`},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(c.body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want 400", c.name, rec.Code)
		}
	}
}
