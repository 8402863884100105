package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/taskbounty/backend/internal/models"
)

// stubValidator accepts exactly one token and vouches for one actor.
type stubValidator struct {
	token string
	actor models.Actor
}

func (s stubValidator) ValidateToken(token string) (models.Actor, error) {
	if token != s.token {
		return models.Actor{}, errors.New("bad token")
	}
	return s.actor, nil
}

func TestJWTAuthSetsActor(t *testing.T) {
	actor := models.Actor{ID: uuid.New(), Role: models.RoleHunter}
	mw := JWTAuth(stubValidator{token: "good-token", actor: actor})

	var seen models.Actor
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := ActorFromCtx(r.Context())
		if !ok {
			t.Error("actor missing from context")
		}
		seen = got
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if seen != actor {
		t.Errorf("actor: got %+v, want %+v", seen, actor)
	}
}

func TestJWTAuthRejectsMissingOrBadToken(t *testing.T) {
	mw := JWTAuth(stubValidator{token: "good-token"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc123"},
		{"wrong token", "Bearer forged"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status got %d, want 401", c.name, rec.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	posterOnly := RequireRole(models.RolePoster)(ok)

	serve := func(actor *models.Actor) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if actor != nil {
			req = req.WithContext(WithActor(req.Context(), *actor))
		}
		rec := httptest.NewRecorder()
		posterOnly.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := serve(&models.Actor{ID: uuid.New(), Role: models.RolePoster}); got != http.StatusOK {
		t.Errorf("poster: got %d, want 200", got)
	}
	if got := serve(&models.Actor{ID: uuid.New(), Role: models.RoleHunter}); got != http.StatusForbidden {
		t.Errorf("hunter: got %d, want 403", got)
	}
	// Admins pass every role gate.
	if got := serve(&models.Actor{ID: uuid.New(), Role: models.RoleAdmin}); got != http.StatusOK {
		t.Errorf("admin: got %d, want 200", got)
	}
	// No actor in context at all.
	if got := serve(nil); got != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d, want 401", got)
	}
}
