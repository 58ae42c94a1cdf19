package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func registerUser(t *testing.T, r *chi.Mux, email, password string) (*http.Cookie, MeResponse) {
	t.Helper()
	w := postJSON(t, r, "/api/auth/register", RegisterRequest{
		Email:    email,
		Name:     "Tester",
		Password: password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var me MeResponse
	json.NewDecoder(w.Body).Decode(&me)

	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c, me
		}
	}
	t.Fatal("register did not set a session cookie")
	return nil, me
}

func TestRegisterAndMe(t *testing.T) {
	r, _ := testRouter(t)

	cookie, me := registerUser(t, r, "ana@example.com", "correcthorse")
	if me.Email != "ana@example.com" || me.Name != "Tester" {
		t.Errorf("unexpected register response: %+v", me)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got MeResponse
	json.NewDecoder(w.Body).Decode(&got)
	if got.UserID != me.UserID {
		t.Errorf("expected user %s, got %s", me.UserID, got.UserID)
	}
}

func TestRegisterValidation(t *testing.T) {
	r, _ := testRouter(t)

	tests := []struct {
		name string
		req  RegisterRequest
		code int
	}{
		{"missing email", RegisterRequest{Password: "longenough"}, http.StatusBadRequest},
		{"bad email", RegisterRequest{Email: "not-an-email", Password: "longenough"}, http.StatusBadRequest},
		{"short password", RegisterRequest{Email: "a@b.com", Password: "short"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, r, "/api/auth/register", tt.req)
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r, _ := testRouter(t)

	registerUser(t, r, "dup@example.com", "correcthorse")

	w := postJSON(t, r, "/api/auth/register", RegisterRequest{
		Email:    "dup@example.com",
		Password: "correcthorse",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	r, _ := testRouter(t)

	registerUser(t, r, "login@example.com", "correcthorse")

	w := postJSON(t, r, "/api/auth/login", LoginRequest{
		Email:    "login@example.com",
		Password: "correcthorse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/api/auth/login", LoginRequest{
		Email:    "login@example.com",
		Password: "wrongpassword",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", w.Code)
	}

	w = postJSON(t, r, "/api/auth/login", LoginRequest{
		Email:    "nobody@example.com",
		Password: "correcthorse",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown email, got %d", w.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	r, _ := testRouter(t)

	cookie, _ := registerUser(t, r, "out@example.com", "correcthorse")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestMeRequiresSession(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users/me/stats", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for stats without session, got %d", w.Code)
	}
}

func TestMyStats(t *testing.T) {
	r, _ := testRouter(t)

	cookie, _ := registerUser(t, r, "stats@example.com", "correcthorse")

	req := httptest.NewRequest(http.MethodGet, "/api/users/me/stats", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var stats UserStats
	json.NewDecoder(w.Body).Decode(&stats)
	if stats.TotalGames != 0 || stats.Achievements == nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}
