package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/listparty/livecategories/internal/game"
)

var testGameRules = game.Rules{
	BiddingTime: 30 * time.Second,
	ListingTime: 120 * time.Second,
	SummaryTime: 10 * time.Second,
	ShotClock:   5 * time.Second,
}

func testRouter(t *testing.T) (*chi.Mux, *SQLiteStore) {
	t.Helper()
	store := setupStore(t)
	broker := NewBroker()

	rooms := NewRooms(context.Background(), store, broker, clockwork.NewFakeClock(), slog.Default(), testGameRules)
	t.Cleanup(rooms.Close)

	r := chi.NewRouter()
	addRoutes(r, slog.Default(), store.db, store, rooms, broker, 5)
	return r, store
}

func postJSON(t *testing.T, r *chi.Mux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateLobby(t *testing.T) {
	r, _ := testRouter(t)

	w := postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "fruits"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp LobbyResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if len(resp.LobbyCode) != 6 {
		t.Errorf("expected 6-char lobby code, got %q", resp.LobbyCode)
	}
	if resp.Category != "fruits" || resp.BestOf != 5 || resp.Phase != "lobby" {
		t.Errorf("unexpected lobby: %+v", resp)
	}
	if len(resp.Players) != 0 {
		t.Errorf("new lobby should have no players, got %d", len(resp.Players))
	}
}

func TestCreateLobbyValidation(t *testing.T) {
	r, _ := testRouter(t)

	tests := []struct {
		name string
		req  CreateLobbyRequest
	}{
		{"unknown category", CreateLobbyRequest{Category: "vegetables"}},
		{"missing category", CreateLobbyRequest{}},
		{"even best of", CreateLobbyRequest{Category: "fruits", BestOf: 4}},
		{"negative best of", CreateLobbyRequest{Category: "fruits", BestOf: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, r, "/api/lobbies", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateLobbyRejectsOversizedBody(t *testing.T) {
	r, _ := testRouter(t)

	body := append([]byte(`{"category":"`), bytes.Repeat([]byte("x"), maxBodyBytes+1)...)
	body = append(body, `"}`...)
	req := httptest.NewRequest(http.MethodPost, "/api/lobbies", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized body, got %d", w.Code)
	}
}

func TestGetLobbyByCode(t *testing.T) {
	r, _ := testRouter(t)

	w := postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "animals", BestOf: 3})
	var created LobbyResponse
	json.NewDecoder(w.Body).Decode(&created)

	req := httptest.NewRequest(http.MethodGet, "/api/lobbies/"+created.LobbyCode, nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
	var resp LobbyResponse
	json.NewDecoder(w2.Body).Decode(&resp)
	if resp.GameID != created.GameID || resp.BestOf != 3 {
		t.Errorf("unexpected lobby: %+v", resp)
	}
}

func TestGetLobbyNotFound(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/lobbies/ZZZZZZ", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListLobbiesFiltersByCategory(t *testing.T) {
	r, _ := testRouter(t)

	postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "fruits"})
	postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "fruits"})
	postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "animals"})

	req := httptest.NewRequest(http.MethodGet, "/api/lobbies?category=fruits", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp LobbyListResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Lobbies) != 2 {
		t.Errorf("expected 2 fruit lobbies, got %d", len(resp.Lobbies))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/lobbies", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Lobbies) != 3 {
		t.Errorf("expected 3 lobbies without filter, got %d", len(resp.Lobbies))
	}
}

func TestJoinRandomCreatesWhenNoneWaiting(t *testing.T) {
	r, _ := testRouter(t)

	w := postJSON(t, r, "/api/lobbies/join-random", JoinRandomRequest{Category: "fruits"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp LobbyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Action != "created_new" {
		t.Errorf("expected created_new, got %q", resp.Action)
	}
}

func TestJoinRandomPrefersWaitingLobby(t *testing.T) {
	r, store := testRouter(t)

	w := postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "fruits"})
	var created LobbyResponse
	json.NewDecoder(w.Body).Decode(&created)

	// Seat one player so the lobby counts as waiting.
	err := store.AddPlayer(context.Background(), PlayerRecord{
		ID: "p1", GameID: created.GameID, Name: "Ana", Connected: true,
	})
	if err != nil {
		t.Fatalf("add player: %v", err)
	}

	w = postJSON(t, r, "/api/lobbies/join-random", JoinRandomRequest{Category: "fruits"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp LobbyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Action != "joined_existing" {
		t.Errorf("expected joined_existing, got %q", resp.Action)
	}
	if resp.GameID != created.GameID {
		t.Errorf("expected lobby %s, got %s", created.GameID, resp.GameID)
	}
	if len(resp.Players) != 1 {
		t.Errorf("expected 1 seated player, got %d", len(resp.Players))
	}
}

func TestListCategories(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp CategoryListResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Categories) != 4 {
		t.Errorf("expected 4 categories, got %d", len(resp.Categories))
	}
}

func TestGetCategoryItems(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/categories/animals", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp CategoryDetailResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Name != "animals" || resp.ItemCount == 0 || len(resp.Items) != resp.ItemCount {
		t.Errorf("unexpected category: name=%q count=%d items=%d", resp.Name, resp.ItemCount, len(resp.Items))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/categories/vegetables", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown category, got %d", w.Code)
	}
}

func TestGameStatsEndpoint(t *testing.T) {
	r, store := testRouter(t)

	w := postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "fruits"})
	var created LobbyResponse
	json.NewDecoder(w.Body).Decode(&created)

	err := store.AddPlayer(context.Background(), PlayerRecord{
		ID: "p1", GameID: created.GameID, Name: "Ana", Connected: true, Score: 2,
	})
	if err != nil {
		t.Fatalf("add player: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/games/"+created.GameID+"/stats", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	var resp GameStatsResponse
	json.NewDecoder(w2.Body).Decode(&resp)
	if resp.GameID != created.GameID || len(resp.Players) != 1 || resp.Players[0].Score != 2 {
		t.Errorf("unexpected stats: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/games/nope/stats", nil)
	w2 = httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown game, got %d", w2.Code)
	}
}
