package server

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/listparty/livecategories/internal/game"
)

type CreateLobbyRequest struct {
	Category string `json:"category"`
	BestOf   int    `json:"bestOf,omitempty"`
}

type JoinRandomRequest struct {
	Category string `json:"category"`
}

type LobbyResponse struct {
	GameID    string       `json:"gameId"`
	LobbyCode string       `json:"lobbyCode"`
	Category  string       `json:"category"`
	BestOf    int          `json:"bestOf"`
	Phase     string       `json:"phase"`
	Round     int          `json:"round"`
	Players   []PlayerView `json:"players"`
	// Action is only set by join-random: "joined_existing" or "created_new".
	Action string `json:"action,omitempty"`
}

type LobbyListResponse struct {
	Lobbies []LobbyResponse `json:"lobbies"`
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateLobbyCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

func lobbyResponse(g GameRecord, players []PlayerRecord) LobbyResponse {
	resp := LobbyResponse{
		GameID:    g.ID,
		LobbyCode: g.LobbyCode,
		Category:  g.Category,
		BestOf:    g.BestOf,
		Phase:     g.Phase,
		Round:     g.Round,
		Players:   []PlayerView{},
	}
	for _, p := range players {
		resp.Players = append(resp.Players, PlayerView{ID: p.ID, Name: p.Name, Connected: p.Connected})
	}
	return resp
}

func createLobby(r *http.Request, store Store, broker *Broker, category string, bestOf int) (LobbyResponse, int, string) {
	if _, err := store.CategoryItems(r.Context(), category); err != nil {
		if errors.Is(err, ErrNotFound) {
			return LobbyResponse{}, http.StatusBadRequest, "unknown category"
		}
		return LobbyResponse{}, http.StatusInternalServerError, "internal error"
	}
	if bestOf < 1 || bestOf%2 == 0 {
		return LobbyResponse{}, http.StatusBadRequest, "bestOf must be a positive odd number"
	}

	// Codes collide rarely; just regenerate until free.
	var code string
	for {
		c, err := generateLobbyCode()
		if err != nil {
			return LobbyResponse{}, http.StatusInternalServerError, "failed to generate code"
		}
		_, err = store.GameByCode(r.Context(), c)
		if errors.Is(err, ErrNotFound) {
			code = c
			break
		}
		if err != nil {
			return LobbyResponse{}, http.StatusInternalServerError, "internal error"
		}
	}

	g := GameRecord{
		ID:        uuid.NewString(),
		LobbyCode: code,
		Category:  category,
		BestOf:    bestOf,
		Phase:     string(game.PhaseLobby),
	}
	if err := store.CreateGame(r.Context(), g); err != nil {
		return LobbyResponse{}, http.StatusInternalServerError, "internal error"
	}

	broker.Publish(lobbyTopic, LobbyEvent{
		Type:      "created",
		GameID:    g.ID,
		LobbyCode: g.LobbyCode,
		Category:  g.Category,
	})
	return lobbyResponse(g, nil), 0, ""
}

func handleCreateLobby(store Store, broker *Broker, defaultBestOf int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLobbyRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Category == "" {
			writeError(w, http.StatusBadRequest, "category is required")
			return
		}
		if req.BestOf == 0 {
			req.BestOf = defaultBestOf
		}

		resp, status, msg := createLobby(r, store, broker, req.Category, req.BestOf)
		if status != 0 {
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func handleGetLobby(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		g, err := store.GameByCode(r.Context(), code)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		players, err := store.GamePlayers(r.Context(), g.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, lobbyResponse(g, players))
	}
}

func handleListLobbies(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")

		games, err := store.OpenLobbies(r.Context(), category)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := LobbyListResponse{Lobbies: []LobbyResponse{}}
		for _, g := range games {
			players, err := store.GamePlayers(r.Context(), g.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			resp.Lobbies = append(resp.Lobbies, lobbyResponse(g, players))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleJoinRandom(store Store, broker *Broker, defaultBestOf int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRandomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Category == "" {
			writeError(w, http.StatusBadRequest, "category is required")
			return
		}

		g, err := store.OpenLobbyWithPlayers(r.Context(), req.Category)
		if err == nil {
			players, err := store.GamePlayers(r.Context(), g.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			resp := lobbyResponse(g, players)
			resp.Action = "joined_existing"
			writeJSON(w, http.StatusOK, resp)
			return
		}
		if !errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp, status, msg := createLobby(r, store, broker, req.Category, defaultBestOf)
		if status != 0 {
			writeError(w, status, msg)
			return
		}
		resp.Action = "created_new"
		writeJSON(w, http.StatusOK, resp)
	}
}
