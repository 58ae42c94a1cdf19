package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type PlayerStats struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

type GameStatsResponse struct {
	GameID    string        `json:"gameId"`
	LobbyCode string        `json:"lobbyCode"`
	Category  string        `json:"category"`
	Phase     string        `json:"phase"`
	Round     int           `json:"round"`
	BestOf    int           `json:"bestOf"`
	CreatedAt string        `json:"createdAt"`
	EndedAt   *string       `json:"endedAt,omitempty"`
	Players   []PlayerStats `json:"players"`
	UsedItems []string      `json:"usedItems"`
}

type PlayerHistoryResponse struct {
	PlayerID string         `json:"playerId"`
	Games    []HistoryEntry `json:"games"`
}

func handleGameStats(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")

		resp, err := store.GameStats(r.Context(), gameID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handlePlayerHistory(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := chi.URLParam(r, "playerID")

		games, err := store.PlayerHistory(r.Context(), playerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, PlayerHistoryResponse{PlayerID: playerID, Games: games})
	}
}

func handleMyStats(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := userFromRequest(store, r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}

		stats, err := store.UserStats(r.Context(), sess.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
