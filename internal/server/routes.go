package server

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, db *sql.DB, store Store, rooms *Rooms, broker *Broker, defaultBestOf int) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("LiveCategories API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, db))

	// Lobby browser.
	r.Route("/api/lobbies", func(r chi.Router) {
		r.Get("/", handleListLobbies(store))
		r.Post("/", handleCreateLobby(store, broker, defaultBestOf))
		r.Get("/events", handleLobbyEvents(broker))
		r.Post("/join-random", handleJoinRandom(store, broker, defaultBestOf))
		r.Get("/{code}", handleGetLobby(store))
	})

	// Categories.
	r.Get("/api/categories", handleListCategories(store))
	r.Get("/api/categories/{name}", handleGetCategory(store))

	// Stats.
	r.Get("/api/games/{gameID}/stats", handleGameStats(store))
	r.Get("/api/players/{playerID}/history", handlePlayerHistory(store))
	r.Get("/api/users/me/stats", handleMyStats(store))

	// Accounts.
	r.Post("/api/auth/register", handleRegister(store))
	r.Post("/api/auth/login", handleLogin(store))
	r.Post("/api/auth/logout", handleLogout(store))
	r.Get("/api/auth/me", handleMe(store))

	// Game connection.
	r.Get("/ws/games/{gameID}", handleGameSocket(rooms, store, logger))
}
