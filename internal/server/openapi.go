package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type healthStatus struct {
	Status string `json:"status"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "LiveCategories API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the LiveCategories listing game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]healthStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]healthStatus{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/categories
	listCategories, _ := r.NewOperationContext(http.MethodGet, "/api/categories")
	listCategories.SetSummary("List categories")
	listCategories.SetDescription("Returns all playable categories.")
	listCategories.AddRespStructure(CategoryListResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listCategories)

	// GET /api/categories/{name}
	getCategory, _ := r.NewOperationContext(http.MethodGet, "/api/categories/{name}")
	getCategory.SetSummary("Get category")
	getCategory.SetDescription("Returns a category and its full item list.")
	getCategory.AddRespStructure(CategoryDetailResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getCategory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getCategory)

	// POST /api/lobbies
	createLobbyOp, _ := r.NewOperationContext(http.MethodPost, "/api/lobbies")
	createLobbyOp.SetSummary("Create lobby")
	createLobbyOp.SetDescription("Creates a new lobby for a category and returns its join code.")
	createLobbyOp.AddReqStructure(CreateLobbyRequest{})
	createLobbyOp.AddRespStructure(LobbyResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createLobbyOp.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createLobbyOp)

	// GET /api/lobbies
	listLobbies, _ := r.NewOperationContext(http.MethodGet, "/api/lobbies")
	listLobbies.SetSummary("List open lobbies")
	listLobbies.SetDescription("Returns lobbies waiting for an opponent, optionally filtered by category.")
	listLobbies.AddRespStructure(LobbyListResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listLobbies)

	// GET /api/lobbies/{code}
	getLobby, _ := r.NewOperationContext(http.MethodGet, "/api/lobbies/{code}")
	getLobby.SetSummary("Look up lobby")
	getLobby.SetDescription("Look up a lobby by its join code before connecting.")
	getLobby.AddRespStructure(LobbyResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getLobby.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getLobby)

	// POST /api/lobbies/join-random
	joinRandom, _ := r.NewOperationContext(http.MethodPost, "/api/lobbies/join-random")
	joinRandom.SetSummary("Join random lobby")
	joinRandom.SetDescription("Joins an open lobby in the category, or creates one if none is waiting.")
	joinRandom.AddReqStructure(JoinRandomRequest{})
	joinRandom.AddRespStructure(LobbyResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	joinRandom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(joinRandom)

	// GET /api/lobbies/events
	lobbyEvents, _ := r.NewOperationContext(http.MethodGet, "/api/lobbies/events")
	lobbyEvents.SetSummary("Lobby event stream")
	lobbyEvents.SetDescription("Server-Sent Events stream of lobby browser updates.")
	lobbyEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(lobbyEvents)

	// GET /ws/games/{gameID}
	gameSocket, _ := r.NewOperationContext(http.MethodGet, "/ws/games/{gameID}")
	gameSocket.SetSummary("Game WebSocket")
	gameSocket.SetDescription("Upgrades to the game connection. Pass playerId and name as query parameters.")
	gameSocket.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	gameSocket.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(gameSocket)

	// GET /api/games/{gameID}/stats
	gameStats, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/stats")
	gameStats.SetSummary("Game statistics")
	gameStats.SetDescription("Returns the full record of a match, live or finished.")
	gameStats.AddRespStructure(GameStatsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	gameStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(gameStats)

	// GET /api/players/{playerID}/history
	playerHistory, _ := r.NewOperationContext(http.MethodGet, "/api/players/{playerID}/history")
	playerHistory.SetSummary("Player history")
	playerHistory.SetDescription("Returns finished matches for a player id, newest first.")
	playerHistory.AddRespStructure(PlayerHistoryResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(playerHistory)

	// POST /api/auth/register
	register, _ := r.NewOperationContext(http.MethodPost, "/api/auth/register")
	register.SetSummary("Register account")
	register.SetDescription("Creates an account and signs in. Sets session cookie.")
	register.AddReqStructure(RegisterRequest{})
	register.AddRespStructure(MeResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	register.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	register.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(register)

	// POST /api/auth/login
	login, _ := r.NewOperationContext(http.MethodPost, "/api/auth/login")
	login.SetSummary("Log in")
	login.SetDescription("Authenticate with email and password. Sets session cookie.")
	login.AddReqStructure(LoginRequest{})
	login.AddRespStructure(MeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	login.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(login)

	// POST /api/auth/logout
	logout, _ := r.NewOperationContext(http.MethodPost, "/api/auth/logout")
	logout.SetSummary("Log out")
	logout.SetDescription("Clears the session and cookie.")
	logout.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(logout)

	// GET /api/auth/me
	me, _ := r.NewOperationContext(http.MethodGet, "/api/auth/me")
	me.SetSummary("Current user")
	me.SetDescription("Returns the signed-in user. Requires session cookie.")
	me.AddRespStructure(MeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	me.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(me)

	// GET /api/users/me/stats
	myStats, _ := r.NewOperationContext(http.MethodGet, "/api/users/me/stats")
	myStats.SetSummary("My stats")
	myStats.SetDescription("Returns lifetime stats, streaks, and achievements for the signed-in user.")
	myStats.AddRespStructure(UserStats{}, openapi.WithHTTPStatus(http.StatusOK))
	myStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(myStats)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
