package server

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// GameRecord is the persisted form of a match, one row in games.
type GameRecord struct {
	ID           string
	LobbyCode    string
	Category     string
	BestOf       int
	Phase        string
	Round        int
	HighBid      int
	HighBidderID string
	ListerID     string
	ListCount    int
	PhaseEndsAt  *string
	CreatedAt    string
	EndedAt      *string
}

type PlayerRecord struct {
	ID        string
	GameID    string
	UserID    string
	Name      string
	Connected bool
	Score     int
	JoinedAt  string
}

type Category struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

type UserRecord struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    string
	LastLogin    *string
}

type userSession struct {
	UserID string
	Email  string
	Name   string
}

// ResultEntry is one player's outcome in a finished match.
type ResultEntry struct {
	PlayerID string
	UserID   string
	Score    int
	Won      bool
	// BestBidWon is the highest bid this player won a round with as the
	// lister, 0 if none. Feeds the bid_master achievement.
	BestBidWon int
	// PerfectList is set when the player hit a bid exactly at least once.
	PerfectList bool
}

// MatchResult is everything FinishMatch persists in one transaction.
type MatchResult struct {
	GameID   string
	Category string
	Entries  []ResultEntry
}

type HistoryEntry struct {
	GameID     string `json:"gameId"`
	Category   string `json:"category"`
	Score      int    `json:"score"`
	Won        bool   `json:"won"`
	FinishedAt string `json:"finishedAt"`
}

type Achievement struct {
	Code     string `json:"code"`
	EarnedAt string `json:"earnedAt"`
}

type UserStats struct {
	TotalGames       int           `json:"totalGames"`
	GamesWon         int           `json:"gamesWon"`
	TotalScore       int           `json:"totalScore"`
	CurrentStreak    int           `json:"currentStreak"`
	LongestStreak    int           `json:"longestStreak"`
	FavoriteCategory string        `json:"favoriteCategory,omitempty"`
	Achievements     []Achievement `json:"achievements"`
}

type Store interface {
	// Categories.
	Categories(ctx context.Context) ([]Category, error)
	CategoryItems(ctx context.Context, name string) ([]string, error)

	// Lobby / match rows.
	CreateGame(ctx context.Context, g GameRecord) error
	GameByID(ctx context.Context, id string) (GameRecord, error)
	GameByCode(ctx context.Context, code string) (GameRecord, error)
	OpenLobbies(ctx context.Context, category string) ([]GameRecord, error)
	OpenLobbyWithPlayers(ctx context.Context, category string) (GameRecord, error)
	SaveGameState(ctx context.Context, g GameRecord) error

	// Players.
	AddPlayer(ctx context.Context, p PlayerRecord) error
	GamePlayers(ctx context.Context, gameID string) ([]PlayerRecord, error)
	SetPlayerConnected(ctx context.Context, playerID string, connected bool) error
	UpdateScores(ctx context.Context, gameID string, scores map[string]int) error

	// Listing-phase bookkeeping.
	AddUsedItem(ctx context.Context, gameID, item string) error
	UsedItems(ctx context.Context, gameID string) ([]string, error)
	ClearUsedItems(ctx context.Context, gameID string) error

	// Match completion: game row, result rows, account stats and
	// achievements all move in one transaction.
	FinishMatch(ctx context.Context, res MatchResult) error

	// Stats surfaces.
	GameStats(ctx context.Context, gameID string) (GameStatsResponse, error)
	PlayerHistory(ctx context.Context, playerID string) ([]HistoryEntry, error)
	UserStats(ctx context.Context, userID string) (UserStats, error)

	// Accounts and sessions.
	CreateUser(ctx context.Context, email, name, passwordHash string) (UserRecord, error)
	UserByEmail(ctx context.Context, email string) (UserRecord, error)
	CreateSession(ctx context.Context, userID string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	UserFromSession(ctx context.Context, sessionID string) (userSession, error)
	TouchLastLogin(ctx context.Context, userID string) error
}
