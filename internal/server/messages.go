package server

import (
	"time"

	"github.com/listparty/livecategories/internal/game"
)

// PlayerView is a player as shown in snapshots and lobby responses.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// GameSnapshot is the client-facing view of a match, sent on every state
// change over the game WebSocket.
type GameSnapshot struct {
	ID           string                `json:"id"`
	LobbyCode    string                `json:"lobbyCode"`
	Phase        string                `json:"phase"`
	Category     string                `json:"category"`
	BestOf       int                   `json:"bestOf"`
	Round        int                   `json:"round"`
	Players      map[string]PlayerView `json:"players"`
	Scores       map[string]int        `json:"scores"`
	HighBid      int                   `json:"highBid"`
	HighBidderID string                `json:"highBidderId,omitempty"`
	ListerID     string                `json:"listerId,omitempty"`
	ListCount    int                   `json:"listCount"`
	PhaseEndsAt  *float64              `json:"phaseEndsAt,omitempty"` // unix seconds
}

// ServerMessage is the envelope for everything the server pushes over the
// game WebSocket.
type ServerMessage struct {
	Type      string        `json:"type"`
	Version   int           `json:"version,omitempty"`
	PlayerID  string        `json:"playerId,omitempty"`
	Game      *GameSnapshot `json:"game,omitempty"`
	WinnerID  string        `json:"winnerId,omitempty"`
	ListerHit bool          `json:"listerHit,omitempty"`
	HighBid   int           `json:"highBid,omitempty"`
	Item      string        `json:"item,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ClientMessage is what game clients send over the WebSocket.
type ClientMessage struct {
	Type   string `json:"type"`
	N      int    `json:"n,omitempty"`
	Text   string `json:"text,omitempty"`
	BestOf int    `json:"bestOf,omitempty"`
}

// snapshotOf renders a state plus the room's current deadline into the
// wire shape.
func snapshotOf(s game.State, deadline time.Time) GameSnapshot {
	snap := GameSnapshot{
		ID:           s.ID,
		LobbyCode:    s.Code,
		Phase:        string(s.Phase),
		Category:     s.Category,
		BestOf:       s.BestOf,
		Round:        s.Round,
		Players:      make(map[string]PlayerView, len(s.Seats)),
		Scores:       make(map[string]int, len(s.Scores)),
		HighBid:      s.HighBid,
		HighBidderID: s.HighBidderID,
		ListerID:     s.ListerID,
		ListCount:    s.ListCount,
	}
	for _, p := range s.Seats {
		snap.Players[p.ID] = PlayerView{ID: p.ID, Name: p.Name, Connected: p.Connected}
	}
	for pid, score := range s.Scores {
		snap.Scores[pid] = score
	}
	if !deadline.IsZero() && s.Phase != game.PhaseEnded && s.Phase != game.PhaseLobby {
		at := float64(deadline.UnixMilli()) / 1000
		snap.PhaseEndsAt = &at
	}
	return snap
}
