package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/listparty/livecategories/internal/game"
)

// Rooms tracks the live room actor for every game currently being played.
// Rooms are created lazily from the store on first access, so a restarted
// server picks matches back up where the games table left them.
type Rooms struct {
	ctx    context.Context
	store  Store
	broker *Broker
	clock  clockwork.Clock
	logger *slog.Logger
	rules  game.Rules

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRooms(ctx context.Context, store Store, broker *Broker, clock clockwork.Clock, logger *slog.Logger, rules game.Rules) *Rooms {
	return &Rooms{
		ctx:    ctx,
		store:  store,
		broker: broker,
		clock:  clock,
		logger: logger,
		rules:  rules,
		rooms:  make(map[string]*Room),
	}
}

// Get returns the live room for a game, or nil if none is running.
func (m *Rooms) Get(gameID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[gameID]
}

// Ensure returns the live room for a game, materializing it from the
// store if needed. Ended games return ErrNotFound.
func (m *Rooms) Ensure(ctx context.Context, gameID string) (*Room, error) {
	m.mu.RLock()
	r, ok := m.rooms[gameID]
	m.mu.RUnlock()
	if ok {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if r, ok := m.rooms[gameID]; ok {
		return r, nil
	}

	state, deadline, err := m.load(ctx, gameID)
	if err != nil {
		return nil, err
	}

	r = NewRoom(m.ctx, state, deadline, m.store, m.broker, m.clock, m.logger, m.remove)
	m.rooms[gameID] = r
	return r, nil
}

// load rebuilds in-memory match state from the store.
func (m *Rooms) load(ctx context.Context, gameID string) (game.State, time.Time, error) {
	g, err := m.store.GameByID(ctx, gameID)
	if err != nil {
		return game.State{}, time.Time{}, err
	}
	if g.Phase == string(game.PhaseEnded) {
		return game.State{}, time.Time{}, ErrNotFound
	}

	items, err := m.store.CategoryItems(ctx, g.Category)
	if err != nil {
		return game.State{}, time.Time{}, fmt.Errorf("loading category %q: %w", g.Category, err)
	}
	itemSet := make(map[string]struct{}, len(items))
	for _, it := range items {
		itemSet[game.Normalize(it)] = struct{}{}
	}

	state := game.NewState(g.ID, g.LobbyCode, g.Category, itemSet, g.BestOf, m.rules)
	state.Phase = game.Phase(g.Phase)
	state.Round = g.Round
	state.HighBid = g.HighBid
	state.HighBidderID = g.HighBidderID
	state.ListerID = g.ListerID
	state.ListCount = g.ListCount

	players, err := m.store.GamePlayers(ctx, gameID)
	if err != nil {
		return game.State{}, time.Time{}, err
	}
	for _, p := range players {
		state.Seats = append(state.Seats, game.Player{
			ID:        p.ID,
			Name:      p.Name,
			UserID:    p.UserID,
			Connected: p.Connected,
		})
		state.Scores[p.ID] = p.Score
	}

	used, err := m.store.UsedItems(ctx, gameID)
	if err != nil {
		return game.State{}, time.Time{}, err
	}
	for _, it := range used {
		state.Used[it] = struct{}{}
	}

	var deadline time.Time
	if g.PhaseEndsAt != nil {
		if at, err := time.Parse(time.RFC3339Nano, *g.PhaseEndsAt); err == nil {
			deadline = at
		}
	}
	return state, deadline, nil
}

func (m *Rooms) remove(gameID string) {
	m.mu.Lock()
	delete(m.rooms, gameID)
	m.mu.Unlock()
}

// Close stops every live room.
func (m *Rooms) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
}
