package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/listparty/livecategories/internal/game"
)

type roomMsg interface{ isRoomMsg() }

type roomSubscribe struct {
	ConnID string
	Outbox chan ServerMessage
}

type roomUnsubscribe struct{ ConnID string }

type roomCommand struct {
	Cmd   game.Command
	Reply chan roomReply
}

type roomReply struct {
	Events []game.Event
	Err    error
}

type roomGetView struct{ Reply chan RoomView }

type roomStop struct{}

func (roomSubscribe) isRoomMsg()   {}
func (roomUnsubscribe) isRoomMsg() {}
func (roomCommand) isRoomMsg()     {}
func (roomGetView) isRoomMsg()     {}
func (roomStop) isRoomMsg()        {}

// RoomView reflects internal room state without data races; used by
// handlers that need a point-in-time read and by tests.
type RoomView struct {
	Version  int
	NumSubs  int
	State    game.State
	Deadline time.Time
}

// resultAgg tracks per-player facts across rounds that only matter for
// achievements at match end.
type resultAgg struct {
	BestBidWon  int
	PerfectList bool
}

// Room owns one match. All state lives in the loop goroutine; handlers
// talk to it through the inbox, so game state needs no locks.
type Room struct {
	id      string
	inbox   chan roomMsg
	state   game.State
	version int
	subs    map[string]chan ServerMessage
	agg     map[string]*resultAgg

	clock    clockwork.Clock
	timer    clockwork.Timer
	deadline time.Time

	store  Store
	broker *Broker
	logger *slog.Logger
	onEnd  func(id string)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, state game.State, deadline time.Time, store Store, broker *Broker, clock clockwork.Clock, logger *slog.Logger, onEnd func(string)) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:     state.ID,
		inbox:  make(chan roomMsg, 64),
		state:  state,
		subs:   make(map[string]chan ServerMessage),
		agg:    make(map[string]*resultAgg),
		clock:  clock,
		store:  store,
		broker: broker,
		logger: logger.With("game_id", state.ID),
		onEnd:  onEnd,
		ctx:    ctx,
		cancel: cancel,
	}

	if !deadline.IsZero() {
		r.armAt(deadline)
	}

	go r.loop()
	return r
}

// Subscribe registers a connection and returns its outbox. The current
// snapshot is delivered first.
func (r *Room) Subscribe(connID string) chan ServerMessage {
	out := make(chan ServerMessage, 8)
	select {
	case r.inbox <- roomSubscribe{ConnID: connID, Outbox: out}:
	case <-r.ctx.Done():
		close(out)
	}
	return out
}

// Unsubscribe removes a connection; its outbox is closed by the loop.
func (r *Room) Unsubscribe(connID string) {
	select {
	case r.inbox <- roomUnsubscribe{ConnID: connID}:
	case <-r.ctx.Done():
	}
}

// Do applies a command and waits for the result.
func (r *Room) Do(cmd game.Command) ([]game.Event, error) {
	reply := make(chan roomReply, 1)
	select {
	case r.inbox <- roomCommand{Cmd: cmd, Reply: reply}:
	case <-r.ctx.Done():
		return nil, game.ErrMatchEnded
	}
	select {
	case res := <-reply:
		return res.Events, res.Err
	case <-r.ctx.Done():
		return nil, game.ErrMatchEnded
	}
}

// View returns a consistent read of the room state.
func (r *Room) View() RoomView {
	reply := make(chan RoomView, 1)
	select {
	case r.inbox <- roomGetView{Reply: reply}:
	case <-r.ctx.Done():
		return RoomView{State: r.state}
	}
	select {
	case v := <-reply:
		return v
	case <-r.ctx.Done():
		return RoomView{State: r.state}
	}
}

func (r *Room) Stop() {
	select {
	case r.inbox <- roomStop{}:
	case <-r.ctx.Done():
	}
}

func (r *Room) loop() {
	for {
		var timerCh <-chan time.Time
		if r.timer != nil {
			timerCh = r.timer.Chan()
		}

		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-timerCh:
			r.timer = nil
			r.deadline = time.Time{}
			events, next, err := game.Apply(r.state, game.Command{Type: game.CmdTimeout})
			if err != nil {
				r.logger.Warn("phase timeout ignored", "phase", r.state.Phase, "error", err)
				continue
			}
			if r.handleEvents(events, next) {
				return
			}

		case m := <-r.inbox:
			switch msg := m.(type) {
			case roomSubscribe:
				r.subs[msg.ConnID] = msg.Outbox
				msg.Outbox <- ServerMessage{
					Type:    "state_update",
					Version: r.version,
					Game:    r.snapshot(),
				}

			case roomUnsubscribe:
				if ch, ok := r.subs[msg.ConnID]; ok {
					close(ch)
					delete(r.subs, msg.ConnID)
				}

			case roomCommand:
				prev := r.state
				events, next, err := game.Apply(r.state, msg.Cmd)
				if err != nil {
					msg.Reply <- roomReply{Err: err}
					break
				}
				r.persistPlayerChange(prev, msg.Cmd)
				msg.Reply <- roomReply{Events: events}
				if r.handleEvents(events, next) {
					return
				}

			case roomGetView:
				msg.Reply <- RoomView{
					Version:  r.version,
					NumSubs:  len(r.subs),
					State:    r.state,
					Deadline: r.deadline,
				}

			case roomStop:
				r.shutdown()
				return
			}
		}
	}
}

// handleEvents folds applied events into the room: timers, persistence,
// broadcasts. Returns true when the room has ended and the loop must exit.
func (r *Room) handleEvents(events []game.Event, next game.State) bool {
	// A submit that only produced a rejection leaves the state untouched;
	// the caller relays the rejection, nothing to broadcast or persist.
	meaningful := len(events) == 0 // SetBestOf changes state without events
	for _, ev := range events {
		if ev.Type != game.EvtItemRejected {
			meaningful = true
			break
		}
	}
	if !meaningful {
		return false
	}

	r.state = next
	r.version++

	roundScored := false
	ended := false
	var endedEvent game.Event

	for _, ev := range events {
		switch ev.Type {
		case game.EvtTimerArmed:
			r.armAt(r.clock.Now().Add(ev.Duration))

		case game.EvtTimerCapped:
			capped := r.clock.Now().Add(ev.Duration)
			if r.deadline.IsZero() || capped.Before(r.deadline) {
				r.armAt(capped)
			}

		case game.EvtItemAccepted:
			if err := r.store.AddUsedItem(r.ctx, r.id, ev.Item); err != nil {
				r.logger.Error("persisting used item", "error", err)
			}

		case game.EvtBiddingClosed, game.EvtRoundStarted:
			if err := r.store.ClearUsedItems(r.ctx, r.id); err != nil {
				r.logger.Error("clearing used items", "error", err)
			}

		case game.EvtRoundScored:
			roundScored = true
			r.recordRound(ev)
			if err := r.store.UpdateScores(r.ctx, r.id, r.state.Scores); err != nil {
				r.logger.Error("persisting scores", "error", err)
			}

		case game.EvtMatchEnded:
			ended = true
			endedEvent = ev
		}
	}

	r.persistState()

	if roundScored {
		r.broadcast(ServerMessage{
			Type:      "round_result",
			Version:   r.version,
			WinnerID:  eventWinner(events),
			ListerHit: eventListerHit(events),
			HighBid:   r.state.HighBid,
			Game:      r.snapshot(),
		})
	} else {
		r.broadcast(ServerMessage{
			Type:    "state_update",
			Version: r.version,
			Game:    r.snapshot(),
		})
	}

	if containsType(events, game.EvtMatchStarted) {
		r.broker.Publish(lobbyTopic, LobbyEvent{
			Type:      "started",
			GameID:    r.id,
			LobbyCode: r.state.Code,
			Category:  r.state.Category,
		})
	}
	if containsType(events, game.EvtPlayerJoined) && r.state.Phase == game.PhaseLobby {
		r.broker.Publish(lobbyTopic, LobbyEvent{
			Type:        "player_joined",
			GameID:      r.id,
			LobbyCode:   r.state.Code,
			Category:    r.state.Category,
			PlayerCount: len(r.state.Seats),
		})
	}

	if ended {
		r.finish(endedEvent)
		return true
	}
	return false
}

// recordRound updates achievement bookkeeping from a scored round.
func (r *Room) recordRound(ev game.Event) {
	if ev.WinnerID == "" || !ev.ListerHit {
		return
	}
	a := r.agg[ev.WinnerID]
	if a == nil {
		a = &resultAgg{}
		r.agg[ev.WinnerID] = a
	}
	if ev.Bid > a.BestBidWon {
		a.BestBidWon = ev.Bid
	}
	if r.state.ListCount == ev.Bid {
		a.PerfectList = true
	}
}

// persistPlayerChange writes the players-table side effect of join and
// connection commands, comparing against the pre-command state.
func (r *Room) persistPlayerChange(prev game.State, cmd game.Command) {
	switch cmd.Type {
	case game.CmdAddPlayer:
		for _, p := range prev.Seats {
			if p.ID == cmd.PlayerID {
				// Rejoin.
				if err := r.store.SetPlayerConnected(r.ctx, cmd.PlayerID, true); err != nil {
					r.logger.Error("marking player connected", "error", err)
				}
				return
			}
		}
		err := r.store.AddPlayer(r.ctx, PlayerRecord{
			ID:        cmd.PlayerID,
			GameID:    r.id,
			UserID:    cmd.UserID,
			Name:      cmd.Name,
			Connected: true,
		})
		if err != nil {
			r.logger.Error("persisting player", "player_id", cmd.PlayerID, "error", err)
		}

	case game.CmdSetConnected:
		if err := r.store.SetPlayerConnected(r.ctx, cmd.PlayerID, cmd.Connected); err != nil {
			r.logger.Error("updating player connection", "error", err)
		}
	}
}

func (r *Room) persistState() {
	rec := GameRecord{
		ID:           r.state.ID,
		LobbyCode:    r.state.Code,
		Category:     r.state.Category,
		BestOf:       r.state.BestOf,
		Phase:        string(r.state.Phase),
		Round:        r.state.Round,
		HighBid:      r.state.HighBid,
		HighBidderID: r.state.HighBidderID,
		ListerID:     r.state.ListerID,
		ListCount:    r.state.ListCount,
	}
	if !r.deadline.IsZero() {
		at := r.deadline.UTC().Format(time.RFC3339Nano)
		rec.PhaseEndsAt = &at
	}
	if err := r.store.SaveGameState(r.ctx, rec); err != nil {
		r.logger.Error("persisting game state", "error", err)
	}
}

// finish settles the match: results transaction, final broadcast, lobby
// event, teardown.
func (r *Room) finish(ev game.Event) {
	res := MatchResult{GameID: r.id, Category: r.state.Category}
	for _, p := range r.state.Seats {
		entry := ResultEntry{
			PlayerID: p.ID,
			UserID:   p.UserID,
			Score:    r.state.Scores[p.ID],
			Won:      p.ID == ev.WinnerID,
		}
		if a := r.agg[p.ID]; a != nil {
			entry.BestBidWon = a.BestBidWon
			entry.PerfectList = a.PerfectList
		}
		res.Entries = append(res.Entries, entry)
	}
	if err := r.store.FinishMatch(r.ctx, res); err != nil {
		r.logger.Error("finishing match", "error", err)
	}

	r.broadcast(ServerMessage{
		Type:     "match_ended",
		Version:  r.version,
		WinnerID: ev.WinnerID,
		Game:     r.snapshot(),
	})
	r.broker.Publish(lobbyTopic, LobbyEvent{
		Type:      "ended",
		GameID:    r.id,
		LobbyCode: r.state.Code,
		Category:  r.state.Category,
		WinnerID:  ev.WinnerID,
	})

	r.logger.Info("match ended", "winner_id", ev.WinnerID, "rounds", r.state.Round)
	r.shutdown()
}

func (r *Room) shutdown() {
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.onEnd != nil {
		r.onEnd(r.id)
	}
	r.cancel()
}

func (r *Room) armAt(deadline time.Time) {
	d := deadline.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	if r.timer == nil {
		r.timer = r.clock.NewTimer(d)
	} else {
		r.timer.Reset(d)
	}
	r.deadline = deadline
}

func (r *Room) snapshot() *GameSnapshot {
	snap := snapshotOf(r.state, r.deadline)
	return &snap
}

func (r *Room) broadcast(msg ServerMessage) {
	for id, ch := range r.subs {
		select {
		case ch <- msg:
		default:
			// Client is slow or full - drop them.
			close(ch)
			delete(r.subs, id)
		}
	}
}

func containsType(events []game.Event, typ game.EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func eventWinner(events []game.Event) string {
	for _, e := range events {
		if e.Type == game.EvtRoundScored {
			return e.WinnerID
		}
	}
	return ""
}

func eventListerHit(events []game.Event) bool {
	for _, e := range events {
		if e.Type == game.EvtRoundScored {
			return e.ListerHit
		}
	}
	return false
}
