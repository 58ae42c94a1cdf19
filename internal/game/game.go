// Package game holds the pure match state machine for a listing match:
// two players bid on how many items of a category they can name, then the
// high bidder has to list that many before the phase timer runs out.
//
// Apply never touches a clock or does I/O. Timer directives come back as
// events (EvtTimerArmed, EvtTimerCapped) and the caller owns the deadline.
package game

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrLobbyFull    = errors.New("lobby is full")
	ErrMatchStarted = errors.New("match already started")
	ErrMatchEnded   = errors.New("match already ended")
	ErrWrongPhase   = errors.New("command not valid in current phase")
	ErrNotSeated    = errors.New("player is not in this match")
	ErrNotLister    = errors.New("only the lister may submit items")
	ErrBidTooLow    = errors.New("bid must exceed the current high bid")
	ErrBidTooHigh   = errors.New("bid exceeds the category item count")
	ErrNoBid        = errors.New("no standing bid to pass on")
	ErrBadBestOf    = errors.New("best-of must be a positive odd number")
	ErrEmptyItem    = errors.New("item text is empty")
	ErrUnsupported  = errors.New("unsupported command")
)

type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseBidding Phase = "bidding"
	PhaseListing Phase = "listing"
	PhaseSummary Phase = "summary"
	PhaseEnded   Phase = "ended"
)

// Rules are the fixed timing parameters of a match.
type Rules struct {
	BiddingTime time.Duration
	ListingTime time.Duration
	SummaryTime time.Duration
	// ShotClock is how long bidding stays open after a raise, capped by the
	// remaining bidding time.
	ShotClock time.Duration
}

type Player struct {
	ID        string
	Name      string
	UserID    string // empty for guests
	Connected bool
}

// State is one match. It is a value: Apply copies it and returns the next
// state, so callers can keep old snapshots around safely (maps are cloned
// on write paths that touch them).
type State struct {
	ID       string
	Code     string
	Category string
	Items    map[string]struct{} // normalized category items
	Rules    Rules

	Phase  Phase
	BestOf int
	Round  int

	Seats  []Player
	Scores map[string]int

	HighBid      int
	HighBidderID string
	ListerID     string
	ListCount    int
	Used         map[string]struct{}
}

// NewState creates a match in the lobby phase with no players.
func NewState(id, code, category string, items map[string]struct{}, bestOf int, rules Rules) State {
	return State{
		ID:       id,
		Code:     code,
		Category: category,
		Items:    items,
		Rules:    rules,
		Phase:    PhaseLobby,
		BestOf:   bestOf,
		Round:    0,
		Scores:   map[string]int{},
		Used:     map[string]struct{}{},
	}
}

type CommandType string

const (
	CmdAddPlayer    CommandType = "AddPlayer"
	CmdSetConnected CommandType = "SetConnected"
	CmdSetBestOf    CommandType = "SetBestOf"
	CmdPlaceBid     CommandType = "PlaceBid"
	CmdPass         CommandType = "Pass"
	CmdSubmitItem   CommandType = "SubmitItem"
	CmdTimeout      CommandType = "Timeout"
)

type Command struct {
	Type      CommandType
	PlayerID  string
	Name      string
	UserID    string
	Bid       int
	Item      string
	BestOf    int
	Connected bool
}

type EventType string

const (
	EvtPlayerJoined  EventType = "PlayerJoined"
	EvtPlayerGone    EventType = "PlayerGone"
	EvtMatchStarted  EventType = "MatchStarted"
	EvtBidRaised     EventType = "BidRaised"
	EvtBiddingClosed EventType = "BiddingClosed"
	EvtItemAccepted  EventType = "ItemAccepted"
	EvtItemRejected  EventType = "ItemRejected"
	EvtRoundScored   EventType = "RoundScored"
	EvtRoundStarted  EventType = "RoundStarted"
	EvtMatchEnded    EventType = "MatchEnded"
	// EvtTimerArmed replaces the phase deadline with now+Duration.
	EvtTimerArmed EventType = "TimerArmed"
	// EvtTimerCapped moves the deadline earlier to now+Duration if the
	// current one is further out.
	EvtTimerCapped EventType = "TimerCapped"
)

const (
	RejectDuplicate = "duplicate"
	RejectInvalid   = "invalid"
)

type Event struct {
	Type      EventType
	PlayerID  string
	Item      string
	Reason    string
	Bid       int
	Count     int
	Round     int
	WinnerID  string
	ListerHit bool
	Duration  time.Duration
}

// Normalize lowercases, trims and collapses inner whitespace so "  Golden
// Delicious " and "golden delicious" compare equal.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (s State) seat(playerID string) (Player, bool) {
	for _, p := range s.Seats {
		if p.ID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

func (s State) opponent(playerID string) (Player, bool) {
	for _, p := range s.Seats {
		if p.ID != playerID {
			return p, true
		}
	}
	return Player{}, false
}

// WinTarget is the number of round wins that ends the match.
func (s State) WinTarget() int { return s.BestOf/2 + 1 }

// Apply runs one command against the state and returns the resulting
// events and next state. On error the input state is returned unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseEnded && cmd.Type != CmdSetConnected {
		return nil, s, ErrMatchEnded
	}

	switch cmd.Type {
	case CmdAddPlayer:
		return applyAddPlayer(s, cmd)

	case CmdSetConnected:
		return applySetConnected(s, cmd)

	case CmdSetBestOf:
		if s.Phase != PhaseLobby {
			return nil, s, ErrMatchStarted
		}
		if cmd.BestOf < 1 || cmd.BestOf%2 == 0 {
			return nil, s, ErrBadBestOf
		}
		next := s
		next.BestOf = cmd.BestOf
		return nil, next, nil

	case CmdPlaceBid:
		return applyPlaceBid(s, cmd)

	case CmdPass:
		return applyPass(s, cmd)

	case CmdSubmitItem:
		return applySubmitItem(s, cmd)

	case CmdTimeout:
		return applyTimeout(s)

	default:
		return nil, s, ErrUnsupported
	}
}

func applyAddPlayer(s State, cmd Command) ([]Event, State, error) {
	next := s

	if _, ok := s.seat(cmd.PlayerID); ok {
		// Rejoin: flip the connected flag, nothing else changes.
		next.Seats = cloneSeats(s.Seats)
		for i := range next.Seats {
			if next.Seats[i].ID == cmd.PlayerID {
				next.Seats[i].Connected = true
			}
		}
		return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}, next, nil
	}

	if s.Phase != PhaseLobby {
		return nil, s, ErrMatchStarted
	}
	if len(s.Seats) >= 2 {
		return nil, s, ErrLobbyFull
	}

	next.Seats = append(cloneSeats(s.Seats), Player{
		ID:        cmd.PlayerID,
		Name:      cmd.Name,
		UserID:    cmd.UserID,
		Connected: true,
	})
	next.Scores = cloneCounts(s.Scores)
	next.Scores[cmd.PlayerID] = 0

	events := []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}

	// Second seat filled: the match starts with round 1 bidding.
	if len(next.Seats) == 2 {
		next.Phase = PhaseBidding
		next.Round = 1
		events = append(events,
			Event{Type: EvtMatchStarted},
			Event{Type: EvtTimerArmed, Duration: next.Rules.BiddingTime},
		)
	}
	return events, next, nil
}

func applySetConnected(s State, cmd Command) ([]Event, State, error) {
	if _, ok := s.seat(cmd.PlayerID); !ok {
		return nil, s, ErrNotSeated
	}
	next := s
	next.Seats = cloneSeats(s.Seats)
	for i := range next.Seats {
		if next.Seats[i].ID == cmd.PlayerID {
			next.Seats[i].Connected = cmd.Connected
		}
	}
	if cmd.Connected {
		return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}, next, nil
	}
	return []Event{{Type: EvtPlayerGone, PlayerID: cmd.PlayerID}}, next, nil
}

func applyPlaceBid(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseBidding {
		return nil, s, ErrWrongPhase
	}
	if _, ok := s.seat(cmd.PlayerID); !ok {
		return nil, s, ErrNotSeated
	}
	if cmd.Bid <= s.HighBid || cmd.Bid < 1 {
		return nil, s, ErrBidTooLow
	}
	if cmd.Bid > len(s.Items) {
		return nil, s, ErrBidTooHigh
	}

	next := s
	next.HighBid = cmd.Bid
	next.HighBidderID = cmd.PlayerID

	return []Event{
		{Type: EvtBidRaised, PlayerID: cmd.PlayerID, Bid: cmd.Bid},
		{Type: EvtTimerCapped, Duration: s.Rules.ShotClock},
	}, next, nil
}

func applyPass(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseBidding {
		return nil, s, ErrWrongPhase
	}
	if _, ok := s.seat(cmd.PlayerID); !ok {
		return nil, s, ErrNotSeated
	}
	if s.HighBidderID == "" {
		return nil, s, ErrNoBid
	}
	return closeBidding(s)
}

// closeBidding hands the round to the high bidder and opens listing.
func closeBidding(s State) ([]Event, State, error) {
	next := s
	next.Phase = PhaseListing
	next.ListerID = s.HighBidderID
	next.ListCount = 0
	next.Used = map[string]struct{}{}

	return []Event{
		{Type: EvtBiddingClosed, PlayerID: next.ListerID, Bid: next.HighBid},
		{Type: EvtTimerArmed, Duration: s.Rules.ListingTime},
	}, next, nil
}

func applySubmitItem(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseListing {
		return nil, s, ErrWrongPhase
	}
	if cmd.PlayerID != s.ListerID {
		return nil, s, ErrNotLister
	}

	text := Normalize(cmd.Item)
	if text == "" {
		return nil, s, ErrEmptyItem
	}

	if _, used := s.Used[text]; used {
		return []Event{{Type: EvtItemRejected, PlayerID: cmd.PlayerID, Item: text, Reason: RejectDuplicate}}, s, nil
	}
	if _, ok := s.Items[text]; !ok {
		return []Event{{Type: EvtItemRejected, PlayerID: cmd.PlayerID, Item: text, Reason: RejectInvalid}}, s, nil
	}

	next := s
	next.Used = cloneSet(s.Used)
	next.Used[text] = struct{}{}
	next.ListCount = s.ListCount + 1

	events := []Event{{Type: EvtItemAccepted, PlayerID: cmd.PlayerID, Item: text, Count: next.ListCount}}

	// Hitting the bid resolves the round immediately instead of waiting
	// out the listing timer.
	if next.ListCount >= next.HighBid {
		scored, resolved, err := scoreRound(next)
		if err != nil {
			return nil, s, err
		}
		return append(events, scored...), resolved, nil
	}
	return events, next, nil
}

func applyTimeout(s State) ([]Event, State, error) {
	switch s.Phase {
	case PhaseBidding:
		next := s
		if next.HighBidderID == "" {
			// Nobody bid: seed the minimum bid on the first seat.
			if len(next.Seats) == 0 {
				return nil, s, ErrWrongPhase
			}
			next.HighBid = 1
			next.HighBidderID = next.Seats[0].ID
		}
		// A high bidder who is gone at the deadline forfeits the round.
		if bidder, ok := next.seat(next.HighBidderID); ok && !bidder.Connected {
			if opp, ok := next.opponent(next.HighBidderID); ok && opp.Connected {
				next.ListerID = next.HighBidderID
				return forfeitRound(next, opp.ID)
			}
		}
		return closeBidding(next)

	case PhaseListing:
		return scoreRound(s)

	case PhaseSummary:
		return nextRoundOrEnd(s)

	default:
		return nil, s, ErrWrongPhase
	}
}

// scoreRound settles a listing phase: the lister wins iff they reached
// their bid, otherwise the opponent takes the round.
func scoreRound(s State) ([]Event, State, error) {
	hit := s.ListCount >= s.HighBid

	winnerID := s.ListerID
	if !hit {
		if opp, ok := s.opponent(s.ListerID); ok {
			winnerID = opp.ID
		} else {
			winnerID = ""
		}
	}

	next := s
	next.Phase = PhaseSummary
	if winnerID != "" {
		next.Scores = cloneCounts(s.Scores)
		next.Scores[winnerID]++
	}

	return []Event{
		{Type: EvtRoundScored, WinnerID: winnerID, ListerHit: hit, Bid: s.HighBid},
		{Type: EvtTimerArmed, Duration: s.Rules.SummaryTime},
	}, next, nil
}

// forfeitRound awards the round to winnerID without a listing phase.
func forfeitRound(s State, winnerID string) ([]Event, State, error) {
	next := s
	next.Phase = PhaseSummary
	next.Scores = cloneCounts(s.Scores)
	next.Scores[winnerID]++

	return []Event{
		{Type: EvtRoundScored, WinnerID: winnerID, ListerHit: false, Bid: s.HighBid},
		{Type: EvtTimerArmed, Duration: s.Rules.SummaryTime},
	}, next, nil
}

func nextRoundOrEnd(s State) ([]Event, State, error) {
	target := s.WinTarget()
	for pid, score := range s.Scores {
		if score >= target {
			next := s
			next.Phase = PhaseEnded
			return []Event{{Type: EvtMatchEnded, WinnerID: pid}}, next, nil
		}
	}

	next := s
	next.Phase = PhaseBidding
	next.Round = s.Round + 1
	next.HighBid = 0
	next.HighBidderID = ""
	next.ListerID = ""
	next.ListCount = 0
	next.Used = map[string]struct{}{}

	return []Event{
		{Type: EvtRoundStarted, Round: next.Round},
		{Type: EvtTimerArmed, Duration: s.Rules.BiddingTime},
	}, next, nil
}

func cloneSeats(seats []Player) []Player {
	out := make([]Player, len(seats))
	copy(out, seats)
	return out
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
