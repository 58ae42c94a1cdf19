package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/listparty/livecategories/internal/game"
)

func nextLobbyEvent(t *testing.T, ch chan []byte) LobbyEvent {
	t.Helper()
	select {
	case data := <-ch:
		var ev LobbyEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal lobby event: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lobby event")
		return LobbyEvent{}
	}
}

func TestLobbyEventLifecycle(t *testing.T) {
	store := setupStore(t)
	broker := NewBroker()
	clock := clockwork.NewFakeClock()
	rooms := NewRooms(context.Background(), store, broker, clock, slog.Default(), testGameRules)
	t.Cleanup(rooms.Close)

	r := chi.NewRouter()
	addRoutes(r, slog.Default(), store.db, store, rooms, broker, 5)

	ch := broker.Subscribe(lobbyTopic)
	defer broker.Unsubscribe(lobbyTopic, ch)

	w := postJSON(t, r, "/api/lobbies", CreateLobbyRequest{Category: "fruits", BestOf: 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("create lobby: %d: %s", w.Code, w.Body.String())
	}
	var lobby LobbyResponse
	json.NewDecoder(w.Body).Decode(&lobby)

	room, err := rooms.Ensure(context.Background(), lobby.GameID)
	if err != nil {
		t.Fatalf("ensure room: %v", err)
	}

	join := func(id, name string) {
		t.Helper()
		if _, err := room.Do(game.Command{Type: game.CmdAddPlayer, PlayerID: id, Name: name}); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	do := func(cmd game.Command) {
		t.Helper()
		if _, err := room.Do(cmd); err != nil {
			t.Fatalf("%s: %v", cmd.Type, err)
		}
	}

	join("p1", "Ana")
	join("p2", "Bea")
	do(game.Command{Type: game.CmdPlaceBid, PlayerID: "p1", Bid: 1})
	do(game.Command{Type: game.CmdPass, PlayerID: "p2"})
	do(game.Command{Type: game.CmdSubmitItem, PlayerID: "p1", Item: "Apple"})

	if v := room.View(); v.State.Phase != game.PhaseSummary {
		t.Fatalf("expected summary after the bid was hit, got %s", v.State.Phase)
	}
	clock.BlockUntil(1)
	clock.Advance(testGameRules.SummaryTime)

	want := []string{"created", "player_joined", "started", "ended"}
	for _, typ := range want {
		ev := nextLobbyEvent(t, ch)
		if ev.Type != typ {
			t.Fatalf("expected %q event, got %q", typ, ev.Type)
		}
		if ev.GameID != lobby.GameID {
			t.Errorf("%s event for wrong game: %q", typ, ev.GameID)
		}
		switch typ {
		case "player_joined":
			if ev.PlayerCount != 1 {
				t.Errorf("expected player count 1, got %d", ev.PlayerCount)
			}
		case "ended":
			if ev.WinnerID != "p1" {
				t.Errorf("expected p1 to win, got %q", ev.WinnerID)
			}
		}
	}
}

// flushRecorder hands each flushed chunk to the test, so the SSE stream can
// be observed frame by frame.
type flushRecorder struct {
	*httptest.ResponseRecorder
	frames chan string
}

func (f *flushRecorder) Flush() {
	f.frames <- f.Body.String()
	f.Body.Reset()
}

func TestLobbyEventsStream(t *testing.T) {
	broker := NewBroker()
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder(), frames: make(chan string, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/lobbies/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		handleLobbyEvents(broker)(rec, req)
		close(done)
	}()

	// First flush is the header frame; once it arrives the subscription is
	// in place.
	select {
	case <-rec.frames:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never flushed headers")
	}

	broker.Publish(lobbyTopic, LobbyEvent{Type: "created", GameID: "g1", LobbyCode: "ABC123", Category: "fruits"})

	var frame string
	select {
	case frame = <-rec.frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no event frame received")
	}
	if !strings.HasPrefix(frame, "event: lobby\n") {
		t.Errorf("unexpected frame prefix: %q", frame)
	}
	var ev LobbyEvent
	data := strings.TrimPrefix(frame, "event: lobby\ndata: ")
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
		t.Fatalf("unmarshal frame data: %v", err)
	}
	if ev.Type != "created" || ev.LobbyCode != "ABC123" {
		t.Errorf("unexpected event: %+v", ev)
	}

	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
}
