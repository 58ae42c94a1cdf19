package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/listparty/livecategories/internal/game"
)

// handleGameSocket is the game connection: one WebSocket per seated player.
// The player joins (or rejoins) the match, receives snapshots and round
// results, and sends bid/pass/submit commands.
func handleGameSocket(rooms *Rooms, store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		playerID := r.URL.Query().Get("playerId")
		name := r.URL.Query().Get("name")
		if name == "" {
			writeError(w, http.StatusBadRequest, "name query parameter required")
			return
		}
		if playerID == "" {
			playerID = uuid.NewString()
		}

		// A signed-in player gets their results credited to the account.
		var userID string
		if sess, err := userFromRequest(store, r); err == nil {
			userID = sess.UserID
		}

		room, err := rooms.Ensure(r.Context(), gameID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		if _, err := room.Do(game.Command{
			Type:     game.CmdAddPlayer,
			PlayerID: playerID,
			Name:     name,
			UserID:   userID,
		}); err != nil {
			status := websocket.StatusPolicyViolation
			if errors.Is(err, game.ErrLobbyFull) {
				status = websocket.StatusTryAgainLater
			}
			conn.Close(status, err.Error())
			return
		}

		connID := uuid.NewString()
		outbox := room.Subscribe(connID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		log := logger.With("game_id", gameID, "player_id", playerID)
		log.Info("player connected")

		if err := wsjson.Write(ctx, conn, ServerMessage{
			Type:     "joined",
			PlayerID: playerID,
		}); err != nil {
			room.Unsubscribe(connID)
			return
		}

		// Writer drains the room outbox; the room closes it on match end
		// or unsubscribe.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for msg := range outbox {
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					cancel()
					return
				}
			}
			conn.Close(websocket.StatusNormalClosure, "match ended")
			cancel()
		}()

		defer func() {
			room.Unsubscribe(connID)
			room.Do(game.Command{
				Type:     game.CmdSetConnected,
				PlayerID: playerID,
			})
			<-writeDone
			log.Info("player disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}

			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				wsjson.Write(ctx, conn, ServerMessage{Type: "error", Error: "invalid message"})
				continue
			}

			cmd, ok := commandFor(msg, playerID)
			if !ok {
				wsjson.Write(ctx, conn, ServerMessage{Type: "error", Error: "unknown message type"})
				continue
			}

			events, err := room.Do(cmd)
			if err != nil {
				wsjson.Write(ctx, conn, ServerMessage{Type: "error", Error: err.Error()})
				continue
			}
			// Rejections are private to the submitter; accepted items reach
			// everyone through the broadcast snapshot.
			for _, ev := range events {
				if ev.Type == game.EvtItemRejected {
					wsjson.Write(ctx, conn, ServerMessage{
						Type:   "item_rejected",
						Item:   ev.Item,
						Reason: ev.Reason,
					})
				}
			}
		}
	}
}

func commandFor(msg ClientMessage, playerID string) (game.Command, bool) {
	switch msg.Type {
	case "place_bid":
		return game.Command{Type: game.CmdPlaceBid, PlayerID: playerID, Bid: msg.N}, true
	case "pass":
		return game.Command{Type: game.CmdPass, PlayerID: playerID}, true
	case "submit_item":
		return game.Command{Type: game.CmdSubmitItem, PlayerID: playerID, Item: msg.Text}, true
	case "set_best_of":
		return game.Command{Type: game.CmdSetBestOf, PlayerID: playerID, BestOf: msg.BestOf}, true
	default:
		return game.Command{}, false
	}
}
