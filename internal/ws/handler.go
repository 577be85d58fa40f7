package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/hub"
	"github.com/DoyleJ11/kostky-backend/internal/room"
	"github.com/DoyleJ11/kostky-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	Logger         *zap.Logger
	OriginPatterns []string
	// Actions per second a single connection may send, with Burst headroom.
	Rate  rate.Limit
	Burst int
	// PingInterval paces keepalive pings; a failed ping ends the connection.
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Rate <= 0 {
		c.Rate = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	return c
}

// Handler serves GET /ws?code=&player=&name=. A missing player id gets a fresh
// uuid; a non-empty name seats the player in the room on connect.
func Handler(h *hub.Hub, cfg Config) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		playerID := r.URL.Query().Get("player")
		if playerID == "" {
			playerID = uuid.NewString()
		}
		name := r.URL.Query().Get("name")

		rm, err := h.Get(r.Context(), code)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			cfg.Logger.Debug("websocket accept failed", zap.String("room", code), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := cfg.Logger.With(zap.String("room", code), zap.String("player", playerID))
		log.Debug("client connected")

		out := make(chan room.Update, 16)
		clientID := uuid.NewString()

		if !rm.Send(room.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		defer rm.Send(room.Leave{ClientID: clientID})

		if name != "" {
			rm.Send(room.FromClient{ClientID: clientID, Cmd: engine.Command{
				Type: engine.CmdJoin, Actor: playerID, Name: name,
			}})
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			ping := time.NewTicker(cfg.PingInterval)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					pingCtx, pingCancel := context.WithTimeout(ctx, cfg.WriteTimeout)
					err := conn.Ping(pingCtx)
					pingCancel()
					if err != nil {
						log.Debug("ping failed", zap.Error(err))
						return
					}
				case u, ok := <-out:
					if !ok {
						// Dropped by the room or the room shut down.
						conn.Close(websocket.StatusTryAgainLater, "update stream closed")
						return
					}
					if err := writeJSON(ctx, conn, cfg.WriteTimeout, toServerMessage(u)); err != nil {
						log.Debug("write failed", zap.Error(err))
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(cfg.Rate, cfg.Burst)

		// Reader loop
		for {
			// Listeners may stay silent for many turns; liveness is the ping's job.
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			if !limiter.Allow() {
				_ = writeJSON(ctx, conn, cfg.WriteTimeout, errorMessage("rate limited"))
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeJSON(ctx, conn, cfg.WriteTimeout, errorMessage("bad json"))
				continue
			}

			cmd, ok := toEngineCommand(cm, playerID)
			if !ok {
				_ = writeJSON(ctx, conn, cfg.WriteTimeout, errorMessage("unknown type"))
				continue
			}

			if !rm.Send(room.FromClient{ClientID: clientID, Cmd: cmd}) {
				return
			}
		}
	}
}

func toEngineCommand(m types.ClientMessage, playerID string) (engine.Command, bool) {
	cmd := engine.Command{Actor: playerID}
	switch m.Type {
	case "Join":
		cmd.Type, cmd.Name = engine.CmdJoin, m.Name
	case "Leave":
		cmd.Type = engine.CmdLeave
	case "StartGame":
		cmd.Type = engine.CmdStartGame
	case "Roll":
		cmd.Type = engine.CmdRoll
	case "TakeDie":
		cmd.Type, cmd.Index = engine.CmdTakeDie, m.Index
	case "Bank":
		cmd.Type = engine.CmdBank
	case "ResolveMirror":
		cmd.Type = engine.CmdResolveMirror
	case "Chat":
		cmd.Type, cmd.Text = engine.CmdChat, m.Text
	case "ResetLobby":
		cmd.Type = engine.CmdResetLobby
	default:
		return engine.Command{}, false
	}
	return cmd, true
}

func toServerMessage(u room.Update) types.ServerMessage {
	if u.Error != "" {
		return types.ServerMessage{Type: types.MsgError, Version: u.Version, Error: u.Error}
	}
	snap := u.Room
	return types.ServerMessage{Type: types.MsgStateSnapshot, Version: u.Version, Room: &snap, Events: u.Events}
}

func errorMessage(msg string) types.ServerMessage {
	return types.ServerMessage{Type: types.MsgError, Error: msg}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, timeout time.Duration, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
