package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/room"
	"github.com/DoyleJ11/kostky-backend/internal/store"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom starts a fresh room under Code. Reply gets nil if the code is
// already taken, in memory or in the store.
type CreateRoom struct {
	Code  string
	Reply chan *room.Room
}

// GetRoom returns the running room, restoring it from the store if needed.
// Reply gets nil when the room does not exist.
type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom stops the live room for Code. The stored document stays, so the
// next GetRoom restores it. Reply, if set, reports whether a room was running.
type RemoveRoom struct {
	Code  string
	Reply chan bool
}

type ShutdownHub struct {
	Done chan struct{}
}

// reapRoom drops a room that closed itself.
type reapRoom struct {
	Code string
}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}
func (reapRoom) isHubMsg()    {}

type Config struct {
	Engine        *engine.Engine
	Store         store.RoomStore
	Results       room.ResultRecorder
	Logger        *zap.Logger
	RollAnimation time.Duration
	IdleTimeout   time.Duration
	IOTimeout     time.Duration
}

type Hub struct {
	cfg    Config
	log    *zap.Logger
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 3 * time.Second
	}
	h := &Hub{
		cfg:    cfg,
		log:    cfg.Logger,
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Get is a convenience wrapper around GetRoom for request handlers.
func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	return h.ask(ctx, func(reply chan *room.Room) HubMsg { return GetRoom{Code: code, Reply: reply} })
}

// Create is a convenience wrapper around CreateRoom.
func (h *Hub) Create(ctx context.Context, code string) (*room.Room, error) {
	return h.ask(ctx, func(reply chan *room.Room) HubMsg { return CreateRoom{Code: code, Reply: reply} })
}

// Unload stops the live room for code; see RemoveRoom.
func (h *Hub) Unload(ctx context.Context, code string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case h.inbox <- RemoveRoom{Code: code, Reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-h.ctx.Done():
		return false, ErrHubClosed
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-h.ctx.Done():
		return false, ErrHubClosed
	}
}

var ErrHubClosed = errors.New("hub closed")

func (h *Hub) ask(ctx context.Context, build func(chan *room.Room) HubMsg) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- build(reply):
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
	select {
	case rm := <-reply:
		return rm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdownRooms()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.live(msg.Code); rm != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.create(msg.Code)

			case GetRoom:
				if rm := h.live(msg.Code); rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.restore(msg.Code) // May be nil

			case RemoveRoom:
				rm := h.live(msg.Code)
				if rm != nil {
					rm.Send(room.Shutdown{})
					<-rm.Done()
					delete(h.rooms, msg.Code)
					h.log.Info("room unloaded", zap.String("room", msg.Code))
				}
				if msg.Reply != nil {
					msg.Reply <- rm != nil
				}

			case reapRoom:
				if rm := h.rooms[msg.Code]; rm != nil && isDone(rm) {
					delete(h.rooms, msg.Code)
					h.log.Debug("room reaped", zap.String("room", msg.Code))
				}

			case ShutdownHub:
				h.shutdownRooms()
				h.cancel()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

// live returns the in-memory room for code, forgetting it if it has closed.
func (h *Hub) live(code string) *room.Room {
	rm := h.rooms[code]
	if rm == nil {
		return nil
	}
	if isDone(rm) {
		delete(h.rooms, code)
		return nil
	}
	return rm
}

func (h *Hub) create(code string) *room.Room {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.IOTimeout)
	defer cancel()

	if _, err := h.cfg.Store.Load(ctx, code); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Warn("check room code failed", zap.String("room", code), zap.Error(err))
		return nil
	}

	initial := engine.NewEmptyRoom()
	if err := h.cfg.Store.Save(ctx, store.Document{Code: code, Room: initial, UpdatedAt: time.Now()}); err != nil {
		h.log.Warn("persist new room failed", zap.String("room", code), zap.Error(err))
	}
	return h.start(code, initial, 0)
}

func (h *Hub) restore(code string) *room.Room {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.IOTimeout)
	defer cancel()

	doc, err := h.cfg.Store.Load(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Warn("load room failed", zap.String("room", code), zap.Error(err))
		}
		return nil
	}
	h.log.Info("room restored from store", zap.String("room", code), zap.Int("version", doc.Version))
	return h.start(code, doc.Room, doc.Version)
}

func (h *Hub) start(code string, initial engine.Room, version int) *room.Room {
	rm := room.NewRoom(h.ctx, room.Config{
		Code:          code,
		Engine:        h.cfg.Engine,
		Store:         h.cfg.Store,
		Results:       h.cfg.Results,
		Logger:        h.log,
		RollAnimation: h.cfg.RollAnimation,
		IdleTimeout:   h.cfg.IdleTimeout,
		WriteTimeout:  h.cfg.IOTimeout,
		OnIdle: func(code string) {
			// The room goroutine must not block on the hub.
			go func() {
				select {
				case h.inbox <- reapRoom{Code: code}:
				case <-h.ctx.Done():
				}
			}()
		},
	}, initial, version)
	h.rooms[code] = rm
	return rm
}

func (h *Hub) shutdownRooms() {
	for code, rm := range h.rooms {
		rm.Send(room.Shutdown{})
		<-rm.Done()
		delete(h.rooms, code)
	}
}

func isDone(rm *room.Room) bool {
	select {
	case <-rm.Done():
		return true
	default:
		return false
	}
}
