package room

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Msg interface{ isRoomMsg() }

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Update // where this client wants to receive updates
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// timer fires carry the generation they were armed with; stale ones are dropped
type settleFired struct{ gen int }

func (settleFired) isRoomMsg() {}

type idleFired struct{ gen int }

func (idleFired) isRoomMsg() {}

// Update is what a client receives. Error is set only on the sender's copy of
// a rejected action.
type Update struct {
	Version int
	Room    engine.Room
	Events  []engine.Event
	Error   string
}

type View struct {
	Version    int
	NumClients int
	Room       engine.Room
}

// ResultRecorder stores final standings when a game completes.
type ResultRecorder interface {
	RecordGame(ctx context.Context, code string, room engine.Room) error
}

type Config struct {
	Code          string
	Engine        *engine.Engine
	Store         store.RoomStore
	Results       ResultRecorder
	Logger        *zap.Logger
	RollAnimation time.Duration
	IdleTimeout   time.Duration
	OnIdle        func(code string)
	Now           func() time.Time
	WriteTimeout  time.Duration
}

type Room struct {
	cfg     Config
	log     *zap.Logger
	inbox   chan Msg
	state   engine.Room
	version int
	clients map[string]chan Update
	ctx     context.Context
	cancel  context.CancelFunc

	settleGen   int
	settleTimer *time.Timer
	idleGen     int
	idleTimer   *time.Timer
}

func NewRoom(parent context.Context, cfg Config, initial engine.Room, version int) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	r := &Room{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("room", cfg.Code)),
		inbox:   make(chan Msg, 64), // Small buffer
		state:   initial,
		version: version,
		clients: make(map[string]chan Update),
		ctx:     ctx,
		cancel:  cancel,
	}

	// A room restored mid-animation would otherwise never settle.
	if r.state.Status == engine.StatusPlaying && r.state.State.IsAnimating {
		r.armSettle()
	}
	r.armIdle()

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.cfg.Code }

// Expose the inbox so tests or the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Send delivers m unless the room has already shut down.
func (r *Room) Send(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				r.clients[msg.ClientID] = msg.Outbox
				r.stopIdle()
				msg.Outbox <- Update{Version: r.version, Room: r.state.Clone()}

			case Leave:
				delete(r.clients, msg.ClientID)
				if len(r.clients) == 0 {
					r.armIdle()
				}

			case FromClient:
				r.handle(msg.ClientID, msg.Cmd)

			case settleFired:
				if msg.gen != r.settleGen {
					break
				}
				r.handle("", engine.Command{Type: engine.CmdSettleRoll, Actor: r.state.State.Turn})

			case idleFired:
				if msg.gen != r.idleGen || len(r.clients) > 0 {
					break
				}
				r.log.Info("room idle, closing")
				if r.cfg.OnIdle != nil {
					r.cfg.OnIdle(r.cfg.Code)
				}
				r.shutdown()
				return

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Room:       r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handle(clientID string, cmd engine.Command) {
	cmd.At = r.cfg.Now()
	if cmd.Type == engine.CmdChat && cmd.MsgID == "" {
		cmd.MsgID = uuid.NewString()
	}

	events, next, err := r.cfg.Engine.Apply(r.state, cmd)
	if err != nil {
		if errors.Is(err, engine.ErrNoChange) {
			return
		}
		r.log.Debug("action rejected",
			zap.String("type", string(cmd.Type)),
			zap.String("actor", cmd.Actor),
			zap.Error(err))
		r.notify(clientID, Update{Version: r.version, Error: err.Error()})
		return
	}

	r.commit(next, events)

	if engine.ContainsEvent(events, engine.EvtRolled) && r.state.State.IsAnimating {
		if r.cfg.RollAnimation <= 0 {
			r.handle("", engine.Command{Type: engine.CmdSettleRoll, Actor: r.state.State.Turn})
			return
		}
		r.armSettle()
	}
}

// commit persists the new document and then broadcasts it. A failed write is
// logged and not retried; the broadcast still goes out. Finished games are
// recorded before the final broadcast.
func (r *Room) commit(next engine.Room, events []engine.Event) {
	r.state = next
	r.version++

	if r.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.WriteTimeout)
		err := r.cfg.Store.Save(ctx, store.Document{
			Code:      r.cfg.Code,
			Version:   r.version,
			Room:      r.state,
			UpdatedAt: r.cfg.Now(),
		})
		cancel()
		if err != nil {
			r.log.Warn("persist room failed", zap.Int("version", r.version), zap.Error(err))
		}
	}

	if engine.ContainsEvent(events, engine.EvtGameCompleted) && r.cfg.Results != nil {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.WriteTimeout)
		if err := r.cfg.Results.RecordGame(ctx, r.cfg.Code, r.state); err != nil {
			r.log.Warn("record results failed", zap.Error(err))
		}
		cancel()
	}

	r.broadcast(Update{Version: r.version, Room: r.state, Events: events})
}

func (r *Room) armSettle() {
	if r.settleTimer != nil {
		r.settleTimer.Stop()
	}
	r.settleGen++
	gen := r.settleGen
	r.settleTimer = time.AfterFunc(r.cfg.RollAnimation, func() {
		select {
		case r.inbox <- settleFired{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) armIdle() {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	r.stopIdle()
	gen := r.idleGen
	r.idleTimer = time.AfterFunc(r.cfg.IdleTimeout, func() {
		select {
		case r.inbox <- idleFired{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) stopIdle() {
	r.idleGen++
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
}

func (r *Room) shutdown() {
	if r.settleTimer != nil {
		r.settleTimer.Stop()
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	for id, ch := range r.clients {
		close(ch) // Tell client no more updates
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) notify(clientID string, u Update) {
	ch, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- u:
	default:
	}
}

func (r *Room) broadcast(u Update) {
	for id, ch := range r.clients {
		// Each client gets its own copy; outboxes are read on other goroutines.
		cp := u
		cp.Room = u.Room.Clone()
		select {
		case ch <- cp:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}
