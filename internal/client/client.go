package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var ErrRoomNotFound = errors.New("room not found")

// Client mirrors one room. The server is the only writer; the local copy is
// replaced wholesale by any snapshot at or above the local version.
type Client struct {
	baseURL  string
	code     string
	playerID string
	name     string
	log      *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	mu      sync.RWMutex
	version int
	room    engine.Room

	updates chan types.ServerMessage
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithBackoff bounds the wait between reconnect attempts.
func WithBackoff(first, limit time.Duration) Option {
	return func(c *Client) { c.minBackoff, c.maxBackoff = first, limit }
}

// Dial bootstraps the room over HTTP and then opens the broadcast channel.
func Dial(ctx context.Context, baseURL, code, playerID, name string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		code:       code,
		playerID:   playerID,
		name:       name,
		log:        zap.NewNop(),
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
		updates:    make(chan types.ServerMessage, 32),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// connect fetches the stored document, adopts it, then opens the socket.
func (c *Client) connect(ctx context.Context) error {
	snap, err := fetchRoom(ctx, c.baseURL, c.code)
	if err != nil {
		return err
	}
	c.reset(snap.Version, snap.Room)

	wsURL, err := socketURL(c.baseURL, c.code, c.playerID, c.name)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.code, err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed {
		conn.Close(websocket.StatusNormalClosure, "bye")
		return net.ErrClosed
	}
	c.conn = conn
	return nil
}

func fetchRoom(ctx context.Context, baseURL, code string) (types.RoomSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/rooms/"+url.PathEscape(code), nil)
	if err != nil {
		return types.RoomSnapshot{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.RoomSnapshot{}, fmt.Errorf("fetch room %s: %w", code, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return types.RoomSnapshot{}, ErrRoomNotFound
	default:
		return types.RoomSnapshot{}, fmt.Errorf("fetch room %s: unexpected status %d", code, resp.StatusCode)
	}

	var snap types.RoomSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return types.RoomSnapshot{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	return snap, nil
}

func socketURL(baseURL, code, playerID, name string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("code", code)
	if playerID != "" {
		q.Set("player", playerID)
	}
	if name != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run reads the broadcast channel until ctx ends or Close is called. A
// dropped connection is re-established with backoff, bootstrapping from the
// stored document each time. A room that no longer exists ends Run.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)
	backoff := c.minBackoff
	for {
		err := c.readLoop(ctx)
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}
		c.log.Info("connection lost, reconnecting", zap.String("room", c.code), zap.Error(err))

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)

			err := c.connect(ctx)
			if err == nil {
				backoff = c.minBackoff
				break
			}
			if errors.Is(err, ErrRoomNotFound) {
				return err
			}
			if c.isClosed() || ctx.Err() != nil {
				return nil
			}
			c.log.Debug("reconnect failed", zap.String("room", c.code), zap.Error(err))
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	conn := c.current()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", c.code, err)
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}
		if msg.Type == types.MsgStateSnapshot && msg.Room != nil {
			c.apply(msg.Version, *msg.Room)
		}

		select {
		case c.updates <- msg:
		default:
			// Nobody is listening; the snapshot is already applied.
		}
	}
}

func (c *Client) apply(version int, room engine.Room) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version < c.version {
		return false
	}
	c.version, c.room = version, room
	return true
}

// reset adopts a bootstrap read regardless of the local version; after a
// reconnect the stored document is the source of truth.
func (c *Client) reset(version int, room engine.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version, c.room = version, room
}

func (c *Client) current() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.closed
}

func (c *Client) Send(ctx context.Context, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.current().Write(ctx, websocket.MessageText, payload)
}

// Snapshot returns a private copy of the latest known document.
func (c *Client) Snapshot() (int, engine.Room) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, c.room.Clone()
}

func (c *Client) Updates() <-chan types.ServerMessage { return c.updates }

func (c *Client) PlayerID() string { return c.playerID }

func (c *Client) Close() error {
	c.connMu.Lock()
	c.closed = true
	conn := c.conn
	c.connMu.Unlock()

	c.log.Debug("client closed", zap.String("room", c.code))
	return conn.Close(websocket.StatusNormalClosure, "bye")
}
