package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/hub"
	"github.com/DoyleJ11/kostky-backend/internal/room"
	"github.com/DoyleJ11/kostky-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEngineCommand(t *testing.T) {
	tests := []struct {
		in   types.ClientMessage
		want engine.Command
		ok   bool
	}{
		{types.ClientMessage{Type: "Roll"}, engine.Command{Type: engine.CmdRoll, Actor: "p1"}, true},
		{types.ClientMessage{Type: "TakeDie", Index: 4}, engine.Command{Type: engine.CmdTakeDie, Actor: "p1", Index: 4}, true},
		{types.ClientMessage{Type: "Chat", Text: "gg"}, engine.Command{Type: engine.CmdChat, Actor: "p1", Text: "gg"}, true},
		{types.ClientMessage{Type: "Join", Name: "Ann"}, engine.Command{Type: engine.CmdJoin, Actor: "p1", Name: "Ann"}, true},
		{types.ClientMessage{Type: "Bank"}, engine.Command{Type: engine.CmdBank, Actor: "p1"}, true},
		{types.ClientMessage{Type: "SettleRoll"}, engine.Command{}, false},
		{types.ClientMessage{Type: "Nope"}, engine.Command{}, false},
	}
	for _, tt := range tests {
		got, ok := toEngineCommand(tt.in, "p1")
		assert.Equal(t, tt.ok, ok, tt.in.Type)
		assert.Equal(t, tt.want, got, tt.in.Type)
	}
}

func TestToServerMessage(t *testing.T) {
	errMsg := toServerMessage(room.Update{Version: 3, Error: "not your turn"})
	assert.Equal(t, types.MsgError, errMsg.Type)
	assert.Nil(t, errMsg.Room)

	snap := toServerMessage(room.Update{Version: 4, Room: engine.NewEmptyRoom()})
	assert.Equal(t, types.MsgStateSnapshot, snap.Type)
	require.NotNil(t, snap.Room)
	assert.Equal(t, 4, snap.Version)
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandler_JoinAndErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHub(ctx, hub.Config{Engine: engine.New(engine.DefaultRules(), engine.NewScriptedRoller())})
	_, err := h.Create(ctx, "WS0001")
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(h, Config{}))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.Dial(ctx, base+"?code=MISSING", nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, base+"?code=WS0001&player=p1&name=Ann", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readMsg(t, ctx, conn)
	assert.Equal(t, types.MsgStateSnapshot, first.Type)
	assert.Equal(t, 0, first.Version)

	joined := readMsg(t, ctx, conn)
	require.NotNil(t, joined.Room)
	assert.Equal(t, 1, joined.Version)
	assert.Equal(t, "Ann", joined.Room.Players["p1"].Name)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	bad := readMsg(t, ctx, conn)
	assert.Equal(t, types.MsgError, bad.Type)
	assert.Equal(t, "bad json", bad.Error)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Bank"}`)))
	rejected := readMsg(t, ctx, conn)
	assert.Equal(t, types.MsgError, rejected.Type)
	assert.Equal(t, engine.ErrWrongStatus.Error(), rejected.Error)
}

func TestHandler_ListenOnlyClientStaysConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHub(ctx, hub.Config{Engine: engine.New(engine.DefaultRules(), engine.NewScriptedRoller())})
	_, err := h.Create(ctx, "WS0002")
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(h, Config{PingInterval: 30 * time.Millisecond}))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "?code=WS0002"

	watcher, _, err := websocket.Dial(ctx, base+"&player=w", nil)
	require.NoError(t, err)
	defer watcher.Close(websocket.StatusNormalClosure, "")

	// The watcher never writes; its reads answer the server's pings.
	received := make(chan types.ServerMessage, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := watcher.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			var msg types.ServerMessage
			if json.Unmarshal(data, &msg) == nil {
				received <- msg
			}
		}
	}()

	talker, _, err := websocket.Dial(ctx, base+"&player=t&name=Tom", nil)
	require.NoError(t, err)
	defer talker.Close(websocket.StatusNormalClosure, "")

	for i := 0; i < 5; i++ {
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, talker.Write(ctx, websocket.MessageText, []byte(`{"type":"Chat","text":"ping"}`)))
	}

	// Initial snapshot, Tom seated, then five chats.
	deadline := time.After(2 * time.Second)
	last := 0
	for last < 6 {
		select {
		case msg := <-received:
			last = msg.Version
		case err := <-readErr:
			t.Fatalf("listen-only connection dropped at version %d: %v", last, err)
		case <-deadline:
			t.Fatalf("timed out at version %d", last)
		}
	}
}
