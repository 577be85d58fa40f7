package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/DoyleJ11/kostky-backend/internal/hub"
	"github.com/DoyleJ11/kostky-backend/internal/leaderboard"
	"github.com/DoyleJ11/kostky-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBoard struct {
	entries []leaderboard.Entry
	err     error
	limit   int
}

func (s *stubBoard) Top(_ context.Context, limit int) ([]leaderboard.Entry, error) {
	s.limit = limit
	return s.entries, s.err
}

func newTestServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if d.Hub == nil {
		d.Hub = hub.NewHub(ctx, hub.Config{Engine: engine.New(engine.DefaultRules(), engine.NewScriptedRoller())})
	}
	srv := httptest.NewServer(SetupRoutes(d))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
}

func TestCreateAndGetRoom(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created types.CreatedRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.Code, 6)

	got, err := http.Get(srv.URL + "/rooms/" + created.Code)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)

	var snap types.RoomSnapshot
	require.NoError(t, json.NewDecoder(got.Body).Decode(&snap))
	assert.Equal(t, created.Code, snap.Code)
	assert.Equal(t, 0, snap.Version)
	assert.Equal(t, engine.StatusLobby, snap.Room.Status)
}

func TestCreateRoom_RetriesCollisions(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	srv := newTestServer(t, Deps{GenerateCode: gen})

	for _, want := range []string{"AAAAAA", "BBBBBB"} {
		resp, err := http.Post(srv.URL+"/rooms", "application/json", nil)
		require.NoError(t, err)
		var created types.CreatedRoom
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		resp.Body.Close()
		assert.Equal(t, want, created.Code)
	}
}

func TestCreateRoom_GeneratorFailure(t *testing.T) {
	srv := newTestServer(t, Deps{GenerateCode: func() (string, error) { return "", errors.New("no entropy") }})

	resp, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetRoom_NotFound(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/rooms/ZZZZZZ")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnloadRoom(t *testing.T) {
	srv := newTestServer(t, Deps{GenerateCode: func() (string, error) { return "UNL001", nil }})

	resp, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	unload := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/rooms/UNL001", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, unload())
	assert.Equal(t, http.StatusNotFound, unload())

	got, err := http.Get(srv.URL + "/rooms/UNL001")
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestLeaderboard(t *testing.T) {
	board := &stubBoard{entries: []leaderboard.Entry{{RoomCode: "R1", PlayerID: "a", Name: "Ann", Score: 10200, Won: true}}}
	srv := newTestServer(t, Deps{Leaderboard: board})

	resp, err := http.Get(srv.URL + "/leaderboard?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []leaderboard.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 10200, entries[0].Score)
	assert.Equal(t, 5, board.limit)

	bad, err := http.Get(srv.URL + "/leaderboard?limit=abc")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestLeaderboard_ReadFailure(t *testing.T) {
	srv := newTestServer(t, Deps{Leaderboard: &stubBoard{err: leaderboard.ErrUnexpectedDatabase}})

	resp, err := http.Get(srv.URL + "/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
