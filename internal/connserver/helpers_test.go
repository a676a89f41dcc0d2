package connserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Novapool/bonfire/internal/game"
	"github.com/Novapool/bonfire/internal/roommgr"
	"github.com/Novapool/bonfire/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestHub builds a Hub wired to a real in-memory RoomManager and Lobby
// game factory, the same combination cmd/bonfire-server wires in
// production, so dispatch/admin tests exercise real join/leave/start
// semantics rather than mocks.
func newTestHub(t *testing.T, opts ...func(*Config)) *Hub {
	t.Helper()
	mem := storage.NewMemory()
	require.NoError(t, mem.Initialize(context.Background()))

	cfg := Config{DefaultGameType: "lobby"}
	for _, opt := range opts {
		opt(&cfg)
	}

	hub := NewHub(nil, cfg)
	factory := game.NewLobbyFactory(game.Config{MinPlayers: 1, MaxPlayers: 4})
	rooms := roommgr.New(roommgr.Config{}, mem, factory, hub)
	hub.SetRooms(rooms)
	return hub
}

func withAdminKey(key string) func(*Config) {
	return func(c *Config) { c.AdminKey = key }
}

// newTestGinContext builds a *gin.Context carrying the given request
// headers, for exercising handlers that only read from c.Request/c.Params
// without going through the full router.
func newTestGinContext(method, path string, headers map[string]string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

// recvAck drains one acknowledgement frame directly off a Client's send
// buffer. Dispatch tests don't run a real writePump, so reading the
// channel in-process stands in for it.
func recvAck(t *testing.T, c *Client) Ack {
	t.Helper()
	select {
	case data := <-c.send:
		var ack Ack
		require.NoError(t, json.Unmarshal(data, &ack))
		return ack
	case <-time.After(time.Second):
		t.Fatal("no acknowledgement received")
		return Ack{}
	}
}
