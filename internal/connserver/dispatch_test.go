package connserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Novapool/bonfire/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, id string) (*Client, *fakeConn) {
	conn := newFakeConn()
	c := newClient(domain.ConnectionId(id), conn, h)
	c.send = make(chan []byte, 16)
	h.mu.Lock()
	h.connections[c.ID] = c
	h.mu.Unlock()
	return c, conn
}

func decodeAck(t *testing.T, raw []byte) Ack {
	t.Helper()
	var ack Ack
	require.NoError(t, json.Unmarshal(raw, &ack))
	return ack
}

func TestDispatchUnknownMessageType(t *testing.T) {
	h := newTestHub(t)
	c, _ := newTestClient(h, "c1")

	h.dispatch(context.Background(), c, []byte(`{"type":"nonsense","correlationId":"x1"}`))

	ack := recvAck(t, c)
	assert.False(t, ack.Success)
	assert.Equal(t, "INVALID_INPUT", ack.Code)
	assert.Equal(t, "x1", ack.CorrelationId)
}

func TestDispatchMalformedEnvelope(t *testing.T) {
	h := newTestHub(t)
	c, _ := newTestClient(h, "c1")

	h.dispatch(context.Background(), c, []byte(`not json`))

	ack := recvAck(t, c)
	assert.False(t, ack.Success)
	assert.Equal(t, "INVALID_INPUT", ack.Code)
}

func TestDispatchRoomCreateJoinStartActionLeave(t *testing.T) {
	h := newTestHub(t)
	host, _ := newTestClient(h, "host-conn")

	h.dispatch(context.Background(), host, []byte(`{"type":"room:create","correlationId":"a1","payload":{"gameType":"lobby","hostName":"Ada"}}`))
	createAck := recvAck(t, host)
	require.True(t, createAck.Success)
	createPayload := createAck.Payload.(map[string]any)
	roomID := createPayload["roomId"].(string)
	require.NotEmpty(t, roomID)

	hostPlayerID, _, joined := host.ctx.Get()
	require.True(t, joined)
	require.NotEmpty(t, hostPlayerID)

	guest, _ := newTestClient(h, "guest-conn")
	joinMsg := `{"type":"room:join","correlationId":"a2","payload":{"roomId":"` + roomID + `","playerName":"Grace"}}`
	h.dispatch(context.Background(), guest, []byte(joinMsg))
	joinAck := recvAck(t, guest)
	require.True(t, joinAck.Success)

	// Only the host may start the game.
	h.dispatch(context.Background(), guest, []byte(`{"type":"game:start","correlationId":"a3"}`))
	guestStartAck := recvAck(t, guest)
	assert.False(t, guestStartAck.Success)
	assert.Equal(t, "UNAUTHORIZED", guestStartAck.Code)

	h.dispatch(context.Background(), host, []byte(`{"type":"game:start","correlationId":"a4"}`))
	hostStartAck := recvAck(t, host)
	assert.True(t, hostStartAck.Success)

	h.dispatch(context.Background(), guest, []byte(`{"type":"game:action","correlationId":"a5","payload":{"actionType":"noop"}}`))
	actionAck := recvAck(t, guest)
	// Lobby has no action types implemented; every one reports NOT_IMPLEMENTED.
	assert.False(t, actionAck.Success)
	assert.Equal(t, "NOT_IMPLEMENTED", actionAck.Code)

	h.dispatch(context.Background(), guest, []byte(`{"type":"room:leave","correlationId":"a6"}`))
	leaveAck := recvAck(t, guest)
	assert.True(t, leaveAck.Success)
	_, _, stillJoined := guest.ctx.Get()
	assert.False(t, stillJoined)
}

func TestDispatchRoomJoinValidation(t *testing.T) {
	h := newTestHub(t)
	c, _ := newTestClient(h, "c1")

	h.dispatch(context.Background(), c, []byte(`{"type":"room:join","correlationId":"j1","payload":{"roomId":"","playerName":""}}`))
	ack := recvAck(t, c)
	assert.False(t, ack.Success)
	assert.Equal(t, "INVALID_INPUT", ack.Code)
}

func TestDispatchRoomJoinUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	c, _ := newTestClient(h, "c1")

	h.dispatch(context.Background(), c, []byte(`{"type":"room:join","correlationId":"j2","payload":{"roomId":"ZZZZZZ","playerName":"Nobody"}}`))
	ack := recvAck(t, c)
	assert.False(t, ack.Success)
	assert.Equal(t, "ROOM_NOT_FOUND", ack.Code)
}

func TestDispatchActionsRequireRoomAssociation(t *testing.T) {
	h := newTestHub(t)
	c, _ := newTestClient(h, "c1")

	h.dispatch(context.Background(), c, []byte(`{"type":"game:start","correlationId":"s1"}`))
	ack := recvAck(t, c)
	assert.False(t, ack.Success)
	assert.Equal(t, "NOT_IN_ROOM", ack.Code)
}

func TestDispatchStateRequestWithoutIdentityIsNotInRoom(t *testing.T) {
	h := newTestHub(t)
	c, _ := newTestClient(h, "c1")

	h.dispatch(context.Background(), c, []byte(`{"type":"state:request","correlationId":"s1"}`))
	ack := recvAck(t, c)
	assert.False(t, ack.Success)
	assert.Equal(t, "NOT_IN_ROOM", ack.Code)
}

func TestDispatchStateRequestReconnectsUnderNewConnection(t *testing.T) {
	h := newTestHub(t)
	host, _ := newTestClient(h, "host-conn")
	h.dispatch(context.Background(), host, []byte(`{"type":"room:create","correlationId":"r1","payload":{"gameType":"lobby","hostName":"Ada"}}`))
	createAck := recvAck(t, host)
	createPayload := createAck.Payload.(map[string]any)
	roomID := createPayload["roomId"].(string)
	hostPlayerID, _, _ := host.ctx.Get()

	// The original connection drops: handleDisconnect tells the Game the
	// player disconnected (starting its timeout) and clears the old
	// connection's context, exactly as a real socket error would.
	h.handleDisconnect(host)
	_, _, stillJoined := host.ctx.Get()
	require.False(t, stillJoined)

	room, err := h.rooms.GetRoom(domain.RoomId(roomID))
	require.NoError(t, err)
	for _, p := range room.Game.Players() {
		if p.ID == hostPlayerID {
			require.False(t, p.IsConnected)
		}
	}

	// A brand-new connection (fresh ConnectionId, no ConnectionContext)
	// reconnects by proving its prior identity in the state:request
	// payload — the real reconnection seam, not a manually seeded context.
	reconnected, _ := newTestClient(h, "host-conn-2")
	reconnectMsg := `{"type":"state:request","correlationId":"r2","payload":{"roomId":"` + roomID + `","playerId":"` + string(hostPlayerID) + `"}}`
	h.dispatch(context.Background(), reconnected, []byte(reconnectMsg))
	ack := recvAck(t, reconnected)
	require.True(t, ack.Success)

	connID, ok := room.Synchronizer.ConnectionFor(hostPlayerID)
	require.True(t, ok)
	assert.Equal(t, reconnected.ID, connID)

	reconnectedPlayerID, reconnectedRoomID, joined := reconnected.ctx.Get()
	require.True(t, joined)
	assert.Equal(t, hostPlayerID, reconnectedPlayerID)
	assert.Equal(t, domain.RoomId(roomID), reconnectedRoomID)

	for _, p := range room.Game.Players() {
		if p.ID == hostPlayerID {
			assert.True(t, p.IsConnected)
		}
	}
}
