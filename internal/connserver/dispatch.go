package connserver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/metrics"
	"github.com/Novapool/bonfire/internal/roomcode"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dispatch parses one inbound frame and routes it to the matching
// handler, mirroring the teacher's router-then-handler split
// (internal/v1/session/handlers.go) generalized from protobuf Event enum
// dispatch to string message types.
func (h *Hub) dispatch(ctx context.Context, c *Client, raw []byte) {
	start := time.Now()
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.ack(c, "", false, apperror.New(apperror.InvalidInput, "malformed message"), nil)
		return
	}

	var ackErr error
	var payload any

	switch msg.Type {
	case MsgRoomCreate:
		payload, ackErr = h.handleRoomCreate(ctx, c, msg.Payload)
	case MsgRoomJoin:
		payload, ackErr = h.handleRoomJoin(ctx, c, msg.Payload)
	case MsgRoomLeave:
		payload, ackErr = h.handleRoomLeave(ctx, c)
	case MsgGameStart:
		payload, ackErr = h.handleGameStart(ctx, c)
	case MsgGameAction:
		payload, ackErr = h.handleGameAction(ctx, c, msg.Payload)
	case MsgStateRequest:
		payload, ackErr = h.handleStateRequest(ctx, c, msg.Payload)
	default:
		ackErr = apperror.New(apperror.InvalidInput, "unknown message type: "+msg.Type)
	}

	status := "ok"
	if ackErr != nil {
		status = "error"
	}
	metrics.MessagesTotal.WithLabelValues(msg.Type, status).Inc()
	metrics.MessageProcessingDuration.WithLabelValues(msg.Type).Observe(time.Since(start).Seconds())

	h.ack(c, msg.CorrelationId, ackErr == nil, ackErr, payload)
}

func (h *Hub) ack(c *Client, correlationID string, success bool, err error, payload any) {
	resp := Ack{Success: success, CorrelationId: correlationID, Payload: payload}
	if err != nil {
		resp.Error = apperror.MessageOf(err)
		resp.Code = string(apperror.CodeOf(err))
	}
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		logging.Error(context.Background(), "failed to marshal acknowledgement", zap.Error(marshalErr))
		return
	}
	c.enqueue(data)
}

func (h *Hub) handleRoomCreate(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	p, ok := assertPayload[RoomCreatePayload](raw)
	if !ok {
		return nil, apperror.New(apperror.InvalidInput, "malformed room:create payload")
	}
	if strings.TrimSpace(p.GameType) == "" {
		return nil, apperror.New(apperror.InvalidInput, "gameType must not be empty")
	}
	hostName := strings.TrimSpace(p.HostName)
	if hostName == "" {
		return nil, apperror.New(apperror.InvalidInput, "hostName must not be empty")
	}

	room, err := h.rooms.CreateRoom(ctx, p.GameType)
	if err != nil {
		return nil, err
	}

	hostID := domain.PlayerId(uuid.NewString())
	joinResult := room.Game.JoinPlayer(domain.Player{ID: hostID, Name: hostName, IsHost: true, JoinedAt: domain.NowMillis()})
	if !joinResult.Success {
		_ = h.rooms.DeleteRoom(ctx, room.RoomId)
		return nil, apperror.New(apperror.PlayerJoinFailed, joinResult.Message)
	}

	room.Synchronizer.RegisterPlayer(hostID, c.ID)
	h.rooms.TrackPlayer(hostID, room.RoomId)
	c.ctx.Set(hostID, room.RoomId)
	h.subscribe(room.RoomId, c.ID)
	_ = h.rooms.TouchActivity(ctx, room.RoomId)
	_ = h.rooms.UpdateRoomMetadata(ctx, room.RoomId, func(meta *domain.RoomMetadata) {
		meta.PlayerCount = 1
		meta.HostPlayerId = hostID
	})
	metrics.RoomsCreatedTotal.Inc()

	return map[string]any{"roomId": room.RoomId, "playerId": hostID, "state": room.Game.State()}, nil
}

func (h *Hub) handleRoomJoin(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	p, ok := assertPayload[RoomJoinPayload](raw)
	if !ok {
		return nil, apperror.New(apperror.InvalidInput, "malformed room:join payload")
	}
	playerName := strings.TrimSpace(p.PlayerName)
	if strings.TrimSpace(p.RoomId) == "" || playerName == "" {
		return nil, apperror.New(apperror.InvalidInput, "roomId and playerName must not be empty")
	}

	roomID := roomcode.Normalize(p.RoomId)
	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	playerID := domain.PlayerId(uuid.NewString())
	joinResult := room.Game.JoinPlayer(domain.Player{ID: playerID, Name: playerName, JoinedAt: domain.NowMillis()})
	if !joinResult.Success {
		code := joinResult.Code
		if code == "" {
			code = apperror.PlayerJoinFailed
		}
		return nil, apperror.New(code, joinResult.Message)
	}

	room.Synchronizer.RegisterPlayer(playerID, c.ID)
	h.rooms.TrackPlayer(playerID, roomID)
	c.ctx.Set(playerID, roomID)
	h.subscribe(roomID, c.ID)
	_ = h.rooms.TouchActivity(ctx, roomID)
	_ = h.rooms.UpdateRoomMetadata(ctx, roomID, func(meta *domain.RoomMetadata) {
		meta.PlayerCount = len(room.Game.Players())
	})

	return map[string]any{"playerId": playerID, "state": room.Game.State()}, nil
}

func (h *Hub) handleRoomLeave(ctx context.Context, c *Client) (any, error) {
	playerID, roomID, joined := c.ctx.Get()
	if !joined {
		return nil, apperror.New(apperror.NotInRoom, "connection has no room association")
	}

	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		c.ctx.Clear()
		return nil, err
	}
	if res := room.Game.LeavePlayer(playerID); !res.Success {
		return nil, apperror.New(res.Code, res.Message)
	}

	room.Synchronizer.UnregisterPlayer(playerID)
	h.rooms.UntrackPlayer(playerID)
	h.unsubscribe(roomID, c.ID)
	c.ctx.Clear()

	_ = h.rooms.TouchActivity(ctx, roomID)
	_ = h.rooms.UpdateRoomMetadata(ctx, roomID, func(meta *domain.RoomMetadata) {
		meta.PlayerCount = len(room.Game.Players())
	})
	return map[string]any{}, nil
}

func (h *Hub) handleGameStart(ctx context.Context, c *Client) (any, error) {
	playerID, roomID, joined := c.ctx.Get()
	if !joined {
		return nil, apperror.New(apperror.NotInRoom, "connection has no room association")
	}
	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	isHost := false
	for _, p := range room.Game.Players() {
		if p.ID == playerID && p.IsHost {
			isHost = true
			break
		}
	}
	if !isHost {
		return nil, apperror.New(apperror.Unauthorized, "only the host may start the game")
	}

	res := room.Game.StartGame()
	if !res.Success {
		return nil, apperror.New(res.Code, res.Message)
	}
	_ = h.rooms.UpdateRoomMetadata(ctx, roomID, func(meta *domain.RoomMetadata) {
		meta.Status = domain.RoomStatusPlaying
	})
	return map[string]any{}, nil
}

func (h *Hub) handleGameAction(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	playerID, roomID, joined := c.ctx.Get()
	if !joined {
		return nil, apperror.New(apperror.NotInRoom, "connection has no room association")
	}
	p, ok := assertPayload[GameActionPayload](raw)
	if !ok {
		return nil, apperror.New(apperror.InvalidInput, "malformed game:action payload")
	}
	if strings.TrimSpace(p.ActionType) == "" {
		return nil, apperror.New(apperror.InvalidInput, "actionType must not be empty")
	}

	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	result := room.Game.HandleAction(playerID, p.ActionType, p.Payload)
	_ = h.rooms.TouchActivity(ctx, roomID)
	if !result.Success {
		return nil, apperror.New(result.Code, result.Message)
	}
	return map[string]any{"data": result.Data}, nil
}

func (h *Hub) handleStateRequest(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	playerID, roomID, joined := c.ctx.Get()
	if !joined {
		return h.handleReconnect(ctx, c, raw)
	}
	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	// Re-register under the (possibly unchanged) PlayerId so a repeated
	// state:request on an already-associated connection supersedes any
	// stale ConnectionId, per spec.md §4.5.
	room.Synchronizer.RegisterPlayer(playerID, c.ID)
	h.subscribe(roomID, c.ID)
	_ = h.rooms.TouchActivity(ctx, roomID)
	return map[string]any{"state": room.Game.State()}, nil
}

// handleReconnect is the reconnection seam: a brand-new connection (no
// ConnectionContext yet, because its predecessor's readPump exited and
// handleDisconnect cleared the old one) proves its prior PlayerId/RoomId
// via the state:request payload. On success it rebinds that PlayerId to
// this connection, cancels the Game's pending disconnect-timeout removal,
// and restores the player to subscribed, connected status — satisfying
// spec.md §4.5/§8 scenario 5 ("reconnection within the window cancels the
// timeout; isConnected reflects reconnect").
func (h *Hub) handleReconnect(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
	p, ok := assertPayload[StateRequestPayload](raw)
	if !ok {
		return nil, apperror.New(apperror.InvalidInput, "malformed state:request payload")
	}
	roomID := roomcode.Normalize(p.RoomId)
	playerID := domain.PlayerId(strings.TrimSpace(p.PlayerId))
	if roomID == "" || playerID == "" {
		return nil, apperror.New(apperror.NotInRoom, "connection has no room association")
	}

	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if res := room.Game.ReconnectPlayer(playerID); !res.Success {
		return nil, apperror.New(res.Code, res.Message)
	}

	room.Synchronizer.RegisterPlayer(playerID, c.ID)
	h.rooms.TrackPlayer(playerID, roomID)
	c.ctx.Set(playerID, roomID)
	h.subscribe(roomID, c.ID)
	_ = h.rooms.TouchActivity(ctx, roomID)
	return map[string]any{"state": room.Game.State()}, nil
}
