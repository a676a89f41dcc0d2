// Package synchronizer binds per-room state changes to transport fan-out
// and persistence, generalized from the teacher's Room broadcast methods
// and Client.send channel (internal/v1/session/room.go, client.go): "send
// to everyone with a role" becomes "send to every registered PlayerId."
package synchronizer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/storage"
	"go.uber.org/zap"
)

// Frame is the wire envelope for every server-to-client unsolicited
// message, matching spec.md §6's unsolicited-message shape.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Publisher delivers an already-encoded frame to one connection. The
// ConnectionServer's hub implements this; tests can fake it directly. A
// publish failure (e.g. a full send buffer) must not block the caller or
// abort the broadcast to other connections, mirroring the teacher's
// select/default "drop rather than block" policy.
type Publisher interface {
	Publish(connID domain.ConnectionId, data []byte)
}

// Synchronizer is the per-room fan-out and persistence binding described
// in spec.md §4.3. It owns nothing but the PlayerId→ConnectionId
// subscriber map; Game and RoomManager state live elsewhere.
type Synchronizer struct {
	roomID domain.RoomId
	store  storage.Storage
	pub    Publisher

	mu          sync.RWMutex
	subscribers map[domain.PlayerId]domain.ConnectionId
}

func New(roomID domain.RoomId, store storage.Storage, pub Publisher) *Synchronizer {
	return &Synchronizer{
		roomID:      roomID,
		store:       store,
		pub:         pub,
		subscribers: make(map[domain.PlayerId]domain.ConnectionId),
	}
}

// RegisterPlayer inserts or updates the PlayerId→ConnectionId mapping.
// Last write wins, so calling this on reconnect with a new ConnectionId
// correctly supersedes the stale entry.
func (s *Synchronizer) RegisterPlayer(playerID domain.PlayerId, connID domain.ConnectionId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[playerID] = connID
}

func (s *Synchronizer) UnregisterPlayer(playerID domain.PlayerId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, playerID)
}

// ClearSubscribers drops the entire map, used on room deletion.
func (s *Synchronizer) ClearSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = make(map[domain.PlayerId]domain.ConnectionId)
}

// BroadcastState persists state then fans a state:update frame out to
// every currently-subscribed connection. Persistence precedes publish so
// a recovering client never observes a state newer than what Storage
// would return, per spec.md §4.3/§5.
func (s *Synchronizer) BroadcastState(state domain.GameState) {
	ctx := context.Background()
	if err := s.store.SaveGameState(ctx, s.roomID, state); err != nil {
		logging.Error(ctx, "failed to persist game state before broadcast",
			zap.String("room_id", string(s.roomID)), zap.Error(err))
	}

	data, err := json.Marshal(Frame{Type: "state:update", Payload: state})
	if err != nil {
		logging.Error(ctx, "failed to marshal state:update frame", zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, connID := range s.subscribers {
		s.pub.Publish(connID, data)
	}
}

// SendToPlayer fans a state:sync frame to the single connection mapped
// for playerID, or no-ops if the player has no current subscription. Used
// for reconnection hydration.
func (s *Synchronizer) SendToPlayer(playerID domain.PlayerId, state domain.GameState) {
	s.mu.RLock()
	connID, ok := s.subscribers[playerID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(Frame{Type: "state:sync", Payload: state})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal state:sync frame", zap.Error(err))
		return
	}
	s.pub.Publish(connID, data)
}

// BroadcastEvent fans a typed event:emit frame out to every subscribed
// connection. Well-known types are listed in spec.md §4.3; arbitrary
// game-defined types ride the same frame shape.
func (s *Synchronizer) BroadcastEvent(eventType string, payload any) {
	data, err := json.Marshal(Frame{Type: "event:emit", Payload: map[string]any{
		"type":    eventType,
		"payload": payload,
	}})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal event:emit frame",
			zap.String("event_type", eventType), zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, connID := range s.subscribers {
		s.pub.Publish(connID, data)
	}
}

// BroadcastRaw fans an already-typed frame (e.g. room:closed) out to every
// subscribed connection. Exposed for ConnectionServer's admin surface,
// which needs frame types this package does not otherwise name.
func (s *Synchronizer) BroadcastRaw(frameType string, payload any) {
	data, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal frame", zap.String("frame_type", frameType), zap.Error(err))
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, connID := range s.subscribers {
		s.pub.Publish(connID, data)
	}
}

// SendRawToPlayer fans an already-typed frame to a single player's
// connection, or no-ops if unsubscribed. Used by KickPlayer to deliver a
// targeted room:closed frame.
func (s *Synchronizer) SendRawToPlayer(playerID domain.PlayerId, frameType string, payload any) {
	s.mu.RLock()
	connID, ok := s.subscribers[playerID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	data, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal frame", zap.String("frame_type", frameType), zap.Error(err))
		return
	}
	s.pub.Publish(connID, data)
}

// ConnectionFor reports the connection currently mapped to playerID, if
// any. Used by KickPlayer to find the kicked player's connection so it can
// be unsubscribed and its context cleared.
func (s *Synchronizer) ConnectionFor(playerID domain.PlayerId) (domain.ConnectionId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok := s.subscribers[playerID]
	return connID, ok
}
