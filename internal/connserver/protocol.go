// Package connserver terminates realtime transport, parses the wire
// protocol, dispatches requests into RoomManager/Game/Synchronizer, and
// exposes the administrative side-channel (spec.md §4.5). Grounded on the
// teacher's Hub/Client pair (internal/v1/session/hub.go, client.go,
// handlers.go): WebSocket upgrade, per-connection read/write pumps, and a
// payload-assertion-then-dispatch router, generalized from protobuf
// Event-enum dispatch to this domain's JSON message-type dispatch.
package connserver

import "encoding/json"

// InboundMessage is the envelope every client request carries, per
// spec.md §6: a message type, a correlator for the acknowledgement, and a
// type-specific payload carried as raw JSON until the handler asserts it.
type InboundMessage struct {
	Type          string          `json:"type"`
	CorrelationId string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Ack is the envelope every request acknowledgement carries.
type Ack struct {
	Success       bool   `json:"success"`
	CorrelationId string `json:"correlationId,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
	Payload       any    `json:"payload,omitempty"`
}

const (
	MsgRoomCreate   = "room:create"
	MsgRoomJoin     = "room:join"
	MsgRoomLeave    = "room:leave"
	MsgGameStart    = "game:start"
	MsgGameAction   = "game:action"
	MsgStateRequest = "state:request"
)

type RoomCreatePayload struct {
	GameType string `json:"gameType"`
	HostName string `json:"hostName"`
}

type RoomJoinPayload struct {
	RoomId     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

type GameActionPayload struct {
	ActionType string `json:"actionType"`
	Payload    any    `json:"payload"`
}

// StateRequestPayload carries the identity a reconnecting client proves it
// held before its previous ConnectionId dropped. A connection that already
// has a ConnectionContext (never disconnected) ignores this and refreshes
// off its own context instead; this payload only matters on the first
// state:request a brand-new connection sends after a disconnect, per
// spec.md §4.5's reconnection seam.
type StateRequestPayload struct {
	RoomId   string `json:"roomId,omitempty"`
	PlayerId string `json:"playerId,omitempty"`
}

// assertPayload unmarshals raw into T, the same re-marshal-free path the
// teacher's assertPayload[T] generic takes for the "raw bytes" case —
// here simplified to the single source shape ConnectionServer ever sees
// (json.RawMessage off the wire).
func assertPayload[T any](raw json.RawMessage) (T, bool) {
	var out T
	if len(raw) == 0 {
		return out, true
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}
