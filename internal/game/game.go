// Package game defines the capability contract Bonfire's core depends on
// (spec.md §4.2), generalized from the teacher's Roomer interface
// (internal/v1/session/client.go): a narrow set of methods the transport
// layer calls without knowing the concrete rule implementation.
package game

import (
	"time"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
)

// Config describes the static, read-only parameters a Game declares about
// itself. The Game enforces its own join/size limits; the core only reads
// MaxPlayers for the admin "maxPlayers" view and never interprets Phases
// beyond using it as a label.
type Config struct {
	MinPlayers          int
	MaxPlayers          int
	Phases              []string
	DisconnectTimeout   time.Duration
	AllowJoinInProgress bool
}

// ActionResult is the pass-through return value of HandleAction.
type ActionResult struct {
	Success bool
	Data    any
	Code    apperror.Code
	Message string
}

// Result is the pass-through return value of JoinPlayer/LeavePlayer/StartGame.
type Result struct {
	Success bool
	Code    apperror.Code
	Message string
}

func Ok() Result { return Result{Success: true} }

func Fail(code apperror.Code, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}

func ActionOk(data any) ActionResult { return ActionResult{Success: true, Data: data} }

func ActionFail(code apperror.Code, message string) ActionResult {
	return ActionResult{Success: false, Code: code, Message: message}
}

// Game is the polymorphic capability the core consumes. The core neither
// interprets actionType nor validates game-specific payloads beyond what
// this contract names; everything else is the Game's concern (spec.md
// §4.2). Implementations call the Synchronizer they were constructed with
// to emit state updates — the core never polls a Game for changes.
type Game interface {
	Config() Config
	State() domain.GameState
	Players() []domain.Player

	JoinPlayer(p domain.Player) Result
	LeavePlayer(id domain.PlayerId) Result
	DisconnectPlayer(id domain.PlayerId)
	// ReconnectPlayer cancels id's pending disconnect-timeout removal and
	// marks it connected again. Returns PlayerNotFound if id was already
	// removed (the disconnect timer fired before the client came back).
	ReconnectPlayer(id domain.PlayerId) Result

	StartGame() Result
	EndGame()

	HandleAction(id domain.PlayerId, actionType string, payload any) ActionResult
}

// Factory constructs a Game bound to a room and the Synchronizer it should
// publish updates through. RoomManager.CreateRoom calls exactly one Factory
// per room, per spec.md §4.4.
type Factory func(roomID domain.RoomId, sync StateSink, gameType string) (Game, error)

// StateSink is the slice of Synchronizer a Game needs to publish updates —
// narrower than the full synchronizer.Synchronizer surface so this package
// has no import-cycle dependency on synchronizer's connection-registration
// concerns.
type StateSink interface {
	BroadcastState(state domain.GameState)
	BroadcastEvent(eventType string, payload any)
}
