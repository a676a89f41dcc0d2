package game

import (
	"sort"
	"sync"
	"time"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
)

// Lobby phases, declared in the order a room moves through them.
const (
	PhaseLobby    = "lobby"
	PhaseActive   = "active"
	PhaseFinished = "finished"
)

// Lobby is the reference Game implementation: a minimal state machine with
// a waiting room, a single active phase, and host reassignment on
// departure. It exists so the rest of the runtime is exercisable end to
// end without a real game plugged in, generalized from the teacher's
// Room (handleClientConnect, host promotion, draw-order admission) —
// "video conference roles" become "game phases and players."
type Lobby struct {
	mu     sync.Mutex
	roomID domain.RoomId
	sink   StateSink
	cfg    Config

	players map[domain.PlayerId]*domain.Player
	order   []domain.PlayerId // join order, oldest first
	phase   string

	disconnectTimers map[domain.PlayerId]*time.Timer
}

// NewLobbyFactory returns a Factory producing Lobby instances, all sharing
// the same Config. gameType is accepted to satisfy the Factory signature
// but otherwise unused — Lobby is a single rule set regardless of the
// caller-supplied label.
func NewLobbyFactory(cfg Config) Factory {
	return func(roomID domain.RoomId, sink StateSink, gameType string) (Game, error) {
		return NewLobby(roomID, sink, cfg), nil
	}
}

func NewLobby(roomID domain.RoomId, sink StateSink, cfg Config) *Lobby {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = 8
	}
	if cfg.MinPlayers <= 0 {
		cfg.MinPlayers = 2
	}
	if len(cfg.Phases) == 0 {
		cfg.Phases = []string{PhaseLobby, PhaseActive, PhaseFinished}
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = 30 * time.Second
	}
	return &Lobby{
		roomID:           roomID,
		sink:             sink,
		cfg:              cfg,
		players:          make(map[domain.PlayerId]*domain.Player),
		phase:            PhaseLobby,
		disconnectTimers: make(map[domain.PlayerId]*time.Timer),
	}
}

func (l *Lobby) Config() Config { return l.cfg }

func (l *Lobby) State() domain.GameState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Lobby) stateLocked() domain.GameState {
	players := make([]domain.Player, 0, len(l.order))
	for _, id := range l.order {
		if p, ok := l.players[id]; ok {
			players = append(players, *p)
		}
	}
	return domain.GameState{
		RoomId:      l.roomID,
		Phase:       l.phase,
		Players:     players,
		PlayerOrder: append([]domain.PlayerId(nil), l.order...),
	}
}

func (l *Lobby) Players() []domain.Player {
	return l.State().Players
}

func (l *Lobby) JoinPlayer(p domain.Player) Result {
	l.mu.Lock()

	if _, exists := l.players[p.ID]; exists {
		l.mu.Unlock()
		return Fail(apperror.PlayerJoinFailed, "player already in room")
	}
	if len(l.order) >= l.cfg.MaxPlayers {
		l.mu.Unlock()
		return Fail(apperror.RoomFull, "room is at capacity")
	}
	if l.phase != PhaseLobby && !l.cfg.AllowJoinInProgress {
		l.mu.Unlock()
		return Fail(apperror.PlayerJoinFailed, "game already in progress")
	}

	if len(l.order) == 0 {
		p.IsHost = true
	}
	p.IsConnected = true
	if p.JoinedAt == 0 {
		p.JoinedAt = domain.NowMillis()
	}
	stored := p
	l.players[p.ID] = &stored
	l.order = append(l.order, p.ID)
	state := l.stateLocked()
	l.mu.Unlock()

	l.sink.BroadcastState(state)
	l.sink.BroadcastEvent("player:joined", map[string]any{"playerId": p.ID, "name": p.Name})
	return Ok()
}

func (l *Lobby) LeavePlayer(id domain.PlayerId) Result {
	l.mu.Lock()
	if _, exists := l.players[id]; !exists {
		l.mu.Unlock()
		return Fail(apperror.PlayerNotFound, "player not in room")
	}
	l.cancelDisconnectTimerLocked(id)
	l.removePlayerLocked(id)
	state := l.stateLocked()
	l.mu.Unlock()

	l.sink.BroadcastState(state)
	l.sink.BroadcastEvent("player:left", map[string]any{"playerId": id})
	return Ok()
}

// removePlayerLocked deletes id and, if it was the host, promotes the
// remaining player with the lowest JoinedAt. Callers must hold l.mu.
func (l *Lobby) removePlayerLocked(id domain.PlayerId) {
	wasHost := false
	if p, ok := l.players[id]; ok {
		wasHost = p.IsHost
	}
	delete(l.players, id)
	for i, pid := range l.order {
		if pid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if !wasHost || len(l.order) == 0 {
		return
	}
	remaining := make([]*domain.Player, 0, len(l.order))
	for _, pid := range l.order {
		if p, ok := l.players[pid]; ok {
			remaining = append(remaining, p)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].JoinedAt < remaining[j].JoinedAt })
	if len(remaining) > 0 {
		remaining[0].IsHost = true
	}
}

func (l *Lobby) DisconnectPlayer(id domain.PlayerId) {
	l.mu.Lock()
	p, exists := l.players[id]
	if !exists {
		l.mu.Unlock()
		return
	}
	p.IsConnected = false
	l.cancelDisconnectTimerLocked(id)
	timeout := l.cfg.DisconnectTimeout
	l.disconnectTimers[id] = time.AfterFunc(timeout, func() {
		l.LeavePlayer(id)
	})
	state := l.stateLocked()
	l.mu.Unlock()

	l.sink.BroadcastState(state)
}

// ReconnectPlayer cancels id's pending disconnect-timeout removal (lobby.go
// DisconnectPlayer) and marks it connected again, broadcasting the
// resulting state so every other subscriber sees IsConnected flip back.
func (l *Lobby) ReconnectPlayer(id domain.PlayerId) Result {
	l.mu.Lock()
	p, exists := l.players[id]
	if !exists {
		l.mu.Unlock()
		return Fail(apperror.PlayerNotFound, "player not in room")
	}
	l.cancelDisconnectTimerLocked(id)
	p.IsConnected = true
	state := l.stateLocked()
	l.mu.Unlock()

	l.sink.BroadcastState(state)
	return Ok()
}

// cancelDisconnectTimerLocked stops and removes id's pending departure
// timer, if any. Callers must hold l.mu.
func (l *Lobby) cancelDisconnectTimerLocked(id domain.PlayerId) {
	if t, ok := l.disconnectTimers[id]; ok {
		t.Stop()
		delete(l.disconnectTimers, id)
	}
}

func (l *Lobby) StartGame() Result {
	l.mu.Lock()
	if l.phase != PhaseLobby {
		l.mu.Unlock()
		return Fail(apperror.InvalidGameState, "game already started")
	}
	if len(l.order) < l.cfg.MinPlayers {
		l.mu.Unlock()
		return Fail(apperror.InvalidGameState, "not enough players to start")
	}
	l.phase = PhaseActive
	state := l.stateLocked()
	l.mu.Unlock()

	l.sink.BroadcastState(state)
	l.sink.BroadcastEvent("game:started", nil)
	l.sink.BroadcastEvent("phase:changed", map[string]any{"phase": PhaseActive})
	return Ok()
}

func (l *Lobby) EndGame() {
	l.mu.Lock()
	l.phase = PhaseFinished
	for id := range l.disconnectTimers {
		l.cancelDisconnectTimerLocked(id)
	}
	state := l.stateLocked()
	l.mu.Unlock()

	l.sink.BroadcastState(state)
	l.sink.BroadcastEvent("phase:changed", map[string]any{"phase": PhaseFinished})
}

// HandleAction supports no game-specific actions of its own; Lobby exists
// to exercise the join/leave/start/end lifecycle, not to demonstrate
// gameplay. Every action type reports NotImplemented, per spec.md §7.
func (l *Lobby) HandleAction(id domain.PlayerId, actionType string, payload any) ActionResult {
	l.mu.Lock()
	_, exists := l.players[id]
	l.mu.Unlock()
	if !exists {
		return ActionFail(apperror.PlayerNotFound, "player not in room")
	}
	if actionType == "" {
		return ActionFail(apperror.InvalidInput, "actionType must not be empty")
	}
	return ActionFail(apperror.NotImplemented, "lobby game has no actions: "+actionType)
}

var _ Game = (*Lobby)(nil)
