package game

import (
	"sync"
	"testing"
	"time"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu     sync.Mutex
	states []domain.GameState
	events []string
}

func (f *fakeSink) BroadcastState(state domain.GameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeSink) BroadcastEvent(eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeSink) lastState() domain.GameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[len(f.states)-1]
}

func newTestLobby() (*Lobby, *fakeSink) {
	sink := &fakeSink{}
	l := NewLobby("ROOM01", sink, Config{MinPlayers: 2, MaxPlayers: 3})
	return l, sink
}

func TestLobbyFirstJoinerBecomesHost(t *testing.T) {
	l, sink := newTestLobby()
	res := l.JoinPlayer(domain.Player{ID: "p1", Name: "Ada"})
	require.True(t, res.Success)

	state := sink.lastState()
	require.Len(t, state.Players, 1)
	assert.True(t, state.Players[0].IsHost)
}

func TestLobbyRejectsDuplicateJoin(t *testing.T) {
	l, _ := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "Ada"}).Success)
	res := l.JoinPlayer(domain.Player{ID: "p1", Name: "Ada"})
	assert.False(t, res.Success)
	assert.Equal(t, apperror.PlayerJoinFailed, res.Code)
}

func TestLobbyRejectsJoinAtCapacity(t *testing.T) {
	l, _ := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p2", Name: "B"}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p3", Name: "C"}).Success)

	res := l.JoinPlayer(domain.Player{ID: "p4", Name: "D"})
	assert.False(t, res.Success)
	assert.Equal(t, apperror.RoomFull, res.Code)
}

func TestLobbyRejectsJoinInProgressWhenDisallowed(t *testing.T) {
	l, _ := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p2", Name: "B"}).Success)
	require.True(t, l.StartGame().Success)

	res := l.JoinPlayer(domain.Player{ID: "p3", Name: "C"})
	assert.False(t, res.Success)
	assert.Equal(t, apperror.PlayerJoinFailed, res.Code)
}

func TestLobbyHostReassignedOnDepartureByLowestJoinedAt(t *testing.T) {
	l, sink := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "host", Name: "Host", JoinedAt: 1}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p2", Name: "Second", JoinedAt: 2}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p3", Name: "Third", JoinedAt: 3}).Success)

	require.True(t, l.LeavePlayer("host").Success)

	state := sink.lastState()
	var newHost *domain.Player
	for i := range state.Players {
		if state.Players[i].IsHost {
			newHost = &state.Players[i]
		}
	}
	require.NotNil(t, newHost)
	assert.Equal(t, domain.PlayerId("p2"), newHost.ID)
}

func TestLobbyStartGameRequiresMinPlayers(t *testing.T) {
	l, _ := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)

	res := l.StartGame()
	assert.False(t, res.Success)
	assert.Equal(t, apperror.InvalidGameState, res.Code)
}

func TestLobbyStartGameTransitionsPhase(t *testing.T) {
	l, sink := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p2", Name: "B"}).Success)

	require.True(t, l.StartGame().Success)
	assert.Equal(t, PhaseActive, sink.lastState().Phase)
}

func TestLobbyDisconnectRemovesPlayerAfterTimeoutElapses(t *testing.T) {
	sink := &fakeSink{}
	l := NewLobby("ROOM01", sink, Config{MinPlayers: 1, MaxPlayers: 3, DisconnectTimeout: 50 * time.Millisecond})
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)

	l.DisconnectPlayer("p1")
	// A second disconnect before the timer fires must not panic or
	// double-schedule.
	l.DisconnectPlayer("p1")

	time.Sleep(100 * time.Millisecond)
	state := l.State()
	assert.Empty(t, state.Players, "player should have been removed after disconnect timeout elapsed")
}

func TestLobbyReconnectCancelsDisconnectTimeoutAndRestoresConnected(t *testing.T) {
	sink := &fakeSink{}
	l := NewLobby("ROOM01", sink, Config{MinPlayers: 1, MaxPlayers: 3, DisconnectTimeout: 50 * time.Millisecond})
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)

	l.DisconnectPlayer("p1")
	state := sink.lastState()
	require.False(t, state.Players[0].IsConnected)

	res := l.ReconnectPlayer("p1")
	require.True(t, res.Success)
	assert.True(t, sink.lastState().Players[0].IsConnected)

	// The disconnect timer must have been cancelled by Reconnect, not
	// merely outraced — wait past the original timeout and confirm the
	// player is still present.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, l.State().Players, 1, "player should not be removed once reconnected")
}

func TestLobbyReconnectUnknownPlayer(t *testing.T) {
	l, _ := newTestLobby()
	res := l.ReconnectPlayer("ghost")
	assert.False(t, res.Success)
	assert.Equal(t, apperror.PlayerNotFound, res.Code)
}

func TestLobbyEndGameTransitionsToFinished(t *testing.T) {
	l, sink := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)
	require.True(t, l.JoinPlayer(domain.Player{ID: "p2", Name: "B"}).Success)
	require.True(t, l.StartGame().Success)

	l.EndGame()
	assert.Equal(t, PhaseFinished, sink.lastState().Phase)
}

func TestLobbyHandleActionUnknownType(t *testing.T) {
	l, _ := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)

	res := l.HandleAction("p1", "draw-card", nil)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.NotImplemented, res.Code)
}

func TestLobbyHandleActionRejectsEmptyActionType(t *testing.T) {
	l, _ := newTestLobby()
	require.True(t, l.JoinPlayer(domain.Player{ID: "p1", Name: "A"}).Success)

	res := l.HandleAction("p1", "", nil)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.InvalidInput, res.Code)
}

func TestLobbyHandleActionRejectsUnknownPlayer(t *testing.T) {
	l, _ := newTestLobby()
	res := l.HandleAction("ghost", "draw-card", nil)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.PlayerNotFound, res.Code)
}
