package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Novapool/bonfire/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInitializedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestMemoryOperationsFailBeforeInitialize(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.SaveGameState(ctx, "ROOM01", domain.GameState{RoomId: "ROOM01"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, _, err = m.LoadGameState(ctx, "ROOM01")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestMemoryOperationsFailAfterClose(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Close(ctx))

	_, err := m.RoomExists(ctx, "ROOM01")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestMemorySaveAndLoadGameStateRoundTrip(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	state := domain.GameState{
		RoomId: "ROOM01",
		Phase:  "lobby",
		Players: []domain.Player{
			{ID: "p1", Name: "Ada", IsHost: true},
		},
	}
	require.NoError(t, m.SaveGameState(ctx, "ROOM01", state))

	loaded, ok, err := m.LoadGameState(ctx, "ROOM01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.Phase, loaded.Phase)
	assert.Equal(t, state.Players[0].Name, loaded.Players[0].Name)
}

func TestMemoryLoadGameStateReconstructsNilPlayers(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SaveGameState(ctx, "ROOM01", domain.GameState{RoomId: "ROOM01", Players: nil}))

	loaded, ok, err := m.LoadGameState(ctx, "ROOM01")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, loaded.Players)
	assert.Empty(t, loaded.Players)
}

func TestMemoryLoadGameStateAbsentReturnsNotFound(t *testing.T) {
	m := newInitializedMemory(t)
	_, ok, err := m.LoadGameState(context.Background(), "NOPE01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDefensiveCopyOnSave(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	players := []domain.Player{{ID: "p1", Name: "Ada"}}
	state := domain.GameState{RoomId: "ROOM01", Players: players}
	require.NoError(t, m.SaveGameState(ctx, "ROOM01", state))

	// Mutating the caller's slice/struct after Save must not affect what was stored.
	players[0].Name = "Corrupted"

	loaded, _, err := m.LoadGameState(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.Players[0].Name)
}

func TestMemoryDefensiveCopyOnLoad(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SaveGameState(ctx, "ROOM01", domain.GameState{
		RoomId:  "ROOM01",
		Players: []domain.Player{{ID: "p1", Name: "Ada"}},
	}))

	loaded, _, err := m.LoadGameState(ctx, "ROOM01")
	require.NoError(t, err)
	loaded.Players[0].Name = "Corrupted"

	reloaded, _, err := m.LoadGameState(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, "Ada", reloaded.Players[0].Name)
}

func TestMemoryRoomMetadataRoundTrip(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	meta := domain.RoomMetadata{RoomId: "ROOM01", HostPlayerId: "p1", Status: domain.RoomStatusWaiting}
	require.NoError(t, m.UpsertRoomMetadata(ctx, "ROOM01", meta))

	loaded, ok, err := m.GetRoomMetadata(ctx, "ROOM01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta.HostPlayerId, loaded.HostPlayerId)
}

func TestMemoryListAllRoomMetadata(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.UpsertRoomMetadata(ctx, "ROOM01", domain.RoomMetadata{RoomId: "ROOM01"}))
	require.NoError(t, m.UpsertRoomMetadata(ctx, "ROOM02", domain.RoomMetadata{RoomId: "ROOM02"}))

	all, err := m.ListAllRoomMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryListInactiveRoomIds(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, m.UpsertRoomMetadata(ctx, "STALE1", domain.RoomMetadata{RoomId: "STALE1", LastActivity: now.Add(-2 * time.Hour)}))
	require.NoError(t, m.UpsertRoomMetadata(ctx, "FRESH1", domain.RoomMetadata{RoomId: "FRESH1", LastActivity: now}))

	inactive, err := m.ListInactiveRoomIds(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, domain.RoomId("STALE1"), inactive[0])
}

func TestMemoryDeleteRoomRemovesStateAndMetadata(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SaveGameState(ctx, "ROOM01", domain.GameState{RoomId: "ROOM01"}))
	require.NoError(t, m.UpsertRoomMetadata(ctx, "ROOM01", domain.RoomMetadata{RoomId: "ROOM01"}))

	require.NoError(t, m.DeleteRoom(ctx, "ROOM01"))

	exists, err := m.RoomExists(ctx, "ROOM01")
	require.NoError(t, err)
	assert.False(t, exists)

	_, ok, err := m.GetRoomMetadata(ctx, "ROOM01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRoomExists(t *testing.T) {
	m := newInitializedMemory(t)
	ctx := context.Background()

	exists, err := m.RoomExists(ctx, "ROOM01")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.SaveGameState(ctx, "ROOM01", domain.GameState{RoomId: "ROOM01"}))

	exists, err = m.RoomExists(ctx, "ROOM01")
	require.NoError(t, err)
	assert.True(t, exists)
}
