// Package roommgr implements the room catalog, lifecycle, and TTL cleanup
// described in spec.md §4.4, generalized from the teacher's Hub
// (internal/v1/session/hub.go): rooms map + mutex, pendingRoomCleanups
// timer map, and the cancel-then-reschedule pattern in getOrCreateRoom —
// extended here with a periodic Storage scan the teacher has no
// equivalent for.
package roommgr

import (
	"context"
	"sync"
	"time"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/game"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/metrics"
	"github.com/Novapool/bonfire/internal/roomcode"
	"github.com/Novapool/bonfire/internal/storage"
	"github.com/Novapool/bonfire/internal/synchronizer"
	"go.uber.org/zap"
)

const maxCodeAttempts = 10

// Config mirrors spec.md §4.4's enumerated RoomManager configuration.
type Config struct {
	DefaultTTL      time.Duration
	MaxRooms        int
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.MaxRooms <= 0 {
		c.MaxRooms = 1000
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	return c
}

// RoomInstance bundles everything a room needs to operate: its Game, its
// Synchronizer, and the room id they're both bound to.
type RoomInstance struct {
	RoomId       domain.RoomId
	Game         game.Game
	Synchronizer *synchronizer.Synchronizer
}

// RoomInfo is the read-only admin/listing projection of a room, per
// spec.md §4.4's ListRooms.
type RoomInfo struct {
	RoomId      domain.RoomId
	Status      domain.RoomStatus
	PlayerCount int
	MaxPlayers  int
	HostName    string
	GameType    string
	CreatedAt   time.Time
}

// Manager is the catalog + TTL scheduler described in spec.md §4.4.
type Manager struct {
	cfg     Config
	store   storage.Storage
	factory game.Factory
	pub     synchronizer.Publisher

	mu            sync.Mutex
	rooms         map[domain.RoomId]*RoomInstance
	playerToRoom  map[domain.PlayerId]domain.RoomId
	cleanupTimers map[domain.RoomId]*time.Timer

	gameTypes map[domain.RoomId]string

	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup
	running     bool
}

// New constructs a Manager. factory is called once per CreateRoom to build
// the room's Game instance, per spec.md §4.4.
func New(cfg Config, store storage.Storage, factory game.Factory, pub synchronizer.Publisher) *Manager {
	return &Manager{
		cfg:           cfg.withDefaults(),
		store:         store,
		factory:       factory,
		pub:           pub,
		rooms:         make(map[domain.RoomId]*RoomInstance),
		playerToRoom:  make(map[domain.PlayerId]domain.RoomId),
		cleanupTimers: make(map[domain.RoomId]*time.Timer),
		gameTypes:     make(map[domain.RoomId]string),
	}
}

// CreateRoom mints a RoomId, instantiates a Synchronizer then a Game, and
// persists initial metadata. The host is not automatically added — the
// caller must JoinPlayer the host and DeleteRoom on failure to avoid
// leaking an empty room, per spec.md §4.4.
func (m *Manager) CreateRoom(ctx context.Context, gameType string) (*RoomInstance, error) {
	m.mu.Lock()
	if len(m.rooms) >= m.cfg.MaxRooms {
		m.mu.Unlock()
		return nil, apperror.New(apperror.LimitReached, "maximum room count reached")
	}
	m.mu.Unlock()

	roomID, err := m.mintUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	sync := synchronizer.New(roomID, m.store, m.pub)
	g, err := m.factory(roomID, sync, gameType)
	if err != nil {
		return nil, apperror.Wrap(apperror.InternalError, "game factory failed", err)
	}

	now := domain.NowMillis()
	meta := domain.RoomMetadata{
		RoomId:       roomID,
		CreatedAt:    time.UnixMilli(now),
		LastActivity: time.UnixMilli(now),
		PlayerCount:  0,
		Status:       domain.RoomStatusWaiting,
		GameType:     gameType,
	}
	if err := m.store.UpsertRoomMetadata(ctx, roomID, meta); err != nil {
		return nil, apperror.Wrap(apperror.StorageErrorCode, "failed to persist room metadata", err)
	}

	instance := &RoomInstance{RoomId: roomID, Game: g, Synchronizer: sync}

	m.mu.Lock()
	m.rooms[roomID] = instance
	m.gameTypes[roomID] = gameType
	m.mu.Unlock()

	metrics.ActiveRooms.Inc()
	logging.Info(ctx, "room created", zap.String("room_id", string(roomID)), zap.String("game_type", gameType))
	return instance, nil
}

func (m *Manager) mintUniqueCode(ctx context.Context) (domain.RoomId, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate, err := roomcode.Generate()
		if err != nil {
			return "", apperror.Wrap(apperror.InternalError, "failed to generate room code", err)
		}
		m.mu.Lock()
		_, inMemory := m.rooms[candidate]
		m.mu.Unlock()
		if inMemory {
			continue
		}
		exists, err := m.store.RoomExists(ctx, candidate)
		if err != nil {
			return "", apperror.Wrap(apperror.StorageErrorCode, "failed to check room code collision", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", apperror.New(apperror.CodeExhaustion, "exhausted room code attempts")
}

// GetRoom returns the RoomInstance for id, or RoomNotFound.
func (m *Manager) GetRoom(id domain.RoomId) (*RoomInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, apperror.New(apperror.RoomNotFound, "room not found")
	}
	return room, nil
}

func (m *Manager) HasRoom(id domain.RoomId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[id]
	return ok
}

// DeleteRoom cancels the room's cleanup timer, evicts its player-index
// entries, clears its Synchronizer subscribers, and removes it from both
// Storage and the catalog. Idempotent.
func (m *Manager) DeleteRoom(ctx context.Context, id domain.RoomId) error {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if timer, exists := m.cleanupTimers[id]; exists {
		timer.Stop()
		delete(m.cleanupTimers, id)
	}
	for pid, rid := range m.playerToRoom {
		if rid == id {
			delete(m.playerToRoom, pid)
		}
	}
	delete(m.rooms, id)
	delete(m.gameTypes, id)
	m.mu.Unlock()

	room.Synchronizer.ClearSubscribers()

	if err := m.store.DeleteRoom(ctx, id); err != nil {
		logging.Error(ctx, "failed to delete room from storage", zap.String("room_id", string(id)), zap.Error(err))
		return apperror.Wrap(apperror.StorageErrorCode, "failed to delete room", err)
	}

	metrics.ActiveRooms.Dec()
	metrics.RoomsDeletedTotal.WithLabelValues("deleted").Inc()
	return nil
}

// ListRooms returns a read-only projection of every catalogued room.
func (m *Manager) ListRooms() []RoomInfo {
	m.mu.Lock()
	instances := make(map[domain.RoomId]*RoomInstance, len(m.rooms))
	for id, room := range m.rooms {
		instances[id] = room
	}
	m.mu.Unlock()

	out := make([]RoomInfo, 0, len(instances))
	for id, room := range instances {
		cfg := room.Game.Config()
		state := room.Game.State()
		host := ""
		for _, p := range state.Players {
			if p.IsHost {
				host = p.Name
				break
			}
		}

		info := RoomInfo{
			RoomId:      id,
			Status:      domain.RoomStatusWaiting,
			PlayerCount: len(state.Players),
			MaxPlayers:  cfg.MaxPlayers,
			HostName:    host,
			GameType:    m.gameTypes[id],
		}

		// Status and CreatedAt live in persisted metadata, not on the Game
		// itself, since spec.md §4.4 defines room status as a RoomManager
		// concern rather than a per-game one.
		if meta, ok, err := m.store.GetRoomMetadata(context.Background(), id); err == nil && ok {
			info.Status = meta.Status
			info.CreatedAt = meta.CreatedAt
		}

		out = append(out, info)
	}
	return out
}

func (m *Manager) TrackPlayer(playerID domain.PlayerId, roomID domain.RoomId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerToRoom[playerID] = roomID
}

func (m *Manager) UntrackPlayer(playerID domain.PlayerId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playerToRoom, playerID)
}

func (m *Manager) RoomIdForPlayer(playerID domain.PlayerId) (domain.RoomId, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.playerToRoom[playerID]
	return id, ok
}

// TouchActivity sets lastActivity=now, persists metadata, and resets the
// room's per-room TTL timer, per spec.md §4.4's two-mechanism cleanup
// policy.
func (m *Manager) TouchActivity(ctx context.Context, id domain.RoomId) error {
	meta, ok, err := m.store.GetRoomMetadata(ctx, id)
	if err != nil {
		return apperror.Wrap(apperror.StorageErrorCode, "failed to load room metadata", err)
	}
	if !ok {
		return apperror.New(apperror.RoomNotFound, "room not found")
	}
	meta.LastActivity = time.Now()
	if err := m.store.UpsertRoomMetadata(ctx, id, meta); err != nil {
		return apperror.Wrap(apperror.StorageErrorCode, "failed to persist room metadata", err)
	}
	m.scheduleCleanup(id)
	return nil
}

// scheduleCleanup cancels any pending one-shot timer for id and schedules
// a new one DefaultTTL in the future. Tie-break with concurrent DeleteRoom:
// DeleteRoom wins — a cancelled timer simply becomes a no-op.
func (m *Manager) scheduleCleanup(id domain.RoomId) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.cleanupTimers[id]; ok {
		existing.Stop()
	}
	m.cleanupTimers[id] = time.AfterFunc(m.cfg.DefaultTTL, func() {
		ctx := context.Background()
		if err := m.DeleteRoom(ctx, id); err != nil {
			logging.Error(ctx, "ttl cleanup failed to delete room", zap.String("room_id", string(id)), zap.Error(err))
		}
	})
}

// UpdateRoomMetadata merges patch into the stored metadata's mutable
// fields and persists the result.
func (m *Manager) UpdateRoomMetadata(ctx context.Context, id domain.RoomId, patch func(*domain.RoomMetadata)) error {
	meta, ok, err := m.store.GetRoomMetadata(ctx, id)
	if err != nil {
		return apperror.Wrap(apperror.StorageErrorCode, "failed to load room metadata", err)
	}
	if !ok {
		return apperror.New(apperror.RoomNotFound, "room not found")
	}
	patch(&meta)
	if err := m.store.UpsertRoomMetadata(ctx, id, meta); err != nil {
		return apperror.Wrap(apperror.StorageErrorCode, "failed to persist room metadata", err)
	}
	return nil
}

// StartCleanup launches the periodic background scan described in
// spec.md §4.4's second cleanup mechanism: it recovers from timer loss
// across restarts and missed fires by re-querying Storage directly.
func (m *Manager) StartCleanup(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.cleanupStop = make(chan struct{})
	stop := m.cleanupStop
	m.mu.Unlock()

	m.cleanupWG.Add(1)
	go func() {
		defer m.cleanupWG.Done()
		ticker := time.NewTicker(m.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.runPeriodicScan(ctx)
			}
		}
	}()
}

func (m *Manager) runPeriodicScan(ctx context.Context) {
	threshold := time.Now().Add(-m.cfg.DefaultTTL)
	inactive, err := m.store.ListInactiveRoomIds(ctx, threshold)
	if err != nil {
		logging.Error(ctx, "periodic cleanup scan failed", zap.Error(err))
		return
	}
	for _, id := range inactive {
		if m.HasRoom(id) {
			if err := m.DeleteRoom(ctx, id); err != nil {
				logging.Error(ctx, "periodic cleanup failed to delete room", zap.String("room_id", string(id)), zap.Error(err))
			}
		}
	}
}

func (m *Manager) StopCleanup() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.cleanupStop)
	m.mu.Unlock()
	m.cleanupWG.Wait()
}

// Shutdown stops the periodic scan, cancels every per-room timer, and
// clears all catalogs. It does not close Storage — the owner of Storage
// closes it.
func (m *Manager) Shutdown() {
	m.StopCleanup()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, timer := range m.cleanupTimers {
		timer.Stop()
	}
	m.cleanupTimers = make(map[domain.RoomId]*time.Timer)
	m.rooms = make(map[domain.RoomId]*RoomInstance)
	m.playerToRoom = make(map[domain.PlayerId]domain.RoomId)
	m.gameTypes = make(map[domain.RoomId]string)
}

// AllSynchronizers returns every live room's Synchronizer.
func (m *Manager) AllSynchronizers() []*synchronizer.Synchronizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*synchronizer.Synchronizer, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room.Synchronizer)
	}
	return out
}
