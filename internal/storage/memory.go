package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/metrics"
)

// Memory is the in-memory reference Storage adapter. Two maps guarded by a
// single mutex, the same map-plus-mutex shape the teacher uses to guard its
// Hub's room registry. Every read and write defensively copies GameState/
// RoomMetadata so a caller mutating a returned value can never corrupt
// stored state, per spec.md §4.1(a).
type Memory struct {
	mu          sync.RWMutex
	state       map[domain.RoomId]domain.GameState
	meta        map[domain.RoomId]domain.RoomMetadata
	initialized bool
}

// NewMemory constructs an uninitialized in-memory adapter; call Initialize
// before use.
func NewMemory() *Memory {
	return &Memory{
		state: make(map[domain.RoomId]domain.GameState),
		meta:  make(map[domain.RoomId]domain.RoomMetadata),
	}
}

func (m *Memory) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

func (m *Memory) observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StorageOperationsTotal.WithLabelValues(op, status).Inc()
}

func (m *Memory) SaveGameState(ctx context.Context, id domain.RoomId, state domain.GameState) (err error) {
	defer func() { m.observe("SaveGameState", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return &Error{Op: "SaveGameState", Cause: ErrNotInitialized}
	}
	if state.Players == nil {
		state.Players = []domain.Player{}
	}
	m.state[id] = state.Clone()
	return nil
}

func (m *Memory) LoadGameState(ctx context.Context, id domain.RoomId) (out domain.GameState, ok bool, err error) {
	defer func() { m.observe("LoadGameState", err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return domain.GameState{}, false, &Error{Op: "LoadGameState", Cause: ErrNotInitialized}
	}
	s, found := m.state[id]
	if !found {
		return domain.GameState{}, false, nil
	}
	clone := s.Clone()
	if clone.Players == nil {
		clone.Players = []domain.Player{}
	}
	return clone, true, nil
}

func (m *Memory) UpsertRoomMetadata(ctx context.Context, id domain.RoomId, meta domain.RoomMetadata) (err error) {
	defer func() { m.observe("UpsertRoomMetadata", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return &Error{Op: "UpsertRoomMetadata", Cause: ErrNotInitialized}
	}
	m.meta[id] = meta.Clone()
	return nil
}

func (m *Memory) GetRoomMetadata(ctx context.Context, id domain.RoomId) (out domain.RoomMetadata, ok bool, err error) {
	defer func() { m.observe("GetRoomMetadata", err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return domain.RoomMetadata{}, false, &Error{Op: "GetRoomMetadata", Cause: ErrNotInitialized}
	}
	meta, found := m.meta[id]
	if !found {
		return domain.RoomMetadata{}, false, nil
	}
	return meta.Clone(), true, nil
}

func (m *Memory) ListAllRoomMetadata(ctx context.Context) (out []domain.RoomMetadata, err error) {
	defer func() { m.observe("ListAllRoomMetadata", err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, &Error{Op: "ListAllRoomMetadata", Cause: ErrNotInitialized}
	}
	out = make([]domain.RoomMetadata, 0, len(m.meta))
	for _, meta := range m.meta {
		out = append(out, meta.Clone())
	}
	return out, nil
}

func (m *Memory) ListInactiveRoomIds(ctx context.Context, threshold time.Time) (out []domain.RoomId, err error) {
	defer func() { m.observe("ListInactiveRoomIds", err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, &Error{Op: "ListInactiveRoomIds", Cause: ErrNotInitialized}
	}
	for id, meta := range m.meta {
		if meta.LastActivity.Before(threshold) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id domain.RoomId) (err error) {
	defer func() { m.observe("DeleteRoom", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return &Error{Op: "DeleteRoom", Cause: ErrNotInitialized}
	}
	delete(m.state, id)
	delete(m.meta, id)
	return nil
}

func (m *Memory) RoomExists(ctx context.Context, id domain.RoomId) (exists bool, err error) {
	defer func() { m.observe("RoomExists", err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return false, &Error{Op: "RoomExists", Cause: ErrNotInitialized}
	}
	_, found := m.state[id]
	return found, nil
}

var _ Storage = (*Memory)(nil)
