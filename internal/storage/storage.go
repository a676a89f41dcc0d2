// Package storage defines Bonfire's pluggable persistence contract (spec.md
// §4.1) and its two reference adapters: an in-memory map-backed store for
// tests and single-process deployments, and a Redis-backed store for a
// durable, restart-surviving deployment.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Novapool/bonfire/internal/domain"
)

// Error carries an operation label and optional cause, per spec.md §4.1.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("storage: %s", e.Op)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrNotInitialized is returned (wrapped in an Error) by every operation
// called before Initialize, or after Close.
var ErrNotInitialized = fmt.Errorf("storage not initialized")

// Storage is the persistence contract every adapter implements. All
// operations may fail with *Error; Storage does not retry internally —
// higher layers decide whether and how to retry, per spec.md §4.1.
type Storage interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error

	SaveGameState(ctx context.Context, id domain.RoomId, state domain.GameState) error
	// LoadGameState returns (state, true, nil) if present, (zero, false, nil)
	// if absent, or (zero, false, err) on failure.
	LoadGameState(ctx context.Context, id domain.RoomId) (domain.GameState, bool, error)

	UpsertRoomMetadata(ctx context.Context, id domain.RoomId, meta domain.RoomMetadata) error
	GetRoomMetadata(ctx context.Context, id domain.RoomId) (domain.RoomMetadata, bool, error)
	ListAllRoomMetadata(ctx context.Context) ([]domain.RoomMetadata, error)
	ListInactiveRoomIds(ctx context.Context, threshold time.Time) ([]domain.RoomId, error)

	DeleteRoom(ctx context.Context, id domain.RoomId) error
	RoomExists(ctx context.Context, id domain.RoomId) (bool, error)
}
