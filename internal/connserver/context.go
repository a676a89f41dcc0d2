package connserver

import (
	"sync"

	"github.com/Novapool/bonfire/internal/domain"
)

// ConnectionContext tracks the one (optional) player/room association a
// connection currently holds, per spec.md §4.5. Mutated only by its own
// connection's event loop, except for admin-initiated KickPlayer, which
// must serialize against it — hence the mutex rather than bare fields.
type ConnectionContext struct {
	mu       sync.RWMutex
	PlayerId domain.PlayerId
	RoomId   domain.RoomId
}

func (c *ConnectionContext) Set(playerID domain.PlayerId, roomID domain.RoomId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlayerId = playerID
	c.RoomId = roomID
}

func (c *ConnectionContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlayerId = ""
	c.RoomId = ""
}

func (c *ConnectionContext) Get() (domain.PlayerId, domain.RoomId, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PlayerId, c.RoomId, c.PlayerId != ""
}
