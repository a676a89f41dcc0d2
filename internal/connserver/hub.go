package connserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/metrics"
	"github.com/Novapool/bonfire/internal/roommgr"
	"github.com/Novapool/bonfire/internal/synchronizer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// Hub is the transport-termination and dispatch layer described in
// spec.md §4.5, generalized from the teacher's Hub
// (internal/v1/session/hub.go): it upgrades connections, tracks
// per-connection context, and routes parsed messages into RoomManager.
// Unlike the teacher, it performs no JWT validation — Bonfire has no
// cryptographic player identity (see DESIGN.md).
type Hub struct {
	rooms          *roommgr.Manager
	gameType       string
	adminKey       string
	allowedOrigins []string
	startedAt      time.Time

	mu          sync.RWMutex
	connections map[domain.ConnectionId]*Client

	// groups maps a RoomId to the set of connections currently subscribed
	// to its fan-out, the transport-level "join a named multicast group"
	// primitive spec.md §6 requires. Synchronizer tracks PlayerId->
	// ConnectionId; this tracks RoomId->ConnectionIds for group teardown.
	groupMu sync.RWMutex
	groups  map[domain.RoomId]set.Set[domain.ConnectionId]
}

// Config bundles Hub's construction-time parameters.
type Config struct {
	DefaultGameType string
	AdminKey        string
	AllowedOrigins  []string
}

func NewHub(rooms *roommgr.Manager, cfg Config) *Hub {
	return &Hub{
		rooms:          rooms,
		gameType:       cfg.DefaultGameType,
		adminKey:       cfg.AdminKey,
		allowedOrigins: cfg.AllowedOrigins,
		startedAt:      time.Now(),
		connections:    make(map[domain.ConnectionId]*Client),
		groups:         make(map[domain.RoomId]set.Set[domain.ConnectionId]),
	}
}

// SetRooms binds the RoomManager a Hub dispatches into. Construction order
// is circular (RoomManager needs a synchronizer.Publisher, which Hub
// implements; Hub needs the RoomManager to route requests into), so
// callers build the Hub first with a nil RoomManager, pass that same Hub
// into roommgr.New as its Publisher, then call SetRooms once the Manager
// exists — the Hub instance that ends up serving connections is the exact
// instance every Synchronizer publishes through.
func (h *Hub) SetRooms(rooms *roommgr.Manager) {
	h.rooms = rooms
}

// Publish implements synchronizer.Publisher: deliver data to one
// connection's send buffer, or silently drop if the connection has gone
// away since the Synchronizer read its subscriber map.
func (h *Hub) Publish(connID domain.ConnectionId, data []byte) {
	h.mu.RLock()
	client, ok := h.connections[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	client.enqueue(data)
}

func (h *Hub) subscribe(roomID domain.RoomId, connID domain.ConnectionId) {
	h.groupMu.Lock()
	defer h.groupMu.Unlock()
	if h.groups[roomID] == nil {
		h.groups[roomID] = set.New[domain.ConnectionId]()
	}
	h.groups[roomID].Insert(connID)
}

func (h *Hub) unsubscribe(roomID domain.RoomId, connID domain.ConnectionId) {
	h.groupMu.Lock()
	defer h.groupMu.Unlock()
	if group, ok := h.groups[roomID]; ok {
		group.Delete(connID)
		if group.Len() == 0 {
			delete(h.groups, roomID)
		}
	}
}

// checkOrigin reports whether origin is present in allowedOrigins,
// comparing scheme+host the same way the teacher's CheckOrigin closure
// does (internal/v1/session/hub.go).
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// ServeWs upgrades the request to a WebSocket connection and starts the
// new connection's read/write pumps. Bonfire has no per-connection
// authentication (a player proves nothing beyond supplying a display
// name) so, unlike the teacher's ServeWs, there is no token check here.
func (h *Hub) ServeWs(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return
	}

	connID := domain.ConnectionId(uuid.NewString())
	client := newClient(connID, conn, h)

	h.mu.Lock()
	h.connections[connID] = client
	h.mu.Unlock()

	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// handleDisconnect runs when a connection's readPump exits (socket error
// or client close). Per spec.md §4.5's disconnect operation: a
// contextless connection is simply dropped; a joined one notifies the
// Game and Synchronizer but keeps the player→room tracking alive to
// support reconnection.
func (h *Hub) handleDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.connections, c.ID)
	h.mu.Unlock()
	close(c.send)

	playerID, roomID, joined := c.ctx.Get()
	if !joined {
		return
	}
	h.unsubscribe(roomID, c.ID)

	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		// Room was destroyed concurrently; swallow and drop the context.
		c.ctx.Clear()
		return
	}
	room.Game.DisconnectPlayer(playerID)
	room.Synchronizer.UnregisterPlayer(playerID)
	c.ctx.Clear()
}

// GracefulShutdown publishes a room:closed frame (reason: server shutting
// down) to every live connection before teardown, per spec.md §5.
func (h *Hub) GracefulShutdown(ctx context.Context) {
	data, err := json.Marshal(synchronizer.Frame{Type: "room:closed", Payload: map[string]any{"reason": "server shutting down"}})
	if err != nil {
		logging.Error(ctx, "failed to marshal room:closed frame", zap.Error(err))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.connections {
		if err == nil {
			client.enqueue(data)
		}
		client.conn.Close()
	}
}

// Uptime reports how long the Hub has been serving connections.
func (h *Hub) Uptime() time.Duration { return time.Since(h.startedAt) }

func (h *Hub) checkAdminKey(c *gin.Context) error {
	if h.adminKey == "" {
		return apperror.New(apperror.Unauthorized, "administration is disabled")
	}
	provided := c.GetHeader("x-api-key")
	if provided == "" || provided != h.adminKey {
		return apperror.New(apperror.Unauthorized, "missing or invalid admin key")
	}
	return nil
}
