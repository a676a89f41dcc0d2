package connserver

import (
	"net/http"
	"runtime"

	"github.com/Novapool/bonfire/internal/apperror"
	"github.com/Novapool/bonfire/internal/domain"
	"github.com/gin-gonic/gin"
)

// ServerStats is the admin GetStats projection, per spec.md §4.5.
type ServerStats struct {
	TotalRooms    int            `json:"totalRooms"`
	TotalPlayers  int            `json:"totalPlayers"`
	RoomsByStatus map[string]int `json:"roomsByStatus"`
	UptimeMillis  int64          `json:"uptimeMillis"`
	MemoryUsage   uint64         `json:"memoryUsage"`
}

// RegisterAdminRoutes wires the administrative HTTP surface onto engine,
// grounded on the teacher's health.Handler
// (internal/v1/health/handler.go) response-struct style.
func (h *Hub) RegisterAdminRoutes(engine *gin.Engine) {
	engine.GET("/health", h.getHealth)
	engine.GET("/health/live", h.getLiveness)
	engine.GET("/health/ready", h.getReadiness)

	admin := engine.Group("/admin")
	admin.GET("/stats", h.getStats)
	admin.POST("/force-end/:roomId", h.postForceEndRoom)
	admin.POST("/kick/:roomId/:playerId", h.postKickPlayer)
}

func (h *Hub) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": h.Uptime().Milliseconds()})
}

func (h *Hub) getLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *Hub) getReadiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Hub) getStats(c *gin.Context) {
	if err := h.checkAdminKey(c); err != nil {
		writeAppError(c, err)
		return
	}

	rooms := h.rooms.ListRooms()
	byStatus := make(map[string]int)
	totalPlayers := 0
	for _, r := range rooms {
		totalPlayers += r.PlayerCount
		byStatus[string(r.Status)]++
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, ServerStats{
		TotalRooms:    len(rooms),
		TotalPlayers:  totalPlayers,
		RoomsByStatus: byStatus,
		UptimeMillis:  h.Uptime().Milliseconds(),
		MemoryUsage:   mem.Alloc,
	})
}

func (h *Hub) postForceEndRoom(c *gin.Context) {
	if err := h.checkAdminKey(c); err != nil {
		writeAppError(c, err)
		return
	}
	roomID := domain.RoomId(c.Param("roomId"))

	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		writeAppError(c, err)
		return
	}

	room.Game.EndGame()
	room.Synchronizer.BroadcastRaw("room:closed", map[string]any{"reason": "closed by admin"})
	if err := h.rooms.DeleteRoom(c.Request.Context(), roomID); err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Hub) postKickPlayer(c *gin.Context) {
	if err := h.checkAdminKey(c); err != nil {
		writeAppError(c, err)
		return
	}
	roomID := domain.RoomId(c.Param("roomId"))
	playerID := domain.PlayerId(c.Param("playerId"))

	room, err := h.rooms.GetRoom(roomID)
	if err != nil {
		writeAppError(c, err)
		return
	}

	found := false
	for _, p := range room.Game.Players() {
		if p.ID == playerID {
			found = true
			break
		}
	}
	if !found {
		writeAppError(c, apperror.New(apperror.PlayerNotFound, "player not found in room"))
		return
	}

	// Capture the connection before unregistering: ConnectionFor reads the
	// subscriber map UnregisterPlayer is about to empty.
	connID, hasConn := room.Synchronizer.ConnectionFor(playerID)

	if res := room.Game.LeavePlayer(playerID); !res.Success {
		writeAppError(c, apperror.New(res.Code, res.Message))
		return
	}
	room.Synchronizer.SendRawToPlayer(playerID, "room:closed", map[string]any{"reason": "kicked by admin"})
	room.Synchronizer.UnregisterPlayer(playerID)
	h.rooms.UntrackPlayer(playerID)

	if hasConn {
		h.unsubscribe(roomID, connID)
		h.mu.RLock()
		client, exists := h.connections[connID]
		h.mu.RUnlock()
		if exists {
			client.ctx.Clear()
		}
	}

	_ = h.rooms.UpdateRoomMetadata(c.Request.Context(), roomID, func(meta *domain.RoomMetadata) {
		meta.PlayerCount = len(room.Game.Players())
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func writeAppError(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	c.JSON(code.HTTPStatus(), gin.H{"success": false, "error": apperror.MessageOf(err), "code": string(code)})
}
