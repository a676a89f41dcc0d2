package connserver

import (
	"context"
	"time"

	"github.com/Novapool/bonfire/internal/domain"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConnection is the minimal surface Client needs from a transport
// connection, mirroring the teacher's wsConnection interface
// (internal/v1/session/client.go) so tests can substitute a fake without
// opening a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const writeWait = 10 * time.Second

// Client is one connection's read/write pumps plus its routing context,
// generalized from the teacher's Client struct: the wire format is JSON
// text frames here rather than protobuf binary frames, per spec.md §6.
type Client struct {
	ID   domain.ConnectionId
	conn wsConnection
	send chan []byte
	ctx  ConnectionContext
	hub  *Hub
}

func newClient(id domain.ConnectionId, conn wsConnection, hub *Hub) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, 256),
		hub:  hub,
	}
}

// readPump reads inbound text frames and hands each to the hub's
// dispatcher. Runs until the connection errors or closes, then cleans up
// via the hub's disconnect handler — mirrors the teacher's
// readPump/handleClientDisconnect defer pattern.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.dispatch(context.Background(), c, data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Warn(context.Background(), "error writing to connection",
				zap.String("connection_id", string(c.ID)), zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// enqueue queues data for delivery without blocking; a full buffer drops
// the message rather than stalling the room's fan-out, matching the
// teacher's select/default policy in broadcastToClientMap.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "connection send buffer full, dropping frame",
			zap.String("connection_id", string(c.ID)))
	}
}
