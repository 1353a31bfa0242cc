package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kealoha/emergency-alert-hub/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin clients are allowed; the CORS policy lives on the HTTP
	// routes and browsers do not enforce it for websockets anyway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket connection to hub.Conn. Gorilla connections
// permit one concurrent writer, so writes serialize on a mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// clientMessage is what session clients send: subscription changes and pings.
type clientMessage struct {
	Action    string  `json:"action"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Region    string  `json:"region"`
}

func (h *Handler) RegisterWebsocketRoutes(r *gin.Engine, liveHub *hub.Hub) {
	r.GET("/ws/alerts", func(c *gin.Context) {
		serveAlerts(liveHub, c)
	})
	r.GET("/ws/admin", func(c *gin.Context) {
		serveAdmin(liveHub, c)
	})
}

func serveAlerts(liveHub *hub.Hub, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	sessionID := uuid.NewString()
	recipientID := c.Query("recipient_id")
	liveHub.Connect(sessionID, recipientID, &wsConn{conn: conn})
	defer liveHub.Disconnect(sessionID)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "session", sessionID, "error", err)
			}
			return
		}

		switch msg.Action {
		case "subscribe_location":
			liveHub.SubscribeLocation(sessionID, msg.Latitude, msg.Longitude)
		case "subscribe_region":
			if msg.Region != "" {
				liveHub.SubscribeRegion(sessionID, msg.Region)
			}
		case "ping":
			liveHub.Pong(sessionID)
		default:
			slog.Debug("ignoring unknown action", "session", sessionID, "action", msg.Action)
		}
	}
}

func serveAdmin(liveHub *hub.Hub, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	sessionID := uuid.NewString()
	liveHub.ConnectAdmin(sessionID, &wsConn{conn: conn})
	defer liveHub.DisconnectAdmin(sessionID)

	// Admin sessions are receive-only; the read loop just detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
