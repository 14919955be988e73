package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echocast/internal/auth"
	"github.com/lalith-99/echocast/internal/fanout"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

const (
	readDeadline = 90 * time.Second // tolerates two missed pings
	pingPeriod   = 30 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = int64(4 << 10)
)

// Client frame types.
const (
	frameJoinChannel  = "join-channel"
	frameLeaveChannel = "leave-channel"
)

// Server-only events; message events come from the fanout package.
const (
	eventJoined = "joined"
	eventLeft   = "left"
	eventError  = "error"
)

type clientFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId"`
}

type roomEvent struct {
	ChannelID string `json:"channelId"`
}

type errorEvent struct {
	Message   string `json:"message"`
	ChannelID string `json:"channelId,omitempty"`
}

// WSHandler upgrades authenticated clients to WebSockets and lets them join
// channel rooms on the fan-out hub.
type WSHandler struct {
	hub       *fanout.Hub
	channels  *service.ChannelService
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewWSHandler builds the endpoint. allowedOrigins lists the browser
// origins that may connect; "*" allows any, and an empty list keeps
// gorilla's same-host check.
func NewWSHandler(hub *fanout.Hub, channels *service.ChannelService, jwtSecret string, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		channels:  channels,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || set[strings.ToLower(origin)]
	}
}

// Serve handles GET /v1/ws?token=<jwt>. Browsers cannot set headers on a
// WebSocket handshake, so the token travels in the query string.
func (h *WSHandler) Serve(c *gin.Context) {
	claims, err := auth.ParseToken(c.Query("token"), h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}

	connID := uuid.NewString()
	conn := h.hub.Register(connID)
	h.logger.Info("websocket connected",
		zap.String("conn_id", connID),
		zap.String("user_id", claims.UserID),
	)

	go h.writeLoop(ws, conn)
	go h.readLoop(ws, connID)
}

// readLoop handles join/leave frames until the client goes away, then
// unregisters the connection, which also ends writeLoop.
func (h *WSHandler) readLoop(ws *websocket.Conn, connID string) {
	defer func() {
		h.hub.Unregister(connID)
		h.logger.Info("websocket disconnected", zap.String("conn_id", connID))
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}

		switch frame.Type {
		case frameJoinChannel:
			if _, err := h.channels.Get(context.Background(), frame.ChannelID); err != nil {
				h.reply(connID, eventError, errorEvent{Message: "channel not found", ChannelID: frame.ChannelID})
				continue
			}
			h.hub.Join(connID, frame.ChannelID)
			h.reply(connID, eventJoined, roomEvent{ChannelID: frame.ChannelID})
		case frameLeaveChannel:
			h.hub.Leave(connID, frame.ChannelID)
			h.reply(connID, eventLeft, roomEvent{ChannelID: frame.ChannelID})
		default:
			h.reply(connID, eventError, errorEvent{Message: "unknown frame type " + frame.Type})
		}
	}
}

// writeLoop is the connection's only writer: hub frames and pings.
func (h *WSHandler) writeLoop(ws *websocket.Conn, conn *fanout.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) reply(connID, event string, payload any) {
	frame, err := fanout.EncodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode websocket reply", zap.Error(err))
		return
	}
	h.hub.SendTo(connID, frame)
}
