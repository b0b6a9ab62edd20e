package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/realtime"
	"github.com/hubexhq/hubex/internal/service"
)

const telemetryBacklogSize = 5

type WebsocketHandler struct {
	serviceHandler *service.ServiceHandler
	log            logrus.FieldLogger
	upgrader       websocket.Upgrader
}

func NewWebsocketHandler(serviceHandler *service.ServiceHandler, log logrus.FieldLogger) *WebsocketHandler {
	return &WebsocketHandler{
		serviceHandler: serviceHandler,
		log:            log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser clients cannot set auth headers; the guard already
			// validated the ?token= credential before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// wsConn serializes writes; broadcasts arrive from other goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ realtime.Conn = (*wsConn)(nil)

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) closeWith(code int, reason string) {
	c.mu.Lock()
	message := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.conn.Close()
}

// DeviceTelemetry streams live telemetry for one owned device. The first
// frame is the backlog of recent events, oldest first; every later frame is
// a single event.
func (h *WebsocketHandler) DeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromCtx(r.Context())
	if !ok {
		SetResponse(w, api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized)
		return
	}
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}

	device, err := h.serviceHandler.Store().Device().GetByID(r.Context(), deviceID)
	if err != nil {
		SetResponse(w, api.NewError("DEVICE_NOT_FOUND", "device not found"), http.StatusNotFound)
		return
	}
	if device.OwnerUserID == nil || *device.OwnerUserID != claims.UserID {
		SetResponse(w, api.NewError("DEVICE_NOT_OWNED", "device not owned by caller"), http.StatusForbidden)
		return
	}

	backlog, err := h.serviceHandler.RecentTelemetryBacklog(r.Context(), device.ID, telemetryBacklogSize)
	if err != nil {
		SetResponse(w, api.NewError("INTERNAL_ERROR", "failed to load telemetry backlog"), http.StatusInternalServerError)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}
	conn := &wsConn{conn: raw}

	if err := conn.WriteJSON(backlog); err != nil {
		_ = conn.Close()
		return
	}

	hub := h.serviceHandler.Hub()
	if err := hub.Subscribe(device.ID, conn); err != nil {
		conn.closeWith(realtime.CloseTryAgainLater, "connection limit reached")
		return
	}
	defer hub.Unsubscribe(device.ID, conn)

	// Drain control frames until the peer goes away.
	raw.SetReadLimit(512)
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
	}
}
