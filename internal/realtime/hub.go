// Package realtime fans device telemetry out to subscribed WebSocket
// clients. The hub is a mutex-guarded map of device id to connection set
// with a global cap across all devices.
package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Conn is the slice of a websocket connection the hub needs. Production
// wraps *websocket.Conn; tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// ErrHubFull is returned when the global connection cap is reached. The
// transport layer maps it to close code 1013 (try again later).
type hubFullError struct{}

func (hubFullError) Error() string { return "connection limit reached" }

var ErrHubFull = hubFullError{}

// CloseTryAgainLater is the websocket close code sent when the cap is hit.
const CloseTryAgainLater = 1013

type Hub struct {
	mu          sync.Mutex
	subscribers map[int64]map[Conn]struct{}
	total       int
	maxConns    int
	log         logrus.FieldLogger
}

func NewHub(maxConns int, log logrus.FieldLogger) *Hub {
	return &Hub{
		subscribers: map[int64]map[Conn]struct{}{},
		maxConns:    maxConns,
		log:         log,
	}
}

func (h *Hub) Subscribe(deviceID int64, conn Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= h.maxConns {
		return ErrHubFull
	}
	set, ok := h.subscribers[deviceID]
	if !ok {
		set = map[Conn]struct{}{}
		h.subscribers[deviceID] = set
	}
	if _, dup := set[conn]; dup {
		return nil
	}
	set[conn] = struct{}{}
	h.total++
	return nil
}

func (h *Hub) Unsubscribe(deviceID int64, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(deviceID, conn)
}

// Broadcast sends the record to every subscriber of the device. Sends are
// best-effort: a failed connection is dropped without affecting the others
// or the caller.
func (h *Hub) Broadcast(deviceID int64, record any) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.subscribers[deviceID]))
	for conn := range h.subscribers[deviceID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(record); err != nil {
			h.log.WithError(err).Debug("dropping telemetry subscriber after failed send")
			h.mu.Lock()
			h.remove(deviceID, conn)
			h.mu.Unlock()
			_ = conn.Close()
		}
	}
}

// ConnectionCount reports the number of live subscriptions across devices.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *Hub) remove(deviceID int64, conn Conn) {
	set, ok := h.subscribers[deviceID]
	if !ok {
		return
	}
	if _, present := set[conn]; !present {
		return
	}
	delete(set, conn)
	h.total--
	if len(set) == 0 {
		delete(h.subscribers, deviceID)
	}
}
