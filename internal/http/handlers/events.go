package handlers

import (
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/session"
)

// eventMessage is what the event stream sends.
type eventMessage struct {
	Type     string            `json:"type"` // "snapshot", "pong", "closed"
	Snapshot *booking.Snapshot `json:"snapshot,omitempty"`
}

type inboundEvent struct {
	Type string `json:"type"` // "ping"
}

// Events upgrades to a WebSocket that pushes a snapshot on every wizard change,
// starting with the current one. The stream ends when the session closes.
func (h *BookingHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.streamEvents(conn, sess)
	}).ServeHTTP(w, r)
}

func (h *BookingHandler) streamEvents(conn *websocket.Conn, sess *session.Session) {
	events, unsubscribe := sess.Events.Subscribe()
	defer unsubscribe()

	current := sess.Wizard.Snapshot()
	if err := websocket.JSON.Send(conn, eventMessage{Type: "snapshot", Snapshot: &current}); err != nil {
		return
	}
	h.logger.Debug("event stream opened", "session_id", sess.ID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg inboundEvent
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				_ = websocket.JSON.Send(conn, eventMessage{Type: "pong"})
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.logger.Debug("event stream closed by client", "session_id", sess.ID)
			return
		case snap, open := <-events:
			if !open {
				_ = websocket.JSON.Send(conn, eventMessage{Type: "closed"})
				return
			}
			if snap.Version <= current.Version {
				continue
			}
			current = snap
			if err := websocket.JSON.Send(conn, eventMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
				return
			}
		}
	}
}
