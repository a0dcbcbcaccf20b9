package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/gradewizard/internal/model"
)

const (
	feedBuffer       = 64
	feedWriteTimeout = 10 * time.Second
	feedReadTimeout  = 5 * time.Minute
)

const (
	eventChange = "change"
	eventPong   = "pong"
	actionPing  = "ping"
)

// feedEvent is sent to change feed clients.
type feedEvent struct {
	Event  string `json:"event"`
	Source string `json:"source,omitempty"`
	Op     string `json:"op,omitempty"`
}

// feedRequest is read from change feed clients.
type feedRequest struct {
	Action string `json:"action"`
}

// newUpgrader creates a WebSocket upgrader with origin validation. An empty
// allow list permits all origins.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleFeed streams every workspace change to the client. A client that
// falls more than feedBuffer events behind misses events and should refetch
// state.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := make(chan feedEvent, feedBuffer)
	send := func(ev feedEvent) {
		select {
		case out <- ev:
		default:
			h.logger.Debug("feed client lagging, event dropped", "remote", r.RemoteAddr, "event", ev.Event)
		}
	}
	cancel := h.feed.Subscribe(func(c model.Change) {
		send(feedEvent{Event: eventChange, Source: c.Source, Op: c.Op})
	})
	defer cancel()
	h.logger.Debug("feed client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg feedRequest
			_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Warn("feed closed unexpectedly", "remote", r.RemoteAddr, "error", err)
				} else {
					h.logger.Debug("feed client disconnected", "remote", r.RemoteAddr)
				}
				return
			}
			if msg.Action == actionPing {
				send(feedEvent{Event: eventPong})
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("feed write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
