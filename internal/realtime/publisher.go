package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"stayfinder/internal/booking"
)

// HubPublisher forwards booking events to the hub as JSON text frames.
type HubPublisher struct {
	hub *Hub
}

// NewHubPublisher constructs a HubPublisher.
func NewHubPublisher(hub *Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish marshals the event and hands it to the hub's broadcast loop.
func (p *HubPublisher) Publish(ctx context.Context, ev booking.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case p.hub.Broadcast <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and registers the connection with the hub.
// Inbound frames are drained and discarded; the socket is broadcast-only.
func ServeWS(hub *Hub, logf func(format string, args ...any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if logf != nil {
				logf("websocket upgrade: %v", err)
			}
			return
		}
		hub.Register <- conn

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.Unregister <- conn
					return
				}
			}
		}()
	}
}
