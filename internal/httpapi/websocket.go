package httpapi

import (
	"crypto/hmac"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zerodte/optionagent/internal/domain"
	"github.com/zerodte/optionagent/internal/logger"
)

// wsEvent is one message fanned out to every connected dashboard
// client on a trade lifecycle transition.
type wsEvent struct {
	Type  string       `json:"type"`
	Trade *domain.Trade `json:"trade,omitempty"`
}

// hub tracks connected dashboard clients and fans out events to all of
// them. It is deliberately minimal: no backpressure handling beyond a
// buffered per-client channel, since the dashboard is a best-effort
// read-only view, not a delivery-guaranteed channel.
type hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	broadcastC chan wsEvent
	clients    map[*wsClient]bool
	done       chan struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsEvent
}

func newHub() *hub {
	return &hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcastC: make(chan wsEvent, 64),
		clients:    make(map[*wsClient]bool),
		done:       make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case evt := <-h.broadcastC:
			for c := range h.clients {
				select {
				case c.send <- evt:
				default: // slow client, drop rather than block the hub
				}
			}
		}
	}
}

func (h *hub) broadcast(evt wsEvent) {
	select {
	case h.broadcastC <- evt:
	default:
	}
}

func (h *hub) close() {
	close(h.done)
}

// handleWebSocket upgrades to a WebSocket connection and streams trade
// open/close events to the dashboard. Browser clients can't set a
// custom header on the upgrade request, so the shared secret travels
// as a query parameter here instead of the X-Agent-Secret header the
// other routes require.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	secret := []byte(s.Config.HTTP.SharedSecret)
	got := []byte(r.URL.Query().Get("secret"))
	if len(secret) == 0 || !hmac.Equal(got, secret) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("httpapi: websocket upgrade: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsEvent, 16)}
	s.hub.register <- client

	go client.writeLoop()
	client.readLoop(s.hub)
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for evt := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(evt); err != nil {
			return
		}
	}
}

// readLoop discards inbound messages (the dashboard is read-only) but
// must still drain the connection so ping/pong control frames and
// close frames are processed by the gorilla/websocket library.
func (c *wsClient) readLoop(h *hub) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
