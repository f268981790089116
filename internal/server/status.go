package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds one status write to a slow subscriber.
const writeTimeout = 2 * time.Second

// feedMessage is the wire format of the /ws feed. Type is "status" for coarse
// session status lines and "response" for streamed model text deltas.
type feedMessage struct {
	Type   string    `json:"type"`
	Status string    `json:"status,omitempty"`
	Text   string    `json:"text,omitempty"`
	At     time.Time `json:"at"`
}

// statusHub fans status lines and response deltas out to every connected
// WebSocket subscriber. New subscribers immediately receive the most recent
// status so a frontend that attaches mid-session is not blank until the next
// update; response deltas are transient and not replayed.
type statusHub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	last    *feedMessage
}

func newStatusHub(log *slog.Logger) *statusHub {
	return &statusHub{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// handleWS upgrades the request and registers the subscriber. The connection
// stays open until the client goes away or the hub shuts down; inbound
// messages are drained and discarded.
func (h *statusHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local-only control surface
	})
	if err != nil {
		h.log.Warn("status subscriber rejected", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	last := h.last
	h.mu.Unlock()

	if last != nil {
		h.send(conn, *last)
	}

	// Block until the peer disconnects, then unregister.
	readCtx := conn.CloseRead(r.Context())
	<-readCtx.Done()

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "bye")
}

// broadcast delivers one status line to every subscriber.
func (h *statusHub) broadcast(status string) {
	msg := feedMessage{Type: "status", Status: status, At: time.Now()}

	h.mu.Lock()
	h.last = &msg
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.send(c, msg)
	}
}

// broadcastText delivers one model response delta to every subscriber.
func (h *statusHub) broadcastText(text string) {
	msg := feedMessage{Type: "response", Text: text, At: time.Now()}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.send(c, msg)
	}
}

// send writes one message, dropping the subscriber on failure.
func (h *statusHub) send(conn *websocket.Conn, msg feedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close(websocket.StatusAbnormalClosure, "write failed")
	}
}

// closeAll disconnects every subscriber, for shutdown.
func (h *statusHub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
