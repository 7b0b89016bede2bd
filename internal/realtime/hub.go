package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"gwi.com/polyglot-chat/internal/logger"
)

// Event is the payload pushed to clients. It only says that something changed;
// clients fetch the conversation or dashboard to see what.
type Event struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// Hub tracks the open sockets of every user. A user may have several.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[string]*Connection // userID -> connID -> connection
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve upgrades the request and blocks until the socket closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warnf("WebSocket upgrade failed for %s: %v", userID, err)
		return
	}

	conn := NewConnection(userID, ws)
	h.attach(conn)
	defer h.detach(conn)

	go conn.writeLoop()
	conn.readLoop()
}

func (h *Hub) attach(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userConns, ok := h.conns[conn.UserID]
	if !ok {
		userConns = make(map[string]*Connection)
		h.conns[conn.UserID] = userConns
	}
	userConns[conn.ID] = conn
}

func (h *Hub) detach(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if userConns, ok := h.conns[conn.UserID]; ok {
		delete(userConns, conn.ID)
		if len(userConns) == 0 {
			delete(h.conns, conn.UserID)
		}
	}
}

// Connected reports how many sockets userID currently has open.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// NotifyMessage tells every socket of recipientID that senderID wrote to them.
func (h *Hub) NotifyMessage(recipientID, senderID string) {
	payload, err := json.Marshal(Event{Type: "message", From: senderID})
	if err != nil {
		logger.Error("Failed to encode realtime event", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns[recipientID]))
	for _, conn := range h.conns[recipientID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			logger.Debugf("Dropped realtime event for %s on %s: %v", recipientID, conn.ID, err)
		}
	}
}

// Shutdown closes every open socket.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	var all []*Connection
	for _, userConns := range h.conns {
		for _, conn := range userConns {
			all = append(all, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range all {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
