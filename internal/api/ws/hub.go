// Package ws pushes job engine events to browser clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/api/middleware"
	"github.com/benasterisk/stemtube/internal/core/event"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// message is the wire envelope clients receive.
type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan message
}

// Hub fans bus events out to the websocket connections of their owning
// session. Connections of other sessions never see them.
type Hub struct {
	jwtSecret string
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*client]bool
}

func NewHub(bus event.Bus, jwtSecret string) *Hub {
	h := &Hub{
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]bool),
	}

	for _, t := range []event.EventType{
		event.EventDownloadProgress,
		event.EventDownloadComplete,
		event.EventDownloadError,
		event.EventExtractionProgress,
		event.EventExtractionComplete,
		event.EventExtractionError,
	} {
		bus.Subscribe(t, h.onEvent)
	}
	return h
}

func (h *Hub) onEvent(_ context.Context, ev event.Event) error {
	sessionID := ""
	switch p := ev.Payload.(type) {
	case event.DownloadEvent:
		sessionID = p.SessionID
	case event.ExtractionEvent:
		sessionID = p.SessionID
	default:
		return nil
	}
	h.broadcast(sessionID, message{Type: string(ev.Type), Data: ev.Payload})
	return nil
}

func (h *Hub) broadcast(sessionID string, msg message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- msg:
		default:
			// Slow consumer; drop the connection rather than block the
			// event bus.
			h.dropLocked(sessionID, c)
		}
	}
}

func (h *Hub) dropLocked(sessionID string, c *client) {
	if conns, ok := h.clients[sessionID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, sessionID)
			}
		}
	}
}

func (h *Hub) drop(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sessionID, c)
}

// Handle upgrades an echo request to a websocket. The browser cannot set an
// Authorization header on websocket dials, so the JWT arrives as a query
// parameter.
func (h *Hub) Handle(c echo.Context) error {
	token := c.QueryParam("token")
	userID, _, _, err := middleware.ParseJWT(token, h.jwtSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	sessionID := middleware.SessionIDFor(userID)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn, send: make(chan message, 64)}
	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]bool)
	}
	h.clients[sessionID][cl] = true
	h.mu.Unlock()
	log.Debug().Str("session_id", sessionID).Msg("websocket connected")

	go h.writeLoop(sessionID, cl)
	h.readLoop(sessionID, cl)
	return nil
}

// readLoop discards client frames; it exists to process control messages
// and to notice the connection closing.
func (h *Hub) readLoop(sessionID string, cl *client) {
	defer func() {
		h.drop(sessionID, cl)
		cl.conn.Close()
	}()
	cl.conn.SetReadLimit(1024)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sessionID string, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				cl.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("encode websocket message")
				continue
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
