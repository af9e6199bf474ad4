// Package ws streams the simulation event feed to observer clients
// over WebSocket. Clients subscribe to one game per connection; events
// for that game are pushed as JSON text frames as they are emitted.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tidehunt.io/internal/protocol"
)

// Hub fans emitted events out to subscribed connections. It implements
// game.Notifier, so it can be wired straight into the engine. A slow
// client drops frames rather than stalling the tick path.
type Hub struct {
	log      *log.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[*client]struct{}
}

type client struct {
	out chan []byte
}

type subscribeMsg struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]map[*client]struct{}{},
	}
}

// Emit encodes the event once and queues it for every subscriber of the
// game. A subscriber whose buffer is full misses the frame.
func (h *Hub) Emit(gameID string, ev protocol.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Printf("ws emit: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[gameID] {
		select {
		case c.out <- b:
		default:
		}
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		gameID := h.handshake(conn)
		if gameID == "" {
			return
		}

		c := &client{out: make(chan []byte, 256)}
		h.subscribe(gameID, c)
		defer h.unsubscribe(gameID, c)

		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-done:
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop: observers send nothing after subscribing, but
		// reading is what detects the close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(done)
	}
}

func (h *Hub) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}
	var sub subscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "subscribe" || sub.GameID == "" {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected subscribe"),
			time.Now().Add(time.Second))
		return ""
	}
	return sub.GameID
}

func (h *Hub) subscribe(gameID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[gameID]
	if set == nil {
		set = map[*client]struct{}{}
		h.subs[gameID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unsubscribe(gameID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[gameID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, gameID)
	}
}

// Subscribers reports the current subscriber count for a game.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[gameID])
}
