package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"alertd/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler fans committed alert events out to connected
// consoles.
type WebSocketHandler struct {
	clients   map[string]*wsClient
	mu        sync.RWMutex
	broadcast chan []byte
}

type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// WebSocketMessage is the envelope pushed to listeners.
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		clients:   make(map[string]*wsClient),
		broadcast: make(chan []byte, 256),
	}
}

func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	clientID := fmt.Sprintf("anon-%s", uuid.New().String()[:8])
	if login, ok := c.Get("login"); ok {
		if name, ok := login.(string); ok && name != "" {
			clientID = fmt.Sprintf("%s-%s", name, uuid.New().String()[:8])
		}
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: clientID,
	}

	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()

	log.Printf("websocket client connected: %s", clientID)

	go client.writePump()
	go client.readPump(h)
}

func (h *WebSocketHandler) removeClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[clientID]; ok {
		close(client.send)
		delete(h.clients, clientID)
		log.Printf("websocket client disconnected: %s", clientID)
	}
}

func (h *WebSocketHandler) Broadcast(message WebSocketMessage) {
	data, _ := json.Marshal(message)
	select {
	case h.broadcast <- data:
	default:
	}
}

// BroadcastAlert pushes an alert lifecycle event to all listeners;
// wired as the alert service's broadcast hook.
func (h *WebSocketHandler) BroadcastAlert(event string, alert *models.Alert) {
	h.Broadcast(WebSocketMessage{Type: event, Payload: alert})
}

// Run drains the broadcast channel; call once in a goroutine.
func (h *WebSocketHandler) Run() {
	for message := range h.broadcast {
		h.mu.RLock()
		var stale []string
		for _, client := range h.clients {
			select {
			case client.send <- message:
			default:
				stale = append(stale, client.clientID)
			}
		}
		h.mu.RUnlock()
		for _, id := range stale {
			h.removeClient(id)
		}
	}
}

func (c *wsClient) readPump(h *WebSocketHandler) {
	defer func() {
		h.removeClient(c.clientID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
