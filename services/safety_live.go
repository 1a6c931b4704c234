package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// LiveRoom fans safety session updates out to every connected watcher.
// Trusted contacts connect read-only; the monitored user's device also
// publishes location pings over the same socket.
type LiveRoom struct {
	SessionID  string
	OwnerID    string
	Manager    *LiveShareManager
	Watchers   map[*LiveClient]bool
	Broadcast  chan []byte
	Register   chan *LiveClient
	Unregister chan *LiveClient

	// Closed on teardown, under the manager lock. The data channels are
	// never closed: PublishUpdate and the client pumps send from other
	// goroutines and select on done instead.
	done chan struct{}
}

func NewLiveRoom(sessionID, ownerID string, manager *LiveShareManager) *LiveRoom {
	return &LiveRoom{
		SessionID:  sessionID,
		OwnerID:    ownerID,
		Manager:    manager,
		Watchers:   make(map[*LiveClient]bool),
		Broadcast:  make(chan []byte),
		Register:   make(chan *LiveClient),
		Unregister: make(chan *LiveClient),
		done:       make(chan struct{}),
	}
}

func (r *LiveRoom) Run() {
	for {
		select {
		case client := <-r.Register:
			r.Watchers[client] = true
			log.Printf("[LiveRoom %s] Watcher connected. Count: %d", r.SessionID, len(r.Watchers))
			r.sendWatcherCount()

		case client := <-r.Unregister:
			if _, ok := r.Watchers[client]; ok {
				delete(r.Watchers, client)
				close(client.Send)

				if len(r.Watchers) == 0 {
					log.Printf("[LiveRoom %s] Empty, destroying.", r.SessionID)
					r.Manager.closeRoom(r)
					return
				}
				r.sendWatcherCount()
			}

		case message := <-r.Broadcast:
			for client := range r.Watchers {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(r.Watchers, client)
				}
			}
		}
	}
}

// Safe to call only from inside Run().
func (r *LiveRoom) sendWatcherCount() {
	payload := map[string]interface{}{
		"action":   "watcher_count",
		"watchers": len(r.Watchers),
	}

	data, _ := json.Marshal(payload)

	for client := range r.Watchers {
		select {
		case client.Send <- data:
		default:
			close(client.Send)
			delete(r.Watchers, client)
		}
	}
}

// LiveShareManager holds all rooms with an active watcher.
type LiveShareManager struct {
	rooms map[string]*LiveRoom
	mu    sync.RWMutex
}

func NewLiveShareManager() *LiveShareManager {
	return &LiveShareManager{
		rooms: make(map[string]*LiveRoom),
	}
}

func (m *LiveShareManager) GetOrCreateRoom(sessionID, ownerID string) *LiveRoom {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[sessionID]; ok {
		return r
	}

	r := NewLiveRoom(sessionID, ownerID, m)
	m.rooms[sessionID] = r
	go r.Run()
	return r
}

func (m *LiveShareManager) GetRoom(sessionID string) (*LiveRoom, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[sessionID]
	return r, ok
}

// closeRoom removes the room from the map and marks it dead in one
// critical section, so nobody can look it up alive and then send into a
// torn-down room.
func (m *LiveShareManager) closeRoom(r *LiveRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[r.SessionID] == r {
		delete(m.rooms, r.SessionID)
	}
	close(r.done)
}

// RegisterClient attaches the client to the session's room. If the room
// tears down between lookup and registration, it retries on a fresh one.
func (m *LiveShareManager) RegisterClient(sessionID, ownerID string, c *LiveClient) *LiveRoom {
	for {
		room := m.GetOrCreateRoom(sessionID, ownerID)
		c.Room = room

		select {
		case room.Register <- c:
			return room
		case <-room.done:
			// Lost the race with the last watcher leaving.
		}
	}
}

// PublishUpdate pushes a session update into the room, if anyone is watching.
// Safe to call from any goroutine.
func (m *LiveShareManager) PublishUpdate(sessionID string, payload interface{}) {
	room, ok := m.GetRoom(sessionID)
	if !ok {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("PublishUpdate: Failed to marshal payload: %v", err)
		return
	}

	// Non-blocking: if the room tears down or wedges, drop the update
	// rather than delaying the safety state machine.
	select {
	case room.Broadcast <- data:
	case <-room.done:
	case <-time.After(time.Second):
		log.Printf("PublishUpdate: Dropped update for session %s", sessionID)
	}
}

// LiveClient sits between one websocket connection and the room.
type LiveClient struct {
	Room    *LiveRoom
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string
	IsOwner bool
}

type LivePayload struct {
	Action    string  `json:"action"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Battery   float64 `json:"battery,omitempty"`
}

func (c *LiveClient) ReadPump() {
	defer func() {
		select {
		case c.Room.Unregister <- c:
		case <-c.Room.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		// Only the monitored user's device publishes into the room.
		// Watchers are read-only; anything they send is dropped.
		if !c.IsOwner {
			continue
		}

		var payload LivePayload
		if err := json.Unmarshal(message, &payload); err != nil {
			continue
		}

		if payload.Action == "location_update" || payload.Action == "status_update" {
			select {
			case c.Room.Broadcast <- message:
			case <-c.Room.done:
				return
			}
		}
	}
}

// WritePump handles messages going TO the watcher.
func (c *LiveClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
