package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Rooms mapping (roomID -> clients)
	rooms map[uint]map[*Client]bool

	// Connections per user (userID -> clients), the "global channel"
	// used for cross-room room/membership updates
	users map[uint]map[*Client]bool

	// Mutex for rooms and users maps
	mux sync.RWMutex

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[uint]map[*Client]bool),
		users:      make(map[uint]map[*Client]bool),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mux.Lock()
			h.clients[client] = true
			if _, ok := h.users[client.userID]; !ok {
				h.users[client.userID] = make(map[*Client]bool)
			}
			h.users[client.userID][client] = true
			h.mux.Unlock()
		case client := <-h.unregister:
			h.mux.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				// Remove client from all rooms
				for roomID, clients := range h.rooms {
					if _, ok := clients[client]; ok {
						delete(h.rooms[roomID], client)
						// Clean up empty rooms
						if len(h.rooms[roomID]) == 0 {
							delete(h.rooms, roomID)
						}
					}
				}

				if conns, ok := h.users[client.userID]; ok {
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.users, client.userID)
					}
				}
			}
			h.mux.Unlock()
		}
	}
}

// joinRoom adds a client to a room
func (h *Hub) joinRoom(client *Client, roomID uint) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

// leaveRoom removes a client from a room
func (h *Hub) leaveRoom(client *Client, roomID uint) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if _, ok := h.rooms[roomID]; ok {
		delete(h.rooms[roomID], client)
		// Clean up empty rooms
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// broadcastToRoom sends an encoded event to all clients in a room
func (h *Hub) broadcastToRoom(roomID uint, message []byte) {
	h.mux.RLock()
	defer h.mux.RUnlock()

	if clients, ok := h.rooms[roomID]; ok {
		for client := range clients {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(clients, client)
				delete(h.clients, client)
			}
		}
	}
}

// sendToUser delivers an encoded event to every connection a user holds
func (h *Hub) sendToUser(userID uint, message []byte) {
	h.mux.RLock()
	defer h.mux.RUnlock()

	for client := range h.users[userID] {
		select {
		case client.send <- message:
		default:
			// slow consumer; the read pump will reap it
		}
	}
}

func encodeRowEvent(event, table string, row interface{}) ([]byte, error) {
	rowBytes, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Table: table, Row: rowBytes})
}

// BroadcastRowEvent publishes a row-level change event on a room channel.
func BroadcastRowEvent(roomID uint, event, table string, row interface{}) {
	msgBytes, err := encodeRowEvent(event, table, row)
	if err != nil {
		log.Printf("error marshaling %s event: %v", event, err)
		return
	}
	hub.broadcastToRoom(roomID, msgBytes)
}

// NotifyUser publishes a row-level change event on a user's global
// stream, regardless of which room channels they currently hold.
func NotifyUser(userID uint, event, table string, row interface{}) {
	msgBytes, err := encodeRowEvent(event, table, row)
	if err != nil {
		log.Printf("error marshaling %s event for user %d: %v", event, userID, err)
		return
	}
	hub.sendToUser(userID, msgBytes)
}

// Global hub instance
var hub *Hub

// InitHub initializes the global hub
func InitHub() {
	hub = NewHub()
	go hub.Run()
}
