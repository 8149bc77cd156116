package websocket

import (
	"encoding/json"
	"testing"
)

func testClient(h *Hub, userID uint) *Client {
	return &Client{
		hub:    h,
		send:   make(chan []byte, 8),
		userID: userID,
		rooms:  make(map[uint]bool),
	}
}

func register(h *Hub, c *Client) {
	h.mux.Lock()
	defer h.mux.Unlock()
	h.clients[c] = true
	if _, ok := h.users[c.userID]; !ok {
		h.users[c.userID] = make(map[*Client]bool)
	}
	h.users[c.userID][c] = true
}

func TestRoomChannelBookkeeping(t *testing.T) {
	h := NewHub()
	a := testClient(h, 1)
	b := testClient(h, 2)
	register(h, a)
	register(h, b)

	a.joinRoom(7)
	b.joinRoom(7)

	h.broadcastToRoom(7, []byte("x"))
	if len(a.send) != 1 || len(b.send) != 1 {
		t.Fatalf("delivery counts = %d/%d, want 1/1", len(a.send), len(b.send))
	}

	b.leaveRoom(7)
	h.broadcastToRoom(7, []byte("y"))
	if len(a.send) != 2 {
		t.Errorf("a received %d, want 2", len(a.send))
	}
	if len(b.send) != 1 {
		t.Errorf("b received %d after leaving, want 1", len(b.send))
	}

	// Leaving empties the room map entry entirely once the last client
	// is gone.
	a.leaveRoom(7)
	h.mux.RLock()
	_, exists := h.rooms[7]
	h.mux.RUnlock()
	if exists {
		t.Error("empty room not cleaned up")
	}
}

func TestGlobalStreamReachesEveryConnection(t *testing.T) {
	h := NewHub()
	first := testClient(h, 5)
	second := testClient(h, 5)
	other := testClient(h, 6)
	register(h, first)
	register(h, second)
	register(h, other)

	h.sendToUser(5, []byte("x"))

	if len(first.send) != 1 || len(second.send) != 1 {
		t.Errorf("user 5 connections received %d/%d, want 1/1", len(first.send), len(second.send))
	}
	if len(other.send) != 0 {
		t.Errorf("user 6 received %d, want 0", len(other.send))
	}
}

func TestBroadcastRequiresJoinedRoom(t *testing.T) {
	h := NewHub()
	sender := testClient(h, 1)
	listener := testClient(h, 2)
	register(h, sender)
	register(h, listener)
	listener.joinRoom(7)

	payload, _ := json.Marshal(TypingPayload{UserID: 1, UserName: "a"})

	// Not joined yet: the broadcast is rejected.
	sender.handleMessage(ClientMessage{Type: "broadcast", RoomID: 7, Name: BroadcastTyping, Payload: payload})
	if len(listener.send) != 0 {
		t.Fatalf("listener received %d before sender joined, want 0", len(listener.send))
	}

	sender.handleMessage(ClientMessage{Type: "join_room", RoomID: 7})
	sender.handleMessage(ClientMessage{Type: "broadcast", RoomID: 7, Name: BroadcastTyping, Payload: payload})

	if len(listener.send) != 1 {
		t.Fatalf("listener received %d, want 1", len(listener.send))
	}

	var event Event
	if err := json.Unmarshal(<-listener.send, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Event != EventBroadcast || event.Name != BroadcastTyping {
		t.Errorf("event = %+v, want broadcast/%s", event, BroadcastTyping)
	}
	var typing TypingPayload
	if err := json.Unmarshal(event.Payload, &typing); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if typing.UserID != 1 || typing.UserName != "a" {
		t.Errorf("payload = %+v, want user 1 %q", typing, "a")
	}
}

func TestEncodeRowEvent(t *testing.T) {
	type row struct {
		ID      uint   `json:"id"`
		Content string `json:"content"`
	}
	encoded, err := encodeRowEvent(EventInsert, TableMessages, row{ID: 9, Content: "hi"})
	if err != nil {
		t.Fatalf("encodeRowEvent: %v", err)
	}

	var event Event
	if err := json.Unmarshal(encoded, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Event != EventInsert || event.Table != TableMessages {
		t.Errorf("envelope = %+v, want insert/messages", event)
	}
	var decoded row
	if err := json.Unmarshal(event.Row, &decoded); err != nil {
		t.Fatalf("row: %v", err)
	}
	if decoded.ID != 9 || decoded.Content != "hi" {
		t.Errorf("row = %+v, want {9 hi}", decoded)
	}
}
