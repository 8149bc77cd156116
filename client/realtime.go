package client

import (
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSSubscriber opens room channels over the realtime websocket. Each
// subscription holds its own connection, so tearing one down can never
// stall another room's event stream.
type WSSubscriber struct {
	serverURL   string
	accessToken string
}

// NewWSSubscriber builds a subscriber for the given server root, e.g.
// "http://localhost:8080".
func NewWSSubscriber(serverURL, accessToken string) *WSSubscriber {
	return &WSSubscriber{serverURL: serverURL, accessToken: accessToken}
}

// Subscribe dials the realtime endpoint, joins the room channel and
// dispatches its events to the handlers until Unsubscribe is called or
// the connection drops.
func (s *WSSubscriber) Subscribe(roomID uint, h Handlers) (Subscription, error) {
	u, err := url.Parse(s.serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	query := u.Query()
	query.Set("token", s.accessToken)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	sub := &wsSubscription{
		conn:   conn,
		roomID: roomID,
		done:   make(chan struct{}),
	}
	if err := sub.send(clientMessage{Type: "join_room", RoomID: roomID}); err != nil {
		conn.Close()
		return nil, err
	}

	go sub.readLoop(h)
	return sub, nil
}

// clientMessage mirrors the upstream frame the server expects.
type clientMessage struct {
	Type    string      `json:"type"`
	RoomID  uint        `json:"room_id"`
	Name    string      `json:"name,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// serverEvent mirrors the envelope the server delivers.
type serverEvent struct {
	Event   string          `json:"event"`
	Table   string          `json:"table,omitempty"`
	Row     json.RawMessage `json:"row,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscription struct {
	conn   *websocket.Conn
	roomID uint

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func (s *wsSubscription) send(msg clientMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(msg)
}

// Broadcast sends an ephemeral event to the room channel.
func (s *wsSubscription) Broadcast(name string, payload interface{}) error {
	return s.send(clientMessage{
		Type:    "broadcast",
		RoomID:  s.roomID,
		Name:    name,
		Payload: payload,
	})
}

// Unsubscribe leaves the channel and closes the connection. Safe to
// call more than once.
func (s *wsSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		if err := s.send(clientMessage{Type: "leave_room", RoomID: s.roomID}); err != nil {
			log.Printf("realtime: leave_room failed: %v", err)
		}
		s.conn.Close()
	})
}

func (s *wsSubscription) readLoop(h Handlers) {
	for {
		var event serverEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("realtime: read error: %v", err)
			}
			return
		}

		switch event.Event {
		case "insert":
			if event.Table == "messages" && h.OnInsert != nil {
				h.OnInsert(event.Row)
			}
		case "update":
			if event.Table == "messages" && h.OnUpdate != nil {
				h.OnUpdate(event.Row)
			}
		case "broadcast":
			s.dispatchBroadcast(event, h)
		}
	}
}

func (s *wsSubscription) dispatchBroadcast(event serverEvent, h Handlers) {
	var typing struct {
		UserID   uint   `json:"user_id"`
		UserName string `json:"user_name"`
	}
	switch event.Name {
	case "typing":
		if h.OnTyping == nil {
			return
		}
		if err := json.Unmarshal(event.Payload, &typing); err != nil {
			log.Printf("realtime: bad typing payload: %v", err)
			return
		}
		h.OnTyping(typing.UserID, typing.UserName)
	case "stop_typing":
		if h.OnStopTyping == nil {
			return
		}
		if err := json.Unmarshal(event.Payload, &typing); err != nil {
			log.Printf("realtime: bad stop_typing payload: %v", err)
			return
		}
		h.OnStopTyping(typing.UserID, typing.UserName)
	}
}

var _ Subscriber = (*WSSubscriber)(nil)
