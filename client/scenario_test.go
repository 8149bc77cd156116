package client

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/driftchat/backend/models"
)

// chatGateway is an in-memory gateway that enforces the server's
// counter contract: sends increment other members' unread counters,
// read acks flip only still-unread rows and decrement by the number
// actually flipped, floored at zero.
type chatGateway struct {
	mu     sync.Mutex
	selfID uint
	nextID uint

	messages []Message
	// unread[roomID][userID]
	unread map[uint]map[uint]int64
	rooms  []fakeRoom
}

type fakeRoom struct {
	id        uint
	isPrivate bool
	members   []uint
}

func newChatGateway(selfID uint) *chatGateway {
	return &chatGateway{
		selfID: selfID,
		nextID: 1,
		unread: map[uint]map[uint]int64{},
	}
}

func (g *chatGateway) addRoom(isPrivate bool, members ...uint) uint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addRoomLocked(isPrivate, members)
}

func (g *chatGateway) addRoomLocked(isPrivate bool, members []uint) uint {
	id := g.nextID
	g.nextID++
	g.rooms = append(g.rooms, fakeRoom{id: id, isPrivate: isPrivate, members: members})
	g.unread[id] = map[uint]int64{}
	for _, m := range members {
		g.unread[id][m] = 0
	}
	return id
}

// seed inserts a message as the given user, applying the send side
// effects.
func (g *chatGateway) seed(roomID uint, user models.PublicUser, content string, at time.Time) Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg := Message{
		ID:        g.nextID,
		Content:   content,
		RoomID:    roomID,
		User:      user,
		CreatedAt: at,
	}
	g.nextID++
	g.messages = append(g.messages, msg)
	for member := range g.unread[roomID] {
		if member != user.ID {
			g.unread[roomID][member]++
		}
	}
	return msg
}

func (g *chatGateway) unreadFor(roomID, userID uint) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unread[roomID][userID]
}

func (g *chatGateway) GetMessages(ctx context.Context, roomID uint, page, limit int) (MessagesPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var inRoom []Message
	for _, m := range g.messages {
		if m.RoomID == roomID {
			inRoom = append(inRoom, m)
		}
	}
	// Newest first, the order the server pages in.
	sort.Slice(inRoom, func(i, j int) bool { return inRoom[j].before(inRoom[i]) })

	total := int64(len(inRoom))
	skip := (page - 1) * limit
	if skip > len(inRoom) {
		skip = len(inRoom)
	}
	end := skip + limit
	if end > len(inRoom) {
		end = len(inRoom)
	}
	pageMsgs := append([]Message(nil), inRoom[skip:end]...)

	return MessagesPage{
		Messages: pageMsgs,
		NextPage: int64(skip+len(pageMsgs)) < total,
		Total:    total,
	}, nil
}

func (g *chatGateway) CreateMessage(ctx context.Context, roomID uint, content string, media models.MediaList) (Message, error) {
	return g.seed(roomID, models.PublicUser{ID: g.selfID, Name: "self"}, content, time.Now()), nil
}

func (g *chatGateway) ReadMessages(ctx context.Context, roomID uint, messageIDs []uint) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make(map[uint]bool, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = true
	}

	var flipped int64
	for i := range g.messages {
		m := &g.messages[i]
		if m.RoomID == roomID && ids[m.ID] && !m.IsRead {
			m.IsRead = true
			flipped++
		}
	}

	unread := g.unread[roomID][g.selfID] - flipped
	if unread < 0 {
		unread = 0
	}
	g.unread[roomID][g.selfID] = unread
	return unread, nil
}

func (g *chatGateway) JoinRoom(ctx context.Context, req JoinRequest) (RoomSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !req.Create {
		for _, room := range g.rooms {
			if room.isPrivate == req.IsPrivate && sameMembers(room.members, req.UserIDs) {
				return RoomSummary{ID: room.id, IsPrivate: room.isPrivate}, nil
			}
		}
	}
	id := g.addRoomLocked(req.IsPrivate, req.UserIDs)
	return RoomSummary{ID: id, IsPrivate: req.IsPrivate}, nil
}

func sameMembers(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uint]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

func (g *chatGateway) GetUser(ctx context.Context, userID uint) (models.PublicUser, error) {
	return models.PublicUser{ID: userID, Name: "user"}, nil
}

func (g *chatGateway) UserStatus(ctx context.Context, userID uint) (Status, error) {
	return Status{}, nil
}

func (g *chatGateway) UpdateStatus(isOnline bool) error { return nil }

func (g *chatGateway) RoomMembers(ctx context.Context, roomID uint) ([]uint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, room := range g.rooms {
		if room.id == roomID {
			return append([]uint(nil), room.members...), nil
		}
	}
	return nil, nil
}

func (g *chatGateway) Notify(ctx context.Context, userID uint, title, body, url string) error {
	return nil
}

func waitForUnread(t *testing.T, rs *RoomSync, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for rs.UnreadCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("UnreadCount = %d, want %d", rs.UnreadCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Two users in a private room: B sends while A is away, A opens the
// room and everything visible is acked down to zero.
func TestReadReceiptScenario(t *testing.T) {
	a := models.PublicUser{ID: 1, Name: "a"}
	b := models.PublicUser{ID: 2, Name: "b"}

	gw := newChatGateway(a.ID)
	roomID := gw.addRoom(true, a.ID, b.ID)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 3; i++ {
		msg := gw.seed(roomID, b, "hey", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, msg.ID)
	}
	if got := gw.unreadFor(roomID, a.ID); got != 3 {
		t.Fatalf("unread before open = %d, want 3", got)
	}

	rs := NewRoomSync(gw, &fakeSubscriber{}, a)
	if err := rs.Open(context.Background(), roomID, gw.unreadFor(roomID, a.ID)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	rs.SetVisible(context.Background(), ids)
	waitForUnread(t, rs, 0)
	if got := gw.unreadFor(roomID, a.ID); got != 0 {
		t.Errorf("server unread = %d, want 0", got)
	}

	// Acking the same ids again flips nothing and cannot go negative.
	unread, err := gw.ReadMessages(context.Background(), roomID, ids)
	if err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if unread != 0 {
		t.Errorf("unread after duplicate ack = %d, want 0", unread)
	}
}

// A send by the viewer must not bump their own counter, and the other
// member's counter reconciles through their own ack.
func TestSendUpdatesPeerCounterOnly(t *testing.T) {
	a := models.PublicUser{ID: 1, Name: "a"}
	b := models.PublicUser{ID: 2, Name: "b"}

	gw := newChatGateway(a.ID)
	roomID := gw.addRoom(true, a.ID, b.ID)

	rs := NewRoomSync(gw, &fakeSubscriber{}, a)
	if err := rs.Open(context.Background(), roomID, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := rs.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := gw.unreadFor(roomID, a.ID); got != 0 {
		t.Errorf("sender unread = %d, want 0", got)
	}
	if got := gw.unreadFor(roomID, b.ID); got != 1 {
		t.Errorf("peer unread = %d, want 1", got)
	}
}

func TestPrivateRoomFindOrCreate(t *testing.T) {
	gw := newChatGateway(1)

	first, err := gw.JoinRoom(context.Background(), JoinRequest{
		UserIDs: []uint{1, 2}, IsPrivate: true,
	})
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	// Same member set resolves to the same room, order ignored.
	again, err := gw.JoinRoom(context.Background(), JoinRequest{
		UserIDs: []uint{2, 1}, IsPrivate: true,
	})
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("second join resolved room %d, want %d", again.ID, first.ID)
	}

	// A different member set is a different room.
	other, err := gw.JoinRoom(context.Background(), JoinRequest{
		UserIDs: []uint{1, 3}, IsPrivate: true,
	})
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if other.ID == first.ID {
		t.Error("distinct member set resolved to the same room")
	}

	// Create forces a fresh room even when one matches.
	forced, err := gw.JoinRoom(context.Background(), JoinRequest{
		UserIDs: []uint{1, 2}, IsPrivate: true, Create: true,
	})
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if forced.ID == first.ID {
		t.Error("create=true reused the existing room")
	}
}

// Paging through history with a small page size still yields one
// strictly ordered sequence with no duplicates.
func TestPaginationMergesWithoutDuplicates(t *testing.T) {
	a := models.PublicUser{ID: 1, Name: "a"}
	b := models.PublicUser{ID: 2, Name: "b"}

	gw := newChatGateway(a.ID)
	roomID := gw.addRoom(true, a.ID, b.ID)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		gw.seed(roomID, b, "m", base.Add(time.Duration(i)*time.Second))
	}

	rs := NewRoomSync(gw, &fakeSubscriber{}, a, WithPageSize(3))
	if err := rs.Open(context.Background(), roomID, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for rs.HasMore() {
		if err := rs.LoadMore(context.Background()); err != nil {
			t.Fatalf("LoadMore: %v", err)
		}
	}

	msgs := rs.Messages()
	if len(msgs) != 7 {
		t.Fatalf("len = %d, want 7", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i-1].before(msgs[i]) {
			t.Errorf("out of order at %d: %v then %v", i, msgs[i-1].ID, msgs[i].ID)
		}
	}
}
