package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftchat/backend/models"
)

// fakeGateway serves canned history pages and records calls.
type fakeGateway struct {
	mu       sync.Mutex
	pages    map[int]MessagesPage
	pageErr  error
	created  Message
	sendErr  error
	reads    [][]uint
	readDone chan []uint
	unread   int64
	members  []uint
	notified []uint

	// blockFetch, when set, holds GetMessages until released.
	blockFetch chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		pages:    map[int]MessagesPage{},
		readDone: make(chan []uint, 8),
	}
}

func (g *fakeGateway) GetMessages(ctx context.Context, roomID uint, page, limit int) (MessagesPage, error) {
	if g.blockFetch != nil {
		<-g.blockFetch
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pageErr != nil {
		return MessagesPage{}, g.pageErr
	}
	return g.pages[page], nil
}

func (g *fakeGateway) CreateMessage(ctx context.Context, roomID uint, content string, media models.MediaList) (Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return Message{}, g.sendErr
	}
	created := g.created
	created.RoomID = roomID
	created.Content = content
	return created, nil
}

func (g *fakeGateway) ReadMessages(ctx context.Context, roomID uint, messageIDs []uint) (int64, error) {
	g.mu.Lock()
	g.reads = append(g.reads, messageIDs)
	unread := g.unread
	g.mu.Unlock()
	g.readDone <- messageIDs
	return unread, nil
}

func (g *fakeGateway) JoinRoom(ctx context.Context, req JoinRequest) (RoomSummary, error) {
	return RoomSummary{}, nil
}

func (g *fakeGateway) GetUser(ctx context.Context, userID uint) (models.PublicUser, error) {
	return models.PublicUser{ID: userID, Name: "resolved"}, nil
}

func (g *fakeGateway) UserStatus(ctx context.Context, userID uint) (Status, error) {
	return Status{}, nil
}

func (g *fakeGateway) UpdateStatus(isOnline bool) error { return nil }

func (g *fakeGateway) RoomMembers(ctx context.Context, roomID uint) ([]uint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members, nil
}

func (g *fakeGateway) Notify(ctx context.Context, userID uint, title, body, url string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notified = append(g.notified, userID)
	return nil
}

// fakeSubscriber hands out subscriptions that record broadcasts and
// expose the handlers for event injection.
type fakeSubscriber struct {
	mu       sync.Mutex
	handlers Handlers
	subs     []*fakeSubscription
}

type fakeSubscription struct {
	mu         sync.Mutex
	broadcasts []string
	closed     bool
}

func (s *fakeSubscription) Broadcast(name string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, name)
	return nil
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (f *fakeSubscriber) Subscribe(roomID uint, h Handlers) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	sub := &fakeSubscription{}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) currentHandlers() Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

var viewer = models.PublicUser{ID: 1, Name: "ana"}
var peer = models.PublicUser{ID: 2, Name: "bo"}

func msgAt(id uint, user models.PublicUser, sec int) Message {
	return Message{
		ID:        id,
		Content:   "m",
		RoomID:    7,
		User:      user,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC),
	}
}

func wireRow(t *testing.T, msg Message) []byte {
	t.Helper()
	row, err := json.Marshal(map[string]interface{}{
		"id":         msg.ID,
		"content":    msg.Content,
		"room_id":    msg.RoomID,
		"user_id":    msg.User.ID,
		"user":       msg.User,
		"created_at": msg.CreatedAt,
	})
	if err != nil {
		t.Fatal(err)
	}
	return row
}

func messageIDs(msgs []Message) []uint {
	ids := make([]uint, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestOpenMergesPagesInOrder(t *testing.T) {
	gw := newFakeGateway()
	// Newest-first pages, as the server delivers them.
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(30, peer, 30), msgAt(20, peer, 20)},
		NextPage: true,
		Total:    3,
	}
	gw.pages[2] = MessagesPage{
		Messages: []Message{msgAt(10, peer, 10)},
		NextPage: false,
		Total:    3,
	}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)

	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := rs.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	got := messageIDs(rs.Messages())
	want := []uint{10, 20, 30}
	if !equalIDs(got, want) {
		t.Errorf("messages = %v, want %v", got, want)
	}
	if rs.HasMore() {
		t.Error("HasMore = true after final page")
	}
	if rs.Total() != 3 {
		t.Errorf("Total = %d, want 3", rs.Total())
	}
	if rs.State() != StateLoaded {
		t.Errorf("State = %v, want StateLoaded", rs.State())
	}
}

func TestRealtimeInsertKeepsOrderAndDedupes(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(20, peer, 20)},
		Total:    1,
	}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	h := sub.currentHandlers()
	// An earlier message arriving late must slot before the loaded one.
	h.OnInsert(wireRow(t, msgAt(10, peer, 10)))
	// A duplicate must not appear twice.
	h.OnInsert(wireRow(t, msgAt(10, peer, 10)))
	// The viewer's own messages come through the send path instead.
	h.OnInsert(wireRow(t, msgAt(40, viewer, 40)))

	got := messageIDs(rs.Messages())
	want := []uint{10, 20}
	if !equalIDs(got, want) {
		t.Errorf("messages = %v, want %v", got, want)
	}
	if rs.Total() != 2 {
		t.Errorf("Total = %d, want 2", rs.Total())
	}
}

func TestInsertFromOtherRoomIgnored(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{Total: 0}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	stray := msgAt(99, peer, 5)
	stray.RoomID = 8
	sub.currentHandlers().OnInsert(wireRow(t, stray))

	if got := rs.Messages(); len(got) != 0 {
		t.Errorf("messages = %v, want empty", messageIDs(got))
	}
}

func TestStaleFetchDiscardedAfterRoomSwitch(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(50, peer, 50)},
		Total:    1,
	}
	gw.blockFetch = make(chan struct{})
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)

	errCh := make(chan error, 1)
	go func() { errCh <- rs.Open(context.Background(), 7, 0) }()

	// Switch rooms while the first room's fetch is in flight.
	time.Sleep(20 * time.Millisecond)
	rs.mu.Lock()
	rs.roomID = 8
	rs.mu.Unlock()
	close(gw.blockFetch)

	if err := <-errCh; err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := rs.Messages(); len(got) != 0 {
		t.Errorf("stale page merged: %v", messageIDs(got))
	}
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{Total: 0}
	gw.created = msgAt(77, viewer, 77)
	gw.members = []uint{1, 2, 3}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	created, err := rs.Send(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if created.ID != 77 {
		t.Errorf("created.ID = %d, want 77", created.ID)
	}

	msgs := rs.Messages()
	if len(msgs) != 1 || msgs[0].ID != 77 || msgs[0].IsOptimistic {
		t.Errorf("messages = %+v, want single confirmed id 77", msgs)
	}

	// A send also clears the local typing indicator for everyone else.
	s := sub.subs[0]
	s.mu.Lock()
	broadcasts := append([]string(nil), s.broadcasts...)
	s.mu.Unlock()
	if len(broadcasts) != 1 || broadcasts[0] != "stop_typing" {
		t.Errorf("broadcasts = %v, want [stop_typing]", broadcasts)
	}

	// Push fan-out goes to the other members only.
	gw.mu.Lock()
	notified := append([]uint(nil), gw.notified...)
	gw.mu.Unlock()
	if !equalIDs(notified, []uint{2, 3}) {
		t.Errorf("notified = %v, want [2 3]", notified)
	}
}

func TestSendFailureRollsBackExactlyOnce(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(20, peer, 20)},
		Total:    1,
	}
	gw.sendErr = errors.New("boom")
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := rs.Send(context.Background(), "hello", nil); err == nil {
		t.Fatal("Send succeeded, want error")
	}

	got := messageIDs(rs.Messages())
	if !equalIDs(got, []uint{20}) {
		t.Errorf("messages = %v, want [20] after rollback", got)
	}
	if rs.Total() != 1 {
		t.Errorf("Total = %d, want 1", rs.Total())
	}
}

func TestTypingExpiresAndRenews(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{Total: 0}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer, WithTypingTimeout(40*time.Millisecond))
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	h := sub.currentHandlers()

	h.OnTyping(peer.ID, peer.Name)
	if got := rs.TypingUsers(); len(got) != 1 || got[0] != "bo" {
		t.Fatalf("TypingUsers = %v, want [bo]", got)
	}

	// Renewal restarts the window.
	time.Sleep(25 * time.Millisecond)
	h.OnTyping(peer.ID, peer.Name)
	time.Sleep(25 * time.Millisecond)
	if got := rs.TypingUsers(); len(got) != 1 {
		t.Fatalf("TypingUsers = %v, want still typing after renewal", got)
	}

	// Expiry clears without a stop event.
	time.Sleep(60 * time.Millisecond)
	if got := rs.TypingUsers(); len(got) != 0 {
		t.Errorf("TypingUsers = %v, want empty after expiry", got)
	}

	// An explicit stop clears immediately.
	h.OnTyping(peer.ID, peer.Name)
	h.OnStopTyping(peer.ID, peer.Name)
	if got := rs.TypingUsers(); len(got) != 0 {
		t.Errorf("TypingUsers = %v, want empty after stop", got)
	}

	// The viewer's own echo never shows up.
	h.OnTyping(viewer.ID, viewer.Name)
	if got := rs.TypingUsers(); len(got) != 0 {
		t.Errorf("TypingUsers = %v, own typing echoed back", got)
	}
}

func TestVisibilityAcksNewestUnread(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{
			msgAt(40, peer, 40),
			msgAt(30, viewer, 30),
			msgAt(20, peer, 20),
			msgAt(10, peer, 10),
		},
		Total: 4,
	}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 2); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// All four visible, two unread: only the newest two not authored by
	// the viewer are acked.
	rs.SetVisible(context.Background(), []uint{10, 20, 30, 40})

	select {
	case ids := <-gw.readDone:
		want := []uint{40, 20}
		if !equalIDs(ids, want) {
			t.Errorf("acked = %v, want %v", ids, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no read ack issued")
	}

	// The counter settles once the ack response lands.
	deadline := time.Now().Add(time.Second)
	for rs.UnreadCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("UnreadCount = %d, want 0 after ack", rs.UnreadCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Re-reporting the same visibility must not repeat the ack.
	rs.SetVisible(context.Background(), []uint{10, 20, 30, 40})
	select {
	case ids := <-gw.readDone:
		t.Errorf("duplicate ack issued: %v", ids)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNoAckWhenNothingUnread(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(10, peer, 10)},
		Total:    1,
	}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	rs.SetVisible(context.Background(), []uint{10})

	select {
	case ids := <-gw.readDone:
		t.Errorf("ack issued with zero unread: %v", ids)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdateReplacesMessageInPlace(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(10, peer, 10)},
		Total:    1,
	}
	sub := &fakeSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	updated := msgAt(10, peer, 10)
	updated.Content = "edited"
	sub.currentHandlers().OnUpdate(wireRow(t, updated))

	msgs := rs.Messages()
	if len(msgs) != 1 || msgs[0].Content != "edited" {
		t.Errorf("messages = %+v, want single edited message", msgs)
	}

	// An update for an unknown id is dropped, not appended.
	sub.currentHandlers().OnUpdate(wireRow(t, msgAt(999, peer, 99)))
	if got := rs.Messages(); len(got) != 1 {
		t.Errorf("unknown update appended: %v", messageIDs(got))
	}
}

// reopenSubscriber reopens the controller for a second room while the
// first subscribe call is still in flight.
type reopenSubscriber struct {
	fakeSubscriber
	rs       *RoomSync
	reopened bool
}

func (r *reopenSubscriber) Subscribe(roomID uint, h Handlers) (Subscription, error) {
	sub, err := r.fakeSubscriber.Subscribe(roomID, h)
	if !r.reopened {
		r.reopened = true
		if err := r.rs.Open(context.Background(), roomID+1, 0); err != nil {
			return nil, err
		}
	}
	return sub, err
}

func TestReopenDuringSubscribeClosesSupersededSubscription(t *testing.T) {
	gw := newFakeGateway()
	gw.pages[1] = MessagesPage{
		Messages: []Message{msgAt(10, peer, 10)},
		Total:    1,
	}
	sub := &reopenSubscriber{}
	rs := NewRoomSync(gw, sub, viewer)
	sub.rs = rs

	if err := rs.Open(context.Background(), 7, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := len(sub.subs); got != 2 {
		t.Fatalf("subscriptions opened = %d, want 2", got)
	}
	if !sub.subs[0].closed {
		t.Error("superseded subscription left open")
	}
	if sub.subs[1].closed {
		t.Error("winning subscription was closed")
	}
}
