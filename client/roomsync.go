package client

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/driftchat/backend/models"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

// DefaultPageSize is the history page size requested when none is set.
const DefaultPageSize = 20

// DefaultTypingTimeout is how long a remote typing indicator survives
// without renewal.
const DefaultTypingTimeout = time.Second

// State of the room synchronization controller.
type State int

const (
	StateInitializing State = iota
	StateLoaded
	StateLoadingMore
)

// RoomSync presents a consistent, time-ordered message list for one
// room, fed by paginated history fetches and a live event stream, with
// optimistic local sends, typing indicator tracking and read-receipt
// reconciliation. All methods are safe for concurrent use; network
// calls never run under the lock, so event delivery stays responsive
// while a call is outstanding.
type RoomSync struct {
	gw            Gateway
	sub           Subscriber
	self          models.PublicUser
	pageSize      int
	typingTimeout time.Duration
	users         *cache.Cache

	mu           sync.Mutex
	epoch        uint64
	roomID       uint
	state        State
	messages     []Message
	page         int
	hasMore      bool
	total        int64
	unreadCount  int64
	visible      map[uint]bool
	typing       map[string]*Timer
	lastAck      []uint
	subscription Subscription
}

// Option configures a RoomSync.
type Option func(*RoomSync)

// WithPageSize overrides the history page size.
func WithPageSize(n int) Option {
	return func(rs *RoomSync) { rs.pageSize = n }
}

// WithTypingTimeout overrides the typing indicator expiry window.
func WithTypingTimeout(d time.Duration) Option {
	return func(rs *RoomSync) { rs.typingTimeout = d }
}

// NewRoomSync builds a controller for the given viewer. Open must be
// called before anything else.
func NewRoomSync(gw Gateway, sub Subscriber, self models.PublicUser, opts ...Option) *RoomSync {
	rs := &RoomSync{
		gw:            gw,
		sub:           sub,
		self:          self,
		pageSize:      DefaultPageSize,
		typingTimeout: DefaultTypingTimeout,
		users:         cache.New(5*time.Minute, 30*time.Second),
		visible:       make(map[uint]bool),
		typing:        make(map[string]*Timer),
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// Open switches the controller to a room: the previous subscription is
// torn down synchronously before any state is reset, so no event from a
// stale room leaks into the new room's list. The first history page is
// then loaded.
func (rs *RoomSync) Open(ctx context.Context, roomID uint, unreadCount int64) error {
	rs.mu.Lock()
	// Synchronous teardown first; a late event on the old channel must
	// not observe the new room's state.
	if rs.subscription != nil {
		rs.subscription.Unsubscribe()
		rs.subscription = nil
	}
	rs.roomID = roomID
	rs.state = StateInitializing
	rs.messages = nil
	rs.page = 1
	rs.hasMore = true
	rs.total = 0
	rs.unreadCount = unreadCount
	rs.visible = make(map[uint]bool)
	for name, timer := range rs.typing {
		timer.Cancel()
		delete(rs.typing, name)
	}
	rs.lastAck = nil
	rs.epoch++
	epoch := rs.epoch
	rs.mu.Unlock()

	subscription, err := rs.sub.Subscribe(roomID, Handlers{
		OnInsert:     func(row []byte) { rs.handleInsert(ctx, row) },
		OnUpdate:     func(row []byte) { rs.handleUpdate(ctx, row) },
		OnTyping:     rs.handleTyping,
		OnStopTyping: rs.handleStopTyping,
	})
	if err != nil {
		return err
	}

	rs.mu.Lock()
	if rs.epoch != epoch {
		// Another Open or Close won the race while the subscribe was in
		// flight; release the superseded channel instead of leaking it.
		rs.mu.Unlock()
		subscription.Unsubscribe()
		return nil
	}
	rs.subscription = subscription
	rs.mu.Unlock()

	return rs.LoadMore(ctx)
}

// Close tears down the subscription and cancels all typing timers.
func (rs *RoomSync) Close() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.epoch++
	if rs.subscription != nil {
		rs.subscription.Unsubscribe()
		rs.subscription = nil
	}
	for name, timer := range rs.typing {
		timer.Cancel()
		delete(rs.typing, name)
	}
}

// LoadMore fetches the next older page and merges it in. The fetch is
// tagged with the room it was issued for; a response landing after a
// room switch is discarded rather than corrupting the new room's list.
func (rs *RoomSync) LoadMore(ctx context.Context) error {
	rs.mu.Lock()
	if !rs.hasMore || rs.state == StateLoadingMore {
		rs.mu.Unlock()
		return nil
	}
	fetchRoom := rs.roomID
	fetchPage := rs.page
	if rs.state == StateLoaded {
		rs.state = StateLoadingMore
	}
	rs.mu.Unlock()

	result, err := rs.gw.GetMessages(ctx, fetchRoom, fetchPage, rs.pageSize)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.roomID != fetchRoom {
		// Stale response from a room we already left.
		return nil
	}
	if err != nil {
		if rs.state == StateLoadingMore {
			rs.state = StateLoaded
		}
		return err
	}

	for _, msg := range result.Messages {
		rs.insertLocked(msg)
	}
	// The cursor advances only after a successful fetch.
	rs.page = fetchPage + 1
	rs.hasMore = result.NextPage
	rs.total = result.Total
	rs.state = StateLoaded

	rs.reconcileReadsLocked(ctx)
	return nil
}

// wireMessage is the row shape delivered by change events. Events carry
// a bare user id; the embedded user is only present on full API
// responses.
type wireMessage struct {
	ID              uint              `json:"id"`
	Content         string            `json:"content"`
	Media           models.MediaList  `json:"media,omitempty"`
	RoomID          uint              `json:"room_id"`
	UserID          uint              `json:"user_id"`
	User            models.PublicUser `json:"user"`
	IsRead          bool              `json:"is_read"`
	IsSystemMessage bool              `json:"is_system_message"`
	CreatedAt       time.Time         `json:"created_at"`
}

// resolveUser turns a bare user id into a display-ready user. The local
// viewer's own id short-circuits to the known profile; everything else
// goes through the lookup cache.
func (rs *RoomSync) resolveUser(ctx context.Context, userID uint) (models.PublicUser, error) {
	if userID == rs.self.ID {
		return rs.self, nil
	}
	key := strconv.FormatUint(uint64(userID), 10)
	if cached, found := rs.users.Get(key); found {
		return cached.(models.PublicUser), nil
	}
	user, err := rs.gw.GetUser(ctx, userID)
	if err != nil {
		return models.PublicUser{}, err
	}
	rs.users.Set(key, user, cache.DefaultExpiration)
	return user, nil
}

func (rs *RoomSync) prepareMessage(ctx context.Context, wire wireMessage) (Message, error) {
	user := wire.User
	if user.ID == 0 {
		resolved, err := rs.resolveUser(ctx, wire.UserID)
		if err != nil {
			return Message{}, err
		}
		user = resolved
	}
	return Message{
		ID:              wire.ID,
		Content:         wire.Content,
		Media:           wire.Media,
		RoomID:          wire.RoomID,
		User:            user,
		IsRead:          wire.IsRead,
		IsSystemMessage: wire.IsSystemMessage,
		CreatedAt:       wire.CreatedAt,
	}, nil
}

// handleInsert merges a realtime insert. Messages authored by the local
// user arrive via the optimistic path instead and are ignored here.
func (rs *RoomSync) handleInsert(ctx context.Context, row []byte) {
	var wire wireMessage
	if err := json.Unmarshal(row, &wire); err != nil {
		log.Printf("roomsync: bad insert row: %v", err)
		return
	}
	if wire.UserID == rs.self.ID || wire.User.ID == rs.self.ID {
		return
	}

	msg, err := rs.prepareMessage(ctx, wire)
	if err != nil {
		log.Printf("roomsync: failed to resolve user %d: %v", wire.UserID, err)
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if wire.RoomID != rs.roomID {
		return
	}
	if rs.insertLocked(msg) {
		rs.total++
	}
}

// handleUpdate replaces the matching message in place. With no match
// the event is dropped; this can occur across room switches.
func (rs *RoomSync) handleUpdate(ctx context.Context, row []byte) {
	var wire wireMessage
	if err := json.Unmarshal(row, &wire); err != nil {
		log.Printf("roomsync: bad update row: %v", err)
		return
	}

	msg, err := rs.prepareMessage(ctx, wire)
	if err != nil {
		log.Printf("roomsync: failed to resolve user %d: %v", wire.UserID, err)
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if wire.RoomID != rs.roomID {
		return
	}
	for i := range rs.messages {
		if rs.messages[i].ID == msg.ID {
			rs.messages[i] = msg
			return
		}
	}
}

// insertLocked places msg into the sequence at its timestamp-ordered
// position, deduplicating by server id. Returns false for duplicates.
func (rs *RoomSync) insertLocked(msg Message) bool {
	if msg.ID != 0 {
		for i := range rs.messages {
			if rs.messages[i].ID == msg.ID {
				return false
			}
		}
	}
	at := sort.Search(len(rs.messages), func(i int) bool {
		return msg.before(rs.messages[i])
	})
	rs.messages = append(rs.messages, Message{})
	copy(rs.messages[at+1:], rs.messages[at:])
	rs.messages[at] = msg
	return true
}

// removeLocalLocked removes the provisional entry with the given
// LocalID. Returns whether an entry was removed.
func (rs *RoomSync) removeLocalLocked(localID string) bool {
	for i := range rs.messages {
		if rs.messages[i].LocalID == localID {
			rs.messages = append(rs.messages[:i], rs.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Send submits a message optimistically: a provisional entry appears
// immediately and is swapped for the authoritative one on success, or
// removed exactly once on failure. A successful send also broadcasts a
// stop-typing signal and triggers best-effort push notifications to the
// other room members.
func (rs *RoomSync) Send(ctx context.Context, content string, media models.MediaList) (Message, error) {
	optimistic := Message{
		LocalID:      uuid.New().String(),
		Content:      content,
		Media:        media,
		User:         rs.self,
		IsOptimistic: true,
		CreatedAt:    time.Now(),
	}

	rs.mu.Lock()
	roomID := rs.roomID
	subscription := rs.subscription
	optimistic.RoomID = roomID
	rs.insertLocked(optimistic)
	rs.mu.Unlock()

	if subscription != nil {
		if err := subscription.Broadcast("stop_typing", TypingPayload{
			UserID:   rs.self.ID,
			UserName: rs.self.Name,
		}); err != nil {
			log.Printf("roomsync: stop_typing broadcast failed: %v", err)
		}
	}

	created, err := rs.gw.CreateMessage(ctx, roomID, content, media)

	rs.mu.Lock()
	rs.removeLocalLocked(optimistic.LocalID)
	if err != nil {
		rs.mu.Unlock()
		return Message{}, err
	}
	// Idempotent if the authoritative entry already arrived.
	if rs.roomID == roomID && rs.insertLocked(created) {
		rs.total++
	}
	rs.mu.Unlock()

	rs.notifyMembers(ctx, roomID, created)
	return created, nil
}

// notifyMembers fans push notifications out to the other room members.
// Best-effort: one member failing to receive a notification never rolls
// back or fails the send.
func (rs *RoomSync) notifyMembers(ctx context.Context, roomID uint, msg Message) {
	members, err := rs.gw.RoomMembers(ctx, roomID)
	if err != nil {
		log.Printf("roomsync: failed to load members of room %d: %v", roomID, err)
		return
	}

	title := "New message from " + rs.self.Name
	body := msg.Content
	if body == "" && len(msg.Media) > 0 {
		body = "Sent an attachment"
	}
	url := "/?roomId=" + strconv.FormatUint(uint64(roomID), 10)

	for _, member := range members {
		if member == rs.self.ID {
			continue
		}
		if err := rs.gw.Notify(ctx, member, title, body, url); err != nil {
			log.Printf("roomsync: notification to user %d failed: %v", member, err)
		}
	}
}

// NotifyTyping broadcasts a typing signal for the local user. Called on
// keystrokes; rate limiting is left to the caller's event rate.
func (rs *RoomSync) NotifyTyping() {
	rs.mu.Lock()
	subscription := rs.subscription
	rs.mu.Unlock()
	if subscription == nil {
		return
	}
	if err := subscription.Broadcast("typing", TypingPayload{
		UserID:   rs.self.ID,
		UserName: rs.self.Name,
	}); err != nil {
		log.Printf("roomsync: typing broadcast failed: %v", err)
	}
}

// handleTyping adds the user to the typing set and (re)arms the expiry
// timer; a renewed typing event restarts the window.
func (rs *RoomSync) handleTyping(userID uint, userName string) {
	if userID == rs.self.ID || userName == "" {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if timer, ok := rs.typing[userName]; ok {
		timer.Reset()
		return
	}
	rs.typing[userName] = NewTimer(rs.typingTimeout, func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		delete(rs.typing, userName)
	})
}

// handleStopTyping removes the user immediately and cancels the timer.
func (rs *RoomSync) handleStopTyping(userID uint, userName string) {
	if userID == rs.self.ID {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if timer, ok := rs.typing[userName]; ok {
		timer.Cancel()
		delete(rs.typing, userName)
	}
}

// TypingUsers returns the names currently typing, sorted for stable
// rendering.
func (rs *RoomSync) TypingUsers() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	names := make([]string, 0, len(rs.typing))
	for name := range rs.typing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetVisible reports the currently visible message ids. Visibility is
// re-evaluated continuously rather than trigger-once, so a message
// scrolled back into view after the unread counter grows is still
// acked.
func (rs *RoomSync) SetVisible(ctx context.Context, messageIDs []uint) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.visible = make(map[uint]bool, len(messageIDs))
	for _, id := range messageIDs {
		rs.visible[id] = true
	}
	rs.reconcileReadsLocked(ctx)
}

// SetUnreadCount feeds the room's unread counter (from the membership
// row or its realtime updates) and reconciles read receipts.
func (rs *RoomSync) SetUnreadCount(ctx context.Context, unread int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.unreadCount = unread
	rs.reconcileReadsLocked(ctx)
}

// reconcileReadsLocked computes the newest unreadCount distinct visible
// messages not authored by the viewer and acks them in one batch. A
// batch identical to the previous one is skipped so continuous
// visibility re-evaluation does not repeat in-flight acks.
func (rs *RoomSync) reconcileReadsLocked(ctx context.Context) {
	if rs.unreadCount == 0 || len(rs.visible) == 0 {
		return
	}

	candidates := make([]Message, 0, len(rs.visible))
	for _, msg := range rs.messages {
		if !rs.visible[msg.ID] {
			continue
		}
		if msg.User.ID == rs.self.ID || msg.IsOptimistic {
			continue
		}
		candidates = append(candidates, msg)
	}
	if len(candidates) == 0 {
		return
	}

	// Newest first, capped at the unread counter.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[j].before(candidates[i])
	})
	if int64(len(candidates)) > rs.unreadCount {
		candidates = candidates[:rs.unreadCount]
	}

	ids := make([]uint, len(candidates))
	for i, msg := range candidates {
		ids[i] = msg.ID
	}
	if equalIDs(ids, rs.lastAck) {
		return
	}
	rs.lastAck = ids

	roomID := rs.roomID
	go func() {
		unread, err := rs.gw.ReadMessages(ctx, roomID, ids)
		if err != nil {
			log.Printf("roomsync: read ack failed: %v", err)
			return
		}
		rs.mu.Lock()
		if rs.roomID == roomID {
			rs.unreadCount = unread
		}
		rs.mu.Unlock()
	}()
}

// Messages returns a copy of the current chronological sequence.
func (rs *RoomSync) Messages() []Message {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Message, len(rs.messages))
	copy(out, rs.messages)
	return out
}

// State returns the controller state.
func (rs *RoomSync) State() State {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// Total returns the room's total message count as last reported.
func (rs *RoomSync) Total() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.total
}

// HasMore reports whether an older history page exists.
func (rs *RoomSync) HasMore() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.hasMore
}

// UnreadCount returns the viewer's unread counter for the open room.
func (rs *RoomSync) UnreadCount() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.unreadCount
}

func equalIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
