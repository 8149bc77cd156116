package client

import (
	"sort"
	"sync"
	"time"
)

// RoomList orders the viewer's rooms for the sidebar: descending unread
// count first, then latest-message recency among fully-read rooms, with
// ties left in their existing order. It is patched in place from
// global-stream events rather than refetched.
type RoomList struct {
	mu    sync.Mutex
	rooms []RoomSummary
}

// NewRoomList builds an empty list.
func NewRoomList() *RoomList {
	return &RoomList{}
}

// Set replaces the whole list, normally from a full fetch.
func (rl *RoomList) Set(rooms []RoomSummary) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rooms = make([]RoomSummary, len(rooms))
	copy(rl.rooms, rooms)
}

// ApplyMembership patches a room's unread count from a membership
// update event. Updates for rooms not in the list are ignored; the room
// will appear on the next full fetch.
func (rl *RoomList) ApplyMembership(roomID uint, unreadCount int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i := range rl.rooms {
		if rl.rooms[i].ID == roomID {
			rl.rooms[i].UnreadCount = unreadCount
			return
		}
	}
}

// ApplyMessage patches a room's latest message from a message insert
// event. Older messages than the current latest are ignored, so
// out-of-order delivery cannot move a room backwards.
func (rl *RoomList) ApplyMessage(msg Message) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i := range rl.rooms {
		if rl.rooms[i].ID != msg.RoomID {
			continue
		}
		if latest := rl.rooms[i].LatestMessage; latest != nil && msg.before(*latest) {
			return
		}
		m := msg
		rl.rooms[i].LatestMessage = &m
		return
	}
}

// Upsert adds a room or replaces its entry, used when the viewer joins
// or creates a room.
func (rl *RoomList) Upsert(room RoomSummary) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i := range rl.rooms {
		if rl.rooms[i].ID == room.ID {
			rl.rooms[i] = room
			return
		}
	}
	rl.rooms = append(rl.rooms, room)
}

// Sorted returns the rooms in render order.
func (rl *RoomList) Sorted() []RoomSummary {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	out := make([]RoomSummary, len(rl.rooms))
	copy(out, rl.rooms)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UnreadCount != out[j].UnreadCount {
			return out[i].UnreadCount > out[j].UnreadCount
		}
		// Recency only orders the fully-read rooms; equal non-zero
		// counts keep their existing order.
		if out[i].UnreadCount == 0 {
			return latestAt(out[i]).After(latestAt(out[j]))
		}
		return false
	})
	return out
}

// latestAt is the recency key: the latest message's timestamp, or the
// zero time for rooms with no messages yet.
func latestAt(room RoomSummary) time.Time {
	if room.LatestMessage == nil {
		return time.Time{}
	}
	return room.LatestMessage.CreatedAt
}
