package presence

import (
	"sync"

	"github.com/rs/zerolog"
)

// Room names.
func BookingRoom(bookingID string) string { return "booking:" + bookingID }
func RequestRoom(requestID string) string { return "request:" + requestID }

// Rooms is a set of named subscriptions. A connection may sit in any number
// of rooms; membership is by connection, not identity.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[Conn]struct{}
	joined  map[Conn]map[string]struct{}

	log zerolog.Logger
}

func NewRooms(logger zerolog.Logger) *Rooms {
	return &Rooms{
		members: make(map[string]map[Conn]struct{}),
		joined:  make(map[Conn]map[string]struct{}),
		log:     logger.With().Str("component", "rooms").Logger(),
	}
}

func (r *Rooms) Join(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[room] == nil {
		r.members[room] = make(map[Conn]struct{})
	}
	r.members[room][c] = struct{}{}
	if r.joined[c] == nil {
		r.joined[c] = make(map[string]struct{})
	}
	r.joined[c][room] = struct{}{}
}

func (r *Rooms) Leave(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, c)
}

// LeaveAll drops c from every room it joined.
func (r *Rooms) LeaveAll(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[c] {
		r.leaveLocked(room, c)
	}
	delete(r.joined, c)
}

func (r *Rooms) leaveLocked(room string, c Conn) {
	if m := r.members[room]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(r.members, room)
		}
	}
	if j := r.joined[c]; j != nil {
		delete(j, room)
		if len(j) == 0 {
			delete(r.joined, c)
		}
	}
}

// HasMember reports whether any connection of userID is in room.
func (r *Rooms) HasMember(room, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.members[room] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

func (r *Rooms) snapshot(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.members[room]))
	for c := range r.members[room] {
		out = append(out, c)
	}
	return out
}

// Broadcast sends ev to every connection in room and returns how many sends
// succeeded. Failed sends are logged.
func (r *Rooms) Broadcast(room string, ev Event) int {
	return r.broadcast(room, ev, "")
}

// BroadcastOthers is Broadcast skipping connections owned by exceptUserID.
func (r *Rooms) BroadcastOthers(room, exceptUserID string, ev Event) int {
	return r.broadcast(room, ev, exceptUserID)
}

func (r *Rooms) broadcast(room string, ev Event, except string) int {
	sent := 0
	for _, c := range r.snapshot(room) {
		if except != "" && c.UserID() == except {
			continue
		}
		if err := c.Send(ev); err != nil {
			r.log.Debug().Err(err).Str("room", room).Str("user_id", c.UserID()).Str("event", ev.Type).Msg("room send failed")
			continue
		}
		sent++
	}
	return sent
}
