// Package room maintains live chat-room membership and runs the submit
// pipeline: moderation, ledger persistence, and fan-out to connected
// sessions. Rooms are transient — membership is rebuilt purely from live
// connections and is never persisted.
package room

import "sync"

// Registry maps slot IDs to the set of currently connected session IDs. It
// also keeps the reverse index so a disconnecting session can be removed from
// every room it joined. Rooms are created lazily on first join and vanish
// when their last member leaves.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]struct{} // slotID -> set of sessionIDs
	sessions map[string]map[string]struct{} // sessionID -> set of slotIDs
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]struct{}),
		sessions: make(map[string]map[string]struct{}),
	}
}

// Join adds a session to a slot's room. Joining twice is a no-op. It returns
// whether the session was newly added and whether the room itself was created
// by this call (so the caller can set up cross-instance subscriptions).
func (r *Registry) Join(sessionID, slotID string) (joined, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[slotID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[slotID] = members
		created = true
	}
	if _, ok := members[sessionID]; ok {
		return false, false
	}
	members[sessionID] = struct{}{}

	slots, ok := r.sessions[sessionID]
	if !ok {
		slots = make(map[string]struct{})
		r.sessions[sessionID] = slots
	}
	slots[slotID] = struct{}{}

	return true, created
}

// Leave removes a session from a slot's room. It returns whether the session
// was a member and whether the room became empty (and was discarded).
func (r *Registry) Leave(sessionID, slotID string) (left, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID, slotID)
}

// DropSession removes a session from every room it was part of, typically on
// disconnect. It returns the slot IDs of rooms that became empty.
func (r *Registry) DropSession(sessionID string) (emptied []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for slotID := range r.sessions[sessionID] {
		if _, wasEmptied := r.leaveLocked(sessionID, slotID); wasEmptied {
			emptied = append(emptied, slotID)
		}
	}
	return emptied
}

// Members returns a snapshot of the session IDs in a slot's room. The slice
// is safe to iterate without holding the registry lock.
func (r *Registry) Members(slotID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[slotID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Contains reports whether a session is a member of a slot's room.
func (r *Registry) Contains(sessionID, slotID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[slotID][sessionID]
	return ok
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// leaveLocked removes the membership entry in both indexes. Caller holds mu.
func (r *Registry) leaveLocked(sessionID, slotID string) (left, emptied bool) {
	members, ok := r.rooms[slotID]
	if !ok {
		return false, false
	}
	if _, ok := members[sessionID]; !ok {
		return false, false
	}

	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, slotID)
		emptied = true
	}

	if slots, ok := r.sessions[sessionID]; ok {
		delete(slots, slotID)
		if len(slots) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	return true, emptied
}
