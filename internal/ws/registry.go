package ws

import "sync"

// Registry tracks which sessions are joined to which rooms. A room is
// keyed by conversation ID (plus a personal room per user, keyed by
// user ID, used for conversation-created events).
//
// Join/Leave/Drop are called concurrently from many connections, so
// all state is behind one coarse lock.
type Registry struct {
	mu sync.RWMutex

	// roomID -> set of joined sessions
	rooms map[string]map[*Session]struct{}

	// session -> set of joined room IDs, so Drop releases everything
	// without scanning all rooms
	joined map[*Session]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Session]struct{}),
		joined: make(map[*Session]map[string]struct{}),
	}
}

// Join adds the session to the room. Idempotent.
func (r *Registry) Join(s *Session, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[*Session]struct{})
		r.rooms[roomID] = room
	}
	room[s] = struct{}{}

	rooms, ok := r.joined[s]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[s] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave removes the session from the room. No-op if not joined.
func (r *Registry) Leave(s *Session, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(s, roomID)
	if rooms, ok := r.joined[s]; ok {
		delete(rooms, roomID)
	}
}

// Members returns a snapshot of the sessions currently joined to the
// room. Iteration order is unspecified.
func (r *Registry) Members(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	members := make([]*Session, 0, len(room))
	for s := range room {
		members = append(members, s)
	}
	return members
}

// Joined reports whether the session is currently in the room.
func (r *Registry) Joined(s *Session, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.joined[s][roomID]
	return ok
}

// Drop removes the session from every room it had joined.
func (r *Registry) Drop(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.joined[s] {
		r.removeLocked(s, roomID)
	}
	delete(r.joined, s)
}

func (r *Registry) removeLocked(s *Session, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
}
