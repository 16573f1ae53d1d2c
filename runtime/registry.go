package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"cmp"
	"slices"
	"strings"
	"sync"
)

type Set map[string]struct{}

var _ contract.IRegistry = (*Registry)(nil)

type session struct {
	conn domain.Connection
	sink contract.EventSink
}

// Registry holds every live connection and the room it currently sits in.
// The room -> members index and each connection's Room field are updated
// in the same critical section, so both views always agree.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*session // map connection -> session
	roomMembers map[string]Set      // map room to connections
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*session),
		roomMembers: make(map[string]Set),
	}
}

// Register adds a connection in its initial room.
func (r *Registry) Register(conn domain.Connection, sink contract.EventSink) error {
	if strings.TrimSpace(conn.Username) == "" {
		return errors.ErrInvalidUsername
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[conn.ID]; exists {
		return errors.ErrDuplicateConnection
	}
	r.sessions[conn.ID] = &session{conn: conn, sink: sink}
	r.join(conn.ID, conn.Room)
	return nil
}

// SetRoom moves a connection and returns the room it left.
func (r *Registry) SetRoom(connectionID, room string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return "", false
	}
	old := s.conn.Room
	if old == room {
		return old, true
	}
	r.leave(connectionID, old)
	s.conn.Room = room
	r.join(connectionID, room)
	return old, true
}

// Unregister removes the connection and ensures no empty sets are left in the room map.
func (r *Registry) Unregister(connectionID string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return domain.Connection{}, false
	}
	delete(r.sessions, connectionID)
	r.leave(connectionID, s.conn.Room)
	return s.conn, true
}

func (r *Registry) Lookup(connectionID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return domain.Connection{}, false
	}
	return s.conn, true
}

// MembersOf lists the room's members ordered by username, then id.
func (r *Registry) MembersOf(room string) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]domain.Member, 0, len(r.roomMembers[room]))
	for id := range r.roomMembers[room] {
		members = append(members, r.sessions[id].conn.Member())
	}
	slices.SortFunc(members, func(a, b domain.Member) int {
		return cmp.Or(cmp.Compare(a.Username, b.Username), cmp.Compare(a.ID, b.ID))
	})
	return members
}

// Resolve turns a target into the sinks currently attached to it.
// Membership is read at call time, so a connection that left a room
// before the event is fanned out does not receive it.
func (r *Registry) Resolve(target event.Target) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	add := func(id string) {
		if target.Excludes(id) {
			return
		}
		if s, ok := r.sessions[id]; ok {
			sinks = append(sinks, s.sink)
		}
	}

	switch target.Kind {
	case event.TargetRoom:
		for id := range r.roomMembers[target.Room] {
			add(id)
		}
	case event.TargetConnections:
		for _, id := range slices.Compact(slices.Sorted(slices.Values(target.Connections))) {
			add(id)
		}
	case event.TargetAll:
		for id := range r.sessions {
			add(id)
		}
	}
	return sinks
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) join(connectionID, room string) {
	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][connectionID] = struct{}{}
}

func (r *Registry) leave(connectionID, room string) {
	if members, ok := r.roomMembers[room]; ok {
		delete(members, connectionID)

		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}
