package runtime

import (
	"chat-relay/domain/event"
	"slices"
	"strings"
)

type TypingScope string

const (
	// TypingGlobal sends the list of everyone typing to every connection.
	TypingGlobal TypingScope = "global"
	// TypingRoom only shows a room the people typing in it.
	TypingRoom TypingScope = "room"
)

func ParseTypingScope(raw string) TypingScope {
	if TypingScope(strings.ToLower(strings.TrimSpace(raw))) == TypingRoom {
		return TypingRoom
	}
	return TypingGlobal
}

type typist struct {
	username string
	room     string
}

// TypingSet tracks connections currently typing.
// Entries are keyed by connection so two sessions sharing a username don't clear each other.
// It is not safe for concurrent use, the Coordinator guards it.
type TypingSet struct {
	scope   TypingScope
	typists map[string]typist
}

func NewTypingSet(scope TypingScope) *TypingSet {
	return &TypingSet{scope: scope, typists: make(map[string]typist)}
}

// Set reports whether the set changed.
func (t *TypingSet) Set(connectionID, username, room string, isTyping bool) bool {
	current, ok := t.typists[connectionID]
	if !isTyping {
		if !ok {
			return false
		}
		delete(t.typists, connectionID)
		return true
	}
	if ok && current.room == room {
		return false
	}
	t.typists[connectionID] = typist{username: username, room: room}
	return true
}

// Move follows a room switch and returns the room the entry left.
func (t *TypingSet) Move(connectionID, room string) (string, bool) {
	current, ok := t.typists[connectionID]
	if !ok || current.room == room {
		return "", false
	}
	t.typists[connectionID] = typist{username: current.username, room: room}
	return current.room, true
}

// Clear removes the connection and returns the room it was typing in.
func (t *TypingSet) Clear(connectionID string) (string, bool) {
	current, ok := t.typists[connectionID]
	if !ok {
		return "", false
	}
	delete(t.typists, connectionID)
	return current.room, true
}

// Users lists distinct typing usernames, sorted. room is ignored in global scope.
func (t *TypingSet) Users(room string) []string {
	users := make([]string, 0, len(t.typists))
	for _, typist := range t.typists {
		if t.scope == TypingRoom && typist.room != room {
			continue
		}
		users = append(users, typist.username)
	}
	slices.Sort(users)
	return slices.Compact(users)
}

// Envelope builds the typing_users event for a change that happened in room.
func (t *TypingSet) Envelope(room string) event.Envelope {
	if t.scope == TypingRoom {
		return event.NewEnvelope(event.ToRoom(room), event.TypingUsers{Room: room, Users: t.Users(room)})
	}
	return event.NewEnvelope(event.ToAll(), event.TypingUsers{Users: t.Users("")})
}

func (t *TypingSet) Scope() TypingScope {
	return t.scope
}
