// Package domain contains core concepts of the chat system.
// This file defines Connection entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// Connection is one live client session.
// Username never changes for the life of the session, Room always holds exactly one room.
type Connection struct {
	ID       string
	Username string
	Room     string
}

// Member is the presence view of a connection, as sent in user_list.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (c Connection) Member() Member {
	return Member{ID: c.ID, Username: c.Username}
}
