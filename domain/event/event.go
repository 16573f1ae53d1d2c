package event

import (
	"chat-relay/domain"
	"time"

	"github.com/google/uuid"
)

// Outbound event names, as carried on the wire.
const (
	ConnectedType      = "connected"
	RoomListType       = "room_list"
	UserListType       = "user_list"
	MessageHistoryType = "message_history"
	ReceiveMessageType = "receive_message"
	MessageUpdatedType = "message_updated"
	TypingUsersType    = "typing_users"
	RoomDeletedType    = "room_deleted"
	FailureType        = "error"
	RoomPurgedType     = "room_purged"
)

// DomainEvent is anything the coordinator publishes.
// Payload is the exact value written in the "data" field of the frame.
type DomainEvent interface {
	Name() string
	Payload() any
}

type Connected struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (Connected) Name() string   { return ConnectedType }
func (e Connected) Payload() any { return e }

type RoomList struct {
	Rooms []string
}

func (RoomList) Name() string   { return RoomListType }
func (e RoomList) Payload() any { return e.Rooms }

type UserList struct {
	Room    string
	Members []domain.Member
}

func (UserList) Name() string   { return UserListType }
func (e UserList) Payload() any { return e.Members }

// MessageHistory is always oldest first.
type MessageHistory struct {
	Room     string
	Messages []domain.Message
}

func (MessageHistory) Name() string   { return MessageHistoryType }
func (e MessageHistory) Payload() any { return e.Messages }

type ReceiveMessage struct {
	Message domain.Message
	// Persisted is false for private messages and System notices.
	Persisted bool
}

func (ReceiveMessage) Name() string   { return ReceiveMessageType }
func (e ReceiveMessage) Payload() any { return e.Message }

type MessageUpdated struct {
	MessageID uuid.UUID        `json:"messageId"`
	Room      string           `json:"-"`
	Reactions domain.Reactions `json:"reactions"`
}

func (MessageUpdated) Name() string   { return MessageUpdatedType }
func (e MessageUpdated) Payload() any { return e }

type TypingUsers struct {
	Room  string
	Users []string
}

func (TypingUsers) Name() string   { return TypingUsersType }
func (e TypingUsers) Payload() any { return e.Users }

type RoomDeleted struct {
	Room string
}

func (RoomDeleted) Name() string   { return RoomDeletedType }
func (e RoomDeleted) Payload() any { return e.Room }

// Failure acknowledges a command that had no effect.
type Failure struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Failure) Name() string   { return FailureType }
func (e Failure) Payload() any { return e }

// RoomPurged is never sent to clients, only permanent sinks see it.
type RoomPurged struct {
	Room string
}

func (RoomPurged) Name() string   { return RoomPurgedType }
func (e RoomPurged) Payload() any { return e.Room }

// Envelope is an addressed event waiting for fanout.
type Envelope struct {
	Target Target
	Event  DomainEvent
	At     time.Time
}

func NewEnvelope(target Target, evt DomainEvent) Envelope {
	return Envelope{Target: target, Event: evt, At: time.Now().UTC()}
}
