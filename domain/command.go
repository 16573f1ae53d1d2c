package domain

// Inbound event names, as carried on the wire.
const (
	JoinRoomEvent       = "join_room"
	CreateRoomEvent     = "create_room"
	DeleteRoomEvent     = "delete_room"
	SendMessageEvent    = "send_message"
	PrivateMessageEvent = "private_message"
	ReactEvent          = "react_to_message"
	TypingEvent         = "typing"
)

// Command is the closed set of things a connection can ask the coordinator to do.
type Command interface {
	EventName() string
}

type JoinRoomCommand struct {
	Room string `validate:"required,max=64"`
}

func (JoinRoomCommand) EventName() string { return JoinRoomEvent }

type CreateRoomCommand struct {
	Room string `validate:"required,max=64"`
}

func (CreateRoomCommand) EventName() string { return CreateRoomEvent }

type DeleteRoomCommand struct {
	Room string `validate:"required,max=64"`
}

func (DeleteRoomCommand) EventName() string { return DeleteRoomEvent }

type SendMessageCommand struct {
	Body string
}

func (SendMessageCommand) EventName() string { return SendMessageEvent }

type PrivateMessageCommand struct {
	To   string `validate:"required"`
	Body string
}

func (PrivateMessageCommand) EventName() string { return PrivateMessageEvent }

type ReactCommand struct {
	MessageID string `validate:"required,uuid"`
	Emoji     string `validate:"required,max=32"`
}

func (ReactCommand) EventName() string { return ReactEvent }

type TypingCommand struct {
	IsTyping bool
}

func (TypingCommand) EventName() string { return TypingEvent }
