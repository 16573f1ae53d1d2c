package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
)

// Frame is the envelope of every WebSocket message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encode(e event.DomainEvent) outboundFrame {
	return outboundFrame{Event: e.Name(), Data: e.Payload()}
}

type sendMessagePayload struct {
	Message string `json:"message"`
}

type privateMessagePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type reactPayload struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

// Decode turns an inbound frame into the matching command.
func Decode(frame Frame) (domain.Command, error) {
	switch frame.Event {
	case domain.JoinRoomEvent:
		room, err := decodeData[string](frame)
		return domain.JoinRoomCommand{Room: room}, err
	case domain.CreateRoomEvent:
		room, err := decodeData[string](frame)
		return domain.CreateRoomCommand{Room: room}, err
	case domain.DeleteRoomEvent:
		room, err := decodeData[string](frame)
		return domain.DeleteRoomCommand{Room: room}, err
	case domain.SendMessageEvent:
		p, err := decodeData[sendMessagePayload](frame)
		return domain.SendMessageCommand{Body: p.Message}, err
	case domain.PrivateMessageEvent:
		p, err := decodeData[privateMessagePayload](frame)
		return domain.PrivateMessageCommand{To: p.To, Body: p.Message}, err
	case domain.ReactEvent:
		p, err := decodeData[reactPayload](frame)
		return domain.ReactCommand{MessageID: p.MessageID, Emoji: p.Reaction}, err
	case domain.TypingEvent:
		isTyping, err := decodeData[bool](frame)
		return domain.TypingCommand{IsTyping: isTyping}, err
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, frame.Event)
	}
}

func decodeData[T any](frame Frame) (T, error) {
	var data T
	if len(frame.Data) == 0 {
		return data, fmt.Errorf("%w: %s without data", errors.ErrInvalidPayload, frame.Event)
	}
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return data, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return data, nil
}
