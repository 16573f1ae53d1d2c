package main

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"strings"
)

// outbound is a client frame, {"event": ..., "data": ...}.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

var errUsage = fmt.Errorf("usage: /join <room> | /create <room> | /delete <room> | " +
	"/pm <connectionId> <text> | /react <messageId> <emoji> | /typing on|off | /who | /quit")

// parseLine turns a typed line into the frame to send. Plain text is a room message.
// local is set for commands handled by the client itself.
func parseLine(line string) (frame outbound, local string, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return outbound{}, "", errUsage
	}
	if !strings.HasPrefix(line, "/") {
		return outbound{Event: domain.SendMessageEvent, Data: map[string]string{"message": line}}, "", nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "join":
		return roomFrame(domain.JoinRoomEvent, rest)
	case "create":
		return roomFrame(domain.CreateRoomEvent, rest)
	case "delete":
		return roomFrame(domain.DeleteRoomEvent, rest)
	case "pm":
		to, text, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(text) == "" {
			return outbound{}, "", errUsage
		}
		return outbound{Event: domain.PrivateMessageEvent,
			Data: map[string]string{"to": to, "message": strings.TrimSpace(text)}}, "", nil
	case "react":
		id, emoji, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(emoji) == "" {
			return outbound{}, "", errUsage
		}
		return outbound{Event: domain.ReactEvent,
			Data: map[string]string{"messageId": id, "reaction": strings.TrimSpace(emoji)}}, "", nil
	case "typing":
		switch rest {
		case "on":
			return outbound{Event: domain.TypingEvent, Data: true}, "", nil
		case "off":
			return outbound{Event: domain.TypingEvent, Data: false}, "", nil
		}
		return outbound{}, "", errUsage
	case "who", "quit", "help":
		return outbound{}, name, nil
	default:
		return outbound{}, "", errUsage
	}
}

func roomFrame(eventName, room string) (outbound, string, error) {
	if room == "" {
		return outbound{}, "", errUsage
	}
	return outbound{Event: eventName, Data: room}, "", nil
}

// inbound is a server frame before its data is decoded.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
