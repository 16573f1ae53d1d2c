package main

import (
	"chat-relay/domain"
	"chat-relay/projection"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// session is what the terminal remembers between frames.
type session struct {
	mu       sync.Mutex
	id       string
	username string
	room     string
	joining  string
	members  []domain.Member
	timeline *projection.Timeline
	colours  bool
}

func newSession(colours bool) *session {
	return &session{room: domain.General, timeline: projection.NewTimeline(), colours: colours}
}

// resolve expands a short message id printed earlier.
func (s *session) resolve(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.timeline.Lookup(id); ok {
		return m.ID.String()
	}
	return id
}

// join remembers the room asked for, its history may come back empty.
func (s *session) join(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joining = room
}

func (s *session) paint(c color.Color, text string) string {
	if !s.colours {
		return text
	}
	return c.Render(text)
}

// render turns a server frame into the line to print. An empty line prints nothing.
func (s *session) render(frame inbound) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Event {
	case "connected":
		var me domain.Member
		if err := json.Unmarshal(frame.Data, &me); err != nil {
			return "", err
		}
		s.id, s.username, s.room = me.ID, me.Username, domain.General
		return s.paint(color.FgGreen, fmt.Sprintf("connected as %s (%s)", me.Username, me.ID)), nil
	case "room_list":
		var rooms []string
		if err := json.Unmarshal(frame.Data, &rooms); err != nil {
			return "", err
		}
		return s.paint(color.FgCyan, "rooms: "+strings.Join(rooms, ", ")), nil
	case "user_list":
		if err := json.Unmarshal(frame.Data, &s.members); err != nil {
			return "", err
		}
		return "", nil
	case "message_history":
		var messages []domain.Message
		if err := json.Unmarshal(frame.Data, &messages); err != nil {
			return "", err
		}
		switch {
		case len(messages) > 0:
			s.room = messages[0].Room
		case s.joining != "":
			s.room = s.joining
		}
		s.joining = ""
		s.timeline.Reset(s.room, messages)
		lines := make([]string, 0, len(messages)+1)
		lines = append(lines, s.paint(color.FgGray, fmt.Sprintf("--- %d earlier messages ---", len(messages))))
		for _, m := range messages {
			lines = append(lines, s.message(m))
		}
		return strings.Join(lines, "\n"), nil
	case "receive_message":
		var m domain.Message
		if err := json.Unmarshal(frame.Data, &m); err != nil {
			return "", err
		}
		if !s.timeline.Add(m) {
			return "", nil
		}
		return s.message(m), nil
	case "message_updated":
		var update struct {
			MessageID uuid.UUID        `json:"messageId"`
			Reactions domain.Reactions `json:"reactions"`
		}
		if err := json.Unmarshal(frame.Data, &update); err != nil {
			return "", err
		}
		s.timeline.React(update.MessageID, update.Reactions)
		return s.paint(color.FgGray, fmt.Sprintf("reactions on %s: %s", short(update.MessageID.String()), reactions(update.Reactions))), nil
	case "typing_users":
		var users []string
		if err := json.Unmarshal(frame.Data, &users); err != nil {
			return "", err
		}
		if len(users) == 0 {
			return "", nil
		}
		return s.paint(color.FgGray, strings.Join(users, ", ")+" typing..."), nil
	case "room_deleted":
		var room string
		if err := json.Unmarshal(frame.Data, &room); err != nil {
			return "", err
		}
		s.room = domain.General
		return s.paint(color.FgYellow, fmt.Sprintf("room %s was deleted, back to %s", room, domain.General)), nil
	case "error":
		var failure struct {
			Event   string `json:"event"`
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame.Data, &failure); err != nil {
			return "", err
		}
		return s.paint(color.FgRed, fmt.Sprintf("%s failed: %s", failure.Event, failure.Message)), nil
	default:
		return "", nil
	}
}

func (s *session) message(m domain.Message) string {
	at := m.CreatedAt.Local().Format(time.TimeOnly)
	switch {
	case m.System:
		return s.paint(color.FgGray, fmt.Sprintf("[%s] %s", at, m.Body))
	case m.Private:
		return s.paint(color.FgMagenta, fmt.Sprintf("[%s] (private) %s: %s", at, m.Sender, m.Body))
	case m.FileMeta != nil:
		return fmt.Sprintf("[%s] %s shared %s (%s) %s  #%s", at, s.paint(color.FgBlue, m.Sender),
			m.FileMeta.Name, m.FileMeta.MimeType, m.FileMeta.URL, short(m.ID.String()))
	default:
		line := fmt.Sprintf("[%s] %s: %s  #%s", at, s.paint(color.FgBlue, m.Sender), m.Body, short(m.ID.String()))
		if len(m.Reactions) > 0 {
			line += "  " + reactions(m.Reactions)
		}
		return line
	}
}

// who prints the members of the current room.
func (s *session) who(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Connection", "Username"})
	table.SetBorder(false)
	table.SetCaption(true, "room "+s.room)
	for _, m := range s.members {
		name := m.Username
		if m.ID == s.id {
			name += " (you)"
		}
		table.Append([]string{m.ID, name})
	}
	table.Render()
}

func reactions(r domain.Reactions) string {
	parts := make([]string, 0, len(r))
	for emoji, users := range r {
		parts = append(parts, fmt.Sprintf("%s %d", emoji, len(users)))
	}
	sort.Strings(parts)
	return strings.Join(parts, "  ")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
