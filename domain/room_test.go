package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRooms(t *testing.T) {
	req := require.New(t)
	req.Equal([]string{General, "Dev", "Ops"}, ParseRooms(" Dev, ,Ops,Dev,General"))
	req.Equal([]string{General}, ParseRooms(""))
	req.True(IsProtected(General))
	req.False(IsProtected("general"))
}

func TestReactions_Toggle_Is_An_Involution(t *testing.T) {
	req := require.New(t)
	reactions := Reactions{"🎉": {"Clara"}}
	original := reactions.Clone()

	// Given Alice then Bob react
	req.True(reactions.Toggle("👍", "Alice"))
	req.True(reactions.Toggle("👍", "Bob"))
	req.Equal(Reactions{"🎉": {"Clara"}, "👍": {"Alice", "Bob"}}, reactions)

	// When Alice retracts
	req.False(reactions.Toggle("👍", "Alice"))
	req.Equal([]string{"Bob"}, reactions["👍"])

	// Then Bob retracting restores the original map, without an empty key
	req.False(reactions.Toggle("👍", "Bob"))
	req.Equal(original, reactions)
	_, ok := reactions["👍"]
	req.False(ok)
}

func TestReactions_Clone_Is_Deep(t *testing.T) {
	reactions := Reactions{"👍": {"Alice"}}
	clone := reactions.Clone()
	clone.Toggle("👍", "Bob")
	require.Equal(t, []string{"Alice"}, reactions["👍"])
}

func TestMessage_HasContent(t *testing.T) {
	req := require.New(t)
	req.False(Message{Body: "  "}.HasContent())
	req.True(Message{Body: "hi"}.HasContent())
	req.True(Message{FileMeta: &FileMeta{Name: "a.png"}}.HasContent())

	notice := LeaveNotice("Dev", "Alice", time.Now())
	req.True(notice.System)
	req.Equal(SystemSender, notice.Sender)
	req.Equal("Alice has left the chat", notice.Body)
	req.Equal("Dev", notice.Room)
}
