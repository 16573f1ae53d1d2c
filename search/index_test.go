package search

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *Index {
	index, err := Open(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func indexed(t *testing.T, index *Index, room, sender, body string, at time.Time) domain.Message {
	m := domain.Message{ID: uuid.New(), Room: room, Sender: sender, Body: body, CreatedAt: at}
	require.NoError(t, index.IndexMessage(m))
	return m
}

func TestIndex_Search_CaseInsensitive_And_Room_Isolation(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Given the same word in two rooms
	tech := indexed(t, index, "Technology", "alice", "Deploy on Friday", now)
	indexed(t, index, "Random", "bob", "never deploy on friday", now.Add(time.Second))

	// When searching everywhere
	hits, err := index.Search(ctx, NewQuery("deploy FRIDAY"))
	req.NoError(err)
	req.Len(hits, 2)

	// When searching one room
	hits, err = index.Search(ctx, NewQuery("deploy --room Technology"))
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(tech.ID.String(), hits[0].ID)
	req.Equal("alice", hits[0].Sender)
	req.Equal("Deploy on Friday", hits[0].Body)
	req.True(tech.CreatedAt.Equal(hits[0].At))
}

func TestIndex_Search_Filters_Without_Terms(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	now := time.Now().UTC()
	indexed(t, index, domain.General, "alice", "first", now)
	indexed(t, index, domain.General, "alice", "second", now.Add(time.Second))
	indexed(t, index, domain.General, "bob", "third", now.Add(2*time.Second))

	hits, err := index.Search(context.Background(), NewQuery("--from alice --room General"))
	req.NoError(err)
	// Then the most recent come first
	req.Equal([]string{"second", "first"}, lo.Map(hits, func(h Hit, _ int) string { return h.Body }))
}

func TestIndex_Search_EmptyQuery_And_NoResults(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	indexed(t, index, domain.General, "alice", "hello", time.Now())

	hits, err := index.Search(context.Background(), NewQuery("   "))
	req.NoError(err)
	req.Empty(hits)

	hits, err = index.Search(context.Background(), NewQuery("goodbye"))
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Skips_File_Messages(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	file := domain.Message{ID: uuid.New(), Room: domain.General, Sender: "alice",
		FileMeta: &domain.FileMeta{Name: "report.pdf"}, CreatedAt: time.Now()}
	req.NoError(index.IndexMessage(file))

	hits, err := index.Search(context.Background(), NewQuery("--room General"))
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_DeleteRoom(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	ctx := context.Background()
	now := time.Now().UTC()
	indexed(t, index, "Dev", "alice", "standup notes", now)
	indexed(t, index, "Dev", "bob", "standup moved", now)
	indexed(t, index, domain.General, "clara", "standup where?", now)

	// When the room is purged
	count, err := index.DeleteRoom(ctx, "Dev")
	req.NoError(err)
	req.Equal(2, count)

	// Then only the other room still matches
	hits, err := index.Search(ctx, NewQuery("standup"))
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(domain.General, hits[0].Room)

	count, err = index.DeleteRoom(ctx, "Dev")
	req.NoError(err)
	req.Zero(count)
}

func TestNewQuery(t *testing.T) {
	req := require.New(t)
	q := NewQuery("/find invoice --room Technology --from bob --limit 3 overdue")
	req.Equal("invoice overdue", q.Terms)
	req.Equal("Technology", q.Room)
	req.Equal("bob", q.Sender)
	req.Equal(3, q.Limit)

	q = NewQuery("plain --limit nope")
	req.Equal("plain", q.Terms)
	req.Equal(DefaultLimit, q.Limit)
}
