package chat

import (
	"context"
	"testing"
	"time"

	"directchat/internal/testutil"
	"directchat/internal/user"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	users    *user.Repository
	messages *Repository
}

func newFixture(t *testing.T) *fixture {
	d := testutil.NewDatabase(t)
	return &fixture{
		users:    user.NewRepository(d),
		messages: NewRepository(d),
	}
}

func (f *fixture) createUser(t *testing.T, username string) *user.User {
	u, err := f.users.Create(context.Background(), username, username+"@x.com", "hash")
	require.NoError(t, err)
	return u
}

func requireOrdered(t *testing.T, messages []Message) {
	for i := 1; i < len(messages); i++ {
		require.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"message %d created before message %d", messages[i].ID, messages[i-1].ID)
	}
}

func messageIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	return ids
}

func TestRepositoryAppend(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	before := time.Now().Add(-time.Second)
	msg, err := f.messages.Append(context.Background(), alice.ID, bob.ID, "hello")
	require.NoError(t, err)

	require.NotZero(t, msg.ID)
	require.Equal(t, alice.ID, msg.SenderID)
	require.Equal(t, bob.ID, msg.ReceiverID)
	require.Equal(t, "alice", msg.SenderUsername)
	require.Equal(t, "bob", msg.ReceiverUsername)
	require.Equal(t, "hello", msg.Content)
	require.True(t, msg.CreatedAt.After(before))
}

func TestRepositoryContentRoundTrip(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	ctx := context.Background()

	contents := []string{
		"",
		"plain",
		"ünïcødé ✓ 日本語 🚀",
		"quotes ' \" and ; DROP TABLE messages; --",
		"line\nbreaks\tand\rtabs",
		"<b>not html</b>",
		"nul\x00byte",
		"\x00",
	}
	for _, content := range contents {
		_, err := f.messages.Append(ctx, alice.ID, bob.ID, content)
		require.NoError(t, err)
	}

	conversation, err := f.messages.Conversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, conversation, len(contents))
	for i, msg := range conversation {
		require.Equal(t, contents[i], msg.Content)
	}
}

func TestRepositoryConversationIsSymmetricAndOrdered(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")
	ctx := context.Background()

	var want []int64
	for i := 0; i < 10; i++ {
		from, to := alice, bob
		if i%3 == 0 {
			from, to = bob, alice
		}
		msg, err := f.messages.Append(ctx, from.ID, to.ID, testutil.RandString())
		require.NoError(t, err)
		want = append(want, msg.ID)

		// noise from other pairs
		_, err = f.messages.Append(ctx, alice.ID, carol.ID, "noise")
		require.NoError(t, err)
	}

	ab, err := f.messages.Conversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	ba, err := f.messages.Conversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	requireOrdered(t, ab)
	require.Equal(t, want, messageIDs(ab))
	require.Equal(t, messageIDs(ab), messageIDs(ba))
	for i := range ab {
		require.Equal(t, ab[i].Content, ba[i].Content)
		require.Equal(t, ab[i].SenderUsername, ba[i].SenderUsername)
	}
}

func TestRepositoryConversationEmpty(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	conversation, err := f.messages.Conversation(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, conversation)
	require.Empty(t, conversation)
}

func TestRepositoryStampNeverGoesBackwards(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	f.messages.now = func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	for range times {
		_, err := f.messages.Append(ctx, alice.ID, bob.ID, "tick")
		require.NoError(t, err)
	}

	conversation, err := f.messages.Conversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, conversation, 3)
	requireOrdered(t, conversation)
	require.True(t, conversation[1].CreatedAt.Equal(base))
	require.True(t, conversation[2].CreatedAt.Equal(base.Add(time.Second)))
}
