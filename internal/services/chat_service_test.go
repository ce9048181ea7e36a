package services

import (
	"context"
	"testing"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type chatFixture struct {
	store  *memStore
	chat   *ChatService
	alice  *models.User
	bob    *models.User
	carol  *models.User
	convID primitive.ObjectID
}

// newChatFixture befriends alice and bob and hands back their direct
// conversation.
func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := newMemStore()
	f := &chatFixture{
		store: store,
		chat:  NewChatService(store, store, store),
		alice: store.addUser("alice", models.RoleStudent),
		bob:   store.addUser("bob", models.RoleStudent),
		carol: store.addUser("carol", models.RoleStudent),
	}

	ctx := context.Background()
	friendSvc := NewFriendService(store, store, store, store)
	req, err := friendSvc.CreateRequest(ctx, f.alice.ExternalID, "bob")
	require.NoError(t, err)
	friendship, err := friendSvc.Accept(ctx, f.bob.ExternalID, req.ID)
	require.NoError(t, err)
	f.convID = friendship.ConversationID
	return f
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the message and updates the last-message pointer", func(t *testing.T) {
		f := newChatFixture(t)

		first, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "hi", "", "")
		require.NoError(t, err)
		assert.Equal(t, f.alice.ID, first.SenderID)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := f.chat.SendMessage(ctx, f.bob.ExternalID, f.convID, "text", "hello", "", "")
		require.NoError(t, err)

		conv, err := f.store.GetConversation(ctx, f.convID)
		require.NoError(t, err)
		require.NotNil(t, conv.LastMessageID)
		assert.Equal(t, second.ID, *conv.LastMessageID)
	})

	t.Run("gates on membership", func(t *testing.T) {
		f := newChatFixture(t)

		_, err := f.chat.SendMessage(ctx, f.carol.ExternalID, f.convID, "text", "intruding", "", "")
		assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

		_, err = f.chat.SendMessage(ctx, "ext-ghost", f.convID, "text", "hi", "", "")
		assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
	})

	t.Run("rejects empty text messages", func(t *testing.T) {
		f := newChatFixture(t)

		_, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "   ", "", "")
		assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
	})
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("returns newest first with resolved senders", func(t *testing.T) {
		f := newChatFixture(t)

		_, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "first", "", "")
		require.NoError(t, err)
		_, err = f.chat.SendMessage(ctx, f.bob.ExternalID, f.convID, "text", "second", "", "")
		require.NoError(t, err)

		views, err := f.chat.ListMessages(ctx, f.bob.ExternalID, f.convID)
		require.NoError(t, err)
		require.Len(t, views, 2)

		assert.Equal(t, "second", views[0].Text)
		assert.Equal(t, "bob", views[0].SenderName)
		assert.True(t, views[0].IsCurrentUser)

		assert.Equal(t, "first", views[1].Text)
		assert.Equal(t, "alice", views[1].SenderName)
		assert.False(t, views[1].IsCurrentUser)
	})

	t.Run("fails hard when a sender record is missing", func(t *testing.T) {
		f := newChatFixture(t)

		_, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "hi", "", "")
		require.NoError(t, err)

		f.store.removeUser(f.alice.ID)

		_, err = f.chat.ListMessages(ctx, f.bob.ExternalID, f.convID)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})

	t.Run("gates on membership", func(t *testing.T) {
		f := newChatFixture(t)

		_, err := f.chat.ListMessages(ctx, f.carol.ExternalID, f.convID)
		assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the watermark to the given message", func(t *testing.T) {
		f := newChatFixture(t)

		msg, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "hi", "", "")
		require.NoError(t, err)

		require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, msg.ID))

		member, err := f.store.GetMember(ctx, f.bob.ID, f.convID)
		require.NoError(t, err)
		require.NotNil(t, member.LastSeenMessageID)
		assert.Equal(t, msg.ID, *member.LastSeenMessageID)
	})

	t.Run("clears the watermark for an unresolvable message", func(t *testing.T) {
		f := newChatFixture(t)

		msg, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "hi", "", "")
		require.NoError(t, err)
		require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, msg.ID))

		require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, primitive.NewObjectID()))

		member, err := f.store.GetMember(ctx, f.bob.ID, f.convID)
		require.NoError(t, err)
		assert.Nil(t, member.LastSeenMessageID)
	})

	t.Run("does not enforce monotonicity", func(t *testing.T) {
		f := newChatFixture(t)

		older, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "older", "", "")
		require.NoError(t, err)
		newer, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "newer", "", "")
		require.NoError(t, err)

		require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, newer.ID))
		require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, older.ID))

		member, err := f.store.GetMember(ctx, f.bob.ID, f.convID)
		require.NoError(t, err)
		require.NotNil(t, member.LastSeenMessageID)
		assert.Equal(t, older.ID, *member.LastSeenMessageID)
	})

	t.Run("gates on membership", func(t *testing.T) {
		f := newChatFixture(t)

		err := f.chat.MarkRead(ctx, f.carol.ExternalID, f.convID, primitive.NewObjectID())
		assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	})
}

func TestUnseenCount(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	first, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "one", "", "")
	require.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "two", "", "")
	require.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "three", "", "")
	require.NoError(t, err)

	member, err := f.store.GetMember(ctx, f.bob.ID, f.convID)
	require.NoError(t, err)

	// no watermark: everything is unseen
	count, err := f.chat.UnseenCount(ctx, *member)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, first.ID))
	member, err = f.store.GetMember(ctx, f.bob.ID, f.convID)
	require.NoError(t, err)

	count, err = f.chat.UnseenCount(ctx, *member)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSeenBy(t *testing.T) {
	ctx := context.Background()

	t.Run("reports members whose watermark sits on the message", func(t *testing.T) {
		f := newChatFixture(t)

		msg, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "hi", "", "")
		require.NoError(t, err)
		require.NoError(t, f.chat.MarkRead(ctx, f.bob.ExternalID, f.convID, msg.ID))

		names, label, err := f.chat.SeenBy(ctx, f.alice.ExternalID, f.convID, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, names)
		assert.Equal(t, "Seen", label)
	})

	t.Run("excludes the viewer and non-matching watermarks", func(t *testing.T) {
		f := newChatFixture(t)

		msg, err := f.chat.SendMessage(ctx, f.alice.ExternalID, f.convID, "text", "hi", "", "")
		require.NoError(t, err)
		require.NoError(t, f.chat.MarkRead(ctx, f.alice.ExternalID, f.convID, msg.ID))

		names, label, err := f.chat.SeenBy(ctx, f.alice.ExternalID, f.convID, msg.ID)
		require.NoError(t, err)
		assert.Empty(t, names)
		assert.Empty(t, label)
	})
}

func TestSeenLabel(t *testing.T) {
	assert.Equal(t, "", SeenLabel(nil))
	assert.Equal(t, "Seen", SeenLabel([]string{"bob"}))
	assert.Equal(t, "Seen by bob and carol", SeenLabel([]string{"bob", "carol"}))
	assert.Equal(t, "Seen by bob, carol, and 1 more", SeenLabel([]string{"bob", "carol", "dave"}))
	assert.Equal(t, "Seen by bob, carol, and 3 more", SeenLabel([]string{"bob", "carol", "dave", "eve", "mallory"}))
}
