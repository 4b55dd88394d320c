package feed

import (
	"testing"

	"socialfeed/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionFeeds(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "viewer")
	store.addUser(2, "bob")
	for i := int64(1); i <= 4; i++ {
		store.addPost(model.Post{PostID: i, Author: 2, Content: "post", Timestamp: ts(int(100 - i))})
	}
	// favourited in a different order than posted, one of them since deleted
	store.addReaction(1, model.REACTION_FAVOURITE, model.Reaction{ReactionID: 11, PostID: 3, Timestamp: ts(30)})
	store.addReaction(1, model.REACTION_FAVOURITE, model.Reaction{ReactionID: 12, PostID: 1, Timestamp: ts(20)})
	store.addReaction(1, model.REACTION_FAVOURITE, model.Reaction{ReactionID: 13, PostID: 99, Timestamp: ts(15)})
	store.addReaction(1, model.REACTION_FAVOURITE, model.Reaction{ReactionID: 14, PostID: 4, Timestamp: ts(10)})
	store.addReaction(1, model.REACTION_BOOKMARK, model.Reaction{ReactionID: 15, PostID: 2, Timestamp: ts(5)})
	store.addReaction(1, model.REACTION_VOTE, model.Reaction{ReactionID: 16, PostID: 1, Timestamp: ts(4)})
	engine := newTestEngine(store, Config{PageSize: 2})

	t.Run("Should order favourites by favourite time", func(t *testing.T) {
		var all []int64
		for _, page := range walk(t, func(cursor string) (model.FeedPage, error) {
			return engine.Favourites(ctx, 1, 0, 1, cursor)
		}) {
			for _, p := range page {
				all = append(all, p.PostID)
			}
		}
		assert.Equal(t, []int64{4, 1, 3}, all)
	})

	t.Run("Should list bookmarks and votes", func(t *testing.T) {
		bookmarks, err := engine.Bookmarks(ctx, 2, 1, "")
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, postIDsOf(bookmarks))

		votes, err := engine.Votes(ctx, 3, 0, 1, "")
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, postIDsOf(votes))
	})

	t.Run("Should be empty without reactions", func(t *testing.T) {
		page, err := engine.Bookmarks(ctx, 4, 2, "")
		require.NoError(t, err)
		assert.Empty(t, page.Posts)
	})
}

func TestConversationFeeds(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "alice")
	store.addUser(2, "bob")
	store.addPost(model.Post{PostID: 1, Author: 1, Content: "root", Timestamp: ts(60)})
	store.addPost(model.Post{PostID: 2, Author: 2, Content: "@alice reply", ReplyTo: ptr(1), Mentions: []int64{1}, Timestamp: ts(50)})
	store.addPost(model.Post{PostID: 3, Author: 2, Content: "quote", Attachments: &model.Attachments{QuotedPostID: ptr(1)}, Timestamp: ts(40)})
	store.addPost(model.Post{PostID: 4, Author: 2, Content: "hey @alice", Mentions: []int64{1}, Timestamp: ts(30)})
	engine := newTestEngine(store, DefaultConfig())

	mentions, err := engine.Mentions(ctx, 1, 1, 1, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, postIDsOf(mentions))

	replies, err := engine.Replies(ctx, 2, 0, 1, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, postIDsOf(replies))

	quotes, err := engine.Quotes(ctx, 3, 0, 1, "")
	require.NoError(t, err)
	require.Equal(t, []int64{3}, postIDsOf(quotes))
	assert.Equal(t, "root", quotes.Posts[0].Attachments.Post.Content)

	t.Run("Should return the parent of a reply", func(t *testing.T) {
		parent, err := engine.PostParent(ctx, 4, 2, 2)
		require.NoError(t, err)
		require.Equal(t, []int64{1}, postIDsOf(parent))
		assert.Equal(t, "alice", parent.Posts[0].Author.Handle)
	})

	t.Run("Should be empty for posts without a parent", func(t *testing.T) {
		for _, postID := range []int64{1, 3, 404} {
			parent, err := engine.PostParent(ctx, 5, 0, postID)
			require.NoError(t, err)
			assert.Empty(t, parent.Posts)
		}
	})

	t.Run("Should be empty when the parent is gone", func(t *testing.T) {
		store.addPost(model.Post{PostID: 5, Author: 2, Content: "orphan", ReplyTo: ptr(99), Timestamp: ts(20)})
		parent, err := engine.PostParent(ctx, 6, 0, 5)
		require.NoError(t, err)
		assert.Empty(t, parent.Posts)
	})
}
