package feed

import (
	"encoding/base64"
	"testing"

	"socialfeed/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorEncoding(t *testing.T) {
	cursors := []model.Cursor{
		{Mode: model.SORT_BY_DATE, Timestamp: 1710072000000, ID: 42},
		{Mode: model.SORT_BY_POPULARITY, Score: 17, ID: 9},
		{Mode: model.SORT_BY_RELEVANCE, Score: 1.25, ID: 3},
		{Mode: model.SORT_BY_DISTANCE, Distance: 1234.5, ID: 77},
	}
	for _, c := range cursors {
		decoded := DecodeCursor(EncodeCursor(c), c.Mode)
		require.NotNil(t, decoded)
		assert.Equal(t, c, *decoded)
	}
}

func TestDecodeCursorIgnoresBadInput(t *testing.T) {
	t.Run("Should ignore an empty cursor", func(t *testing.T) {
		assert.Nil(t, DecodeCursor("", model.SORT_BY_DATE))
	})

	t.Run("Should ignore garbage", func(t *testing.T) {
		assert.Nil(t, DecodeCursor("%%%not-a-cursor", model.SORT_BY_DATE))
		raw := base64.RawURLEncoding.EncodeToString([]byte("d:abc:1"))
		assert.Nil(t, DecodeCursor(raw, model.SORT_BY_DATE))
	})

	t.Run("Should ignore a cursor issued for another mode", func(t *testing.T) {
		popular := EncodeCursor(model.Cursor{Mode: model.SORT_BY_POPULARITY, Score: 3, ID: 1})
		assert.Nil(t, DecodeCursor(popular, model.SORT_BY_DATE))
		assert.Nil(t, DecodeCursor(popular, model.SORT_BY_DISTANCE))
	})
}

func TestMalformedCursorServesFirstPage(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "alice")
	for i := int64(1); i <= 5; i++ {
		store.addPost(model.Post{PostID: i, Author: 1, Content: "hello", Timestamp: ts(int(10 - i))})
	}
	engine := newTestEngine(store, DefaultConfig())

	first, err := engine.UserPosts(ctx, 1, 0, 1, false, false, "")
	require.NoError(t, err)

	popular := EncodeCursor(model.Cursor{Mode: model.SORT_BY_POPULARITY, Score: 0, ID: 3})
	for _, cursor := range []string{"bogus", popular} {
		page, err := engine.UserPosts(ctx, 1, 0, 1, false, false, cursor)
		require.NoError(t, err)
		assert.Equal(t, postIDsOf(first), postIDsOf(page))
	}
}
