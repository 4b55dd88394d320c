package feed

import (
	"fmt"
	"testing"

	"socialfeed/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walk follows cursors from the first page until the feed is exhausted
func walk(t *testing.T, next func(cursor string) (model.FeedPage, error)) [][]model.FeedPost {
	var pages [][]model.FeedPost
	cursor := ""
	for i := 0; i < 100; i++ {
		page, err := next(cursor)
		require.NoError(t, err)
		pages = append(pages, page.Posts)
		if page.Cursor == "" {
			return pages
		}
		cursor = page.Cursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func TestPaginationIsAPartition(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "viewer")
	store.addUser(2, "friend")
	store.following[1] = []int64{2}
	store.visibility[1] = model.VisibilityState{
		MutedWords: []model.MutedWord{{Word: "spam", Match: model.MATCH_CONTAINS}},
	}

	var expected []int64
	for i := int64(1); i <= 47; i++ {
		content := fmt.Sprintf("post %d", i)
		if i%5 == 0 {
			content = "boring spam"
		} else {
			expected = append([]int64{i}, expected...)
		}
		store.addPost(model.Post{PostID: i, Author: 2, Content: content, Timestamp: ts(int(100 - i))})
	}
	engine := newTestEngine(store, DefaultConfig())

	pages := walk(t, func(cursor string) (model.FeedPage, error) {
		return engine.Timeline(ctx, 1, 1, true, true, cursor)
	})

	require.Len(t, pages, 2)
	assert.Len(t, pages[0], 20)
	assert.Len(t, pages[1], 18)

	var all []int64
	for n, page := range pages {
		for _, p := range page {
			all = append(all, p.PostID)
		}
		if n > 0 {
			last := pages[n-1][len(pages[n-1])-1]
			for _, p := range page {
				assert.True(t, p.CreatedAt < last.CreatedAt || (p.CreatedAt == last.CreatedAt && p.PostID < last.PostID))
			}
		}
	}
	assert.Equal(t, expected, all)
}

func TestCappedCandidatesKeepPaging(t *testing.T) {
	store := newMemoryStore()
	store.addUser(2, "friend")
	store.visibility[1] = model.VisibilityState{MutedPosts: []int64{10, 9}}
	for i := int64(1); i <= 10; i++ {
		store.addPost(model.Post{PostID: i, Author: 2, Content: "hi", Timestamp: ts(int(100 - i))})
	}
	engine := newTestEngine(store, Config{PageSize: 3, MaxCandidates: 4})

	first, err := engine.UserPosts(ctx, 1, 1, 2, false, false, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 7}, postIDsOf(first))
	assert.NotEmpty(t, first.Cursor)

	var all []int64
	for _, page := range walk(t, func(cursor string) (model.FeedPage, error) {
		return engine.UserPosts(ctx, 1, 1, 2, false, false, cursor)
	}) {
		for _, p := range page {
			all = append(all, p.PostID)
		}
	}
	assert.Equal(t, []int64{8, 7, 6, 5, 4, 3, 2, 1}, all)
}

func TestPopularityPagination(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "alice")
	for i := int64(1); i <= 9; i++ {
		store.addPost(model.Post{PostID: i, Author: 1, Hashtags: []string{"go"}, Timestamp: ts(int(100 - i)), Score: i % 3})
	}
	engine := newTestEngine(store, Config{PageSize: 4})

	var all []int64
	for _, page := range walk(t, func(cursor string) (model.FeedPage, error) {
		return engine.Hashtag(ctx, 1, 0, "go", "popular", cursor)
	}) {
		for _, p := range page {
			all = append(all, p.PostID)
		}
	}
	assert.Equal(t, []int64{8, 5, 2, 7, 4, 1, 9, 6, 3}, all)
}

func TestStoreFailureFailsTheRequest(t *testing.T) {
	store := newMemoryStore()
	store.failPosts = errStoreDown
	engine := newTestEngine(store, DefaultConfig())

	page, err := engine.Hashtag(ctx, 1, 0, "go", "date", "")
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, page.Posts)
}

func TestListPosts(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "owner")
	store.addUser(2, "member")
	store.addUser(3, "outsider")
	store.lists["friends"] = []int64{2}
	store.addPost(model.Post{PostID: 1, Author: 2, Content: "in list", Timestamp: ts(10)})
	store.addPost(model.Post{PostID: 2, Author: 3, Content: "not in list", Timestamp: ts(5)})
	store.addPost(model.Post{PostID: 3, Author: 2, Content: "a reply", ReplyTo: ptr(2), Timestamp: ts(1)})
	engine := newTestEngine(store, DefaultConfig())

	page, err := engine.ListPosts(ctx, 1, 1, "friends", true, false, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, postIDsOf(page))

	withReplies, err := engine.ListPosts(ctx, 2, 1, "friends", true, true, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, postIDsOf(withReplies))

	unknown, err := engine.ListPosts(ctx, 3, 1, "nobody", true, true, "")
	require.NoError(t, err)
	assert.Empty(t, unknown.Posts)
}

func TestNearby(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "alice")
	here := &model.Point{Type: "Point", Coordinates: []float64{-9.14, 38.72}}
	store.addPost(model.Post{PostID: 1, Author: 1, Location: here, Distance: 400, Timestamp: ts(10)})
	store.addPost(model.Post{PostID: 2, Author: 1, Location: here, Distance: 50, Timestamp: ts(20)})
	store.addPost(model.Post{PostID: 3, Author: 1, Location: here, Distance: 400, Timestamp: ts(5)})
	store.addPost(model.Post{PostID: 4, Author: 1, Location: here, Distance: 9000, Timestamp: ts(5)})
	engine := newTestEngine(store, Config{PageSize: 2})

	var all []int64
	for _, page := range walk(t, func(cursor string) (model.FeedPage, error) {
		return engine.Nearby(ctx, 1, 0, -9.14, 38.72, 0, cursor)
	}) {
		for _, p := range page {
			all = append(all, p.PostID)
		}
	}
	assert.Equal(t, []int64{2, 3, 1}, all)
}
