package feed

import (
	"testing"

	"socialfeed/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivity(t *testing.T) {
	store := newMemoryStore()
	for id, handle := range map[int64]string{1: "viewer", 2: "ann", 3: "ben", 4: "dora", 5: "eve", 6: "troll"} {
		store.addUser(id, handle)
	}
	store.following[1] = []int64{2, 3}
	store.visibility[1] = model.VisibilityState{BlockedUsers: []int64{6}}
	store.addPost(model.Post{PostID: 100, Author: 4, Content: "nice", Timestamp: ts(100)})
	store.addPost(model.Post{PostID: 102, Author: 6, Content: "troll post", Timestamp: ts(100)})
	store.events = []model.ActivityEvent{
		{EventID: 1, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: 100, Timestamp: ts(30)},
		{EventID: 2, Kind: model.ACTIVITY_FAVOURITED, ActorID: 3, PostID: 100, Timestamp: ts(20)},
		{EventID: 3, Kind: model.ACTIVITY_FOLLOWED, ActorID: 2, UserID: 5, Timestamp: ts(10)},
		{EventID: 4, Kind: model.ACTIVITY_REPLIED, ActorID: 3, PostID: 101, Timestamp: ts(5)},
		{EventID: 5, Kind: model.ACTIVITY_QUOTED, ActorID: 2, PostID: 102, Timestamp: ts(1)},
		{EventID: 6, Kind: model.ACTIVITY_VOTED, ActorID: 4, PostID: 100, Timestamp: ts(1)},
		{EventID: 7, Kind: model.ACTIVITY_FAVOURITED, ActorID: 3, PostID: 100, Timestamp: ts(2 * 24 * 60)},
	}
	engine := newTestEngine(store, DefaultConfig())

	page, err := engine.Activity(ctx, 1, 1, "day", "")
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)

	followed := page.Entries[0]
	assert.Equal(t, model.ACTIVITY_FOLLOWED, followed.Kind)
	require.NotNil(t, followed.User)
	assert.Equal(t, "eve", followed.User.Handle)
	assert.Equal(t, 1, followed.Count)

	favourited := page.Entries[1]
	assert.Equal(t, model.ACTIVITY_FAVOURITED, favourited.Kind)
	assert.Equal(t, int64(2), favourited.EntryID)
	assert.Equal(t, 2, favourited.Count)
	require.NotNil(t, favourited.Post)
	assert.Equal(t, "dora", favourited.Post.Author.Handle)
	assert.Empty(t, page.Cursor)

	t.Run("Should widen the window for a week", func(t *testing.T) {
		week, err := engine.Activity(ctx, 2, 1, "week", "")
		require.NoError(t, err)
		require.Len(t, week.Entries, 2)
		assert.Equal(t, int64(7), week.Entries[1].EntryID)
	})

	t.Run("Should be empty without followees", func(t *testing.T) {
		lonely, err := engine.Activity(ctx, 3, 5, "day", "")
		require.NoError(t, err)
		assert.Empty(t, lonely.Entries)
	})
}

func TestActivityPagination(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "viewer")
	store.addUser(2, "ann")
	store.following[1] = []int64{2}
	for i := int64(1); i <= 5; i++ {
		store.addPost(model.Post{PostID: i, Author: 1, Content: "mine", Timestamp: ts(100)})
		store.events = append(store.events, model.ActivityEvent{
			EventID: 10 + i, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: i, Timestamp: ts(int(50 - i)),
		})
	}
	engine := newTestEngine(store, Config{PageSize: 2, MaxCandidates: 100})

	var seen []int64
	cursor := ""
	for i := 0; i < 10; i++ {
		page, err := engine.Activity(ctx, 1, 1, "day", cursor)
		require.NoError(t, err)
		for _, e := range page.Entries {
			seen = append(seen, e.Post.PostID)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, seen)
}

func collectActivity(t *testing.T, engine *Engine) ([]int64, []int) {
	var targets []int64
	var sizes []int
	cursor := ""
	for i := 0; i < 20; i++ {
		page, err := engine.Activity(ctx, 1, 1, "day", cursor)
		require.NoError(t, err)
		sizes = append(sizes, len(page.Entries))
		for _, e := range page.Entries {
			targets = append(targets, e.Post.PostID)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return targets, sizes
}

func TestActivityPastTheCandidateCap(t *testing.T) {
	t.Run("Should reach events older than the cap", func(t *testing.T) {
		store := newMemoryStore()
		store.addUser(1, "viewer")
		store.addUser(2, "ann")
		store.following[1] = []int64{2}
		for i := int64(1); i <= 5; i++ {
			store.addPost(model.Post{PostID: i, Author: 1, Content: "mine", Timestamp: ts(100)})
			store.events = append(store.events, model.ActivityEvent{
				EventID: 10 + i, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: i, Timestamp: ts(int(50 - i)),
			})
		}
		engine := newTestEngine(store, Config{PageSize: 2, MaxCandidates: 3})

		targets, _ := collectActivity(t, engine)
		assert.Equal(t, []int64{5, 4, 3, 2, 1}, targets)
	})

	t.Run("Should list a target once across pages", func(t *testing.T) {
		store := newMemoryStore()
		store.addUser(1, "viewer")
		for id := int64(2); id <= 4; id++ {
			store.addUser(id, "fan")
		}
		store.following[1] = []int64{2, 3, 4}
		store.addPost(model.Post{PostID: 1, Author: 1, Content: "popular", Timestamp: ts(100)})
		store.addPost(model.Post{PostID: 2, Author: 1, Content: "quiet", Timestamp: ts(100)})
		store.events = []model.ActivityEvent{
			{EventID: 21, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: 1, Timestamp: ts(10)},
			{EventID: 22, Kind: model.ACTIVITY_FAVOURITED, ActorID: 3, PostID: 2, Timestamp: ts(20)},
			{EventID: 23, Kind: model.ACTIVITY_FAVOURITED, ActorID: 4, PostID: 1, Timestamp: ts(30)},
		}
		engine := newTestEngine(store, Config{PageSize: 1, MaxCandidates: 2})

		targets, _ := collectActivity(t, engine)
		assert.Equal(t, []int64{1, 2}, targets)
	})

	t.Run("Should keep paging past a cap full of hidden events", func(t *testing.T) {
		store := newMemoryStore()
		store.addUser(1, "viewer")
		store.addUser(2, "ann")
		store.following[1] = []int64{2}
		store.visibility[1] = model.VisibilityState{MutedPosts: []int64{7, 8}}
		for id := int64(7); id <= 9; id++ {
			store.addPost(model.Post{PostID: id, Author: 1, Content: "mine", Timestamp: ts(100)})
		}
		store.events = []model.ActivityEvent{
			{EventID: 31, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: 9, Timestamp: ts(40)},
			{EventID: 32, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: 8, Timestamp: ts(20)},
			{EventID: 33, Kind: model.ACTIVITY_FAVOURITED, ActorID: 2, PostID: 7, Timestamp: ts(10)},
		}
		engine := newTestEngine(store, Config{PageSize: 5, MaxCandidates: 2})

		targets, sizes := collectActivity(t, engine)
		assert.Equal(t, []int64{9}, targets)
		assert.Equal(t, []int{0, 1}, sizes)
	})
}
