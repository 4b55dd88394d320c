package feed

import (
	"testing"
	"time"

	"socialfeed/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idsOf(entries []Entry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EntryID)
	}
	return ids
}

func TestRank(t *testing.T) {
	entries := entriesOf([]model.Post{
		{PostID: 1, Timestamp: 100, Score: 3},
		{PostID: 2, Timestamp: 200, Score: 3},
		{PostID: 3, Timestamp: 200, Score: 9},
		{PostID: 4, Timestamp: 50, Score: 3},
	})

	t.Run("Should order by date with id tie-break", func(t *testing.T) {
		assert.Equal(t, []int64{3, 2, 1, 4}, idsOf(Rank(entries, model.SORT_BY_DATE, false)))
		assert.Equal(t, []int64{4, 1, 2, 3}, idsOf(Rank(entries, model.SORT_BY_DATE, true)))
	})

	t.Run("Should order by score then recency", func(t *testing.T) {
		assert.Equal(t, []int64{3, 2, 1, 4}, idsOf(Rank(entries, model.SORT_BY_POPULARITY, false)))
	})

	t.Run("Should order by distance then recency", func(t *testing.T) {
		located := []Entry{
			{EntryID: 1, Timestamp: 10, Distance: 300},
			{EntryID: 2, Timestamp: 20, Distance: 100},
			{EntryID: 3, Timestamp: 30, Distance: 300},
		}
		assert.Equal(t, []int64{2, 3, 1}, idsOf(Rank(located, model.SORT_BY_DISTANCE, false)))
	})

	t.Run("Should not modify its input", func(t *testing.T) {
		Rank(entries, model.SORT_BY_POPULARITY, false)
		assert.Equal(t, []int64{1, 2, 3, 4}, idsOf(entries))
	})
}

func TestPeriod(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, PERIOD_DAY, ParsePeriod(""))
	assert.Equal(t, PERIOD_DAY, ParsePeriod("fortnight"))
	assert.Equal(t, PERIOD_WEEK, ParsePeriod("Week"))

	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), PERIOD_DAY.Since(now))
	assert.Equal(t, now.Add(-7*24*time.Hour).UnixMilli(), PERIOD_WEEK.Since(now))
	assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC).UnixMilli(), PERIOD_MONTH.Since(now))
	assert.Equal(t, time.Date(2023, 3, 31, 12, 0, 0, 0, time.UTC).UnixMilli(), PERIOD_YEAR.Since(now))
	assert.Zero(t, PERIOD_ALL.Since(now))
}

func TestTopmostWindow(t *testing.T) {
	store := newMemoryStore()
	store.addUser(1, "alice")
	store.addPost(model.Post{PostID: 1, Author: 1, Timestamp: ts(23 * 60), Score: 1})
	store.addPost(model.Post{PostID: 2, Author: 1, Timestamp: ts(25 * 60), Score: 100})
	store.addPost(model.Post{PostID: 3, Author: 1, Timestamp: ts(60), Score: 5})
	store.addPost(model.Post{PostID: 4, Author: 1, Timestamp: ts(30), RepeatPost: ptr(2)})
	engine := newTestEngine(store, DefaultConfig())

	day, err := engine.Topmost(ctx, 1, 0, "day", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, postIDsOf(day))
	dayStart := fixedNow.Add(-24 * time.Hour).UnixMilli()
	for _, p := range day.Posts {
		assert.GreaterOrEqual(t, p.CreatedAt, dayStart)
	}

	unknown, err := engine.Topmost(ctx, 2, 0, "bogus", "")
	require.NoError(t, err)
	assert.Equal(t, postIDsOf(day), postIDsOf(unknown))

	all, err := engine.Topmost(ctx, 3, 0, "all", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, postIDsOf(all))

	mine, err := engine.UserTopmost(ctx, 4, 0, 2, "all", "")
	require.NoError(t, err)
	assert.Empty(t, mine.Posts)
}
