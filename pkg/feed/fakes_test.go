package feed

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"socialfeed/pkg/model"
)

// memoryStore is an in-memory implementation of every provider interface
type memoryStore struct {
	posts      map[int64]model.Post
	users      map[int64]model.User
	following  map[int64][]int64
	lists      map[string][]int64
	visibility map[int64]model.VisibilityState
	reactions  map[int64]map[model.ReactionKind][]model.Reaction
	votes      map[int64]map[int64]string
	events     []model.ActivityEvent
	failPosts  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		posts:      make(map[int64]model.Post),
		users:      make(map[int64]model.User),
		following:  make(map[int64][]int64),
		lists:      make(map[string][]int64),
		visibility: make(map[int64]model.VisibilityState),
		reactions:  make(map[int64]map[model.ReactionKind][]model.Reaction),
		votes:      make(map[int64]map[int64]string),
	}
}

func (m *memoryStore) addUser(id int64, handle string) {
	m.users[id] = model.User{UserID: id, Handle: handle}
}

func (m *memoryStore) addPost(p model.Post) model.Post {
	m.posts[p.PostID] = p
	return p
}

func (m *memoryStore) addReaction(userID int64, kind model.ReactionKind, r model.Reaction) {
	if m.reactions[userID] == nil {
		m.reactions[userID] = make(map[model.ReactionKind][]model.Reaction)
	}
	m.reactions[userID][kind] = append(m.reactions[userID][kind], r)
}

func (m *memoryStore) matches(p model.Post, q model.PostQuery) bool {
	if q.RestrictAuthors && !contains(q.Authors, p.Author) {
		return false
	}
	if contains(q.ExcludeAuthors, p.Author) {
		return false
	}
	if q.ExcludeReposts && p.IsRepost() {
		return false
	}
	if q.Hashtag != "" && !containsString(p.Hashtags, q.Hashtag) {
		return false
	}
	if q.MentionOf != 0 && !contains(p.Mentions, q.MentionOf) {
		return false
	}
	if q.ReplyTo != 0 && (p.ReplyTo == nil || *p.ReplyTo != q.ReplyTo) {
		return false
	}
	if q.QuoteOf != 0 && (p.Attachments == nil || p.Attachments.QuotedPostID == nil || *p.Attachments.QuotedPostID != q.QuoteOf) {
		return false
	}
	if q.Text != "" && !strings.Contains(strings.ToLower(p.Content), strings.ToLower(q.Text)) {
		return false
	}
	if q.Since != 0 && p.Timestamp < q.Since {
		return false
	}
	if q.Until != 0 && p.Timestamp > q.Until {
		return false
	}
	switch q.Replies {
	case model.REPLIES_EXCLUDE:
		if p.ReplyTo != nil {
			return false
		}
	case model.REPLIES_ONLY:
		if p.ReplyTo == nil {
			return false
		}
	}
	return true
}

func (m *memoryStore) FindPosts(ctx context.Context, reqID int64, q model.PostQuery) ([]model.Post, error) {
	if m.failPosts != nil {
		return nil, m.failPosts
	}
	var out []Entry
	for _, p := range m.posts {
		if m.matches(p, q) {
			out = append(out, newEntry(p))
		}
	}
	out = Rank(out, q.Sort, q.Ascending)
	var posts []model.Post
	for _, e := range out {
		if q.Seek != nil && !after(e, *q.Seek, q.Sort, q.Ascending) {
			continue
		}
		posts = append(posts, e.Post)
		if q.Limit > 0 && len(posts) == q.Limit {
			break
		}
	}
	return posts, nil
}

func (m *memoryStore) FindNearby(ctx context.Context, reqID int64, q model.NearbyQuery) ([]model.Post, error) {
	var out []Entry
	for _, p := range m.posts {
		if p.Location != nil && p.Distance <= q.MaxDistance {
			out = append(out, newEntry(p))
		}
	}
	out = Rank(out, model.SORT_BY_DISTANCE, false)
	var posts []model.Post
	for _, e := range out {
		if q.Seek != nil && !after(e, *q.Seek, model.SORT_BY_DISTANCE, false) {
			continue
		}
		posts = append(posts, e.Post)
	}
	return posts, nil
}

func (m *memoryStore) GetPosts(ctx context.Context, reqID int64, ids []int64) ([]model.Post, error) {
	if m.failPosts != nil {
		return nil, m.failPosts
	}
	var out []model.Post
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryStore) GetFollowees(ctx context.Context, reqID int64, userID int64) ([]int64, error) {
	return m.following[userID], nil
}

func (m *memoryStore) GetListMembers(ctx context.Context, reqID int64, ownerID int64, listName string) ([]int64, error) {
	return m.lists[listName], nil
}

func (m *memoryStore) GetVisibilityState(ctx context.Context, reqID int64, userID int64) (model.VisibilityState, error) {
	return m.visibility[userID], nil
}

func (m *memoryStore) GetUsers(ctx context.Context, reqID int64, ids []int64) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryStore) GetUserIDs(ctx context.Context, reqID int64, handles []string) ([]int64, error) {
	var out []int64
	for _, u := range m.users {
		if containsString(handles, u.Handle) {
			out = append(out, u.UserID)
		}
	}
	return out, nil
}

func (m *memoryStore) reacted(userID int64, kind model.ReactionKind, postIDs []int64) []int64 {
	var out []int64
	for _, r := range m.reactions[userID][kind] {
		if contains(postIDs, r.PostID) {
			out = append(out, r.PostID)
		}
	}
	return out
}

func (m *memoryStore) Favourited(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error) {
	return m.reacted(userID, model.REACTION_FAVOURITE, postIDs), nil
}

func (m *memoryStore) Repeated(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error) {
	var out []int64
	for _, p := range m.posts {
		if p.Author == userID && p.IsRepost() && contains(postIDs, *p.RepeatPost) {
			out = append(out, *p.RepeatPost)
		}
	}
	return out, nil
}

func (m *memoryStore) Votes(ctx context.Context, reqID int64, userID int64, postIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for postID, option := range m.votes[userID] {
		if contains(postIDs, postID) {
			out[postID] = option
		}
	}
	return out, nil
}

func (m *memoryStore) ListReactions(ctx context.Context, reqID int64, userID int64, kind model.ReactionKind, seek *model.Cursor, limit int) ([]model.Reaction, error) {
	reactions := append([]model.Reaction(nil), m.reactions[userID][kind]...)
	sort.Slice(reactions, func(i, j int) bool {
		if reactions[i].Timestamp != reactions[j].Timestamp {
			return reactions[i].Timestamp > reactions[j].Timestamp
		}
		return reactions[i].ReactionID > reactions[j].ReactionID
	})
	var out []model.Reaction
	for _, r := range reactions {
		if seek != nil && !(r.Timestamp < seek.Timestamp || (r.Timestamp == seek.Timestamp && r.ReactionID < seek.ID)) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ActivityEvents caps every kind at limit like the reaction service does
func (m *memoryStore) ActivityEvents(ctx context.Context, reqID int64, actorIDs []int64, since int64, seek *model.Cursor, limit int) ([]model.ActivityEvent, error) {
	events := append([]model.ActivityEvent(nil), m.events...)
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp > events[j].Timestamp
		}
		return events[i].EventID > events[j].EventID
	})
	perKind := make(map[model.ActivityKind]int)
	var out []model.ActivityEvent
	for _, ev := range events {
		if !contains(actorIDs, ev.ActorID) || ev.Timestamp < since {
			continue
		}
		if seek != nil && !(ev.Timestamp < seek.Timestamp || (ev.Timestamp == seek.Timestamp && ev.EventID < seek.ID)) {
			continue
		}
		if perKind[ev.Kind] == limit {
			continue
		}
		perKind[ev.Kind]++
		out = append(out, ev)
	}
	return out, nil
}

var errStoreDown = errors.New("store unavailable")

var ctx = context.Background()

// fixedNow is the clock of every test engine
var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *memoryStore, config Config) *Engine {
	e := NewEngine(store, store, store, store, store, config, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

// ts returns a timestamp minutes before fixedNow
func ts(minutesAgo int) int64 {
	return fixedNow.Add(-time.Duration(minutesAgo) * time.Minute).UnixMilli()
}

func ptr(v int64) *int64 {
	return &v
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func postIDsOf(page model.FeedPage) []int64 {
	ids := make([]int64, 0, len(page.Posts))
	for _, p := range page.Posts {
		ids = append(ids, p.PostID)
	}
	return ids
}
