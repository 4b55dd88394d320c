package feed

import (
	"context"
	"strings"

	"socialfeed/pkg/model"
)

// defaultNearbyDistance is the search radius in meters when none is given
const defaultNearbyDistance = 5000

func replyFilter(includeReplies bool) model.ReplyFilter {
	if includeReplies {
		return model.REPLIES_INCLUDE
	}
	return model.REPLIES_EXCLUDE
}

// Timeline returns the posts of viewer and of the accounts viewer follows
func (e *Engine) Timeline(ctx context.Context, reqID int64, viewer int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	followees, err := e.graph.GetFollowees(ctx, reqID, viewer)
	if err != nil {
		return model.FeedPage{}, err
	}
	authors := append([]int64{viewer}, followees...)
	return e.authorFeed(ctx, reqID, viewer, authors, includeReposts, includeReplies, cursor)
}

// ListPosts returns the posts of the members of one of owner's lists
func (e *Engine) ListPosts(ctx context.Context, reqID int64, ownerID int64, listName string, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	members, err := e.graph.GetListMembers(ctx, reqID, ownerID, listName)
	if err != nil {
		return model.FeedPage{}, err
	}
	return e.authorFeed(ctx, reqID, ownerID, members, includeReposts, includeReplies, cursor)
}

// UserPosts returns the posts of a single author as seen by viewer
func (e *Engine) UserPosts(ctx context.Context, reqID int64, viewer int64, authorID int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	return e.authorFeed(ctx, reqID, viewer, []int64{authorID}, includeReposts, includeReplies, cursor)
}

func (e *Engine) authorFeed(ctx context.Context, reqID int64, viewer int64, authors []int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	req := e.newRequest(reqID, viewer, model.SORT_BY_DATE, false, cursor)
	return e.run(ctx, req, model.PostQuery{
		RestrictAuthors: true,
		Authors:         authors,
		ExcludeReposts:  !includeReposts,
		Replies:         replyFilter(includeReplies),
	})
}

// Hashtag returns the posts tagged with tag, newest first or most popular
// first when sortBy is "popular"
func (e *Engine) Hashtag(ctx context.Context, reqID int64, viewer int64, tag string, sortBy string, cursor string) (model.FeedPage, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return emptyPage(), nil
	}
	mode := model.SORT_BY_DATE
	if sortBy == "popular" {
		mode = model.SORT_BY_POPULARITY
	}
	req := e.newRequest(reqID, viewer, mode, false, cursor)
	return e.run(ctx, req, model.PostQuery{
		Hashtag:        tag,
		ExcludeReposts: mode == model.SORT_BY_POPULARITY,
	})
}

// Topmost returns the most popular posts created within period
func (e *Engine) Topmost(ctx context.Context, reqID int64, viewer int64, period string, cursor string) (model.FeedPage, error) {
	return e.topmost(ctx, reqID, viewer, nil, period, cursor)
}

// UserTopmost returns the most popular posts of authorID created within period
func (e *Engine) UserTopmost(ctx context.Context, reqID int64, viewer int64, authorID int64, period string, cursor string) (model.FeedPage, error) {
	return e.topmost(ctx, reqID, viewer, []int64{authorID}, period, cursor)
}

func (e *Engine) topmost(ctx context.Context, reqID int64, viewer int64, authors []int64, period string, cursor string) (model.FeedPage, error) {
	req := e.newRequest(reqID, viewer, model.SORT_BY_POPULARITY, false, cursor)
	req.since = ParsePeriod(period).Since(e.now())
	return e.run(ctx, req, model.PostQuery{
		RestrictAuthors: authors != nil,
		Authors:         authors,
		Since:           req.since,
		ExcludeReposts:  true,
	})
}

// Nearby returns located posts within maxDistance meters, closest first
func (e *Engine) Nearby(ctx context.Context, reqID int64, viewer int64, longitude float64, latitude float64, maxDistance float64, cursor string) (model.FeedPage, error) {
	if maxDistance <= 0 {
		maxDistance = defaultNearbyDistance
	}
	req := e.newRequest(reqID, viewer, model.SORT_BY_DISTANCE, false, cursor)
	posts, err := e.posts.FindNearby(ctx, reqID, model.NearbyQuery{
		Longitude:   longitude,
		Latitude:    latitude,
		MaxDistance: maxDistance,
		Seek:        req.cursor,
		Limit:       e.config.MaxCandidates,
	})
	if err != nil {
		e.logger.Error("error finding nearby posts", "req_id", reqID, "msg", err.Error())
		return model.FeedPage{}, err
	}
	return e.compose(ctx, req, entriesOf(posts), len(posts) >= e.config.MaxCandidates)
}

// Mentions returns the posts mentioning userID
func (e *Engine) Mentions(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error) {
	req := e.newRequest(reqID, viewer, model.SORT_BY_DATE, false, cursor)
	return e.run(ctx, req, model.PostQuery{MentionOf: userID, ExcludeReposts: true})
}

// Replies returns the direct replies to postID
func (e *Engine) Replies(ctx context.Context, reqID int64, viewer int64, postID int64, cursor string) (model.FeedPage, error) {
	req := e.newRequest(reqID, viewer, model.SORT_BY_DATE, false, cursor)
	return e.run(ctx, req, model.PostQuery{ReplyTo: postID, ExcludeReposts: true})
}

// Quotes returns the posts quoting postID
func (e *Engine) Quotes(ctx context.Context, reqID int64, viewer int64, postID int64, cursor string) (model.FeedPage, error) {
	req := e.newRequest(reqID, viewer, model.SORT_BY_DATE, false, cursor)
	return e.run(ctx, req, model.PostQuery{QuoteOf: postID, ExcludeReposts: true})
}

// Favourites returns the posts favourited by userID, most recent favourite first
func (e *Engine) Favourites(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error) {
	return e.reactionFeed(ctx, reqID, viewer, userID, model.REACTION_FAVOURITE, cursor)
}

// Bookmarks returns the posts bookmarked by viewer
func (e *Engine) Bookmarks(ctx context.Context, reqID int64, viewer int64, cursor string) (model.FeedPage, error) {
	return e.reactionFeed(ctx, reqID, viewer, viewer, model.REACTION_BOOKMARK, cursor)
}

// Votes returns the posts whose poll userID voted on
func (e *Engine) Votes(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error) {
	return e.reactionFeed(ctx, reqID, viewer, userID, model.REACTION_VOTE, cursor)
}

// reactionFeed orders posts by the time userID reacted to them. Reactions to
// posts that no longer exist are skipped.
func (e *Engine) reactionFeed(ctx context.Context, reqID int64, viewer int64, userID int64, kind model.ReactionKind, cursor string) (model.FeedPage, error) {
	req := e.newRequest(reqID, viewer, model.SORT_BY_DATE, false, cursor)
	reactions, err := e.reactions.ListReactions(ctx, reqID, userID, kind, req.cursor, e.config.MaxCandidates)
	if err != nil {
		e.logger.Error("error listing reactions", "req_id", reqID, "kind", kind, "msg", err.Error())
		return model.FeedPage{}, err
	}
	if len(reactions) == 0 {
		return emptyPage(), nil
	}

	postIDs := make([]int64, 0, len(reactions))
	for _, r := range reactions {
		postIDs = append(postIDs, r.PostID)
	}
	posts, err := e.posts.GetPosts(ctx, reqID, unique(postIDs))
	if err != nil {
		return model.FeedPage{}, err
	}
	byID := make(map[int64]model.Post, len(posts))
	for _, p := range posts {
		byID[p.PostID] = p
	}

	raw := make([]Entry, 0, len(reactions))
	for _, r := range reactions {
		p, ok := byID[r.PostID]
		if !ok {
			continue
		}
		entry := newEntry(p)
		entry.EntryID = r.ReactionID
		entry.Timestamp = r.Timestamp
		raw = append(raw, entry)
	}
	return e.compose(ctx, req, raw, len(reactions) >= e.config.MaxCandidates)
}

// Post returns a single post enriched for viewer. The page is empty when the
// post does not exist or is a repost whose target is gone.
func (e *Engine) Post(ctx context.Context, reqID int64, viewer int64, postID int64) (model.FeedPage, error) {
	posts, err := e.posts.GetPosts(ctx, reqID, []int64{postID})
	if err != nil {
		return model.FeedPage{}, err
	}
	if len(posts) == 0 {
		return emptyPage(), nil
	}
	resolved, err := ResolveReposts(ctx, e.posts, reqID, entriesOf(posts), e.config.MaxRepostDepth)
	if err != nil {
		return model.FeedPage{}, err
	}
	enriched, err := e.enrich(ctx, reqID, viewer, resolved)
	if err != nil {
		return model.FeedPage{}, err
	}
	return model.FeedPage{Posts: enriched}, nil
}

// PostParent returns the post postID replies to, enriched like Post. The page
// is empty when postID is not a reply or either post is gone.
func (e *Engine) PostParent(ctx context.Context, reqID int64, viewer int64, postID int64) (model.FeedPage, error) {
	posts, err := e.posts.GetPosts(ctx, reqID, []int64{postID})
	if err != nil {
		return model.FeedPage{}, err
	}
	if len(posts) == 0 || posts[0].ReplyTo == nil {
		return emptyPage(), nil
	}
	return e.Post(ctx, reqID, viewer, *posts[0].ReplyTo)
}
