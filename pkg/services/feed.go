package services

import (
	"context"
	"time"

	"socialfeed/pkg/feed"
	"socialfeed/pkg/metrics"
	"socialfeed/pkg/model"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FeedService composes pages of posts from every feed source. A zero viewer
// is an anonymous request.
type FeedService interface {
	Timeline(ctx context.Context, reqID int64, viewer int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error)
	ListPosts(ctx context.Context, reqID int64, ownerID int64, listName string, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error)
	UserPosts(ctx context.Context, reqID int64, viewer int64, authorID int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error)
	Hashtag(ctx context.Context, reqID int64, viewer int64, tag string, sortBy string, cursor string) (model.FeedPage, error)
	Topmost(ctx context.Context, reqID int64, viewer int64, period string, cursor string) (model.FeedPage, error)
	UserTopmost(ctx context.Context, reqID int64, viewer int64, authorID int64, period string, cursor string) (model.FeedPage, error)
	Search(ctx context.Context, reqID int64, viewer int64, query model.SearchQuery, cursor string) (model.FeedPage, error)
	Nearby(ctx context.Context, reqID int64, viewer int64, longitude float64, latitude float64, maxDistance float64, cursor string) (model.FeedPage, error)
	Mentions(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error)
	Replies(ctx context.Context, reqID int64, viewer int64, postID int64, cursor string) (model.FeedPage, error)
	Quotes(ctx context.Context, reqID int64, viewer int64, postID int64, cursor string) (model.FeedPage, error)
	Favourites(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error)
	Bookmarks(ctx context.Context, reqID int64, viewer int64, cursor string) (model.FeedPage, error)
	Votes(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error)
	Post(ctx context.Context, reqID int64, viewer int64, postID int64) (model.FeedPage, error)
	PostParent(ctx context.Context, reqID int64, viewer int64, postID int64) (model.FeedPage, error)
	Activity(ctx context.Context, reqID int64, viewer int64, period string, cursor string) (model.ActivityPage, error)
}

type feedServiceOptions struct {
	PageSize       int `toml:"page_size"`
	MaxCandidates  int `toml:"max_candidates"`
	MaxRepostDepth int `toml:"max_repost_depth"`
	Region         string
}

type feedService struct {
	weaver.Implements[FeedService]
	weaver.WithConfig[feedServiceOptions]
	postStorageService weaver.Ref[PostStorageService]
	socialGraphService weaver.Ref[SocialGraphService]
	visibilityService  weaver.Ref[VisibilityService]
	userService        weaver.Ref[UserService]
	reactionService    weaver.Ref[ReactionService]
	engine             *feed.Engine
}

func (f *feedService) Init(ctx context.Context) error {
	logger := f.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	f.Config().Region = region

	config := feed.Config{
		PageSize:       f.Config().PageSize,
		MaxCandidates:  f.Config().MaxCandidates,
		MaxRepostDepth: f.Config().MaxRepostDepth,
	}
	f.engine = feed.NewEngine(
		f.postStorageService.Get(),
		f.socialGraphService.Get(),
		f.visibilityService.Get(),
		f.userService.Get(),
		f.reactionService.Get(),
		config,
		logger,
	)

	logger.Info("feed service running!", "region", region,
		"page_size", f.Config().PageSize, "max_candidates", f.Config().MaxCandidates, "max_repost_depth", f.Config().MaxRepostDepth,
	)
	return nil
}

// observe records the outcome of composing a page from source
func (f *feedService) observe(ctx context.Context, reqID int64, source string, start time.Time, posts int, err error) {
	label := metrics.FeedLabel{Region: f.Config().Region, Source: source}
	metrics.FeedRequests.Get(label).Inc()
	metrics.FeedDurationMs.Get(label).Put(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.FeedErrors.Get(label).Inc()
		f.Logger(ctx).Error("error composing feed", "req_id", reqID, "source", source, "msg", err.Error())
		return
	}
	metrics.FeedPagePosts.Get(label).Put(float64(posts))

	trace.SpanFromContext(ctx).AddEvent("composed feed page",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.Int64("feed_start_ms", start.UnixMilli()),
			attribute.Int64("feed_end_ms", time.Now().UnixMilli()),
			attribute.Int("num_posts", posts),
		))
}

func (f *feedService) page(ctx context.Context, reqID int64, source string, compose func() (model.FeedPage, error)) (model.FeedPage, error) {
	f.Logger(ctx).Debug("entering "+source, "req_id", reqID)
	start := time.Now()
	page, err := compose()
	f.observe(ctx, reqID, source, start, len(page.Posts), err)
	return page, err
}

func (f *feedService) Timeline(ctx context.Context, reqID int64, viewer int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Timeline", func() (model.FeedPage, error) {
		return f.engine.Timeline(ctx, reqID, viewer, includeReposts, includeReplies, cursor)
	})
}

func (f *feedService) ListPosts(ctx context.Context, reqID int64, ownerID int64, listName string, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "ListPosts", func() (model.FeedPage, error) {
		return f.engine.ListPosts(ctx, reqID, ownerID, listName, includeReposts, includeReplies, cursor)
	})
}

func (f *feedService) UserPosts(ctx context.Context, reqID int64, viewer int64, authorID int64, includeReposts bool, includeReplies bool, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "UserPosts", func() (model.FeedPage, error) {
		return f.engine.UserPosts(ctx, reqID, viewer, authorID, includeReposts, includeReplies, cursor)
	})
}

func (f *feedService) Hashtag(ctx context.Context, reqID int64, viewer int64, tag string, sortBy string, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Hashtag", func() (model.FeedPage, error) {
		return f.engine.Hashtag(ctx, reqID, viewer, tag, sortBy, cursor)
	})
}

func (f *feedService) Topmost(ctx context.Context, reqID int64, viewer int64, period string, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Topmost", func() (model.FeedPage, error) {
		return f.engine.Topmost(ctx, reqID, viewer, period, cursor)
	})
}

func (f *feedService) UserTopmost(ctx context.Context, reqID int64, viewer int64, authorID int64, period string, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "UserTopmost", func() (model.FeedPage, error) {
		return f.engine.UserTopmost(ctx, reqID, viewer, authorID, period, cursor)
	})
}

func (f *feedService) Search(ctx context.Context, reqID int64, viewer int64, query model.SearchQuery, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Search", func() (model.FeedPage, error) {
		return f.engine.Search(ctx, reqID, viewer, query, cursor)
	})
}

func (f *feedService) Nearby(ctx context.Context, reqID int64, viewer int64, longitude float64, latitude float64, maxDistance float64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Nearby", func() (model.FeedPage, error) {
		return f.engine.Nearby(ctx, reqID, viewer, longitude, latitude, maxDistance, cursor)
	})
}

func (f *feedService) Mentions(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Mentions", func() (model.FeedPage, error) {
		return f.engine.Mentions(ctx, reqID, viewer, userID, cursor)
	})
}

func (f *feedService) Replies(ctx context.Context, reqID int64, viewer int64, postID int64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Replies", func() (model.FeedPage, error) {
		return f.engine.Replies(ctx, reqID, viewer, postID, cursor)
	})
}

func (f *feedService) Quotes(ctx context.Context, reqID int64, viewer int64, postID int64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Quotes", func() (model.FeedPage, error) {
		return f.engine.Quotes(ctx, reqID, viewer, postID, cursor)
	})
}

func (f *feedService) Favourites(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Favourites", func() (model.FeedPage, error) {
		return f.engine.Favourites(ctx, reqID, viewer, userID, cursor)
	})
}

func (f *feedService) Bookmarks(ctx context.Context, reqID int64, viewer int64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Bookmarks", func() (model.FeedPage, error) {
		return f.engine.Bookmarks(ctx, reqID, viewer, cursor)
	})
}

func (f *feedService) Votes(ctx context.Context, reqID int64, viewer int64, userID int64, cursor string) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Votes", func() (model.FeedPage, error) {
		return f.engine.Votes(ctx, reqID, viewer, userID, cursor)
	})
}

func (f *feedService) Post(ctx context.Context, reqID int64, viewer int64, postID int64) (model.FeedPage, error) {
	return f.page(ctx, reqID, "Post", func() (model.FeedPage, error) {
		return f.engine.Post(ctx, reqID, viewer, postID)
	})
}

func (f *feedService) PostParent(ctx context.Context, reqID int64, viewer int64, postID int64) (model.FeedPage, error) {
	return f.page(ctx, reqID, "PostParent", func() (model.FeedPage, error) {
		return f.engine.PostParent(ctx, reqID, viewer, postID)
	})
}

func (f *feedService) Activity(ctx context.Context, reqID int64, viewer int64, period string, cursor string) (model.ActivityPage, error) {
	f.Logger(ctx).Debug("entering Activity", "req_id", reqID, "viewer", viewer, "period", period)
	start := time.Now()
	page, err := f.engine.Activity(ctx, reqID, viewer, period, cursor)
	f.observe(ctx, reqID, "Activity", start, len(page.Entries), err)
	return page, err
}
