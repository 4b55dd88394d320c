package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"socialfeed/pkg/model"
)

// Entry is a candidate moving through the pipeline. EntryID and Timestamp
// form its chronological sort key, which for a resolved repost or a reaction
// is the key of the marker or reaction rather than the post.
type Entry struct {
	Post       model.Post
	EntryID    int64
	Timestamp  int64
	RepeatedBy int64
	Relevance  float64
	Distance   float64
}

func newEntry(p model.Post) Entry {
	return Entry{
		Post:      p,
		EntryID:   p.PostID,
		Timestamp: p.Timestamp,
		Relevance: p.Relevance,
		Distance:  p.Distance,
	}
}

func entriesOf(posts []model.Post) []Entry {
	entries := make([]Entry, 0, len(posts))
	for _, p := range posts {
		entries = append(entries, newEntry(p))
	}
	return entries
}

type Config struct {
	PageSize       int
	MaxCandidates  int
	MaxRepostDepth int
}

func DefaultConfig() Config {
	return Config{
		PageSize:       20,
		MaxCandidates:  10000,
		MaxRepostDepth: 3,
	}
}

// Engine composes feeds on top of the data providers. It holds no state of
// its own and is safe for concurrent use.
type Engine struct {
	posts      PostStore
	graph      SocialGraph
	visibility VisibilityProvider
	users      UserDirectory
	reactions  ReactionIndex
	config     Config
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(posts PostStore, graph SocialGraph, visibility VisibilityProvider, users UserDirectory, reactions ReactionIndex, config Config, logger *slog.Logger) *Engine {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = defaults.MaxCandidates
	}
	if config.MaxRepostDepth <= 0 {
		config.MaxRepostDepth = defaults.MaxRepostDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		posts:      posts,
		graph:      graph,
		visibility: visibility,
		users:      users,
		reactions:  reactions,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// request holds the parameters shared by every stage after candidate selection
type request struct {
	reqID     int64
	viewer    int64
	mode      model.SortMode
	ascending bool
	since     int64
	cursor    *model.Cursor
}

func (e *Engine) newRequest(reqID int64, viewer int64, mode model.SortMode, ascending bool, cursor string) request {
	return request{
		reqID:     reqID,
		viewer:    viewer,
		mode:      mode,
		ascending: ascending,
		cursor:    DecodeCursor(cursor, mode),
	}
}

// compose runs repost resolution, visibility filtering, ranking, pagination
// and enrichment over raw candidates. saturated tells whether the candidate
// source hit its cap and may hold more items.
func (e *Engine) compose(ctx context.Context, req request, raw []Entry, saturated bool) (model.FeedPage, error) {
	var wg sync.WaitGroup
	var resolved []Entry
	var filter *Filter
	var resolveErr, filterErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		resolved, resolveErr = ResolveReposts(ctx, e.posts, req.reqID, raw, e.config.MaxRepostDepth)
	}()
	go func() {
		defer wg.Done()
		filter, filterErr = e.filterFor(ctx, req.reqID, req.viewer)
	}()
	wg.Wait()
	if resolveErr != nil {
		e.logger.Error("error resolving reposts", "req_id", req.reqID, "msg", resolveErr.Error())
		return model.FeedPage{}, resolveErr
	}
	if filterErr != nil {
		e.logger.Error("error loading visibility state", "req_id", req.reqID, "msg", filterErr.Error())
		return model.FeedPage{}, filterErr
	}

	visible := FilterVisible(resolved, filter)
	if req.since > 0 {
		visible = ApplyWindow(visible, req.since)
	}
	ranked := Rank(visible, req.mode, req.ascending)
	page := Paginate(ranked, req.mode, req.ascending, req.cursor, e.config.PageSize)

	posts, err := e.enrich(ctx, req.reqID, req.viewer, page)
	if err != nil {
		e.logger.Error("error enriching page", "req_id", req.reqID, "msg", err.Error())
		return model.FeedPage{}, err
	}

	e.logger.Debug("composed feed page", "req_id", req.reqID, "candidates", len(raw), "resolved", len(resolved), "visible", len(visible), "page", len(page))
	return model.FeedPage{Posts: posts, Cursor: e.nextCursor(req, page, raw, saturated)}, nil
}

// nextCursor points after the last item of a full page. A short page only
// gets a cursor when the candidate source was capped, so that the items past
// the cap remain reachable.
func (e *Engine) nextCursor(req request, page []Entry, raw []Entry, saturated bool) string {
	if len(page) == e.config.PageSize {
		return EncodeCursor(keyOf(page[len(page)-1], req.mode))
	}
	if saturated && len(raw) > 0 {
		return EncodeCursor(keyOf(raw[len(raw)-1], req.mode))
	}
	return ""
}

func (e *Engine) filterFor(ctx context.Context, reqID int64, viewer int64) (*Filter, error) {
	if viewer == 0 {
		return nil, nil
	}
	state, err := e.visibility.GetVisibilityState(ctx, reqID, viewer)
	if err != nil {
		return nil, err
	}
	return NewFilter(state)
}

// run fetches candidates for query and composes the page
func (e *Engine) run(ctx context.Context, req request, query model.PostQuery) (model.FeedPage, error) {
	if query.RestrictAuthors && len(query.Authors) == 0 {
		return emptyPage(), nil
	}
	query.Sort = req.mode
	query.Ascending = req.ascending
	query.Seek = req.cursor
	query.Limit = e.config.MaxCandidates
	posts, err := e.posts.FindPosts(ctx, req.reqID, query)
	if err != nil {
		e.logger.Error("error finding posts", "req_id", req.reqID, "msg", err.Error())
		return model.FeedPage{}, err
	}
	return e.compose(ctx, req, entriesOf(posts), len(posts) >= e.config.MaxCandidates)
}

func emptyPage() model.FeedPage {
	return model.FeedPage{Posts: []model.FeedPost{}}
}
