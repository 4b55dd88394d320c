package feed

import (
	"context"
	"strings"

	"socialfeed/pkg/model"
)

const (
	listSeparator = "|"

	SEARCH_SORT_MATCH   = "match"
	SEARCH_SORT_DATE    = "date"
	SEARCH_SORT_POPULAR = "popular"
)

// splitList splits a "|" separated parameter, dropping blanks and the
// leading "@" of handles
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listSeparator) {
		part = strings.TrimPrefix(strings.TrimSpace(part), "@")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func searchOrder(q model.SearchQuery) (model.SortMode, bool) {
	ascending := strings.EqualFold(q.DateOrder, "asc")
	switch q.SortBy {
	case SEARCH_SORT_DATE:
		return model.SORT_BY_DATE, ascending
	case SEARCH_SORT_POPULAR:
		return model.SORT_BY_POPULARITY, false
	default:
		if strings.TrimSpace(q.Text) != "" {
			return model.SORT_BY_RELEVANCE, ascending
		}
		return model.SORT_BY_DATE, ascending
	}
}

func parseReplies(r model.ReplyFilter) model.ReplyFilter {
	switch r {
	case model.REPLIES_EXCLUDE, model.REPLIES_ONLY:
		return r
	default:
		return model.REPLIES_INCLUDE
	}
}

// Search returns the posts matching q. Without text or filters every post is
// a candidate. Handles in From that match no active user yield an empty page.
func (e *Engine) Search(ctx context.Context, reqID int64, viewer int64, q model.SearchQuery, cursor string) (model.FeedPage, error) {
	mode, ascending := searchOrder(q)
	req := e.newRequest(reqID, viewer, mode, ascending, cursor)

	query := model.PostQuery{
		Text:             strings.TrimSpace(q.Text),
		Since:            q.Since,
		Until:            q.Until,
		HasMedia:         q.HasMedia,
		Replies:          parseReplies(q.Replies),
		Languages:        splitList(q.Languages),
		AllLanguages:     strings.EqualFold(q.LanguagesMatch, "all"),
		MediaDescription: strings.TrimSpace(q.MediaDescription),
		ExcludeReposts:   mode != model.SORT_BY_DATE,
	}

	if from := splitList(q.From); len(from) > 0 {
		ids, err := e.users.GetUserIDs(ctx, reqID, from)
		if err != nil {
			return model.FeedPage{}, err
		}
		query.RestrictAuthors = true
		query.Authors = ids
	}
	if notFrom := splitList(q.NotFrom); len(notFrom) > 0 {
		ids, err := e.users.GetUserIDs(ctx, reqID, notFrom)
		if err != nil {
			return model.FeedPage{}, err
		}
		query.ExcludeAuthors = ids
	}
	return e.run(ctx, req, query)
}
