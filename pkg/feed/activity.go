package feed

import (
	"context"
	"sort"

	"socialfeed/pkg/model"
)

type activityGroup struct {
	Entry
	kind   model.ActivityKind
	target int64
	actors map[int64]struct{}
}

type activityKey struct {
	kind   model.ActivityKind
	target int64
}

// groupActivity merges events per kind and target. A group takes the highest
// event id and the latest event time, so its key is never before any of its
// events.
func groupActivity(events []model.ActivityEvent) []*activityGroup {
	byKey := make(map[activityKey]*activityGroup)
	var groups []*activityGroup
	for _, ev := range events {
		key := eventKey(ev)
		g, ok := byKey[key]
		if !ok {
			g = &activityGroup{kind: key.kind, target: key.target, actors: make(map[int64]struct{})}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.actors[ev.ActorID] = struct{}{}
		if ev.Timestamp > g.Timestamp {
			g.Timestamp = ev.Timestamp
		}
		if ev.EventID > g.EntryID {
			g.EntryID = ev.EventID
		}
	}
	return groups
}

func eventEntry(ev model.ActivityEvent) Entry {
	return Entry{EntryID: ev.EventID, Timestamp: ev.Timestamp}
}

func eventKey(ev model.ActivityEvent) activityKey {
	if ev.Kind == model.ACTIVITY_FOLLOWED {
		return activityKey{kind: ev.Kind, target: ev.UserID}
	}
	return activityKey{kind: ev.Kind, target: ev.PostID}
}

// activityEvents returns the newest events past seek across every kind, at
// most MaxCandidates of them. Each kind is capped separately by the store, so
// the merged prefix is complete down to its oldest event.
func (e *Engine) activityEvents(ctx context.Context, reqID int64, actors []int64, since int64, seek *model.Cursor) ([]model.ActivityEvent, error) {
	events, err := e.reactions.ActivityEvents(ctx, reqID, actors, since, seek, e.config.MaxCandidates)
	if err != nil {
		e.logger.Error("error loading activity events", "req_id", reqID, "msg", err.Error())
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return chronological(eventEntry(events[i]), eventEntry(events[j]), false)
	})
	if len(events) > e.config.MaxCandidates {
		events = events[:e.config.MaxCandidates]
	}
	return events, nil
}

// shownActivity returns the groups that already have an event at or before
// seek, and were therefore listed on an earlier page
func (e *Engine) shownActivity(ctx context.Context, reqID int64, actors []int64, since int64, seek *model.Cursor) (map[activityKey]struct{}, error) {
	shown := make(map[activityKey]struct{})
	if seek == nil {
		return shown, nil
	}
	if seek.Timestamp > since {
		since = seek.Timestamp
	}
	head, err := e.activityEvents(ctx, reqID, actors, since, nil)
	if err != nil {
		return nil, err
	}
	for _, ev := range head {
		if !after(eventEntry(ev), *seek, model.SORT_BY_DATE, false) {
			shown[eventKey(ev)] = struct{}{}
		}
	}
	return shown, nil
}

func activityPeriod(s string) Period {
	switch p := ParsePeriod(s); p {
	case PERIOD_WEEK, PERIOD_MONTH:
		return p
	default:
		return PERIOD_DAY
	}
}

// Activity interleaves what the accounts viewer follows recently favourited,
// quoted, voted on, replied to and followed
func (e *Engine) Activity(ctx context.Context, reqID int64, viewer int64, period string, cursor string) (model.ActivityPage, error) {
	empty := model.ActivityPage{Entries: []model.ActivityEntry{}}
	seek := DecodeCursor(cursor, model.SORT_BY_DATE)

	followees, err := e.graph.GetFollowees(ctx, reqID, viewer)
	if err != nil {
		return model.ActivityPage{}, err
	}
	if len(followees) == 0 {
		return empty, nil
	}

	since := activityPeriod(period).Since(e.now())
	events, err := e.activityEvents(ctx, reqID, followees, since, seek)
	if err != nil {
		return model.ActivityPage{}, err
	}
	saturated := len(events) >= e.config.MaxCandidates
	shown, err := e.shownActivity(ctx, reqID, followees, since, seek)
	if err != nil {
		return model.ActivityPage{}, err
	}
	var groups []*activityGroup
	for _, g := range groupActivity(events) {
		if _, ok := shown[activityKey{kind: g.kind, target: g.target}]; !ok {
			groups = append(groups, g)
		}
	}

	var postIDs []int64
	for _, g := range groups {
		if g.kind != model.ACTIVITY_FOLLOWED {
			postIDs = append(postIDs, g.target)
		}
	}
	filter, err := e.filterFor(ctx, reqID, viewer)
	if err != nil {
		return model.ActivityPage{}, err
	}
	posts := make(map[int64]model.Post)
	if len(postIDs) > 0 {
		found, err := e.posts.GetPosts(ctx, reqID, unique(postIDs))
		if err != nil {
			return model.ActivityPage{}, err
		}
		for _, p := range found {
			posts[p.PostID] = p
		}
	}

	visible := make([]*activityGroup, 0, len(groups))
	for _, g := range groups {
		if g.kind == model.ACTIVITY_FOLLOWED {
			if filter.UserVisible(g.target) {
				visible = append(visible, g)
			}
			continue
		}
		p, ok := posts[g.target]
		if !ok {
			continue
		}
		g.Post = p
		if filter.Visible(g.Entry) {
			visible = append(visible, g)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return chronological(visible[i].Entry, visible[j].Entry, false)
	})
	page := make([]*activityGroup, 0, e.config.PageSize)
	for _, g := range visible {
		if len(page) == e.config.PageSize {
			break
		}
		if seek != nil && !after(g.Entry, *seek, model.SORT_BY_DATE, false) {
			continue
		}
		page = append(page, g)
	}
	var nextCursor string
	switch {
	case len(page) == e.config.PageSize:
		nextCursor = EncodeCursor(keyOf(page[len(page)-1].Entry, model.SORT_BY_DATE))
	case saturated:
		// continue below the oldest event read, older groups were not loaded yet
		nextCursor = EncodeCursor(keyOf(eventEntry(events[len(events)-1]), model.SORT_BY_DATE))
	}
	if len(page) == 0 {
		empty.Cursor = nextCursor
		return empty, nil
	}

	var postEntries []Entry
	var userIDs []int64
	for _, g := range page {
		if g.kind == model.ACTIVITY_FOLLOWED {
			userIDs = append(userIDs, g.target)
		} else {
			postEntries = append(postEntries, newEntry(g.Post))
		}
	}
	feedPosts, err := e.enrich(ctx, reqID, viewer, postEntries)
	if err != nil {
		return model.ActivityPage{}, err
	}
	usersByID := make(map[int64]model.User)
	if len(userIDs) > 0 {
		users, err := e.users.GetUsers(ctx, reqID, unique(userIDs))
		if err != nil {
			return model.ActivityPage{}, err
		}
		for _, u := range users {
			usersByID[u.UserID] = u
		}
	}

	entries := make([]model.ActivityEntry, 0, len(page))
	next := 0
	for _, g := range page {
		entry := model.ActivityEntry{
			EntryID:   g.EntryID,
			Kind:      g.kind,
			Count:     len(g.actors),
			Timestamp: g.Timestamp,
		}
		if g.kind == model.ACTIVITY_FOLLOWED {
			author := projectAuthor(usersByID, g.target)
			entry.User = &author
		} else {
			fp := feedPosts[next]
			next++
			entry.Post = &fp
		}
		entries = append(entries, entry)
	}

	e.logger.Debug("composed activity page", "req_id", reqID, "events", len(events), "groups", len(groups), "page", len(page))
	return model.ActivityPage{Entries: entries, Cursor: nextCursor}, nil
}
