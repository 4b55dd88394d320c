package feed

import (
	"sort"
	"strings"
	"time"

	"socialfeed/pkg/model"
)

type Period string

const (
	PERIOD_DAY   Period = "day"
	PERIOD_WEEK  Period = "week"
	PERIOD_MONTH Period = "month"
	PERIOD_YEAR  Period = "year"
	PERIOD_ALL   Period = "all"
)

// ParsePeriod maps a client period onto a known one, defaulting to a day
func ParsePeriod(s string) Period {
	switch p := Period(strings.ToLower(s)); p {
	case PERIOD_DAY, PERIOD_WEEK, PERIOD_MONTH, PERIOD_YEAR, PERIOD_ALL:
		return p
	default:
		return PERIOD_DAY
	}
}

// Since returns the lower bound in milliseconds of the window ending at now,
// or 0 when the window is unbounded
func (p Period) Since(now time.Time) int64 {
	var start time.Time
	switch p {
	case PERIOD_ALL:
		return 0
	case PERIOD_WEEK:
		start = now.Add(-7 * 24 * time.Hour)
	case PERIOD_MONTH:
		start = now.AddDate(0, -1, 0)
	case PERIOD_YEAR:
		start = now.AddDate(-1, 0, 0)
	default:
		start = now.Add(-24 * time.Hour)
	}
	return start.UnixMilli()
}

// ApplyWindow keeps entries whose post was created at or after since
func ApplyWindow(entries []Entry, since int64) []Entry {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Post.Timestamp >= since {
			kept = append(kept, e)
		}
	}
	return kept
}

// Rank returns a sorted copy of entries
func Rank(entries []Entry, mode model.SortMode, ascending bool) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return before(ranked[i], ranked[j], mode, ascending)
	})
	return ranked
}

func before(a, b Entry, mode model.SortMode, ascending bool) bool {
	switch mode {
	case model.SORT_BY_POPULARITY:
		if a.Post.Score != b.Post.Score {
			return a.Post.Score > b.Post.Score
		}
		return chronological(a, b, false)
	case model.SORT_BY_RELEVANCE:
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		return chronological(a, b, ascending)
	case model.SORT_BY_DISTANCE:
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return chronological(a, b, false)
	default:
		return chronological(a, b, ascending)
	}
}

func chronological(a, b Entry, ascending bool) bool {
	if a.Timestamp != b.Timestamp {
		if ascending {
			return a.Timestamp < b.Timestamp
		}
		return a.Timestamp > b.Timestamp
	}
	if ascending {
		return a.EntryID < b.EntryID
	}
	return a.EntryID > b.EntryID
}

// Paginate returns at most size ranked entries strictly after cursor
func Paginate(ranked []Entry, mode model.SortMode, ascending bool, cursor *model.Cursor, size int) []Entry {
	page := make([]Entry, 0, size)
	for _, e := range ranked {
		if len(page) == size {
			break
		}
		if cursor != nil && !after(e, *cursor, mode, ascending) {
			continue
		}
		page = append(page, e)
	}
	return page
}
