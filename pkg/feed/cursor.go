package feed

import (
	"encoding/base64"
	"strconv"
	"strings"

	"socialfeed/pkg/model"
)

const cursorSeparator = ":"

var cursorPrefixes = map[model.SortMode]string{
	model.SORT_BY_DATE:       "d",
	model.SORT_BY_POPULARITY: "p",
	model.SORT_BY_RELEVANCE:  "r",
	model.SORT_BY_DISTANCE:   "g",
}

// EncodeCursor turns a sort key into the opaque string handed to clients
func EncodeCursor(c model.Cursor) string {
	prefix, ok := cursorPrefixes[c.Mode]
	if !ok {
		return ""
	}
	var key string
	switch c.Mode {
	case model.SORT_BY_DATE:
		key = strconv.FormatInt(c.Timestamp, 10)
	case model.SORT_BY_DISTANCE:
		key = strconv.FormatFloat(c.Distance, 'g', -1, 64)
	default:
		key = strconv.FormatFloat(c.Score, 'g', -1, 64)
	}
	raw := strings.Join([]string{prefix, key, strconv.FormatInt(c.ID, 10)}, cursorSeparator)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a client cursor for the given mode. It returns nil when
// the cursor is empty, malformed or was issued for another mode, in which
// case the caller serves the first page.
func DecodeCursor(s string, mode model.SortMode) *model.Cursor {
	if s == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	parts := strings.Split(string(raw), cursorSeparator)
	if len(parts) != 3 || parts[0] != cursorPrefixes[mode] {
		return nil
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil
	}
	c := model.Cursor{Mode: mode, ID: id}
	switch mode {
	case model.SORT_BY_DATE:
		c.Timestamp, err = strconv.ParseInt(parts[1], 10, 64)
	case model.SORT_BY_DISTANCE:
		c.Distance, err = strconv.ParseFloat(parts[1], 64)
	default:
		c.Score, err = strconv.ParseFloat(parts[1], 64)
	}
	if err != nil {
		return nil
	}
	return &c
}

// keyOf returns the cursor that points at e in the given order
func keyOf(e Entry, mode model.SortMode) model.Cursor {
	c := model.Cursor{Mode: mode, ID: e.EntryID}
	switch mode {
	case model.SORT_BY_DATE:
		c.Timestamp = e.Timestamp
	case model.SORT_BY_POPULARITY:
		c.Score = float64(e.Post.Score)
	case model.SORT_BY_RELEVANCE:
		c.Score = e.Relevance
	case model.SORT_BY_DISTANCE:
		c.Distance = e.Distance
	}
	return c
}

// after reports whether e comes strictly after the cursor position
func after(e Entry, c model.Cursor, mode model.SortMode, ascending bool) bool {
	idAfter := e.EntryID < c.ID
	if ascending {
		idAfter = e.EntryID > c.ID
	}
	switch mode {
	case model.SORT_BY_POPULARITY:
		score := float64(e.Post.Score)
		return score < c.Score || (score == c.Score && e.EntryID < c.ID)
	case model.SORT_BY_RELEVANCE:
		return e.Relevance < c.Score || (e.Relevance == c.Score && idAfter)
	case model.SORT_BY_DISTANCE:
		return e.Distance > c.Distance || (e.Distance == c.Distance && e.EntryID < c.ID)
	default:
		if ascending {
			return e.Timestamp > c.Timestamp || (e.Timestamp == c.Timestamp && idAfter)
		}
		return e.Timestamp < c.Timestamp || (e.Timestamp == c.Timestamp && idAfter)
	}
}
