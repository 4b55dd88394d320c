package feed

import (
	"regexp"

	"socialfeed/pkg/model"
)

// Filter decides what a single viewer is allowed to see. A nil Filter lets
// everything through and is used for anonymous viewers.
type Filter struct {
	blocked    map[int64]struct{}
	muted      map[int64]struct{}
	mutedPosts map[int64]struct{}
	mutedWords []*regexp.Regexp
}

// MutedWordPattern compiles a muted word into a case-insensitive matcher.
// The word is always taken literally.
func MutedWordPattern(w model.MutedWord) (*regexp.Regexp, error) {
	word := regexp.QuoteMeta(w.Word)
	var expr string
	switch w.Match {
	case model.MATCH_EXACT:
		expr = `\b` + word + `\b`
	case model.MATCH_STARTS_WITH:
		expr = `\b` + word + `.*?\b`
	case model.MATCH_ENDS_WITH:
		expr = `\b\w*?` + word + `\b`
	default:
		expr = word
	}
	return regexp.Compile("(?i)" + expr)
}

func NewFilter(state model.VisibilityState) (*Filter, error) {
	f := &Filter{
		blocked:    toSet(state.BlockedUsers),
		muted:      toSet(state.MutedUsers),
		mutedPosts: toSet(state.MutedPosts),
	}
	for _, w := range state.MutedWords {
		if w.Word == "" {
			continue
		}
		re, err := MutedWordPattern(w)
		if err != nil {
			return nil, err
		}
		f.mutedWords = append(f.mutedWords, re)
	}
	return f, nil
}

// Visible reports whether e may be shown. Entries are checked after repost
// resolution so the content and author are those of the target post.
func (f *Filter) Visible(e Entry) bool {
	if f == nil {
		return true
	}
	if !f.UserVisible(e.Post.Author) {
		return false
	}
	if _, ok := f.muted[e.RepeatedBy]; ok && e.RepeatedBy != 0 {
		return false
	}
	if _, ok := f.mutedPosts[e.Post.PostID]; ok {
		return false
	}
	for _, re := range f.mutedWords {
		if re.MatchString(e.Post.Content) {
			return false
		}
	}
	return true
}

// UserVisible reports whether userID is neither blocked nor muted
func (f *Filter) UserVisible(userID int64) bool {
	if f == nil {
		return true
	}
	if _, ok := f.blocked[userID]; ok {
		return false
	}
	_, ok := f.muted[userID]
	return !ok
}

// FilterVisible keeps the entries f allows, preserving order
func FilterVisible(entries []Entry, f *Filter) []Entry {
	visible := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Visible(e) {
			visible = append(visible, e)
		}
	}
	return visible
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
