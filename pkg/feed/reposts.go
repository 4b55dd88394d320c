package feed

import (
	"context"

	"socialfeed/pkg/model"
)

// ResolveReposts replaces every repost marker with the post it points to.
// The entry keeps the marker's id and timestamp as its sort key and records
// the marker's author in RepeatedBy. Chains are followed up to maxDepth hops;
// markers whose target is missing or whose chain is longer are dropped.
func ResolveReposts(ctx context.Context, store PostStore, reqID int64, entries []Entry, maxDepth int) ([]Entry, error) {
	resolved := make([]Entry, len(entries))
	copy(resolved, entries)

	var pending []int
	for i := range resolved {
		if resolved[i].Post.IsRepost() {
			resolved[i].RepeatedBy = resolved[i].Post.Author
			pending = append(pending, i)
		}
	}

	dropped := make(map[int]bool)
	for depth := 0; depth < maxDepth && len(pending) > 0; depth++ {
		seen := make(map[int64]bool)
		var targetIDs []int64
		for _, i := range pending {
			id := *resolved[i].Post.RepeatPost
			if !seen[id] {
				seen[id] = true
				targetIDs = append(targetIDs, id)
			}
		}

		targets, err := store.GetPosts(ctx, reqID, targetIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]model.Post, len(targets))
		for _, p := range targets {
			byID[p.PostID] = p
		}

		var next []int
		for _, i := range pending {
			target, ok := byID[*resolved[i].Post.RepeatPost]
			if !ok {
				dropped[i] = true
				continue
			}
			resolved[i].Post = target
			if target.IsRepost() {
				next = append(next, i)
			}
		}
		pending = next
	}
	for _, i := range pending {
		dropped[i] = true
	}

	if len(dropped) == 0 {
		return resolved, nil
	}
	kept := make([]Entry, 0, len(resolved)-len(dropped))
	for i, e := range resolved {
		if !dropped[i] {
			kept = append(kept, e)
		}
	}
	return kept, nil
}
