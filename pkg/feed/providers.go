package feed

import (
	"context"

	"socialfeed/pkg/model"
)

// PostStore answers candidate queries. Results come back in the order of the
// query's sort mode, already past the query's seek cursor.
type PostStore interface {
	FindPosts(ctx context.Context, reqID int64, query model.PostQuery) ([]model.Post, error)
	FindNearby(ctx context.Context, reqID int64, query model.NearbyQuery) ([]model.Post, error)
	// GetPosts returns the posts that exist among postIDs, in no particular order
	GetPosts(ctx context.Context, reqID int64, postIDs []int64) ([]model.Post, error)
}

type SocialGraph interface {
	// GetFollowees returns the active accounts followed by userID
	GetFollowees(ctx context.Context, reqID int64, userID int64) ([]int64, error)
	GetListMembers(ctx context.Context, reqID int64, ownerID int64, listName string) ([]int64, error)
}

type VisibilityProvider interface {
	GetVisibilityState(ctx context.Context, reqID int64, userID int64) (model.VisibilityState, error)
}

type UserDirectory interface {
	GetUsers(ctx context.Context, reqID int64, userIDs []int64) ([]model.User, error)
	// GetUserIDs resolves handles of active users, unknown handles are skipped
	GetUserIDs(ctx context.Context, reqID int64, handles []string) ([]int64, error)
}

type ReactionIndex interface {
	Favourited(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error)
	Repeated(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error)
	// Votes maps each voted post to the chosen poll option
	Votes(ctx context.Context, reqID int64, userID int64, postIDs []int64) (map[int64]string, error)
	// ListReactions returns the reactions of userID newest first, past seek
	ListReactions(ctx context.Context, reqID int64, userID int64, kind model.ReactionKind, seek *model.Cursor, limit int) ([]model.Reaction, error)
	ActivityEvents(ctx context.Context, reqID int64, actorIDs []int64, since int64, seek *model.Cursor, limit int) ([]model.ActivityEvent, error)
}
