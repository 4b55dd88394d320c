package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"socialfeed/pkg/model"
	"socialfeed/pkg/storage"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ReactionService interface {
	Favourited(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error)
	Repeated(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error)
	Votes(ctx context.Context, reqID int64, userID int64, postIDs []int64) (map[int64]string, error)
	ListReactions(ctx context.Context, reqID int64, userID int64, kind model.ReactionKind, seek *model.Cursor, limit int) ([]model.Reaction, error)
	ActivityEvents(ctx context.Context, reqID int64, actorIDs []int64, since int64, seek *model.Cursor, limit int) ([]model.ActivityEvent, error)
}

type reactionService struct {
	weaver.Implements[ReactionService]
	weaver.WithConfig[reactionServiceOptions]
	mongoClient *mongo.Client
}

type reactionServiceOptions struct {
	MongoDBAddr map[string]string `toml:"mongodb_address"`
	MongoDBPort map[string]int    `toml:"mongodb_port"`
	Region      string
}

// reactionInfo is a favourite, bookmark or vote document
type reactionInfo struct {
	ReactionID int64  `bson:"reaction_id"`
	UserID     int64  `bson:"user_id"`
	PostID     int64  `bson:"post_id"`
	Option     string `bson:"option,omitempty"`
	Timestamp  int64  `bson:"timestamp"`
}

type followEventInfo struct {
	UserID   int64        `bson:"user_id"`
	Followee FolloweeInfo `bson:"followees"`
}

func (r *reactionService) Init(ctx context.Context) error {
	logger := r.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	r.Config().Region = region

	r.mongoClient, err = storage.MongoDBClient(ctx, r.Config().MongoDBAddr[region], r.Config().MongoDBPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	db := r.mongoClient.Database(storage.REACTIONS_DB)
	for _, name := range []string{storage.FAVOURITES_COLLECTION, storage.BOOKMARKS_COLLECTION, storage.VOTES_COLLECTION} {
		_, err := db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "reaction_id", Value: -1}},
		})
		if err != nil {
			logger.Error("error creating reaction index", "collection", name, "msg", err.Error())
			return err
		}
	}

	logger.Info("reaction service running!", "region", region,
		"mongodb_addr", r.Config().MongoDBAddr[region], "mongodb_port", r.Config().MongoDBPort[region],
	)
	return nil
}

func reactionCollection(kind model.ReactionKind) (string, error) {
	switch kind {
	case model.REACTION_FAVOURITE:
		return storage.FAVOURITES_COLLECTION, nil
	case model.REACTION_BOOKMARK:
		return storage.BOOKMARKS_COLLECTION, nil
	case model.REACTION_VOTE:
		return storage.VOTES_COLLECTION, nil
	default:
		return "", fmt.Errorf("reactions of kind %q are not listed", kind)
	}
}

func (r *reactionService) userReactions(ctx context.Context, collection string, userID int64, postIDs []int64) ([]reactionInfo, error) {
	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "post_id", Value: bson.D{{Key: "$in", Value: postIDs}}},
	}
	var reactions []reactionInfo
	err := findAll(ctx, r.mongoClient.Database(storage.REACTIONS_DB).Collection(collection), filter, &reactions)
	return reactions, err
}

// Favourited returns which of postIDs userID has favourited
func (r *reactionService) Favourited(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error) {
	logger := r.Logger(ctx)
	logger.Debug("entering Favourited", "req_id", reqID, "user_id", userID, "post_ids", postIDs)

	reactions, err := r.userReactions(ctx, storage.FAVOURITES_COLLECTION, userID, postIDs)
	if err != nil {
		logger.Error("error reading favourites from mongodb", "msg", err.Error())
		return nil, err
	}
	ids := make([]int64, 0, len(reactions))
	for _, reaction := range reactions {
		ids = append(ids, reaction.PostID)
	}
	return ids, nil
}

// Repeated returns which of postIDs userID has reposted
func (r *reactionService) Repeated(ctx context.Context, reqID int64, userID int64, postIDs []int64) ([]int64, error) {
	logger := r.Logger(ctx)
	logger.Debug("entering Repeated", "req_id", reqID, "user_id", userID, "post_ids", postIDs)

	collection := r.mongoClient.Database(storage.POSTS_DB).Collection(storage.POSTS_COLLECTION)
	filter := bson.D{
		{Key: "author", Value: userID},
		{Key: "repeat_post", Value: bson.D{{Key: "$in", Value: postIDs}}},
	}
	opts := options.Find().SetProjection(bson.D{{Key: "post_id", Value: 1}, {Key: "repeat_post", Value: 1}})
	var reposts []model.Post
	if err := findAll(ctx, collection, filter, &reposts, opts); err != nil {
		logger.Error("error reading reposts from mongodb", "msg", err.Error())
		return nil, err
	}
	ids := make([]int64, 0, len(reposts))
	for _, p := range reposts {
		ids = append(ids, *p.RepeatPost)
	}
	return ids, nil
}

// Votes maps each of postIDs userID voted on to the chosen option
func (r *reactionService) Votes(ctx context.Context, reqID int64, userID int64, postIDs []int64) (map[int64]string, error) {
	logger := r.Logger(ctx)
	logger.Debug("entering Votes", "req_id", reqID, "user_id", userID, "post_ids", postIDs)

	reactions, err := r.userReactions(ctx, storage.VOTES_COLLECTION, userID, postIDs)
	if err != nil {
		logger.Error("error reading votes from mongodb", "msg", err.Error())
		return nil, err
	}
	votes := make(map[int64]string, len(reactions))
	for _, reaction := range reactions {
		votes[reaction.PostID] = reaction.Option
	}
	return votes, nil
}

func (r *reactionService) ListReactions(ctx context.Context, reqID int64, userID int64, kind model.ReactionKind, seek *model.Cursor, limit int) ([]model.Reaction, error) {
	logger := r.Logger(ctx)
	logger.Debug("entering ListReactions", "req_id", reqID, "user_id", userID, "kind", kind, "limit", limit)

	name, err := reactionCollection(kind)
	if err != nil {
		logger.Error("error listing reactions", "msg", err.Error())
		return nil, err
	}
	filter := bson.D{{Key: "user_id", Value: userID}}
	if s := reactionSeek(seek); s != nil {
		filter = append(filter, s...)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "reaction_id", Value: -1}}).
		SetLimit(int64(limit))

	reactions := []model.Reaction{}
	err = findAll(ctx, r.mongoClient.Database(storage.REACTIONS_DB).Collection(name), filter, &reactions, opts)
	if err != nil {
		logger.Error("error reading reactions from mongodb", "msg", err.Error())
		return nil, err
	}
	return reactions, nil
}

// ActivityEvents collects what actorIDs favourited, voted on, quoted, replied
// to and followed since the given time, newest first and past seek. Each kind
// is capped at limit.
func (r *reactionService) ActivityEvents(ctx context.Context, reqID int64, actorIDs []int64, since int64, seek *model.Cursor, limit int) ([]model.ActivityEvent, error) {
	logger := r.Logger(ctx)
	logger.Debug("entering ActivityEvents", "req_id", reqID, "actors", len(actorIDs), "since", since, "limit", limit)

	start_ms := time.Now().UnixMilli()
	recent := bson.D{{Key: "$gte", Value: since}}
	newest := func(idField string) *options.FindOptions {
		return options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: idField, Value: -1}}).
			SetLimit(int64(limit))
	}
	reactionFilter := append(bson.D{
		{Key: "user_id", Value: bson.D{{Key: "$in", Value: actorIDs}}},
		{Key: "timestamp", Value: recent},
	}, reactionSeek(seek)...)
	postFilter := func(field string) bson.D {
		return append(bson.D{
			{Key: "author", Value: bson.D{{Key: "$in", Value: actorIDs}}},
			{Key: field, Value: bson.D{{Key: "$exists", Value: true}}},
			{Key: "timestamp", Value: recent},
		}, olderThan(seek, "timestamp", "post_id")...)
	}
	followFilter := append(bson.D{
		{Key: "followees.timestamp", Value: recent},
	}, olderThan(seek, "followees.timestamp", "followees.follow_id")...)
	reactions := r.mongoClient.Database(storage.REACTIONS_DB)
	posts := r.mongoClient.Database(storage.POSTS_DB).Collection(storage.POSTS_COLLECTION)
	follows := r.mongoClient.Database(storage.SOCIAL_GRAPH_DB).Collection(storage.FOLLOWS_COLLECTION)

	var favourites, votes []reactionInfo
	var quotes, replies []model.Post
	var followed []followEventInfo

	var wg sync.WaitGroup
	wg.Add(5)
	var errs [5]error
	go func() {
		defer wg.Done()
		errs[0] = findAll(ctx, reactions.Collection(storage.FAVOURITES_COLLECTION), reactionFilter, &favourites, newest("reaction_id"))
	}()
	go func() {
		defer wg.Done()
		errs[1] = findAll(ctx, reactions.Collection(storage.VOTES_COLLECTION), reactionFilter, &votes, newest("reaction_id"))
	}()
	go func() {
		defer wg.Done()
		errs[2] = findAll(ctx, posts, postFilter("attachments.post_id"), &quotes, newest("post_id"))
	}()
	go func() {
		defer wg.Done()
		errs[3] = findAll(ctx, posts, postFilter("reply_to"), &replies, newest("post_id"))
	}()
	go func() {
		defer wg.Done()
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.D{{Key: "user_id", Value: bson.D{{Key: "$in", Value: actorIDs}}}}}},
			{{Key: "$unwind", Value: "$followees"}},
			{{Key: "$match", Value: followFilter}},
			{{Key: "$sort", Value: bson.D{{Key: "followees.timestamp", Value: -1}, {Key: "followees.follow_id", Value: -1}}}},
			{{Key: "$limit", Value: limit}},
		}
		cur, err := follows.Aggregate(ctx, pipeline)
		if err != nil {
			errs[4] = err
			return
		}
		errs[4] = cur.All(ctx, &followed)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			logger.Error("error reading activity from mongodb", "msg", err.Error())
			return nil, err
		}
	}

	events := make([]model.ActivityEvent, 0, len(favourites)+len(votes)+len(quotes)+len(replies)+len(followed))
	for _, f := range favourites {
		events = append(events, model.ActivityEvent{EventID: f.ReactionID, Kind: model.ACTIVITY_FAVOURITED, ActorID: f.UserID, PostID: f.PostID, Timestamp: f.Timestamp})
	}
	for _, v := range votes {
		events = append(events, model.ActivityEvent{EventID: v.ReactionID, Kind: model.ACTIVITY_VOTED, ActorID: v.UserID, PostID: v.PostID, Timestamp: v.Timestamp})
	}
	for _, q := range quotes {
		events = append(events, model.ActivityEvent{EventID: q.PostID, Kind: model.ACTIVITY_QUOTED, ActorID: q.Author, PostID: *q.Attachments.QuotedPostID, Timestamp: q.Timestamp})
	}
	for _, p := range replies {
		events = append(events, model.ActivityEvent{EventID: p.PostID, Kind: model.ACTIVITY_REPLIED, ActorID: p.Author, PostID: *p.ReplyTo, Timestamp: p.Timestamp})
	}
	for _, f := range followed {
		events = append(events, model.ActivityEvent{EventID: f.Followee.FollowID, Kind: model.ACTIVITY_FOLLOWED, ActorID: f.UserID, UserID: f.Followee.FolloweeID, Timestamp: f.Followee.Timestamp})
	}

	trace.SpanFromContext(ctx).AddEvent("reading activity in mongodb",
		trace.WithAttributes(
			attribute.Int64("activity_start_ms", start_ms),
			attribute.Int64("activity_end_ms", time.Now().UnixMilli()),
			attribute.Int("num_events", len(events)),
		))
	return events, nil
}
