package services

import (
	"context"
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

type VisibilityService interface {
	GetVisibilityState(ctx context.Context, reqID int64, userID int64) (model.VisibilityState, error)
}

type visibilityService struct {
	weaver.Implements[VisibilityService]
	weaver.WithConfig[visibilityServiceOptions]
	mongoClient *mongo.Client
}

type visibilityServiceOptions struct {
	MongoDBAddr map[string]string `toml:"mongodb_address"`
	MongoDBPort map[string]int    `toml:"mongodb_port"`
	Region      string
}

type blockInfo struct {
	BlockedID int64 `bson:"blocked_id"`
}

type muteInfo struct {
	MutedID int64 `bson:"muted_id"`
}

type mutedPostInfo struct {
	PostID int64 `bson:"post_id"`
}

func (v *visibilityService) Init(ctx context.Context) error {
	logger := v.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	v.Config().Region = region

	v.mongoClient, err = storage.MongoDBClient(ctx, v.Config().MongoDBAddr[region], v.Config().MongoDBPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	logger.Info("visibility service running!", "region", region,
		"mongodb_addr", v.Config().MongoDBAddr[region], "mongodb_port", v.Config().MongoDBPort[region],
	)
	return nil
}

// GetVisibilityState reads the blocks, mutes, muted posts and muted words of
// userID in parallel
func (v *visibilityService) GetVisibilityState(ctx context.Context, reqID int64, userID int64) (model.VisibilityState, error) {
	logger := v.Logger(ctx)
	logger.Debug("entering GetVisibilityState", "req_id", reqID, "user_id", userID)

	start_ms := time.Now().UnixMilli()
	db := v.mongoClient.Database(storage.VISIBILITY_DB)
	filter := bson.D{{Key: "user_id", Value: userID}}

	var blocks []blockInfo
	var mutes []muteInfo
	var mutedPosts []mutedPostInfo
	var mutedWords []model.MutedWord

	var wg sync.WaitGroup
	wg.Add(4)
	var errs [4]error
	go func() {
		defer wg.Done()
		errs[0] = findAll(ctx, db.Collection(storage.BLOCKS_COLLECTION), filter, &blocks)
	}()
	go func() {
		defer wg.Done()
		errs[1] = findAll(ctx, db.Collection(storage.MUTES_COLLECTION), filter, &mutes)
	}()
	go func() {
		defer wg.Done()
		errs[2] = findAll(ctx, db.Collection(storage.MUTED_POSTS_COLLECTION), filter, &mutedPosts)
	}()
	go func() {
		defer wg.Done()
		errs[3] = findAll(ctx, db.Collection(storage.MUTED_WORDS_COLLECTION), filter, &mutedWords)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			logger.Error("error reading visibility state from mongodb", "msg", err.Error())
			return model.VisibilityState{}, err
		}
	}

	state := model.VisibilityState{
		BlockedUsers: make([]int64, 0, len(blocks)),
		MutedUsers:   make([]int64, 0, len(mutes)),
		MutedPosts:   make([]int64, 0, len(mutedPosts)),
		MutedWords:   mutedWords,
	}
	for _, b := range blocks {
		state.BlockedUsers = append(state.BlockedUsers, b.BlockedID)
	}
	for _, m := range mutes {
		state.MutedUsers = append(state.MutedUsers, m.MutedID)
	}
	for _, p := range mutedPosts {
		state.MutedPosts = append(state.MutedPosts, p.PostID)
	}

	trace.SpanFromContext(ctx).AddEvent("reading visibility state in mongodb",
		trace.WithAttributes(
			attribute.Int64("visibility_start_ms", start_ms),
			attribute.Int64("visibility_end_ms", time.Now().UnixMilli()),
		))
	return state, nil
}

// findAll decodes every document matching filter into results
func findAll(ctx context.Context, collection *mongo.Collection, filter interface{}, results interface{}, opts ...*options.FindOptions) error {
	cur, err := collection.Find(ctx, filter, opts...)
	if err != nil {
		return err
	}
	return cur.All(ctx, results)
}
