package services

import (
	"context"
	"encoding/json"
	"time"

	"socialfeed/pkg/metrics"
	"socialfeed/pkg/model"
	"socialfeed/pkg/storage"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PostStorageService interface {
	FindPosts(ctx context.Context, reqID int64, query model.PostQuery) ([]model.Post, error)
	FindNearby(ctx context.Context, reqID int64, query model.NearbyQuery) ([]model.Post, error)
	GetPosts(ctx context.Context, reqID int64, postIDs []int64) ([]model.Post, error)
	InvalidatePost(ctx context.Context, reqID int64, postID int64) error
}

// default expiration of cached posts
const POST_CACHE_TTL_SECONDS int = 600

type postStorageServiceOptions struct {
	MongoDBAddr     map[string]string `toml:"mongodb_address"`
	MongoDBPort     map[string]int    `toml:"mongodb_port"`
	RedisAddr       map[string]string `toml:"redis_address"`
	RedisPort       map[string]int    `toml:"redis_port"`
	CacheTTLSeconds int               `toml:"cache_ttl_seconds"`
	Region          string
}

type postStorageService struct {
	weaver.Implements[PostStorageService]
	weaver.WithConfig[postStorageServiceOptions]
	mongoClient *mongo.Client
	redisClient *redis.Client
	breaker     *gobreaker.CircuitBreaker
	cacheTTL    time.Duration
}

func (p *postStorageService) Init(ctx context.Context) error {
	logger := p.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	p.Config().Region = region

	p.mongoClient, err = storage.MongoDBClient(ctx, p.Config().MongoDBAddr[region], p.Config().MongoDBPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	p.redisClient = storage.RedisClient(p.Config().RedisAddr[region], p.Config().RedisPort[region])
	p.breaker = storage.CacheBreaker("poststorage-redis", logger)

	ttl := p.Config().CacheTTLSeconds
	if ttl <= 0 {
		ttl = POST_CACHE_TTL_SECONDS
	}
	p.cacheTTL = time.Duration(ttl) * time.Second

	collection := p.mongoClient.Database(storage.POSTS_DB).Collection(storage.POSTS_COLLECTION)
	_, err = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "post_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "content", Value: "text"}}},
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "author", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "hashtags", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "score", Value: -1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		logger.Error("error creating post indexes", "msg", err.Error())
		return err
	}

	logger.Info("post storage service running!", "region", region,
		"mongodb_addr", p.Config().MongoDBAddr[region], "mongodb_port", p.Config().MongoDBPort[region],
		"redis_addr", p.Config().RedisAddr[region], "redis_port", p.Config().RedisPort[region],
	)
	return nil
}

func (p *postStorageService) FindPosts(ctx context.Context, reqID int64, query model.PostQuery) ([]model.Post, error) {
	logger := p.Logger(ctx)
	logger.Debug("entering FindPosts", "req_id", reqID, "sort", query.Sort, "limit", query.Limit)
	return p.aggregate(ctx, postPipeline(query))
}

func (p *postStorageService) FindNearby(ctx context.Context, reqID int64, query model.NearbyQuery) ([]model.Post, error) {
	logger := p.Logger(ctx)
	logger.Debug("entering FindNearby", "req_id", reqID, "lon", query.Longitude, "lat", query.Latitude, "max_distance", query.MaxDistance)
	return p.aggregate(ctx, nearbyPipeline(query))
}

func (p *postStorageService) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]model.Post, error) {
	logger := p.Logger(ctx)
	start_ms := time.Now().UnixMilli()

	collection := p.mongoClient.Database(storage.POSTS_DB).Collection(storage.POSTS_COLLECTION)
	cur, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		logger.Error("error running post aggregation in mongodb", "msg", err.Error())
		return nil, err
	}
	posts := []model.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		logger.Error("error parsing posts from mongodb result", "msg", err.Error())
		return nil, err
	}

	trace.SpanFromContext(ctx).AddEvent("aggregating posts in mongodb",
		trace.WithAttributes(
			attribute.Int64("poststorage_start_ms", start_ms),
			attribute.Int64("poststorage_end_ms", time.Now().UnixMilli()),
			attribute.Int("num_posts", len(posts)),
		))
	return posts, nil
}

// GetPosts reads posts from redis and falls back to mongodb for the misses,
// which are then written back to the cache
func (p *postStorageService) GetPosts(ctx context.Context, reqID int64, postIDs []int64) ([]model.Post, error) {
	logger := p.Logger(ctx)
	logger.Debug("entering GetPosts", "req_id", reqID, "post_ids", postIDs)

	region := metrics.RegionLabel{Region: p.Config().Region}
	missing := make(map[int64]bool, len(postIDs))
	keys := make([]string, 0, len(postIDs))
	for _, id := range postIDs {
		if !missing[id] {
			missing[id] = true
			keys = append(keys, storage.PostKey(id))
		}
	}
	posts := make([]model.Post, 0, len(keys))
	if len(keys) == 0 {
		return posts, nil
	}

	var result []interface{}
	cached, err := p.breaker.Execute(func() (interface{}, error) {
		return p.redisClient.MGet(ctx, keys...).Result()
	})
	if err != nil {
		logger.Warn("error reading posts from redis, falling back to mongodb", "msg", err.Error())
	} else {
		result = cached.([]interface{})
	}
	for _, data := range result {
		str, ok := data.(string)
		if !ok {
			continue
		}
		var post model.Post
		if err := json.Unmarshal([]byte(str), &post); err != nil {
			logger.Warn("error parsing post from redis result", "msg", err.Error())
			continue
		}
		posts = append(posts, post)
		delete(missing, post.PostID)
	}
	metrics.PostCacheHits.Get(region).Add(float64(len(posts)))
	if len(missing) == 0 {
		return posts, nil
	}

	ids := make([]int64, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	metrics.PostCacheMisses.Get(region).Add(float64(len(ids)))

	collection := p.mongoClient.Database(storage.POSTS_DB).Collection(storage.POSTS_COLLECTION)
	cur, err := collection.Find(ctx, bson.D{{Key: "post_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		logger.Error("error reading posts from mongodb", "msg", err.Error())
		return nil, err
	}
	var found []model.Post
	if err := cur.All(ctx, &found); err != nil {
		logger.Error("error parsing posts from mongodb result", "msg", err.Error())
		return nil, err
	}
	posts = append(posts, found...)

	_, err = p.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, post := range found {
			postJSON, err := json.Marshal(post)
			if err != nil {
				return err
			}
			pipe.Set(ctx, storage.PostKey(post.PostID), postJSON, p.cacheTTL)
		}
		return nil
	})
	if err != nil {
		// the cache is refilled on the next read
		logger.Warn("error updating redis with posts from mongodb", "msg", err.Error())
	}
	return posts, nil
}

func (p *postStorageService) InvalidatePost(ctx context.Context, reqID int64, postID int64) error {
	logger := p.Logger(ctx)
	logger.Debug("entering InvalidatePost", "req_id", reqID, "post_id", postID)

	err := p.redisClient.Del(ctx, storage.PostKey(postID)).Err()
	if err != nil {
		logger.Error("error deleting post from redis", "msg", err.Error())
		return err
	}
	return nil
}
