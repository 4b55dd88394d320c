package services

import (
	"context"
	"strconv"
	"time"

	"socialfeed/pkg/storage"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type SocialGraphService interface {
	GetFollowees(ctx context.Context, reqID int64, userID int64) ([]int64, error)
	GetListMembers(ctx context.Context, reqID int64, ownerID int64, listName string) ([]int64, error)
	// InvalidateFollowees drops the cached follow set of userID after a
	// follow or unfollow
	InvalidateFollowees(ctx context.Context, reqID int64, userID int64) error
}

// default expiration of cached follow sets
const FOLLOWEES_CACHE_TTL_SECONDS int = 120

type socialGraphService struct {
	weaver.Implements[SocialGraphService]
	weaver.WithConfig[socialGraphServiceOptions]
	userService weaver.Ref[UserService]
	mongoClient *mongo.Client
	redisClient *redis.Client
	cacheTTL    time.Duration
}

type socialGraphServiceOptions struct {
	MongoDBAddr     map[string]string `toml:"mongodb_address"`
	RedisAddr       map[string]string `toml:"redis_address"`
	MongoDBPort     map[string]int    `toml:"mongodb_port"`
	RedisPort       map[string]int    `toml:"redis_port"`
	CacheTTLSeconds int               `toml:"cache_ttl_seconds"`
	Region          string
}

type FolloweeInfo struct {
	FollowID   int64 `bson:"follow_id"`
	FolloweeID int64 `bson:"followee_id"`
	Timestamp  int64 `bson:"timestamp"`
}

type UserInfo struct {
	UserID    int64          `bson:"user_id"`
	Followees []FolloweeInfo `bson:"followees"`
}

// ListInfo is a named list of accounts curated by its owner
type ListInfo struct {
	OwnerID int64   `bson:"owner_id"`
	Name    string  `bson:"name"`
	Members []int64 `bson:"members"`
}

func (s *socialGraphService) Init(ctx context.Context) error {
	logger := s.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	s.Config().Region = region

	s.mongoClient, err = storage.MongoDBClient(ctx, s.Config().MongoDBAddr[region], s.Config().MongoDBPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	s.redisClient = storage.RedisClient(s.Config().RedisAddr[region], s.Config().RedisPort[region])
	ttl := s.Config().CacheTTLSeconds
	if ttl <= 0 {
		ttl = FOLLOWEES_CACHE_TTL_SECONDS
	}
	s.cacheTTL = time.Duration(ttl) * time.Second

	logger.Info("social graph service running!", "region", s.Config().Region,
		"mongodb_addr", s.Config().MongoDBAddr[region], "mongodb_port", s.Config().MongoDBPort[region],
		"redis_addr", s.Config().RedisAddr[region], "redis_port", s.Config().RedisPort[region],
	)
	return nil
}

// GetFollowees returns the active accounts followed by userID. The follow
// set is cached in redis as a sorted set scored by follow time, for at most
// cache_ttl_seconds.
func (s *socialGraphService) GetFollowees(ctx context.Context, reqID int64, userID int64) ([]int64, error) {
	logger := s.Logger(ctx)
	logger.Debug("entering GetFollowees", "req_id", reqID, "user_id", userID)

	followeeIDs, err := readFollowees(ctx, s.redisClient, userID)
	if err != nil {
		logger.Warn("error reading followees from redis, falling back to mongodb", "msg", err.Error())
		followeeIDs = nil
	}
	if followeeIDs == nil {
		// did not find followees in redis
		// look up in mongodb and update redis
		collection := s.mongoClient.Database(storage.SOCIAL_GRAPH_DB).Collection(storage.FOLLOWS_COLLECTION)
		var userInfo UserInfo
		err := collection.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&userInfo)
		if err != nil {
			if err != mongo.ErrNoDocuments {
				logger.Error("error reading followees from mongodb", "msg", err.Error())
				return nil, err
			}
			return []int64{}, nil
		}
		for _, f := range userInfo.Followees {
			followeeIDs = append(followeeIDs, f.FolloweeID)
		}
		err = writeFollowees(ctx, s.redisClient, userID, userInfo.Followees, s.cacheTTL)
		if err != nil {
			logger.Warn("error updating redis with followees from mongodb", "msg", err.Error())
		}
	}
	return s.active(ctx, reqID, followeeIDs)
}

func (s *socialGraphService) InvalidateFollowees(ctx context.Context, reqID int64, userID int64) error {
	logger := s.Logger(ctx)
	logger.Debug("entering InvalidateFollowees", "req_id", reqID, "user_id", userID)

	err := s.redisClient.Del(ctx, storage.FolloweesKey(userID)).Err()
	if err != nil {
		logger.Error("error deleting followees from redis", "msg", err.Error())
		return err
	}
	return nil
}

// readFollowees returns nil when the followees of userID are not cached
func readFollowees(ctx context.Context, rdb redis.Cmdable, userID int64) ([]int64, error) {
	result, err := rdb.ZRange(ctx, storage.FolloweesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	followeeIDs := make([]int64, 0, len(result))
	for _, r := range result {
		followeeID, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, err
		}
		followeeIDs = append(followeeIDs, followeeID)
	}
	return followeeIDs, nil
}

// writeFollowees replaces the cached follow set of userID with one that
// expires after ttl
func writeFollowees(ctx context.Context, rdb redis.Cmdable, userID int64, followees []FolloweeInfo, ttl time.Duration) error {
	key := storage.FolloweesKey(userID)
	members := make([]redis.Z, 0, len(followees))
	for _, f := range followees {
		members = append(members, redis.Z{Member: f.FolloweeID, Score: float64(f.Timestamp)})
	}
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// GetListMembers returns the active members of the list named listName owned
// by ownerID. A missing list has no members.
func (s *socialGraphService) GetListMembers(ctx context.Context, reqID int64, ownerID int64, listName string) ([]int64, error) {
	logger := s.Logger(ctx)
	logger.Debug("entering GetListMembers", "req_id", reqID, "owner_id", ownerID, "list", listName)

	collection := s.mongoClient.Database(storage.SOCIAL_GRAPH_DB).Collection(storage.LISTS_COLLECTION)
	filter := bson.D{
		{Key: "owner_id", Value: ownerID},
		{Key: "name", Value: listName},
	}
	var list ListInfo
	err := collection.FindOne(ctx, filter).Decode(&list)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			logger.Error("error reading list from mongodb", "msg", err.Error())
			return nil, err
		}
		return []int64{}, nil
	}
	return s.active(ctx, reqID, list.Members)
}

func (s *socialGraphService) active(ctx context.Context, reqID int64, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return []int64{}, nil
	}
	users, err := s.userService.Get().GetUsers(ctx, reqID, userIDs)
	if err != nil {
		s.Logger(ctx).Error("error reading users", "msg", err.Error())
		return nil, err
	}
	return activeUsers(users), nil
}
