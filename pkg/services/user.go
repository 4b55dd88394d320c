package services

import (
	"context"
	"encoding/json"

	"socialfeed/pkg/metrics"
	"socialfeed/pkg/model"
	"socialfeed/pkg/storage"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/bradfitz/gomemcache/memcache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserService interface {
	GetUsers(ctx context.Context, reqID int64, userIDs []int64) ([]model.User, error)
	GetUserIDs(ctx context.Context, reqID int64, handles []string) ([]int64, error)
}

// expiration of cached users in seconds
const USER_CACHE_TTL_SECONDS int32 = 300

type userService struct {
	weaver.Implements[UserService]
	weaver.WithConfig[userServiceOptions]
	mongoClient     *mongo.Client
	memCachedClient *memcache.Client
}

type userServiceOptions struct {
	MongoDBAddr   map[string]string `toml:"mongodb_address"`
	MongoDBPort   map[string]int    `toml:"mongodb_port"`
	MemCachedAddr map[string]string `toml:"memcached_address"`
	MemCachedPort map[string]int    `toml:"memcached_port"`
	Region        string
}

func (u *userService) Init(ctx context.Context) error {
	logger := u.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	u.Config().Region = region

	u.mongoClient, err = storage.MongoDBClient(ctx, u.Config().MongoDBAddr[region], u.Config().MongoDBPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	u.memCachedClient = storage.MemCachedClient(u.Config().MemCachedAddr[region], u.Config().MemCachedPort[region])

	logger.Info("user service running!", "region", region,
		"mongodb_addr", u.Config().MongoDBAddr[region], "mongodb_port", u.Config().MongoDBPort[region],
		"memcached_addr", u.Config().MemCachedAddr[region], "memcached_port", u.Config().MemCachedPort[region],
	)
	return nil
}

// GetUsers returns the users that exist among userIDs, including deactivated
// and deleted ones. Misses in memcached are read from mongodb and cached.
func (u *userService) GetUsers(ctx context.Context, reqID int64, userIDs []int64) ([]model.User, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering GetUsers", "req_id", reqID, "user_ids", userIDs)

	region := metrics.RegionLabel{Region: u.Config().Region}
	notCached := make(map[int64]bool, len(userIDs))
	var keys []string
	for _, id := range userIDs {
		if !notCached[id] {
			notCached[id] = true
			keys = append(keys, storage.UserKey(id))
		}
	}
	users := make([]model.User, 0, len(keys))
	if len(keys) == 0 {
		return users, nil
	}

	result, err := u.memCachedClient.GetMulti(keys)
	if err != nil {
		logger.Warn("error reading users from memcached, falling back to mongodb", "msg", err.Error())
	}
	for _, item := range result {
		var user model.User
		if err := json.Unmarshal(item.Value, &user); err != nil {
			logger.Warn("error parsing user from memcached result", "msg", err.Error())
			continue
		}
		users = append(users, user)
		delete(notCached, user.UserID)
	}
	metrics.UserCacheHits.Get(region).Add(float64(len(users)))
	if len(notCached) == 0 {
		return users, nil
	}

	var ids []int64
	for id := range notCached {
		ids = append(ids, id)
	}
	metrics.UserCacheMisses.Get(region).Add(float64(len(ids)))

	found, err := u.findUsers(ctx, bson.D{{Key: "user_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, err
	}
	for _, user := range found {
		u.cacheUser(ctx, user)
	}
	return append(users, found...), nil
}

// GetUserIDs resolves handles to the ids of active users. Unknown handles are
// skipped.
func (u *userService) GetUserIDs(ctx context.Context, reqID int64, handles []string) ([]int64, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering GetUserIDs", "req_id", reqID, "handles", handles)

	notCached := make(map[string]bool, len(handles))
	var keys []string
	for _, handle := range handles {
		if handle != "" && !notCached[handle] {
			notCached[handle] = true
			keys = append(keys, storage.HandleKey(handle))
		}
	}
	if len(keys) == 0 {
		return []int64{}, nil
	}

	result, err := u.memCachedClient.GetMulti(keys)
	if err != nil {
		logger.Warn("error reading handles from memcached, falling back to mongodb", "msg", err.Error())
	}
	var ids []int64
	for handle := range notCached {
		item, ok := result[storage.HandleKey(handle)]
		if !ok {
			continue
		}
		var userID int64
		if err := json.Unmarshal(item.Value, &userID); err != nil {
			logger.Warn("error parsing user id from memcached result", "msg", err.Error())
			continue
		}
		ids = append(ids, userID)
		delete(notCached, handle)
	}

	if len(notCached) != 0 {
		var names []string
		for name := range notCached {
			names = append(names, name)
		}
		found, err := u.findUsers(ctx, bson.D{{Key: "handle", Value: bson.D{{Key: "$in", Value: names}}}})
		if err != nil {
			return nil, err
		}
		for _, user := range found {
			ids = append(ids, user.UserID)
			u.cacheUser(ctx, user)
		}
	}

	// handles stay cached after deactivation so activity is checked on the user
	users, err := u.GetUsers(ctx, reqID, ids)
	if err != nil {
		return nil, err
	}
	return activeUsers(users), nil
}

func (u *userService) findUsers(ctx context.Context, filter bson.D) ([]model.User, error) {
	logger := u.Logger(ctx)
	collection := u.mongoClient.Database(storage.USERS_DB).Collection(storage.USERS_COLLECTION)
	opts := options.Find().SetProjection(bson.D{
		{Key: "user_id", Value: 1},
		{Key: "handle", Value: 1},
		{Key: "deactivated", Value: 1},
		{Key: "deleted", Value: 1},
	})
	cur, err := collection.Find(ctx, filter, opts)
	if err != nil {
		logger.Error("error finding users in mongodb", "msg", err.Error())
		return nil, err
	}
	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		logger.Error("error parsing users from mongodb result", "msg", err.Error())
		return nil, err
	}
	return users, nil
}

func (u *userService) cacheUser(ctx context.Context, user model.User) {
	logger := u.Logger(ctx)
	userJSON, err := json.Marshal(user)
	if err != nil {
		logger.Warn("error converting user to json", "user_id", user.UserID)
		return
	}
	idJSON, _ := json.Marshal(user.UserID)
	items := []*memcache.Item{
		{Key: storage.UserKey(user.UserID), Value: userJSON, Expiration: USER_CACHE_TTL_SECONDS},
		{Key: storage.HandleKey(user.Handle), Value: idJSON, Expiration: USER_CACHE_TTL_SECONDS},
	}
	for _, item := range items {
		if err := u.memCachedClient.Set(item); err != nil {
			logger.Warn("error writing user to memcached", "key", item.Key, "msg", err.Error())
		}
	}
}
