package storage

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

func RedisClient(address string, port int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", address, port),
		Password: "",
		DB:       0, // use default DB
	})
}

func PostKey(postID int64) string {
	return "post:" + strconv.FormatInt(postID, 10)
}

// FolloweesKey names the sorted set of followees scored by follow time
func FolloweesKey(userID int64) string {
	return strconv.FormatInt(userID, 10) + ":followees"
}
