package storage

import (
	"fmt"
	"strconv"

	"github.com/bradfitz/gomemcache/memcache"
)

func MemCachedClient(address string, port int) *memcache.Client {
	uri := fmt.Sprintf("%s:%d", address, port)
	client := memcache.New(uri)
	client.MaxIdleConns = 1000
	return client
}

func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

func HandleKey(handle string) string {
	return handle + ":user_id"
}
