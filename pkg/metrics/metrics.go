package metrics

import "github.com/ServiceWeaver/weaver/metrics"

type RegionLabel struct {
	Region string
}

type FeedLabel struct {
	Region string
	Source string
}

type ReactionLabel struct {
	Region string
	Kind   string
}

var (
	// wrk2 api
	RequestDurationMs = metrics.NewHistogramMap[FeedLabel](
		"sn_request_duration_ms",
		"Duration of feed endpoints in milliseconds in the current region",
		metrics.NonNegativeBuckets,
	)
	// feed service
	FeedRequests = metrics.NewCounterMap[FeedLabel](
		"sn_feed_requests",
		"The number of composed feed pages per source in the current region",
	)
	FeedDurationMs = metrics.NewHistogramMap[FeedLabel](
		"sn_feed_duration_ms",
		"Duration of feed composition in milliseconds in the current region",
		metrics.NonNegativeBuckets,
	)
	FeedErrors = metrics.NewCounterMap[FeedLabel](
		"sn_feed_errors",
		"The number of feed requests that failed in the current region",
	)
	FeedPagePosts = metrics.NewHistogramMap[FeedLabel](
		"sn_feed_page_posts",
		"Number of posts returned per feed page in the current region",
		metrics.NonNegativeBuckets,
	)
	// post storage and user services
	PostCacheHits = metrics.NewCounterMap[RegionLabel](
		"sn_post_cache_hits",
		"The number of posts read from redis in the current region",
	)
	PostCacheMisses = metrics.NewCounterMap[RegionLabel](
		"sn_post_cache_misses",
		"The number of posts read from mongodb after a redis miss in the current region",
	)
	UserCacheHits = metrics.NewCounterMap[RegionLabel](
		"sn_user_cache_hits",
		"The number of users read from memcached in the current region",
	)
	UserCacheMisses = metrics.NewCounterMap[RegionLabel](
		"sn_user_cache_misses",
		"The number of users read from mongodb after a memcached miss in the current region",
	)
	// score service
	QueueDurationMs = metrics.NewHistogramMap[RegionLabel](
		"sn_queue_duration_ms",
		"Duration of queue in milliseconds in the current region",
		metrics.NonNegativeBuckets,
	)
	ReceivedReactions = metrics.NewCounterMap[RegionLabel](
		"sn_received_reactions",
		"The number of received reaction events in the current region",
	)
	ScoreUpdates = metrics.NewCounterMap[ReactionLabel](
		"sn_score_updates",
		"The number of score updates per reaction kind in the current region",
	)
	Inconsistencies = metrics.NewCounterMap[RegionLabel](
		"sn_inconsistencies",
		"The number of times a reaction targeted a post that no longer exists in the current region",
	)
	DuplicateReactions = metrics.NewCounterMap[RegionLabel](
		"sn_duplicate_reactions",
		"The number of redelivered reaction events skipped in the current region",
	)
)
