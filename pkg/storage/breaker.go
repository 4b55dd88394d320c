package storage

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// requests sampled before the failure ratio is evaluated
const BREAKER_MIN_REQUESTS uint32 = 10

const (
	BREAKER_FAILURE_RATIO = 0.5
	BREAKER_INTERVAL      = 30 * time.Second
	BREAKER_OPEN_TIMEOUT  = 15 * time.Second
)

// CacheBreaker guards reads from a cache so that a failing cache is skipped
// for a while instead of slowing down every request
func CacheBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    BREAKER_INTERVAL,
		Timeout:     BREAKER_OPEN_TIMEOUT,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < BREAKER_MIN_REQUESTS {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= BREAKER_FAILURE_RATIO
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("cache breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
}
