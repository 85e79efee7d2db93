// Package ratelimit throttles callers before they ever reach the
// generation coordinator. Two route classes exist: asset generation
// (strict) and scene generation (looser, scene requests are frequent
// but individually idempotent).
package ratelimit

import (
	"fmt"
	"time"

	"artcache/config"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"
)

type Class uint8

const (
	ClassAsset Class = 0
	ClassScene Class = 1
)

func (c Class) String() string {
	if c == ClassScene {
		return "scene"
	}
	return "asset"
}

// LimitError is caller-side throttling - distinct from the upstream's
// quota errors and never recorded as a generator failure.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

type Limiter struct {
	limiters cmap.ConcurrentMap[string, *rate.Limiter]
	perClass [2]rate.Limit
	burst    int
}

func New() *Limiter {
	return &Limiter{
		limiters: cmap.New[*rate.Limiter](),
		perClass: [2]rate.Limit{
			ClassAsset: rate.Limit(float64(config.ASSET_RATE_PER_MINUTE) / 60.0),
			ClassScene: rate.Limit(float64(config.SCENE_RATE_PER_MINUTE) / 60.0),
		},
		burst: config.RATE_BURST,
	}
}

// Check consumes one token from the (class, client) bucket, or returns a
// LimitError carrying how long the caller should back off.
func (l *Limiter) Check(class Class, client string) error {
	key := class.String() + "/" + client
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.perClass[class], l.burst)
		if !l.limiters.SetIfAbsent(key, lim) {
			lim, _ = l.limiters.Get(key)
		}
	}
	res := lim.Reserve()
	if !res.OK() {
		return &LimitError{RetryAfter: time.Minute}
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return &LimitError{RetryAfter: delay}
	}
	return nil
}
