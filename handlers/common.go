package handlers

import (
	"artcache/cache"
	"artcache/ratelimit"
	"artcache/sweeper"
)

type Response struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var (
	// Predefined errors
	OKResponse       = Response{}
	NopeResponse     = Response{Error: "nope"}
	DBError1Response = Response{Error: "DB Error 1"}
	DBError2Response = Response{Error: "DB Error 2"}
)

var (
	Coordinator *cache.Coordinator
	Limiter     *ratelimit.Limiter
	Sweep       *sweeper.Sweeper
)

func Init(coordinator *cache.Coordinator, limiter *ratelimit.Limiter, sweep *sweeper.Sweeper) {
	Coordinator = coordinator
	Limiter = limiter
	Sweep = sweep
	coordinator.OnAssetCreated = NotifyAssetCreated
}
