package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// CacheNoCache marks responses as non-cacheable. The API defaults to
// this; artifact-serving handlers override the header themselves since
// stored files are immutable.
const CacheNoCache = 0

// CacheRouter sets a default cache-control header on every response.
type CacheRouter struct {
	CacheTime int // seconds; CacheNoCache disables client caching
}

func (cr *CacheRouter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cr.CacheTime == CacheNoCache {
			c.Header("cache-control", "no-cache")
		} else {
			c.Header("cache-control", "private, max-age="+strconv.Itoa(cr.CacheTime))
		}
		c.Next()
	}
}
