package issuer

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/metrics"
)

const rateKeyFmt = "ratelimit:%s:%d" // client ip, window start

// RateLimit allows at most limit requests per client IP in each fixed
// window. A limit of zero disables it.
func RateLimit(rdb *redis.Client, limit int64, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		start := time.Now().Truncate(window)
		key := fmt.Sprintf(rateKeyFmt, c.ClientIP(), start.Unix())

		ctx := c.Request.Context()
		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Error("rate limit", zap.String("key", key), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if n := incr.Val(); n > limit {
			metrics.Throttled("rate_limit")
			retry := time.Until(start.Add(window))
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
