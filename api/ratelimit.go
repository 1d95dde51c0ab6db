package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	response "aistudio/api/handlers/common"
	"aistudio/internal/config"

	"github.com/gin-gonic/gin"
)

// idleTTL 超过该时长未访问的用户桶会被回收
const idleTTL = 10 * time.Minute

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter 按用户的令牌桶限流器
type RateLimiter struct {
	rate  float64
	burst float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter 创建限流器，未启用时返回 nil
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rate:    cfg.RequestsPerSecond,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow 消耗一个令牌；不足时返回需要等待的时长
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, lastUpdate: now}
		return true, 0
	}

	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.lastUpdate).Seconds()*l.rate)
	b.lastUpdate = now
	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

// sweep 惰性回收空闲桶，调用方持有锁
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleTTL {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// UserRateLimit 按 user_id 限流，需挂在 UserIdentity 之后
func UserRateLimit(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		ok, wait := l.Allow(c.GetString("user_id"))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Fail(response.CodeRateLimited, "请求过于频繁，请稍后重试"))
			return
		}
		c.Next()
	}
}
