package credits

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	pricingCachePrefix = "credits:pricing:"
	pricingMissMarker  = "__none__"
)

// PricingStore 定价查询接口
type PricingStore interface {
	GetActiveRule(ctx context.Context, service string) (*PricingRule, error)
}

// CachedPricingStore 在任意 PricingStore 前加一层 Redis 缓存。
// 并发未命中通过 singleflight 合并为一次回源；Redis 故障时直接回源。
type CachedPricingStore struct {
	next    PricingStore
	rdb     redis.UniversalClient
	ttl     time.Duration
	missTTL time.Duration
	group   singleflight.Group
	logger  *zap.Logger
}

// NewCachedPricingStore 创建带缓存的定价存储
func NewCachedPricingStore(next PricingStore, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedPricingStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	missTTL := ttl / 5
	if missTTL < time.Second {
		missTTL = time.Second
	}
	return &CachedPricingStore{
		next:    next,
		rdb:     rdb,
		ttl:     ttl,
		missTTL: missTTL,
		logger:  logger,
	}
}

// GetActiveRule 先查缓存，未命中回源并回填
func (c *CachedPricingStore) GetActiveRule(ctx context.Context, service string) (*PricingRule, error) {
	key := pricingCachePrefix + service

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == pricingMissMarker {
			return nil, ErrPricingNotFound
		}
		var rule PricingRule
		if jsonErr := json.Unmarshal([]byte(raw), &rule); jsonErr == nil {
			return &rule, nil
		}
		c.logger.Warn("定价缓存内容损坏，回源查询", zap.String("service", service))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("读取定价缓存失败，回源查询", zap.String("service", service), zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		rule, err := c.next.GetActiveRule(ctx, service)
		if errors.Is(err, ErrPricingNotFound) {
			c.store(ctx, key, pricingMissMarker, c.missTTL)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		if data, jsonErr := json.Marshal(rule); jsonErr == nil {
			c.store(ctx, key, string(data), c.ttl)
		}
		return rule, nil
	})
	if err != nil {
		return nil, err
	}
	rule := *v.(*PricingRule)
	return &rule, nil
}

// Invalidate 删除服务的定价缓存，定价变更后调用
func (c *CachedPricingStore) Invalidate(ctx context.Context, services ...string) error {
	if len(services) == 0 {
		return nil
	}
	keys := make([]string, 0, len(services))
	for _, s := range services {
		keys = append(keys, pricingCachePrefix+s)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *CachedPricingStore) store(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("写入定价缓存失败", zap.String("key", key), zap.Error(err))
	}
}
