package credits

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingUpsertKeepsSingleActiveRule(t *testing.T) {
	ctx := context.Background()
	db := setupCreditsTestDB(t)
	repo := NewPricingRepository(db, nil)

	seedRule(t, repo, "image_generation", UnitFlat, 30)
	seedRule(t, repo, "image_generation", UnitFlat, 25)

	rule, err := repo.GetActiveRule(ctx, "image_generation")
	require.NoError(t, err)
	assert.Equal(t, float64(25), rule.Price)

	var active int64
	require.NoError(t, db.Model(&PricingRule{}).
		Where("service = ? AND is_active = ?", "image_generation", true).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestPricingUpsertValidates(t *testing.T) {
	repo := NewPricingRepository(setupCreditsTestDB(t), nil)
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpsertRule(ctx, &PricingRule{Service: "", Unit: UnitFlat}), ErrInvalidPricing)
	assert.ErrorIs(t, repo.UpsertRule(ctx, &PricingRule{Service: "x", Unit: "per_hour"}), ErrInvalidPricing)
	assert.ErrorIs(t, repo.UpsertRule(ctx, &PricingRule{Service: "x", Unit: UnitFlat, Price: -1}), ErrInvalidPricing)
}

func TestPricingSeedDefaultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewPricingRepository(setupCreditsTestDB(t), nil)
	seedRule(t, repo, "image_generation", UnitFlat, 99)

	created, err := repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Greater(t, created, 10)

	again, err := repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	// 已有规则不被覆盖
	rule, err := repo.GetActiveRule(ctx, "image_generation")
	require.NoError(t, err)
	assert.Equal(t, float64(99), rule.Price)

	video, err := repo.GetActiveRule(ctx, "video_generation")
	require.NoError(t, err)
	assert.Equal(t, UnitPerSecond, video.Unit)

	_, err = repo.GetActiveRule(ctx, "unknown_tool")
	assert.ErrorIs(t, err, ErrPricingNotFound)
}

type countingPricingStore struct {
	calls atomic.Int64
	rules map[string]PricingRule
	delay time.Duration
}

func (s *countingPricingStore) GetActiveRule(_ context.Context, service string) (*PricingRule, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	rule, ok := s.rules[service]
	if !ok {
		return nil, ErrPricingNotFound
	}
	return &rule, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedPricingStoreCachesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	backend := &countingPricingStore{rules: map[string]PricingRule{
		"image_generation": {Service: "image_generation", Unit: UnitFlat, Price: 30},
	}}
	cache := NewCachedPricingStore(backend, rdb, time.Minute, nil)

	for i := 0; i < 3; i++ {
		rule, err := cache.GetActiveRule(ctx, "image_generation")
		require.NoError(t, err)
		assert.Equal(t, float64(30), rule.Price)
	}
	assert.Equal(t, int64(1), backend.calls.Load())

	for i := 0; i < 2; i++ {
		_, err := cache.GetActiveRule(ctx, "missing")
		assert.ErrorIs(t, err, ErrPricingNotFound)
	}
	assert.Equal(t, int64(2), backend.calls.Load())

	require.NoError(t, cache.Invalidate(ctx, "image_generation"))
	_, err := cache.GetActiveRule(ctx, "image_generation")
	require.NoError(t, err)
	assert.Equal(t, int64(3), backend.calls.Load())
}

func TestCachedPricingStoreCoalescesConcurrentMisses(t *testing.T) {
	_, rdb := newTestRedis(t)
	backend := &countingPricingStore{
		rules: map[string]PricingRule{"video_generation": {Service: "video_generation", Unit: UnitPerSecond, Price: 2}},
		delay: 50 * time.Millisecond,
	}
	cache := NewCachedPricingStore(backend, rdb, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rule, err := cache.GetActiveRule(context.Background(), "video_generation")
			assert.NoError(t, err)
			if rule != nil {
				assert.Equal(t, UnitPerSecond, rule.Unit)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, backend.calls.Load(), int64(2))
}

func TestCachedPricingStoreFallsBackWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	backend := &countingPricingStore{rules: map[string]PricingRule{
		"image_generation": {Service: "image_generation", Unit: UnitFlat, Price: 30},
	}}
	cache := NewCachedPricingStore(backend, rdb, time.Minute, nil)
	mr.Close()

	rule, err := cache.GetActiveRule(context.Background(), "image_generation")
	require.NoError(t, err)
	assert.Equal(t, float64(30), rule.Price)
}

func TestCachedPricingStorePropagatesBackendErrors(t *testing.T) {
	_, rdb := newTestRedis(t)
	cache := NewCachedPricingStore(errPricingStore{}, rdb, time.Minute, nil)
	_, err := cache.GetActiveRule(context.Background(), "image_generation")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPricingNotFound))
}

type errPricingStore struct{}

func (errPricingStore) GetActiveRule(context.Context, string) (*PricingRule, error) {
	return nil, errors.New("connection refused")
}

func TestPricingDeactivateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewPricingRepository(setupCreditsTestDB(t), nil)
	seedRule(t, repo, "video_generation", UnitPerSecond, 2)
	seedRule(t, repo, "image_generation", UnitFlat, 30)

	rules, err := repo.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "image_generation", rules[0].Service)

	require.NoError(t, repo.DeactivateRule(ctx, "image_generation"))
	_, err = repo.GetActiveRule(ctx, "image_generation")
	assert.ErrorIs(t, err, ErrPricingNotFound)

	rules, err = repo.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "video_generation", rules[0].Service)
}
