package credits

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserLocker 按用户串行化扣费
type UserLocker interface {
	// Lock 阻塞直到获得锁或 ctx 结束，返回的 unlock 必须调用
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// ============ 进程内锁 ============

type userLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 进程内按用户的互斥锁，无人持有时自动回收
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*userLock)}
}

// Lock 获取用户锁
func (l *LocalLocker) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.ch
			l.release(userID, ul)
		})
	}, nil
}

func (l *LocalLocker) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

// ============ Redis 分布式锁 ============

const lockKeyPrefix = "credits:lock:"

// 仅删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式用户锁，多实例部署时使用
type RedisLocker struct {
	rdb        redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisLocker 创建分布式锁，ttl 为锁的最长持有时间
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retryDelay: 20 * time.Millisecond}
}

// Lock 获取用户锁
func (r *RedisLocker) Lock(ctx context.Context, userID string) (func(), error) {
	key := lockKeyPrefix + userID
	token := uuid.New().String()

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, ctx.Err())
			}
			return nil, err
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 请求 ctx 可能已取消，释放使用独立的短超时
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.rdb, []string{key}, token).Err()
		})
	}, nil
}
