package credits

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, locker UserLocker) {
	t.Helper()
	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "user-1")
			require.NoError(t, err)
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalLockerSerializesPerUser(t *testing.T) {
	locker := NewLocalLocker()
	exerciseLocker(t, locker)
	assert.Empty(t, locker.locks)
}

func TestLocalLockerTimeout(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "user-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "user-1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	// 不同用户互不阻塞
	other, err := locker.Lock(context.Background(), "user-2")
	require.NoError(t, err)
	other()
}

func TestRedisLockerSerializesPerUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseLocker(t, NewRedisLocker(rdb, time.Second))
}

func TestRedisLockerTimeoutAndRelease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, 5*time.Second)

	unlock, err := locker.Lock(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKeyPrefix+"user-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "user-1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists(lockKeyPrefix+"user-1"))
}

func TestRedisLockerDoesNotReleaseForeignLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, time.Second)

	unlock, err := locker.Lock(context.Background(), "user-1")
	require.NoError(t, err)

	// 锁过期后被其他实例获取
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(lockKeyPrefix+"user-1", "someone-else"))

	unlock()
	got, err := mr.Get(lockKeyPrefix + "user-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
