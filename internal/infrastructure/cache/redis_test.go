package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/streaming"
	"github.com/hugohenrick/companychat/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis atende apenas aos comandos usados pelo RedisLocker: SET NX e
// o script de liberação via EVALSHA
type fakeRedis struct {
	goredis.Cmdable

	mu     sync.Mutex
	keys   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return goredis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.keys[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	f.ttls[key] = expiration
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.keys[keys[0]]; ok && cur == args[0] {
		delete(f.keys, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.keys[key]
	return v, ok
}

// expire simula o vencimento do TTL
func (f *fakeRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}

func TestRedisLocker_AcquireConflictRelease(t *testing.T) {
	rdb := newFakeRedis()
	locker := NewRedisLocker(rdb, "teste:", logger.NewNop())
	chatID := uuid.New()
	key := "teste:" + chatID.String()

	release, err := locker.Acquire(context.Background(), chatID, time.Minute)
	require.NoError(t, err)
	_, held := rdb.value(key)
	assert.True(t, held)
	assert.Equal(t, time.Minute, rdb.ttls[key])

	_, err = locker.Acquire(context.Background(), chatID, time.Minute)
	assert.ErrorIs(t, err, streaming.ErrLockHeld)

	// outro chat não é afetado
	other, err := locker.Acquire(context.Background(), uuid.New(), time.Minute)
	require.NoError(t, err)
	other()

	release()
	_, held = rdb.value(key)
	assert.False(t, held)

	again, err := locker.Acquire(context.Background(), chatID, time.Minute)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ReleaseKeepsLockTakenByOthers(t *testing.T) {
	rdb := newFakeRedis()
	locker := NewRedisLocker(rdb, "", logger.NewNop())
	chatID := uuid.New()
	key := "companychat:generation:" + chatID.String()

	stale, err := locker.Acquire(context.Background(), chatID, time.Second)
	require.NoError(t, err)

	rdb.expire(key)
	_, err = locker.Acquire(context.Background(), chatID, time.Second)
	require.NoError(t, err)
	owner, _ := rdb.value(key)

	stale()
	cur, held := rdb.value(key)
	assert.True(t, held)
	assert.Equal(t, owner, cur)
}

func TestRedisLocker_BackendError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.setErr = errors.New("connection refused")
	locker := NewRedisLocker(rdb, "", logger.NewNop())

	_, err := locker.Acquire(context.Background(), uuid.New(), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, streaming.ErrLockHeld)
	assert.ErrorContains(t, err, "connection refused")
}
