package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to DIALOGUE_TEST_REDIS_ADDR or skips the test.
func newTestRedis(t *testing.T, opts ...RedisOption) *Redis {
	t.Helper()
	addr := os.Getenv("DIALOGUE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DIALOGUE_TEST_REDIS_ADDR not set")
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "dialogue_test_" + time.Now().Format("150405.000000")
	s := NewRedis(cli, append([]RedisOption{WithRedisPrefix(prefix), WithRedisOwnedClient()}, opts...)...)
	require.NoError(t, s.Ping(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisKeys(t *testing.T) {
	s := NewRedis(nil, WithRedisPrefix("formbot"))
	assert.Equal(t, "formbot:state:42", s.stateKey(42))
	assert.Equal(t, "formbot:lock:-100", s.lockKey(-100))

	def := NewRedis(nil)
	assert.Equal(t, "dialogue:state:1", def.stateKey(1))
	assert.NoError(t, def.Close(), "borrowed client is not closed")
}

func TestRedisUnreachable(t *testing.T) {
	cli := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	s := NewRedis(cli, WithRedisTimeout(200*time.Millisecond), WithRedisOwnedClient())
	defer s.Close()

	_, _, err := s.GetState(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.UpdateState(context.Background(), 1, []byte("x")), ErrUnavailable)
}

func TestRedisStorage(t *testing.T) {
	exerciseStorage(t, newTestRedis(t))
}

func TestRedisLockExcludes(t *testing.T) {
	s := newTestRedis(t, WithRedisLock(5*time.Second, 5*time.Millisecond))

	unlock, err := s.Lock(context.Background(), 3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := s.Lock(context.Background(), 4)
	require.NoError(t, err, "locks are per chat")
	other()

	unlock()
	again, err := s.Lock(context.Background(), 3)
	require.NoError(t, err)
	again()
}

func TestRedisLockOutlivesTTLWhileHeld(t *testing.T) {
	s := newTestRedis(t, WithRedisLock(150*time.Millisecond, 5*time.Millisecond))

	unlock, err := s.Lock(context.Background(), 6)
	require.NoError(t, err)
	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, 6)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "held lock must be refreshed")

	unlock()
	unlock()
	exists, err := s.cli.Exists(context.Background(), s.lockKey(6)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	again, err := s.Lock(context.Background(), 6)
	require.NoError(t, err)
	again()
}
