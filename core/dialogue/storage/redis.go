package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m3rciful/godialogue/core/logger"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "dialogue"
	defaultRedisTimeout   = 3 * time.Second
	defaultRedisLockTTL   = 30 * time.Second
	defaultRedisLockRetry = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only while it still carries the caller's token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisOptions struct {
	prefix     string
	timeout    time.Duration
	stateTTL   time.Duration
	lockTTL    time.Duration
	lockRetry  time.Duration
	ownsClient bool
}

// RedisOption configures NewRedis.
type RedisOption func(*redisOptions)

// WithRedisPrefix namespaces all keys, e.g. "mybot" -> "mybot:state:42".
func WithRedisPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithRedisTimeout bounds every single Redis round trip. Zero disables the bound.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) { o.timeout = d }
}

// WithRedisStateTTL expires idle conversations after d. Zero keeps records forever.
func WithRedisStateTTL(d time.Duration) RedisOption {
	return func(o *redisOptions) { o.stateTTL = d }
}

// WithRedisLock tunes the distributed per-chat lock.
func WithRedisLock(ttl, retry time.Duration) RedisOption {
	return func(o *redisOptions) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
		if retry > 0 {
			o.lockRetry = retry
		}
	}
}

// WithRedisOwnedClient makes Close also close the underlying client.
func WithRedisOwnedClient() RedisOption {
	return func(o *redisOptions) { o.ownsClient = true }
}

// Redis stores one string key per conversation and serializes cycles across
// processes with a SET NX lock per chat.
type Redis struct {
	cli  redis.UniversalClient
	opts redisOptions
}

// NewRedis wraps an existing client.
func NewRedis(cli redis.UniversalClient, opts ...RedisOption) *Redis {
	o := redisOptions{
		prefix:    defaultRedisPrefix,
		timeout:   defaultRedisTimeout,
		lockTTL:   defaultRedisLockTTL,
		lockRetry: defaultRedisLockRetry,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{cli: cli, opts: o}
}

func (s *Redis) stateKey(id ChatID) string {
	return fmt.Sprintf("%s:state:%s", s.opts.prefix, id)
}

func (s *Redis) lockKey(id ChatID) string {
	return fmt.Sprintf("%s:lock:%s", s.opts.prefix, id)
}

func (s *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.timeout)
}

// GetState loads the record for id.
func (s *Redis) GetState(ctx context.Context, id ChatID) ([]byte, bool, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.cli.Get(opCtx, s.stateKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, failure(ctx, "redis", "get", id, err)
	}
	return data, true, nil
}

// UpdateState writes the record for id, refreshing the TTL when one is configured.
func (s *Redis) UpdateState(ctx context.Context, id ChatID, data []byte) error {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.cli.Set(opCtx, s.stateKey(id), data, s.opts.stateTTL).Err(); err != nil {
		return failure(ctx, "redis", "update", id, err)
	}
	return nil
}

// RemoveState deletes the record for id.
func (s *Redis) RemoveState(ctx context.Context, id ChatID) error {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.cli.Del(opCtx, s.stateKey(id)).Err(); err != nil {
		return failure(ctx, "redis", "remove", id, err)
	}
	return nil
}

// Lock acquires the distributed lock for id, polling until ctx is done.
// The TTL is refreshed while the lock is held, so it only expires when the
// holder dies or loses Redis.
func (s *Redis) Lock(ctx context.Context, id ChatID) (func(), error) {
	key := s.lockKey(id)
	token := uuid.NewString()
	ticker := time.NewTicker(s.opts.lockRetry)
	defer ticker.Stop()

	for {
		opCtx, cancel := s.withTimeout(ctx)
		ok, err := s.cli.SetNX(opCtx, key, token, s.opts.lockTTL).Result()
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, unavailable("redis", "lock", id, err)
		}
		if ok {
			return s.hold(key, token, id), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold refreshes the lock every third of its TTL until the returned unlock runs.
func (s *Redis) hold(key, token string, id ChatID) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(s.opts.lockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			if !s.refresh(key, token, id) {
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			s.release(key, token, id)
		})
	}
}

// refresh extends the lock TTL and reports whether the lock is still ours.
// Transport errors keep the refresher running.
func (s *Redis) refresh(key, token string, id ChatID) bool {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	n, err := refreshScript.Run(ctx, s.cli, []string{key}, token, s.opts.lockTTL.Milliseconds()).Int64()
	switch {
	case err != nil:
		logger.Warn(ctx, logger.ComponentStorage, "lock.refresh",
			slog.String("status", "fail"),
			slog.String("storage", "redis"),
			slog.Int64("chat_id", int64(id)),
			slog.String("err", err.Error()),
		)
		return true
	case n == 0:
		logger.Warn(ctx, logger.ComponentStorage, "lock.lost",
			slog.String("status", "fail"),
			slog.String("storage", "redis"),
			slog.Int64("chat_id", int64(id)),
		)
		return false
	}
	return true
}

func (s *Redis) release(key, token string, id ChatID) {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	if err := releaseScript.Run(ctx, s.cli, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn(ctx, logger.ComponentStorage, "lock.release",
			slog.String("status", "fail"),
			slog.String("storage", "redis"),
			slog.Int64("chat_id", int64(id)),
			slog.String("err", err.Error()),
		)
	}
}

// Ping verifies connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.cli.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases the client when it is owned by the storage.
func (s *Redis) Close() error {
	if !s.opts.ownsClient {
		return nil
	}
	return s.cli.Close()
}
