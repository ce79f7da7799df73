package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"djeworker/internal/config"
)

// LockPrefix namespaces run locks in Redis.
const LockPrefix = "dje:lock:"

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("run lock held elsewhere")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker grants exclusive, expiring run locks.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (Unlock, error)
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker keeps locks in Redis with SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps an existing client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Connect opens a Redis client and checks it answers PING.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}

	return client, nil
}

// TryLock sets dje:lock:<name> if absent.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (Unlock, error) {
	key := LockPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}

		return nil
	}, nil
}

// LocalLocker is the single-process fallback used without Redis.
type LocalLocker struct {
	held map[string]localLock
	now  func() time.Time
	seq  uint64
	mu   sync.Mutex
}

type localLock struct {
	expires time.Time
	token   uint64
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localLock),
		now:  time.Now,
	}
}

// TryLock takes name unless an unexpired holder has it.
func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[name]; ok && now.Before(cur.expires) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}

	l.seq++
	lock := localLock{expires: now.Add(ttl), token: l.seq}
	l.held[name] = lock

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		if cur, ok := l.held[name]; ok && cur.token == lock.token {
			delete(l.held, name)
		}

		return nil
	}, nil
}
