// Package runlock serializes seed and reset runs against one dataset.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"brandhub.dev/demodata/internal/ids"
)

var (
	// ErrHeld is returned when another run owns the lock.
	ErrHeld = errors.New("runlock: lock is held by another run")
	// ErrLost is returned by Extend once the lease expired and the lock moved on.
	ErrLost = errors.New("runlock: lease expired or was taken over")
)

// Locker acquires named leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is an acquired lock. Release is idempotent.
type Lease struct {
	Key   string
	Token string

	once    sync.Once
	release func(ctx context.Context) error
	extend  func(ctx context.Context, ttl time.Duration) error
}

// Extend pushes the lease expiry to ttl from now. It fails with ErrLost when
// the lease no longer owns the lock.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil || l.extend == nil {
		return nil
	}
	return l.extend(ctx, ttl)
}

// Release frees the lock if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() { err = l.release(ctx) })
	return err
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localHold
	clock func() time.Time
}

type localHold struct {
	token   string
	expires time.Time
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), clock: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[key]; ok && (h.expires.IsZero() || now.Before(h.expires)) {
		return nil, ErrHeld
	}
	token := ids.New()
	hold := localHold{token: token}
	if ttl > 0 {
		hold.expires = now.Add(ttl)
	}
	l.held[key] = hold
	return &Lease{
		Key:   key,
		Token: token,
		release: func(context.Context) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			if h, ok := l.held[key]; ok && h.token == token {
				delete(l.held, key)
			}
			return nil
		},
		extend: func(_ context.Context, ttl time.Duration) error {
			now := l.clock()
			l.mu.Lock()
			defer l.mu.Unlock()
			h, ok := l.held[key]
			if !ok || h.token != token || (!h.expires.IsZero() && !now.Before(h.expires)) {
				return ErrLost
			}
			h.expires = time.Time{}
			if ttl > 0 {
				h.expires = now.Add(ttl)
			}
			l.held[key] = h
			return nil
		},
	}, nil
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript refreshes the expiry only while the key still carries our token.
var extendScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker shares locks across instances through SET NX PX.
type RedisLocker struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker wraps an existing client; keys are stored under prefix.
func NewRedisLocker(rdb goredis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "demodata:lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// DialRedis connects and pings addr.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	full := r.prefix + key
	token := ids.New()
	ok, err := r.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("runlock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{
		Key:   key,
		Token: token,
		release: func(ctx context.Context) error {
			if err := releaseScript.Run(ctx, r.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
				return fmt.Errorf("runlock: release %s: %w", key, err)
			}
			return nil
		},
		extend: func(ctx context.Context, ttl time.Duration) error {
			n, err := extendScript.Run(ctx, r.rdb, []string{full}, token, ttl.Milliseconds()).Int()
			if err != nil {
				return fmt.Errorf("runlock: extend %s: %w", key, err)
			}
			if n == 0 {
				return ErrLost
			}
			return nil
		},
	}, nil
}
