// Package lock serialises critical sections across worker instances with
// redsync mutexes on Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrEmptyKey is returned when a lock key is blank.
	ErrEmptyKey = errors.New("platform/lock: key cannot be empty")
	// ErrNilFn is returned when WithLocks receives no function.
	ErrNilFn = errors.New("platform/lock: function is nil")
	// ErrNotAcquired is returned when a key stays busy after all tries.
	ErrNotAcquired = errors.New("platform/lock: not acquired")
)

// Options configures mutex behaviour.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{Expiry: 30 * time.Second, Tries: 20, RetryDelay: 250 * time.Millisecond}
}

// Locker acquires groups of redsync mutexes.
type Locker struct {
	rs     *redsync.Redsync
	opts   Options
	logger *slog.Logger
}

// New builds a Locker on top of client.
func New(client redis.UniversalClient, opts Options, logger *slog.Logger) *Locker {
	def := DefaultOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{rs: redsync.New(goredis.NewPool(client)), opts: opts, logger: logger}
}

// WithLocks runs fn while holding every key. Keys are de-duplicated and taken
// in sorted order so concurrent callers cannot deadlock; they are released in
// reverse order even when fn panics.
func (l *Locker) WithLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilFn
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*redsync.Mutex, 0, len(sorted))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			m := held[i]
			if ok, err := m.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
				l.logger.Warn("release lock", slog.String("key", m.Name()), slog.Bool("ok", ok), slog.Any("error", err))
			}
		}
	}()

	for _, key := range sorted {
		if strings.TrimSpace(key) == "" {
			return ErrEmptyKey
		}
		m := l.rs.NewMutex(key,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("platform/lock: acquire %s: %w", key, ctxErr)
			}
			return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
		}
		held = append(held, m)
	}
	return fn(ctx)
}
