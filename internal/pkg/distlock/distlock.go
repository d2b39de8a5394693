package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Run when another holder owns the lock.
var ErrHeld = errors.New("lock is held by another process")

// DistLock is the interface for distributed locking.
// Instances are single-use per holder: create one per critical section.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// extender is implemented by locks whose ownership expires.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// NewLock creates a lock using the best available backend: Redis when a
// client is configured, Postgres advisory locks when only a database is,
// and an in-process lock otherwise.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if db != nil {
		return NewPGAdvisoryLock(db, key)
	}
	return NewLocalLock(key)
}

// Run acquires lock, runs fn and releases the lock. It returns ErrHeld when
// the lock is owned elsewhere. Locks with a TTL are renewed every ttl/2
// while fn runs.
func Run(ctx context.Context, lock DistLock, ttl time.Duration, fn func() error) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	// Release must happen even if the request context is already done.
	defer lock.Release(context.WithoutCancel(ctx))

	if ext, isExt := lock.(extender); isExt && ttl > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(ttl / 2)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					_ = ext.Extend(context.WithoutCancel(ctx), ttl)
				}
			}
		}()
	}
	return fn()
}

// =============================================================================
// PostgreSQL Advisory Lock (used when Redis is not configured)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release. If the connection drops the server
// releases the lock.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	return errors.Join(err, closeErr)
}

// =============================================================================
// In-process lock (single replica, no shared infrastructure)
// =============================================================================

var (
	localMu    sync.Mutex
	localLocks = map[string]*sync.Mutex{}
)

// LocalLock serializes holders of the same key within this process.
type LocalLock struct {
	mu   *sync.Mutex
	held bool
}

// NewLocalLock returns a lock shared by every LocalLock with the same key.
func NewLocalLock(key string) *LocalLock {
	localMu.Lock()
	defer localMu.Unlock()
	mu, ok := localLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		localLocks[key] = mu
	}
	return &LocalLock{mu: mu}
}

// Acquire tries to take the key's mutex.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.held = l.mu.TryLock()
	return l.held, nil
}

// Release unlocks the key if this instance holds it.
func (l *LocalLock) Release(context.Context) error {
	if l.held {
		l.held = false
		l.mu.Unlock()
	}
	return nil
}
