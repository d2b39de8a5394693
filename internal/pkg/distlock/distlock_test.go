package distlock

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestRedisLock_Exclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "bulk-send", time.Minute)
	second := NewRedisLock(client, "bulk-send", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:bulk-send"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A non-owner release must not free the lock
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("lock:bulk-send"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("lock:bulk-send"))
}

func TestRedisLock_Extend(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "bulk-send", time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lock:bulk-send"))

	mr.FastForward(2 * time.Minute)
	assert.Error(t, lock.Extend(ctx, time.Minute))
}

func TestRun_ReturnsErrHeld(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "bulk-send", time.Minute)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = Run(ctx, NewRedisLock(client, "bulk-send", time.Minute), time.Minute, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrHeld)
	assert.False(t, ran)
}

func TestRun_ReleasesAfterFn(t *testing.T) {
	mr, client := setupTestRedis(t)
	boom := errors.New("boom")

	err := Run(context.Background(), NewRedisLock(client, "bulk-send", time.Minute), time.Minute, func() error {
		assert.True(t, mr.Exists("lock:bulk-send"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:bulk-send"))
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock := setupTestDB(t)
	ctx := context.Background()
	lock := NewPGAdvisoryLock(db, "bulk-send")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(lock.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lock.Release(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_NotAcquired(t *testing.T) {
	db, mock := setupTestDB(t)
	lock := NewPGAdvisoryLock(db, "bulk-send")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	a := NewLock(nil, nil, "local-test", time.Minute)
	b := NewLock(nil, nil, "local-test", time.Minute)

	ok, _ := a.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx))
	require.NoError(t, a.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}
