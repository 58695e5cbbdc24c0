package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/issuetrail/internal/database/testutil"
	"github.com/charlesng35/issuetrail/internal/models"
)

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "membership:u1:p1", []byte(`["r1"]`), time.Minute))
	require.NoError(t, store.Set(ctx, "membership:u1:p1", []byte(`["r1","r2"]`), time.Minute))

	value, ok, err := store.Get(ctx, "membership:u1:p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `["r1","r2"]`, string(value))

	require.NoError(t, store.Delete(ctx, "membership:u1:p1"))
	_, ok, err = store.Get(ctx, "membership:u1:p1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreExpiredEntriesAreMisses(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.CacheEntry{Key: "stale", Value: []byte("x"), ExpiresAt: time.Now().Add(-time.Minute)}).Error)

	_, ok, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, ttl, err := store.IncrementWithTTL(ctx, "rate:client", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
		require.Greater(t, ttl, time.Duration(0))
	}
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.Create(&models.CacheEntry{Key: "old", Value: []byte("1"), ExpiresAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "fresh", Value: []byte("1"), ExpiresAt: now.Add(time.Hour)}).Error)
	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	removed, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	require.ErrorIs(t, store.Set(context.Background(), "k", nil, 0), ErrStoreUnavailable)
}

func TestDatabaseStoreCounterWindowRestarts(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db, WithStoreClock(func() time.Time { return now }))
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rate:client", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	now = now.Add(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rate:client", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl)

	now = now.Add(time.Minute)
	count, ttl, err = store.IncrementWithTTL(ctx, "rate:client", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseStoreTTLUsesClock(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db, WithStoreClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "membership:u1:p1", []byte(`["r1"]`), time.Minute))
	_, ok, err := store.Get(ctx, "membership:u1:p1")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, err = store.Get(ctx, "membership:u1:p1")
	require.NoError(t, err)
	require.False(t, ok)
}
