package memstore_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-go-sched/lease/memstore"
)

const ttl = time.Second * 5

func TestTryInsert(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	store := memstore.New(memstore.WithClock(clock))
	ctx := t.Context()
	expiry := clock.Now().Add(ttl)

	ok, err := store.TryInsert(ctx, "k", "owner-a", expiry)
	require.NoError(t, err)
	assert.True(t, ok)

	// live record blocks a second owner
	ok, err = store.TryInsert(ctx, "k", "owner-b", expiry)
	require.NoError(t, err)
	assert.False(t, ok)

	// a different key is independent
	ok, err = store.TryInsert(ctx, "other", "owner-b", expiry)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryInsertAfterExpiry(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	store := memstore.New(memstore.WithClock(clock))
	ctx := t.Context()

	ok, err := store.TryInsert(ctx, "k", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(ttl + time.Millisecond)

	ok, err = store.TryInsert(ctx, "k", "owner-b", clock.Now().Add(ttl))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareAndDelete(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	store := memstore.New(memstore.WithClock(clock))
	ctx := t.Context()

	ok, err := store.CompareAndDelete(ctx, "missing", "owner-a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.TryInsert(ctx, "k", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)

	// wrong owner must not delete
	ok, err = store.CompareAndDelete(ctx, "k", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CompareAndDelete(ctx, "k", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// key is free again
	ok, err = store.TryInsert(ctx, "k", "owner-b", clock.Now().Add(ttl))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareAndDeleteAfterReassignment(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	store := memstore.New(memstore.WithClock(clock))
	ctx := t.Context()

	_, err := store.TryInsert(ctx, "k", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)

	clock.Advance(ttl + time.Millisecond)
	_, err = store.TryInsert(ctx, "k", "owner-b", clock.Now().Add(ttl))
	require.NoError(t, err)

	// the old owner's delete must not touch the new owner's record
	ok, err := store.CompareAndDelete(ctx, "k", "owner-a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CompareAndDelete(ctx, "k", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareAndExtend(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	store := memstore.New(memstore.WithClock(clock))
	ctx := t.Context()

	ok, err := store.CompareAndExtend(ctx, "missing", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.TryInsert(ctx, "k", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)

	// wrong owner cannot extend
	ok, err = store.CompareAndExtend(ctx, "k", "owner-b", clock.Now().Add(ttl*2))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.CompareAndExtend(ctx, "k", "owner-a", clock.Now().Add(ttl*2))
	require.NoError(t, err)
	assert.True(t, ok)

	// the extension keeps the record live past the original expiry
	clock.Advance(ttl + time.Millisecond)
	ok, err = store.TryInsert(ctx, "k", "owner-b", clock.Now().Add(ttl))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareAndExtendExpired(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	store := memstore.New(memstore.WithClock(clock))
	ctx := t.Context()

	_, err := store.TryInsert(ctx, "k", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)

	clock.Advance(ttl + time.Millisecond)

	// exclusivity is already gone; extending must fail
	ok, err := store.CompareAndExtend(ctx, "k", "owner-a", clock.Now().Add(ttl))
	require.NoError(t, err)
	assert.False(t, ok)
}
