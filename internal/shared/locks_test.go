package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerSerialisesReceivingPerPO(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, ReceivingLockKey("po-1"))
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, ReceivingLockKey("po-1"))
	require.True(t, errors.Is(err, ErrLocked))

	other, err := locker.Acquire(ctx, ReceivingLockKey("po-2"))
	require.NoError(t, err)
	other(ctx)

	release(ctx)
	again, err := locker.Acquire(ctx, ReceivingLockKey("po-1"))
	require.NoError(t, err)
	again(ctx)
}

func TestLockerExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client, time.Second)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	release(ctx)
}

func TestNilLockerAlwaysGrants(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release(context.Background())
}

func TestPersistenceWrapsOnce(t *testing.T) {
	base := errors.New("boom")
	err := Persistence("create asset", base)
	require.EqualError(t, err, "create asset: boom")
	require.Same(t, err, Persistence("outer", err))
	require.True(t, errors.Is(err, base))
	require.NoError(t, Persistence("noop", nil))
}
