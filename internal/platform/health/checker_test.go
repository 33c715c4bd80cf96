package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelo-gelato/loyalty-backend/pkg/lifecycle"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	s := NewStatus(true)
	s.SetInitialRunID("aaa")

	assert.False(t, s.Assess(true, "aaa"))
	assert.Equal(t, StateHealthy, s.State())

	assert.False(t, s.Assess(false, ""))
	assert.Equal(t, StateDegraded, s.State())
	assert.False(t, s.RedisUsable())

	assert.True(t, s.Assess(true, "aaa"), "recovery always rebuilds")
	assert.Equal(t, StateRebuilding, s.State())

	s.MarkRebuildComplete(true, "aaa")
	assert.Equal(t, StateHealthy, s.State())

	assert.True(t, s.Assess(true, "bbb"), "restart detected")
	s.MarkRebuildComplete(true, "ccc")
	assert.Equal(t, StateRebuilding, s.State(), "restarted again during rebuild")
	assert.True(t, s.Assess(true, "ccc"))
	s.MarkRebuildComplete(true, "ccc")
	assert.Equal(t, StateHealthy, s.State())
}

func TestDisabledStatusNeverChanges(t *testing.T) {
	s := NewStatus(false)
	assert.False(t, s.Assess(true, "x"))
	assert.Equal(t, StateDisabled, s.State())
	assert.Equal(t, "disabled", s.State().String())
}

func TestCheckerRebuildsAfterOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rebuilds := 0
	var failRebuild bool
	c := NewChecker(rdb, NewStatus(true), func(ctx context.Context) error {
		rebuilds++
		if failRebuild {
			return errors.New("boom")
		}
		return nil
	})
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	c.PerformCheck(ctx)
	assert.Equal(t, StateHealthy, c.Status().State())
	assert.Equal(t, 0, rebuilds)

	mr.SetError("LOADING")
	c.PerformCheck(ctx)
	assert.Equal(t, StateDegraded, c.Status().State())

	mr.SetError("")
	failRebuild = true
	c.PerformCheck(ctx)
	assert.Equal(t, StateRebuilding, c.Status().State())
	assert.Equal(t, 1, rebuilds)

	failRebuild = false
	c.PerformCheck(ctx)
	assert.Equal(t, StateHealthy, c.Status().State())
	assert.Equal(t, 2, rebuilds)
}

func TestRunStopsWithLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewChecker(rdb, NewStatus(true), func(context.Context) error { return nil })
	c.interval = 5 * time.Millisecond
	require.NoError(t, c.Initialize(context.Background()))

	m := lifecycle.NewManager(context.Background(), nil)
	require.NoError(t, m.Go("redis-health", func(h *lifecycle.Handle) error {
		c.Run(h)
		return nil
	}))

	mr.SetError("LOADING")
	assert.Eventually(t, func() bool { return c.Status().State() == StateDegraded }, time.Second, 5*time.Millisecond)

	m.Shutdown()
	assert.Empty(t, m.WaitWithTimeout(time.Second))
}
