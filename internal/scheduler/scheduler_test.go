package scheduler

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alicebob/miniredis/v2"

	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
)

func newTestScheduler(t *testing.T, kind Kind) (Scheduler, store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	log, err := logger.New("development")
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st := store.NewFromClient(rdb, log)

	sch, err := New(kind, st, log)
	require.NoError(t, err)
	return sch, st
}

func TestNewRejectsUnknownKind(t *testing.T) {
	log, err := logger.New("development")
	require.NoError(t, err)
	_, err = New(Kind("bogus"), nil, log)
	assert.Error(t, err)
}

func TestLeastLoadPicksMinimumPinnedCount(t *testing.T) {
	ctx := context.Background()
	sch, st := newTestScheduler(t, KindLeastLoad)

	heartbeat(t, ctx, st, "node-a", 16, 10)
	heartbeat(t, ctx, st, "node-b", 16, 2)

	chosen, err := sch.ChooseNode(ctx, "router-1")
	require.NoError(t, err)
	assert.Equal(t, "node-b", chosen)
}

func TestLeastLoadBreaksTiesByNodeID(t *testing.T) {
	ctx := context.Background()
	sch, st := newTestScheduler(t, KindLeastLoad)

	heartbeat(t, ctx, st, "node-z", 16, 4)
	heartbeat(t, ctx, st, "node-a", 16, 4)

	chosen, err := sch.ChooseNode(ctx, "router-2")
	require.NoError(t, err)
	assert.Equal(t, "node-a", chosen)
}

func TestChooseIsIdempotentForAlreadyBoundHost(t *testing.T) {
	ctx := context.Background()
	sch, st := newTestScheduler(t, KindLeastLoad)

	heartbeat(t, ctx, st, "node-a", 16, 1)
	heartbeat(t, ctx, st, "node-b", 16, 0)

	first, err := sch.ChooseNode(ctx, "router-3")
	require.NoError(t, err)

	second, err := sch.ChooseNode(ctx, "router-3")
	require.NoError(t, err)
	assert.Equal(t, first, second, "a bound host must keep resolving to the same node")
}

func TestChooseReturnsErrNoCapacityWhenAllNodesFull(t *testing.T) {
	ctx := context.Background()
	sch, st := newTestScheduler(t, KindLeastLoad)

	heartbeat(t, ctx, st, "node-a", 4, 4)

	_, err := sch.ChooseNode(ctx, "router-4")
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestWeightedRandomOnlyPicksAmongCapacityNodes(t *testing.T) {
	ctx := context.Background()
	sch, st := newTestScheduler(t, KindLoadWeightedRandom)

	heartbeat(t, ctx, st, "node-full", 4, 4)
	heartbeat(t, ctx, st, "node-open", 4, 0)

	chosen, err := sch.ChooseNode(ctx, "router-rand")
	require.NoError(t, err)
	assert.Equal(t, "node-open", chosen)
}

func heartbeat(t *testing.T, ctx context.Context, st store.Store, nodeID string, capacity, pinned int) {
	t.Helper()
	rec := &domain.NodeRecord{Hostname: nodeID, Capacity: capacity, CurrentPinnedCount: pinned}
	require.NoError(t, st.Heartbeat(ctx, nodeID, rec, 30*time.Second))
}
