package node

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/netpulse/internal/credential"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/driver"
	"github.com/yungbote/netpulse/internal/driver/mockdriver"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
	"github.com/yungbote/netpulse/internal/worker"
)

func newTestSupervisor(t *testing.T, nodeID string, fifoWorkers int) (*Supervisor, store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	log, err := logger.New("development")
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st := store.NewFromClient(rdb, log)

	drivers := driver.NewRegistry()
	drivers.Register(mockdriver.New())

	creds := credential.NewEnvProvider(func(string) (string, bool) { return "", false })

	cfg := DefaultConfig(nodeID)
	cfg.FIFOWorkers = fifoWorkers
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.NodeTTL = 500 * time.Millisecond
	cfg.ReconcileInterval = 30 * time.Millisecond
	cfg.DrainGrace = 500 * time.Millisecond
	cfg.Worker = worker.DefaultConfig()
	cfg.Worker.BlockTimeout = 50 * time.Millisecond

	sup := New(cfg, st, drivers, creds, nil, log)
	return sup, st
}

func TestStartRegistersNodeAndReachesActive(t *testing.T) {
	sup, st := newTestSupervisor(t, "node-1", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sup.Start(ctx))
	assert.Equal(t, StateActive, sup.State())

	rec, err := st.GetNode(context.Background(), "node-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 16, rec.Capacity)
}

func TestReconcileSpawnsPinnedWorkerForNewBinding(t *testing.T) {
	sup, st := newTestSupervisor(t, "node-2", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	_, err := st.BindHost(context.Background(), "router-1", "node-2")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sup.mu.Lock()
		_, ok := sup.pinned["router-1"]
		sup.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reconcile never spawned a pinned worker for the new binding")
}

func TestReconcileStopsWorkerWhenBindingRemoved(t *testing.T) {
	sup, st := newTestSupervisor(t, "node-3", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	_, err := st.BindHost(context.Background(), "router-2", "node-3")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sup.mu.Lock()
		_, ok := sup.pinned["router-2"]
		sup.mu.Unlock()
		if ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	ok, err := st.UnbindHost(context.Background(), "router-2", "node-3")
	require.NoError(t, err)
	require.True(t, ok)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sup.mu.Lock()
		_, ok := sup.pinned["router-2"]
		sup.mu.Unlock()
		if !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reconcile never stopped the worker after its binding was removed")
}

func TestReclaimOrphansReleasesBindingOfDeadNode(t *testing.T) {
	sup, st := newTestSupervisor(t, "node-4", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// dead-node heartbeats once so it is known, owns a binding, and then
	// loses its live node record (miniredis does not age TTLs on its own,
	// so the lapse is produced with ExpireNode); only a live supervisor's
	// reclaim pass can release the binding.
	require.NoError(t, st.Heartbeat(context.Background(), "dead-node", &domain.NodeRecord{Hostname: "dead-node"}, 10*time.Millisecond))
	_, err := st.BindHost(context.Background(), "router-3", "dead-node")
	require.NoError(t, err)
	require.NoError(t, st.ExpireNode(context.Background(), "dead-node"))

	require.NoError(t, sup.Start(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		owner, err := st.GetHostNode(context.Background(), "router-3")
		require.NoError(t, err)
		if owner == "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("orphaned binding to a dead node was never reclaimed")
}

func TestDrainRemovesNodeRecordAndReachesGone(t *testing.T) {
	sup, st := newTestSupervisor(t, "node-5", 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	sup.Drain()
	assert.Equal(t, StateGone, sup.State())

	rec, err := st.GetNode(context.Background(), "node-5")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
