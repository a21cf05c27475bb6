package worker

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
)

func newTestDeps(t *testing.T) (Deps, store.Store) {
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

	creds := credential.NewEnvProvider(func(k string) (string, bool) {
		if k == "ROUTER_USER" {
			return "admin", true
		}
		if k == "ROUTER_PASS" {
			return "secret", true
		}
		return "", false
	})

	return Deps{Store: st, Drivers: drivers, Credentials: creds, Log: log}, st
}

func testCfg() Config {
	cfg := DefaultConfig()
	cfg.BlockTimeout = 100 * time.Millisecond
	cfg.SessionIdleInterval = time.Hour
	return cfg
}

func runUntilTerminal(t *testing.T, ctx context.Context, st store.Store, jobID string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(ctx, jobID)
		require.NoError(t, err)
		if job != nil && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal status in time", jobID)
	return nil
}

func TestPinnedWorkerExecutesQueuedJob(t *testing.T) {
	deps, st := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPinned("router-1", "node-a", 0, deps, testCfg())
	go RunPinned(ctx, w)

	job := &domain.Job{
		ID:        "job-w1",
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-1", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
		Status:    domain.StatusQueued,
		TTL:       time.Minute,
		Timeout:   2 * time.Second,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.Enqueue(context.Background(), domain.PinnedQueue("router-1"), job))

	finished := runUntilTerminal(t, context.Background(), st, "job-w1")
	assert.Equal(t, domain.StatusFinished, finished.Status)
	assert.Contains(t, finished.Result.Retval, "show version")
}

func TestPinnedWorkerMarksDriverFailureAsFailed(t *testing.T) {
	deps, st := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPinned("router-2", "node-a", 0, deps, testCfg())
	go RunPinned(ctx, w)

	job := &domain.Job{
		ID:        "job-w2",
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-2", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"fail this"}},
		Status:    domain.StatusQueued,
		TTL:       time.Minute,
		Timeout:   2 * time.Second,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.Enqueue(context.Background(), domain.PinnedQueue("router-2"), job))

	finished := runUntilTerminal(t, context.Background(), st, "job-w2")
	assert.Equal(t, domain.StatusFailed, finished.Status)
	require.NotNil(t, finished.Result)
	require.NotNil(t, finished.Result.Error)
	assert.Equal(t, "driver", finished.Result.Error.Kind)
}

func TestPinnedWorkerHonorsCancelRequest(t *testing.T) {
	deps, st := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPinned("router-3", "node-a", 0, deps, testCfg())
	go RunPinned(ctx, w)

	job := &domain.Job{
		ID:        "job-w3",
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-3", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
		Status:    domain.StatusQueued,
		TTL:       time.Minute,
		Timeout:   2 * time.Second,
		CreatedAt: time.Now(),
	}
	bg := context.Background()
	require.NoError(t, st.RequestCancel(bg, "job-w3"))
	require.NoError(t, st.Enqueue(bg, domain.PinnedQueue("router-3"), job))

	finished := runUntilTerminal(t, bg, st, "job-w3")
	assert.Equal(t, domain.StatusCancelled, finished.Status)
}

func TestPinnedWorkerResolvesCredentialRef(t *testing.T) {
	deps, st := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPinned("router-4", "node-a", 0, deps, testCfg())
	go RunPinned(ctx, w)

	job := &domain.Job{
		ID:        "job-w4",
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-4", Driver: "mock_netmiko", CredentialRef: "env:ROUTER_USER:ROUTER_PASS"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
		Status:    domain.StatusQueued,
		TTL:       time.Minute,
		Timeout:   2 * time.Second,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.Enqueue(context.Background(), domain.PinnedQueue("router-4"), job))

	finished := runUntilTerminal(t, context.Background(), st, "job-w4")
	assert.Equal(t, domain.StatusFinished, finished.Status)
}

func TestFIFOWorkerExecutesQueuedJob(t *testing.T) {
	deps, st := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewFIFO("node-a", 0, deps, testCfg())
	go RunFIFO(ctx, w)

	job := &domain.Job{
		ID:        "job-w5",
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "api-host", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"status"}},
		Status:    domain.StatusQueued,
		TTL:       time.Minute,
		Timeout:   2 * time.Second,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.Enqueue(context.Background(), domain.FIFOQueue, job))

	finished := runUntilTerminal(t, context.Background(), st, "job-w5")
	assert.Equal(t, domain.StatusFinished, finished.Status)
}
