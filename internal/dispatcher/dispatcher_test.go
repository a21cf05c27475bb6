package dispatcher

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
	"github.com/yungbote/netpulse/internal/driver/httpdriver"
	"github.com/yungbote/netpulse/internal/driver/mockdriver"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/scheduler"
	"github.com/yungbote/netpulse/internal/store"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, store.Store) {
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
	drivers.Register(httpdriver.New())

	sch, err := scheduler.New(scheduler.KindLeastLoad, st, log)
	require.NoError(t, err)

	creds := credential.NewEnvProvider(func(string) (string, bool) { return "", false })

	d := New(st, sch, drivers, creds, Defaults{
		TTL:             time.Minute,
		Timeout:         10 * time.Second,
		ResultRetention: time.Hour,
		BulkTTL:         time.Minute,
	}, log)
	return d, st
}

func heartbeat(t *testing.T, ctx context.Context, st store.Store, nodeID string) {
	t.Helper()
	require.NoError(t, st.Heartbeat(ctx, nodeID, &domain.NodeRecord{Hostname: nodeID, Capacity: 16}, 30*time.Second))
}

func TestSubmitDeviceJobRoutesPinnedDriverToNodeQueue(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t)
	heartbeat(t, ctx, st, "node-a")

	job, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-1", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PinnedQueue("router-1"), job.Queue)
	assert.Equal(t, domain.StatusQueued, job.Status)
}

func TestSubmitDeviceJobRoutesPoolSafeDriverToFIFO(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	job, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "http_api",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "api-host", Driver: "http_api"},
		Payload:   domain.Payload{Commands: []string{"status"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FIFOQueue, job.Queue)
}

func TestSubmitDeviceJobRejectsMissingHost(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	_, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Payload:   domain.Payload{Commands: []string{"show version"}},
	})
	assert.Error(t, err)
}

func TestSubmitDeviceJobRejectsCommandAndConfigTogether(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t)
	heartbeat(t, ctx, st, "node-a")

	_, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-2", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}, ConfigLines: []string{"interface eth0"}},
	})
	assert.Error(t, err)
}

func TestSubmitDeviceJobWithoutCapacityReturnsNoCapacity(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	_, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-3", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
	})
	assert.ErrorIs(t, err, scheduler.ErrNoCapacity)
}

func TestApplyDefaultsKeepsTTLAtLeastTimeout(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t)
	heartbeat(t, ctx, st, "node-a")

	job, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-4", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
		TTL:       time.Second,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, job.TTL, job.Timeout)
}

func TestSubmitBulkCollectsPerDeviceSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t)
	heartbeat(t, ctx, st, "node-a")

	res, err := d.SubmitBulk(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Payload:   domain.Payload{Commands: []string{"show version"}},
	}, []domain.ConnectionParams{
		{Host: "router-5", Driver: "mock_netmiko"},
		{Host: "router-6", Driver: "unknown_driver"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)
	assert.Len(t, res.Failed, 1)
	assert.Equal(t, "router-6", res.Failed[0].Host)
}

func TestSubmitBulkRejectsEmptyDeviceList(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	_, err := d.SubmitBulk(ctx, Request{Driver: "mock_netmiko"}, nil)
	assert.Error(t, err)
}

func TestTestConnectionReportsFailureWithoutEnqueue(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	res, err := d.TestConnection(ctx, domain.ConnectionParams{Host: "unreachable-host", Driver: "mock_netmiko"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestTestConnectionReportsSuccess(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	res, err := d.TestConnection(ctx, domain.ConnectionParams{Host: "router-7", Driver: "mock_netmiko"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCancelJobRemovesQueuedJobFromQueue(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t)
	heartbeat(t, ctx, st, "node-a")

	job, err := d.SubmitDeviceJob(ctx, Request{
		Driver:    "mock_netmiko",
		Operation: domain.OpExecute,
		Conn:      domain.ConnectionParams{Host: "router-8", Driver: "mock_netmiko"},
		Payload:   domain.Payload{Commands: []string{"show version"}},
	})
	require.NoError(t, err)

	cancelled, err := d.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
}

func TestCancelJobUnknownIDFails(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	_, err := d.CancelJob(ctx, "does-not-exist")
	assert.Error(t, err)
}
