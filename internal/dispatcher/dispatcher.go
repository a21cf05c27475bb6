// Package dispatcher is the API-side entry point: it validates a
// request, assigns a queue via the scheduler, and enqueues into the
// job store, or fans a bulk request out per device.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/netpulse/internal/apperr"
	"github.com/yungbote/netpulse/internal/credential"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/driver"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/scheduler"
	"github.com/yungbote/netpulse/internal/store"
)

// Defaults holds the TTL/timeout hierarchy: ttl >= timeout always,
// result_retention is independent and applied after terminal status.
// SweepInterval paces the background consistency sweep that marks
// timed-out queued jobs expired (store.SweepExpired).
type Defaults struct {
	TTL             time.Duration
	Timeout         time.Duration
	ResultRetention time.Duration
	BulkTTL         time.Duration
	SweepInterval   time.Duration
}

func DefaultDefaults() Defaults {
	return Defaults{
		TTL:             10 * time.Minute,
		Timeout:         30 * time.Second,
		ResultRetention: 1 * time.Hour,
		BulkTTL:         30 * time.Minute,
		SweepInterval:   30 * time.Second,
	}
}

type Dispatcher struct {
	store       store.Store
	scheduler   scheduler.Scheduler
	drivers     *driver.Registry
	credentials credential.Provider
	defaults    Defaults
	log         *logger.Logger
}

func New(st store.Store, sch scheduler.Scheduler, drivers *driver.Registry, creds credential.Provider, defaults Defaults, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:       st,
		scheduler:   sch,
		drivers:     drivers,
		credentials: creds,
		defaults:    defaults,
		log:         log.With("component", "dispatcher"),
	}
}

// Request is the normalized, already-validated input to
// SubmitDeviceJob.
type Request struct {
	Driver        string
	Operation     domain.OperationKind
	Conn          domain.ConnectionParams
	Payload       domain.Payload
	QueueStrategy domain.QueueStrategy
	TTL           time.Duration
	Timeout       time.Duration
	ResultRetention time.Duration
	Bulk          bool
}

// Validate enforces the dispatcher-local request invariants.
func (r *Request) Validate() error {
	if r.Conn.Host == "" {
		return apperr.New(apperr.KindValidation, "host is required")
	}
	if r.Driver == "" {
		return apperr.New(apperr.KindValidation, "driver is required")
	}
	hasCommand := len(r.Payload.Commands) > 0
	hasConfig := len(r.Payload.ConfigLines) > 0 || len(r.Payload.RenderCtx) > 0
	if hasCommand && hasConfig {
		return apperr.New(apperr.KindValidation, "command and config are mutually exclusive")
	}
	if r.Operation == domain.OpExecute && !hasCommand {
		return apperr.New(apperr.KindValidation, "execute requires a command")
	}
	if r.Operation == domain.OpPush && !hasConfig {
		return apperr.New(apperr.KindValidation, "push requires config")
	}
	return nil
}

func (d *Dispatcher) applyDefaults(r *Request) {
	if r.TTL <= 0 {
		if r.Bulk {
			r.TTL = d.defaults.BulkTTL
		} else {
			r.TTL = d.defaults.TTL
		}
	}
	if r.Timeout <= 0 {
		r.Timeout = d.defaults.Timeout
	}
	if r.TTL < r.Timeout {
		// ttl must never be shorter than timeout.
		r.TTL = r.Timeout
	}
	if r.ResultRetention <= 0 {
		r.ResultRetention = d.defaults.ResultRetention
	}
}

// chooseQueue is the authoritative queue-selection rule: pool-safe
// drivers not explicitly pinned go to the shared FIFO queue, everyone
// else gets bound to a node and routed to that node's pinned queue.
func (d *Dispatcher) chooseQueue(ctx context.Context, r *Request) (queue string, err error) {
	drv, derr := d.drivers.Get(r.Driver)
	if derr != nil {
		return "", apperr.New(apperr.KindValidation, derr.Error())
	}
	poolSafe := drv.PoolSafe()
	strategy := r.QueueStrategy
	if strategy == domain.StrategyDefault {
		if drv.DefaultQueueStrategy() == driver.StrategyFIFO {
			strategy = domain.StrategyFIFO
		} else {
			strategy = domain.StrategyPinned
		}
	}
	if poolSafe && strategy != domain.StrategyPinned {
		return domain.FIFOQueue, nil
	}
	if _, err := d.scheduler.ChooseNode(ctx, r.Conn.Host); err != nil {
		return "", err
	}
	return domain.PinnedQueue(r.Conn.Host), nil
}

// SubmitDeviceJob validates, resolves credentials, assigns a queue,
// and enqueues a single device job.
func (d *Dispatcher) SubmitDeviceJob(ctx context.Context, r Request) (*domain.Job, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Conn.CredentialRef != "" {
		if _, err := d.credentials.Resolve(ctx, r.Conn.CredentialRef); err != nil {
			return nil, apperr.New(apperr.KindAuthentication, fmt.Sprintf("credential resolution failed: %v", err))
		}
	}
	d.applyDefaults(&r)

	queue, err := d.chooseQueue(ctx, &r)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:              uuid.NewString(),
		Driver:          r.Driver,
		Operation:       r.Operation,
		Conn:            r.Conn,
		Payload:         r.Payload,
		Queue:           queue,
		QueueStrategy:   r.QueueStrategy,
		Status:          domain.StatusQueued,
		TTL:             r.TTL,
		Timeout:         r.Timeout,
		ResultRetention: r.ResultRetention,
		CreatedAt:       time.Now(),
	}
	if err := d.store.Enqueue(ctx, queue, job); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	return job, nil
}

// BulkResult is the submit_bulk return shape.
type BulkResult struct {
	Succeeded []BulkSuccess `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

type BulkSuccess struct {
	Host  string `json:"host"`
	JobID string `json:"job_id"`
}

type BulkFailure struct {
	Host   string `json:"host"`
	Reason string `json:"reason"`
}

// SubmitBulk fans a request out across devices independently:
// per-device errors are collected and the call itself never fails
// whole-body unless the request is structurally invalid. The union of
// succeeded/failed hosts always equals the input, with no duplicates,
// by construction: one iteration per device. A device whose connection
// params name a driver is submitted with that driver.
func (d *Dispatcher) SubmitBulk(ctx context.Context, base Request, devices []domain.ConnectionParams) (*BulkResult, error) {
	if len(devices) == 0 {
		return nil, apperr.New(apperr.KindValidation, "bulk request must have at least one device")
	}
	base.Bulk = true
	if base.QueueStrategy == domain.StrategyDefault {
		base.QueueStrategy = domain.StrategyPinned
	}
	res := &BulkResult{}
	for _, conn := range devices {
		r := base
		r.Conn = conn
		if conn.Driver != "" {
			r.Driver = conn.Driver
		}
		job, err := d.SubmitDeviceJob(ctx, r)
		if err != nil {
			res.Failed = append(res.Failed, BulkFailure{Host: conn.Host, Reason: apperr.As(err).Error()})
			continue
		}
		res.Succeeded = append(res.Succeeded, BulkSuccess{Host: conn.Host, JobID: job.ID})
	}
	return res, nil
}

// TestConnectionResult is the synchronous test-connection reply.
type TestConnectionResult struct {
	Success          bool   `json:"success"`
	ConnectionTimeMs int64  `json:"connection_time_ms"`
	Error            string `json:"error,omitempty"`
}

// TestConnection performs the connect attempt inline against a
// short-lived session and never enqueues.
func (d *Dispatcher) TestConnection(ctx context.Context, conn domain.ConnectionParams) (*TestConnectionResult, error) {
	drv, err := d.drivers.Get(conn.Driver)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, err.Error())
	}
	if conn.CredentialRef != "" {
		secret, err := d.credentials.Resolve(ctx, conn.CredentialRef)
		if err != nil {
			return nil, apperr.New(apperr.KindAuthentication, err.Error())
		}
		conn.Username, conn.Password = secret.Username, secret.Password
	}
	start := time.Now()
	sess, err := drv.Connect(ctx, conn)
	elapsed := time.Since(start)
	if err != nil {
		return &TestConnectionResult{Success: false, ConnectionTimeMs: elapsed.Milliseconds(), Error: err.Error()}, nil
	}
	_ = drv.Disconnect(sess)
	return &TestConnectionResult{Success: true, ConnectionTimeMs: elapsed.Milliseconds()}, nil
}

// QueryJobs is a pass-through to the store.
func (d *Dispatcher) QueryJobs(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	return d.store.ListJobs(ctx, filter)
}

// CancelJob cancels a queued or running job; cancelling a running job
// sets status to stopped only once the worker observes it. Here we
// mark the request; DeleteJob handles the queued case synchronously.
func (d *Dispatcher) CancelJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := d.store.GetJob(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	if job == nil {
		return nil, apperr.New(apperr.KindValidation, "job not found")
	}
	if err := d.store.DeleteJob(ctx, id); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	return d.store.GetJob(ctx, id)
}
