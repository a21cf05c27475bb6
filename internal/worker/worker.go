// Package worker implements the common worker loop shared by pinned
// and FIFO workers. The part that differs between the two is factored
// into the SessionCache strategy (session_cache.go) and the two thin
// wrappers in pinned.go and fifo.go.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/netpulse/internal/apperr"
	"github.com/yungbote/netpulse/internal/credential"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/driver"
	"github.com/yungbote/netpulse/internal/observability"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
)

// Deps are the collaborators every worker needs, constructed once at
// node-supervisor startup and passed by value.
type Deps struct {
	Store       store.Store
	Drivers     *driver.Registry
	Credentials credential.Provider
	Log         *logger.Logger
	Metrics     *observability.Metrics
}

// Config tunes the common loop.
type Config struct {
	BlockTimeout        time.Duration // how long Dequeue blocks per poll
	CredentialTimeout   time.Duration
	DefaultTimeout      time.Duration // used if a job carries none
	SessionIdleInterval time.Duration // how often pinned workers check idle sessions
	SessionIdleThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		BlockTimeout:         5 * time.Second,
		CredentialTimeout:    3 * time.Second,
		DefaultTimeout:       30 * time.Second,
		SessionIdleInterval:  30 * time.Second,
		SessionIdleThreshold: 5 * time.Minute,
	}
}

// Worker runs the common loop against a fixed queue set until ctx is
// cancelled.
type Worker struct {
	ID     string
	Kind   domain.WorkerKind
	NodeID string
	Queues []string

	deps  Deps
	cfg   Config
	cache SessionCache
	log   *logger.Logger
}

func newWorker(id string, kind domain.WorkerKind, nodeID string, queues []string, deps Deps, cfg Config, cache SessionCache) *Worker {
	return &Worker{
		ID:     id,
		Kind:   kind,
		NodeID: nodeID,
		Queues: queues,
		deps:   deps,
		cfg:    cfg,
		cache:  cache,
		log:    deps.Log.With("worker_id", id, "kind", string(kind)),
	}
}

// Run blocks until ctx is cancelled. It is safe to run inside a
// recover()-guarded goroutine: a panic here must not take down its
// sibling workers or the supervisor.
func (w *Worker) Run(ctx context.Context) {
	ttl := 2 * w.cfg.SessionIdleInterval
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	_ = w.deps.Store.RegisterWorker(ctx, &domain.WorkerRecord{
		ID: w.ID, Kind: w.Kind, Queues: w.Queues, NodeID: w.NodeID,
	}, ttl)
	defer func() { _ = w.deps.Store.UnregisterWorker(context.Background(), w.ID) }()

	idleTicker := time.NewTicker(w.cfg.SessionIdleInterval)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-idleTicker.C:
			w.maybeCloseIdleSession()
		default:
		}

		job, err := w.deps.Store.Dequeue(ctx, w.Queues, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.shutdown()
				return
			}
			w.log.Warn("dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue // block timeout elapsed, loop back to re-check ctx/idle
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) maybeCloseIdleSession() {
	// Only meaningful for pinned workers; FIFO's noCache is a no-op.
	if w.cache.CloseIfIdle(w.cfg.SessionIdleThreshold) {
		w.log.Debug("closed idle device session")
	}
}

func (w *Worker) shutdown() {
	w.cache.Drop()
	w.log.Debug("worker shutting down")
}

// processJob runs one job through the common loop: mark running,
// check for a pending cancel, resolve driver and credentials, obtain a
// session, execute with a timeout, then record the terminal status.
// The job runs detached from the worker's cancellation, so a drain or
// binding removal lets the in-flight job finish (bounded by its own
// timeout) before the worker exits.
func (w *Worker) processJob(parent context.Context, job *domain.Job) {
	ctx := context.WithoutCancel(parent)
	log := w.log.With("job_id", job.ID, "host", job.Conn.Host)

	now := time.Now()
	job.Status = domain.StatusRunning
	job.StartedAt = &now
	job.NodeID = w.NodeID
	if err := w.deps.Store.SaveJob(ctx, job); err != nil {
		log.Warn("failed to mark job running", "error", err)
		return
	}

	if cancelled, _ := w.deps.Store.IsCancelRequested(ctx, job.ID); cancelled {
		w.finish(ctx, job, domain.StatusCancelled, nil, nil)
		return
	}

	drv, err := w.deps.Drivers.Get(job.Driver)
	if err != nil {
		w.finish(ctx, job, domain.StatusFailed, nil, apperr.New(apperr.KindValidation, err.Error()))
		return
	}

	if job.Conn.CredentialRef != "" {
		credCtx, cancel := context.WithTimeout(ctx, w.cfg.CredentialTimeout)
		secret, err := w.deps.Credentials.Resolve(credCtx, job.Conn.CredentialRef)
		cancel()
		if err != nil {
			w.finish(ctx, job, domain.StatusFailed, nil, apperr.New(apperr.KindAuthentication, err.Error()))
			return
		}
		job.Conn.Username = secret.Username
		job.Conn.Password = secret.Password
	}

	sess, fromCache, err := w.obtainSession(ctx, drv, job.Conn)
	if err != nil {
		w.finish(ctx, job, domain.StatusFailed, nil, apperr.New(apperr.KindConnection, err.Error()))
		return
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = w.cfg.DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan stepResult, 1)
	go w.runDriverStep(execCtx, drv, sess, job, resultCh)

	select {
	case <-execCtx.Done():
		if ctx.Err() == nil && execCtx.Err() != nil {
			// Timed out, not parent-cancelled: device state unknown, tear
			// the session down regardless of cache strategy.
			if fromCache {
				w.cache.Drop()
			} else {
				_ = drv.Disconnect(sess)
			}
			w.finish(ctx, job, domain.StatusFailed, nil, apperr.New(apperr.KindTimeout, "execution timeout exceeded"))
			return
		}
	case res := <-resultCh:
		if cancelled, _ := w.deps.Store.IsCancelRequested(ctx, job.ID); cancelled {
			if fromCache {
				w.cache.Drop()
			} else {
				_ = drv.Disconnect(sess)
			}
			w.finish(ctx, job, domain.StatusStopped, nil, nil)
			return
		}
		if res.err != nil {
			if fromCache {
				w.cache.Drop()
			} else {
				_ = drv.Disconnect(sess)
			}
			w.finish(ctx, job, domain.StatusFailed, nil, apperr.New(apperr.KindDriver, res.err.Error()))
			return
		}
		if !fromCache {
			w.cache.Put(job.Conn, sess, drv)
			// FIFO's noCache.Put is a no-op, so disconnect immediately
			// after use: each FIFO job owns its own connect/disconnect.
			if w.Kind == domain.WorkerKindFIFO {
				_ = drv.Disconnect(sess)
			}
		}
		w.finish(ctx, job, domain.StatusFinished, res.result, nil)
		return
	}
}

type stepResult struct {
	result *domain.Result
	err    error
}

func (w *Worker) runDriverStep(ctx context.Context, drv driver.Driver, sess driver.Session, job *domain.Job, out chan<- stepResult) {
	switch job.Operation {
	case domain.OpPush:
		report, err := drv.ApplyConfig(ctx, sess, job.Payload.ConfigLines)
		if err != nil {
			out <- stepResult{err: err}
			return
		}
		out <- stepResult{result: &domain.Result{Retval: map[string]string{"config": report.Detail}}}
	default:
		outputs, err := drv.Execute(ctx, sess, job.Payload.Commands)
		if err != nil {
			out <- stepResult{err: err}
			return
		}
		out <- stepResult{result: &domain.Result{Retval: outputs}}
	}
}

func (w *Worker) obtainSession(ctx context.Context, drv driver.Driver, params domain.ConnectionParams) (driver.Session, bool, error) {
	if sess, ok := w.cache.Get(params); ok {
		return sess, true, nil
	}
	sess, err := drv.Connect(ctx, params)
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

func (w *Worker) finish(ctx context.Context, job *domain.Job, status domain.JobStatus, result *domain.Result, aerr *apperr.Error) {
	now := time.Now()
	job.Status = status
	job.EndedAt = &now
	if result != nil {
		job.Result = result
	}
	if aerr != nil {
		if job.Result == nil {
			job.Result = &domain.Result{}
		}
		job.Result.Error = &domain.ResultError{Kind: string(aerr.Kind), Message: aerr.Message}
	}
	if err := w.deps.Store.SaveJob(ctx, job); err != nil {
		w.log.Warn("failed to save finished job", "job_id", job.ID, "error", err)
	}
	if w.deps.Metrics != nil {
		w.deps.Metrics.ObserveJob(job.Driver, string(status))
	}
	w.log.Debug("job finished", "job_id", job.ID, "status", status, "msg", fmt.Sprintf("%v", aerr))
}
