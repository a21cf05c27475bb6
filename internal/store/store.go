// Package store defines the job store contract: ordered queues,
// atomic key/value for bindings and node records, and a blocking
// primitive workers wait on. Any backend providing these operations
// can serve; internal/store/redis.go is the shipped one.
package store

import (
	"context"
	"time"

	"github.com/yungbote/netpulse/internal/domain"
)

// JobFilter narrows ListJobs.
type JobFilter struct {
	ID     string
	Queue  string
	Status domain.JobStatus
	NodeID string
	Host   string
}

// Store is the persistence/coordination contract every other
// component (scheduler, dispatcher, node supervisor, worker runtime)
// depends on.
type Store interface {
	// Queues
	Enqueue(ctx context.Context, queue string, job *domain.Job) error
	Dequeue(ctx context.Context, queues []string, blockTimeout time.Duration) (*domain.Job, error)

	// Jobs
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	SaveJob(ctx context.Context, job *domain.Job) error
	ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
	DeleteJob(ctx context.Context, id string) error
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
	SweepExpired(ctx context.Context) (int, error)

	// Host -> node bindings
	BindHost(ctx context.Context, host, node string) (string, error)
	GetHostNode(ctx context.Context, host string) (string, error)
	UnbindHost(ctx context.Context, host, node string) (bool, error)
	ListHostsForNode(ctx context.Context, node string) ([]string, error)

	// Node records
	Heartbeat(ctx context.Context, node string, rec *domain.NodeRecord, ttl time.Duration) error
	GetNode(ctx context.Context, node string) (*domain.NodeRecord, error)
	ListNodes(ctx context.Context) ([]*domain.NodeRecord, error)
	ExpireNode(ctx context.Context, node string) error
	// ListKnownNodeIDs returns every node id ever heartbeated, including
	// ones whose heartbeat has since lapsed. Used by the reconcile loop
	// to find dead nodes whose bindings need reclaiming; ListNodes only
	// reports live ones.
	ListKnownNodeIDs(ctx context.Context) ([]string, error)

	// Worker records (observational)
	RegisterWorker(ctx context.Context, w *domain.WorkerRecord, ttl time.Duration) error
	UnregisterWorker(ctx context.Context, id string) error
	ListWorkers(ctx context.Context) ([]*domain.WorkerRecord, error)

	Close() error
}
