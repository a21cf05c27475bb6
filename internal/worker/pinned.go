package worker

import (
	"context"
	"fmt"

	"github.com/yungbote/netpulse/internal/domain"
)

// NewPinned constructs a worker serving exactly pinned_<host>. seq
// disambiguates worker ids when a node respawns a worker for the same
// host.
func NewPinned(host, nodeID string, seq int, deps Deps, cfg Config) *Worker {
	id := fmt.Sprintf("pinned-%s-%d", host, seq)
	queue := domain.PinnedQueue(host)
	return newWorker(id, domain.WorkerKindPinned, nodeID, []string{queue}, deps, cfg, NewPinnedCache())
}

// RunPinned runs the worker and, on exit (shutdown, binding removal,
// or failure), disconnects its session and returns so the supervisor
// can unbind the host.
func RunPinned(ctx context.Context, w *Worker) {
	w.Run(ctx)
}
