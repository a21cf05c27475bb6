package worker

import (
	"context"
	"fmt"

	"github.com/yungbote/netpulse/internal/domain"
)

// NewFIFO constructs a worker serving the shared fifo queue. Multiple
// FIFO workers run concurrently; ordering across hosts is not
// guaranteed.
func NewFIFO(nodeID string, seq int, deps Deps, cfg Config) *Worker {
	id := fmt.Sprintf("fifo-%s-%d", nodeID, seq)
	return newWorker(id, domain.WorkerKindFIFO, nodeID, []string{domain.FIFOQueue}, deps, cfg, NewNoCache())
}

func RunFIFO(ctx context.Context, w *Worker) {
	w.Run(ctx)
}
