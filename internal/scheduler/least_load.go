package scheduler

import (
	"context"
	"sort"

	"github.com/yungbote/netpulse/internal/domain"
)

type leastLoad struct {
	*base
}

// ChooseNode implements the least-load policy: among nodes with spare
// capacity, pick the minimum current_pinned_count, ties broken by
// node_id ascending for determinism.
func (l *leastLoad) ChooseNode(ctx context.Context, host string) (string, error) {
	return l.choose(ctx, host, func(nodes []*domain.NodeRecord) (string, error) {
		var candidates []*domain.NodeRecord
		for _, n := range nodes {
			if n.HasCapacity() {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) == 0 {
			return "", ErrNoCapacity
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].CurrentPinnedCount != candidates[j].CurrentPinnedCount {
				return candidates[i].CurrentPinnedCount < candidates[j].CurrentPinnedCount
			}
			return candidates[i].NodeID < candidates[j].NodeID
		})
		return candidates[0].NodeID, nil
	})
}
