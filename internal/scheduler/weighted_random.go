package scheduler

import (
	"context"
	"math/rand"

	"github.com/yungbote/netpulse/internal/domain"
)

type weightedRandom struct {
	*base
}

// ChooseNode implements load-weighted-random: weight
// w_n = max(1, capacity_n - current_pinned_count_n), sampled with
// probability w_n / sum(w_m) over nodes with spare capacity.
func (w *weightedRandom) ChooseNode(ctx context.Context, host string) (string, error) {
	return w.choose(ctx, host, func(nodes []*domain.NodeRecord) (string, error) {
		type weighted struct {
			id     string
			weight int
		}
		var candidates []weighted
		total := 0
		for _, n := range nodes {
			if !n.HasCapacity() {
				continue
			}
			wt := n.Capacity - n.CurrentPinnedCount
			if wt < 1 {
				wt = 1
			}
			candidates = append(candidates, weighted{id: n.NodeID, weight: wt})
			total += wt
		}
		if len(candidates) == 0 {
			return "", ErrNoCapacity
		}
		r := rand.Intn(total)
		acc := 0
		for _, c := range candidates {
			acc += c.weight
			if r < acc {
				return c.id, nil
			}
		}
		return candidates[len(candidates)-1].id, nil
	})
}
