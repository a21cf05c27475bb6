// Package scheduler chooses which node owns a device's pinned queue.
// The set of policies is closed by design, selectable by
// configuration rather than a runtime plugin surface.
package scheduler

import (
	"context"
	"errors"

	"github.com/yungbote/netpulse/internal/apperr"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
)

// ErrNoCapacity is returned when no live node has spare pinned
// capacity.
var ErrNoCapacity = apperr.New(apperr.KindNoCapacity, "no node with spare pinned capacity")

type Kind string

const (
	KindLeastLoad         Kind = "least-load"
	KindLoadWeightedRandom Kind = "load-weighted-random"
)

// Scheduler decides which node shall own a device's pinned queue.
type Scheduler interface {
	ChooseNode(ctx context.Context, host string) (nodeID string, err error)
}

// New builds the configured scheduler kind.
func New(kind Kind, st store.Store, log *logger.Logger) (Scheduler, error) {
	base := &base{store: st, log: log.With("component", "scheduler", "kind", string(kind))}
	switch kind {
	case KindLeastLoad:
		return &leastLoad{base: base}, nil
	case KindLoadWeightedRandom:
		return &weightedRandom{base: base}, nil
	default:
		return nil, errors.New("scheduler: unknown kind " + string(kind))
	}
}

type base struct {
	store store.Store
	log   *logger.Logger
}

// choose is shared by every policy: if a live binding already exists
// for host, return it unchanged (idempotent under concurrent
// dispatches); otherwise ask pick for a candidate and attempt the CAS
// bind, re-reading the winner on conflict.
func (b *base) choose(ctx context.Context, host string, pick func([]*domain.NodeRecord) (string, error)) (string, error) {
	existing, err := b.store.GetHostNode(ctx, host)
	if err != nil {
		return "", err
	}
	if existing != "" {
		node, err := b.store.GetNode(ctx, existing)
		if err != nil {
			return "", err
		}
		if node != nil {
			return existing, nil
		}
		// Binding points at a dead node; a supervisor will reclaim it
		// on its next reconcile pass. Fall through and attempt a fresh
		// bind; UnbindHost is CAS-guarded so we never race the
		// reclaiming supervisor.
		_, _ = b.store.UnbindHost(ctx, host, existing)
	}

	nodes, err := b.store.ListNodes(ctx)
	if err != nil {
		return "", err
	}
	candidate, err := pick(nodes)
	if err != nil {
		return "", err
	}
	winner, err := b.store.BindHost(ctx, host, candidate)
	if err != nil {
		return "", err
	}
	return winner, nil
}
