// Package node implements the node supervisor: the long-running
// process on each worker machine that registers the node, maintains
// its heartbeat, and owns a population of pinned workers plus zero or
// more FIFO workers.
//
// Pinned and FIFO workers run as supervised goroutines rather than OS
// subprocesses, each wrapped in a recover() guard so a crashed worker
// cannot take down its siblings or the supervisor.
package node

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yungbote/netpulse/internal/credential"
	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/driver"
	"github.com/yungbote/netpulse/internal/observability"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
	"github.com/yungbote/netpulse/internal/worker"
)

type Config struct {
	NodeID   string
	Hostname string
	Capacity int
	FIFOWorkers int

	HeartbeatInterval time.Duration // T_hb, e.g. 1/3 of NodeTTL
	NodeTTL           time.Duration
	ReconcileInterval time.Duration // T_rec
	DrainGrace        time.Duration

	Worker worker.Config
}

func DefaultConfig(nodeID string) Config {
	return Config{
		NodeID:            nodeID,
		Capacity:          16,
		FIFOWorkers:       4,
		HeartbeatInterval: 5 * time.Second,
		NodeTTL:           15 * time.Second,
		ReconcileInterval: 3 * time.Second,
		DrainGrace:        30 * time.Second,
		Worker:            worker.DefaultConfig(),
	}
}

type pinnedEntry struct {
	cancel context.CancelFunc
}

// Supervisor owns the lifecycle of one node's workers.
type Supervisor struct {
	cfg   Config
	store store.Store
	log   *logger.Logger

	deps worker.Deps

	mu     sync.Mutex
	pinned map[string]*pinnedEntry
	state  State
	seq    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hbFailures int
}

func New(cfg Config, st store.Store, drivers *driver.Registry, creds credential.Provider, metrics *observability.Metrics, log *logger.Logger) *Supervisor {
	hostname, _ := os.Hostname()
	if cfg.Hostname == "" {
		cfg.Hostname = hostname
	}
	return &Supervisor{
		cfg:   cfg,
		store: st,
		log:   log.With("component", "node", "node_id", cfg.NodeID),
		deps: worker.Deps{
			Store:       st,
			Drivers:     drivers,
			Credentials: creds,
			Log:         log,
			Metrics:     metrics,
		},
		pinned: make(map[string]*pinnedEntry),
		state:  StateStarting,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start registers the node, spawns FIFO workers, and begins the
// heartbeat and reconcile loops. It returns once the node is active.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.publishHeartbeat(s.ctx); err != nil {
		return fmt.Errorf("node: initial heartbeat failed: %w", err)
	}
	s.setState(StateActive)

	for i := 0; i < s.cfg.FIFOWorkers; i++ {
		s.spawnFIFO(i)
	}

	s.wg.Add(2)
	go s.heartbeatLoop()
	go s.reconcileLoop()
	return nil
}

// Drain transitions the node to draining, signals every owned pinned
// worker to finish its in-flight job then exit, and removes the node
// record once the last worker exits or DrainGrace elapses.
func (s *Supervisor) Drain() {
	if s.State() == StateGone {
		return
	}
	s.setState(StateDraining)
	s.log.Info("node draining")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.DrainGrace):
		s.log.Warn("drain grace period expired, forcing node removal")
	}

	_ = s.store.ExpireNode(context.Background(), s.cfg.NodeID)
	s.setState(StateGone)
}

func (s *Supervisor) publishHeartbeat(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.pinned)
	s.mu.Unlock()
	rec := &domain.NodeRecord{
		Hostname:           s.cfg.Hostname,
		PID:                os.Getpid(),
		Capacity:           s.cfg.Capacity,
		CurrentPinnedCount: count,
	}
	if err := s.store.Heartbeat(ctx, s.cfg.NodeID, rec, s.cfg.NodeTTL); err != nil {
		return err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveNode(s.cfg.NodeID, s.cfg.Capacity, count)
	}
	return nil
}

func (s *Supervisor) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.publishHeartbeat(s.ctx); err != nil {
				s.hbFailures++
				s.log.Warn("heartbeat write failed", "error", err, "consecutive_failures", s.hbFailures)
				if s.hbFailures >= 3 {
					s.log.Error("persistent heartbeat failure, draining node")
					go s.Drain()
					return
				}
			} else {
				s.hbFailures = 0
			}
		}
	}
}

func (s *Supervisor) reconcileLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.reconcile()
		}
	}
}

// reconcile spawns workers for unserved bindings (capacity
// permitting), signals exit for workers whose binding vanished, and
// reclaims bindings pointing at dead nodes.
func (s *Supervisor) reconcile() {
	if s.State() != StateActive {
		return
	}
	ctx := s.ctx

	hosts, err := s.store.ListHostsForNode(ctx, s.cfg.NodeID)
	if err != nil {
		s.log.Warn("reconcile: list_hosts_for_node failed", "error", err)
	} else {
		wanted := make(map[string]struct{}, len(hosts))
		for _, h := range hosts {
			wanted[h] = struct{}{}
		}

		s.mu.Lock()
		var toSpawn []string
		for h := range wanted {
			if _, ok := s.pinned[h]; !ok {
				toSpawn = append(toSpawn, h)
			}
		}
		var toStop []context.CancelFunc
		for h, entry := range s.pinned {
			if _, ok := wanted[h]; !ok {
				toStop = append(toStop, entry.cancel)
				delete(s.pinned, h)
			}
		}
		capacityLeft := s.cfg.Capacity - len(s.pinned)
		s.mu.Unlock()

		for _, cancel := range toStop {
			cancel()
		}
		for _, h := range toSpawn {
			if capacityLeft <= 0 {
				s.log.Warn("reconcile: binding exists but node is at capacity", "host", h)
				continue
			}
			s.spawnPinned(h)
			capacityLeft--
		}
	}

	s.reclaimOrphans(ctx)
}

// reclaimOrphans removes bindings pointing at a node whose heartbeat
// has expired. Any live supervisor may do this; the operation is
// CAS-guarded so concurrent reclaimers never double-release.
func (s *Supervisor) reclaimOrphans(ctx context.Context) {
	known, err := s.store.ListKnownNodeIDs(ctx)
	if err != nil {
		return
	}
	live, err := s.store.ListNodes(ctx)
	if err != nil {
		return
	}
	liveSet := make(map[string]struct{}, len(live))
	for _, n := range live {
		liveSet[n.NodeID] = struct{}{}
	}
	for _, id := range known {
		if id == s.cfg.NodeID {
			continue
		}
		if _, alive := liveSet[id]; alive {
			continue
		}
		hosts, err := s.store.ListHostsForNode(ctx, id)
		if err != nil {
			continue
		}
		for _, h := range hosts {
			if ok, _ := s.store.UnbindHost(ctx, h, id); ok {
				s.log.Info("reclaimed orphaned binding", "host", h, "dead_node", id)
			}
		}
	}
}

func (s *Supervisor) nextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Supervisor) spawnPinned(host string) {
	wctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.pinned[host] = &pinnedEntry{cancel: cancel}
	s.mu.Unlock()

	w := worker.NewPinned(host, s.cfg.NodeID, s.nextSeq(), s.deps, s.cfg.Worker)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("pinned worker panicked", "host", host, "panic", r)
			}
		}()
		worker.RunPinned(wctx, w)
		s.mu.Lock()
		delete(s.pinned, host)
		s.mu.Unlock()
		_, _ = s.store.UnbindHost(context.Background(), host, s.cfg.NodeID)
	}()
}

func (s *Supervisor) spawnFIFO(seq int) {
	w := worker.NewFIFO(s.cfg.NodeID, seq, s.deps, s.cfg.Worker)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("fifo worker panicked", "seq", seq, "panic", r)
			}
		}()
		worker.RunFIFO(s.ctx, w)
	}()
}
