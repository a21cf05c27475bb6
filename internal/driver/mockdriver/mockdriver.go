// Package mockdriver is a deterministic stand-in for a real
// SSH/Netmiko-style device connector. Real vendor plugins are external
// collaborators reached only through the driver.Driver interface; this
// package gives the sticky-session and FIFO paths a concrete,
// exercised driver to dispatch to in tests and local runs.
package mockdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/driver"
)

type session struct {
	host      string
	connected time.Time
}

// Driver simulates a stateful network device: connect has a fixed
// latency, commands starting with "fail" return a driver error kind,
// and any host containing "unreachable" always fails to connect.
type Driver struct {
	mu           sync.Mutex
	ConnectDelay time.Duration
	connects     int
}

func New() *Driver {
	return &Driver{ConnectDelay: 5 * time.Millisecond}
}

func (d *Driver) Name() string { return "mock_netmiko" }

func (d *Driver) Connect(ctx context.Context, params domain.ConnectionParams) (driver.Session, error) {
	if strings.Contains(params.Host, "unreachable") {
		return nil, fmt.Errorf("connection refused to %s", params.Host)
	}
	select {
	case <-time.After(d.ConnectDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	return &session{host: params.Host, connected: time.Now()}, nil
}

func (d *Driver) Execute(ctx context.Context, sess driver.Session, commands []string) (map[string]string, error) {
	s, ok := sess.(*session)
	if !ok || s == nil {
		return nil, fmt.Errorf("mockdriver: execute on nil session")
	}
	out := make(map[string]string, len(commands))
	for _, cmd := range commands {
		if strings.HasPrefix(strings.ToLower(cmd), "fail") {
			return out, fmt.Errorf("mockdriver: device rejected command %q", cmd)
		}
		out[cmd] = fmt.Sprintf("%s output for %s at %s", s.host, cmd, time.Now().Format(time.RFC3339))
	}
	return out, nil
}

func (d *Driver) ApplyConfig(ctx context.Context, sess driver.Session, lines []string) (driver.ConfigReport, error) {
	s, ok := sess.(*session)
	if !ok || s == nil {
		return driver.ConfigReport{}, fmt.Errorf("mockdriver: apply_config on nil session")
	}
	return driver.ConfigReport{Applied: true, Detail: fmt.Sprintf("%d lines applied to %s", len(lines), s.host)}, nil
}

func (d *Driver) Disconnect(sess driver.Session) error { return nil }

func (d *Driver) PoolSafe() bool { return false }

func (d *Driver) DefaultQueueStrategy() driver.QueueStrategy { return driver.StrategyPinned }

func (d *Driver) KeepaliveInterval() time.Duration { return 30 * time.Second }
