// Package driver defines the capability set every device connector
// must implement: connect/execute/disconnect plus an attribute triple
// describing how the runtime should treat sessions from that driver.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/netpulse/internal/domain"
)

// Session is an opaque handle to a live device connection. Drivers
// define their own concrete session types; the worker runtime never
// inspects one, only passes it back to Execute/ApplyConfig/Disconnect.
type Session interface{}

// ConfigReport is returned by ApplyConfig.
type ConfigReport struct {
	Applied bool
	Detail  string
}

// QueueStrategy mirrors domain.QueueStrategy for the attribute triple
// without importing policy concerns into the driver package.
type QueueStrategy string

const (
	StrategyFIFO   QueueStrategy = "fifo"
	StrategyPinned QueueStrategy = "pinned"
)

// Driver is the connect/execute/disconnect contract every plugin
// implements.
type Driver interface {
	Name() string
	Connect(ctx context.Context, params domain.ConnectionParams) (Session, error)
	Execute(ctx context.Context, sess Session, commands []string) (map[string]string, error)
	ApplyConfig(ctx context.Context, sess Session, lines []string) (ConfigReport, error)
	Disconnect(sess Session) error

	PoolSafe() bool
	DefaultQueueStrategy() QueueStrategy
	KeepaliveInterval() time.Duration
}

// Registry is the plugin directory populated at startup, keyed by
// driver name as referenced in a job's Driver field.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver: unknown driver %q", name)
	}
	return d, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	return out
}
