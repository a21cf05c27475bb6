package worker

import (
	"sync"
	"time"

	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/driver"
)

// SessionCache abstracts the difference between a pinned worker (holds
// one long-lived session) and a FIFO worker (never caches across
// jobs), the one part that doesn't overlap in the otherwise shared
// common loop. A cache owns enough state (including which driver
// produced a session) to disconnect it on its own.
type SessionCache interface {
	Get(params domain.ConnectionParams) (driver.Session, bool)
	Put(params domain.ConnectionParams, sess driver.Session, d driver.Driver)
	// Drop disconnects and discards any cached session.
	Drop()
	// CloseIfIdle disconnects the cached session if unused longer than
	// threshold, returning whether it closed one.
	CloseIfIdle(threshold time.Duration) bool
}

// noCache is the FIFO worker's strategy: every job connects fresh and
// disconnects before returning, never caching a session across jobs.
type noCache struct{}

func NewNoCache() SessionCache { return noCache{} }

func (noCache) Get(domain.ConnectionParams) (driver.Session, bool)      { return nil, false }
func (noCache) Put(domain.ConnectionParams, driver.Session, driver.Driver) {}
func (noCache) Drop()                                                  {}
func (noCache) CloseIfIdle(time.Duration) bool                         { return false }

// pinnedCache holds exactly one long-lived session for the worker's
// single host.
type pinnedCache struct {
	mu       sync.Mutex
	sess     driver.Session
	drv      driver.Driver
	host     string
	lastUsed time.Time
}

func NewPinnedCache() SessionCache { return &pinnedCache{} }

func (c *pinnedCache) Get(params domain.ConnectionParams) (driver.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.host != params.Host {
		return nil, false
	}
	c.lastUsed = time.Now()
	return c.sess, true
}

func (c *pinnedCache) Put(params domain.ConnectionParams, sess driver.Session, d driver.Driver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = sess
	c.drv = d
	c.host = params.Host
	c.lastUsed = time.Now()
}

func (c *pinnedCache) Drop() {
	c.mu.Lock()
	sess, d := c.sess, c.drv
	c.sess, c.drv = nil, nil
	c.mu.Unlock()
	if sess != nil && d != nil {
		_ = d.Disconnect(sess)
	}
}

func (c *pinnedCache) CloseIfIdle(threshold time.Duration) bool {
	c.mu.Lock()
	if c.sess == nil || threshold <= 0 || time.Since(c.lastUsed) < threshold {
		c.mu.Unlock()
		return false
	}
	sess, d := c.sess, c.drv
	c.sess, c.drv = nil, nil
	c.mu.Unlock()
	if d != nil {
		_ = d.Disconnect(sess)
	}
	return true
}
