// Package app wires the core components together for both entrypoints
// (cmd/netpulse-server, cmd/netpulse-node): configuration is a value,
// the store handle is a value, both constructed at startup and passed
// explicitly rather than held in package-level globals.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/netpulse/internal/credential"
	"github.com/yungbote/netpulse/internal/dispatcher"
	"github.com/yungbote/netpulse/internal/driver"
	"github.com/yungbote/netpulse/internal/driver/httpdriver"
	"github.com/yungbote/netpulse/internal/driver/mockdriver"
	nethttp "github.com/yungbote/netpulse/internal/http"
	"github.com/yungbote/netpulse/internal/http/handlers"
	"github.com/yungbote/netpulse/internal/observability"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/scheduler"
	"github.com/yungbote/netpulse/internal/store"
)

// ServerApp is the API process: HTTP surface plus its collaborators.
type ServerApp struct {
	Log     *logger.Logger
	Cfg     Config
	Store   store.Store
	Metrics *observability.Metrics
	Server  *nethttp.Server
	addr    string

	sweepCancel context.CancelFunc
}

func NewServerApp() (*ServerApp, error) {
	log, err := logger.New(os.Getenv("NETPULSE_LOG__MODE"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	st, err := store.New(context.Background(), cfg.Store, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init store: %w", err)
	}

	drivers := driver.NewRegistry()
	drivers.Register(mockdriver.New())
	drivers.Register(httpdriver.New())

	creds := credential.WithCache(credential.NewEnvProvider(os.LookupEnv), cfg.Worker.CredentialTimeout)

	sched, err := scheduler.New(cfg.Scheduler, st, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	metrics := observability.New()
	disp := dispatcher.New(st, sched, drivers, creds, cfg.Job, log)

	router := nethttp.NewRouter(nethttp.RouterConfig{
		Log:          log,
		Metrics:      metrics,
		APIKeyHeader: cfg.Server.APIKeyHeader,
		APIKey:       cfg.Server.APIKey,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Device:       handlers.NewDeviceHandler(log, disp),
		Job:          handlers.NewJobHandler(log, disp),
		Worker:       handlers.NewWorkerHandler(log, st),
		Health:       handlers.NewHealthHandler(),
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	return &ServerApp{
		Log:     log,
		Cfg:     cfg,
		Store:   st,
		Metrics: metrics,
		Server:  nethttp.NewServer(router, addr),
		addr:    addr,
	}, nil
}

func (a *ServerApp) Run() error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	go a.sweepLoop(sweepCtx)

	a.Log.Info("netpulse-server starting", "addr", a.addr)
	return a.Server.Run()
}

// sweepLoop periodically runs the store's consistency sweep, which
// marks queued jobs that aged past their ttl without being claimed as
// expired (spec.md §5, "a consistency sweep marks it expired").
func (a *ServerApp) sweepLoop(ctx context.Context) {
	interval := a.Cfg.Job.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Store.SweepExpired(ctx)
			if err != nil {
				a.Log.Warn("sweep expired jobs failed", "error", err)
				continue
			}
			if n > 0 {
				a.Log.Debug("swept expired jobs", "count", n)
			}
		}
	}
}

func (a *ServerApp) Close() {
	if a == nil {
		return
	}
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
