package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/yungbote/netpulse/internal/credential"
	"github.com/yungbote/netpulse/internal/driver"
	"github.com/yungbote/netpulse/internal/driver/httpdriver"
	"github.com/yungbote/netpulse/internal/driver/mockdriver"
	"github.com/yungbote/netpulse/internal/node"
	"github.com/yungbote/netpulse/internal/observability"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/store"
	"github.com/yungbote/netpulse/internal/utils"
)

// NodeApp is the worker process: a single node supervisor and the
// store/driver/credential collaborators it shares with its workers.
type NodeApp struct {
	Log        *logger.Logger
	Cfg        Config
	Store      store.Store
	Metrics    *observability.Metrics
	Supervisor *node.Supervisor
}

func NewNodeApp() (*NodeApp, error) {
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
	metrics := observability.New()

	nodeID := utils.GetEnv("NETPULSE_NODE__ID", "", log)
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	sup := node.New(cfg.NodeConfig(nodeID), st, drivers, creds, metrics, log)

	return &NodeApp{
		Log:        log,
		Cfg:        cfg,
		Store:      st,
		Metrics:    metrics,
		Supervisor: sup,
	}, nil
}

func (a *NodeApp) Start(ctx context.Context) error {
	a.Log.Info("netpulse-node starting")
	return a.Supervisor.Start(ctx)
}

func (a *NodeApp) Drain() {
	a.Log.Info("netpulse-node draining")
	a.Supervisor.Drain()
}

func (a *NodeApp) Close() {
	if a == nil {
		return
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
