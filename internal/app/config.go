// Package app wires the core components together for both entrypoints
// (cmd/netpulse-server, cmd/netpulse-node): configuration is a value,
// the store handle is a value, both constructed at startup and passed
// explicitly rather than held in package-level globals.
package app

import (
	"strings"
	"time"

	"github.com/yungbote/netpulse/internal/dispatcher"
	"github.com/yungbote/netpulse/internal/node"
	"github.com/yungbote/netpulse/internal/platform/logger"
	"github.com/yungbote/netpulse/internal/scheduler"
	"github.com/yungbote/netpulse/internal/store"
	"github.com/yungbote/netpulse/internal/utils"
	"github.com/yungbote/netpulse/internal/worker"
)

// Config is NetPulse's full recognized configuration. Every field but
// Store.DB may be overridden by NETPULSE_<SECTION>__<KEY>. Section names
// mostly match the struct field names, upper-cased; the exceptions are
// Scheduler and Node.FIFOWorkers (NETPULSE_WORKER__SCHEDULER,
// NETPULSE_WORKER__FIFO_COUNT) and Worker.DefaultTimeout
// (NETPULSE_JOB__TIMEOUT). See LoadConfig for every key.
type Config struct {
	Server ServerConfig
	Store  store.Options
	Scheduler scheduler.Kind
	Job    dispatcher.Defaults
	Worker worker.Config
	Node   NodeShape
	Log    LogConfig
}

type ServerConfig struct {
	Host          string
	Port          string
	APIKeyHeader  string
	APIKey        string
	CORSOrigins   []string
}

type NodeShape struct {
	Capacity          int
	FIFOWorkers       int
	HeartbeatInterval time.Duration
	NodeTTL           time.Duration
	ReconcileInterval time.Duration
	DrainGrace        time.Duration
}

type LogConfig struct {
	Mode string
}

// LoadConfig layers the NETPULSE_<SECTION>__<KEY> environment-variable
// convention on top of an optional on-disk YAML file
// (NETPULSE_CONFIG_FILE, or ./netpulse.yaml / /etc/netpulse/config.yaml
// when unset): the file supplies defaults, environment variables always
// win, and hardcoded literals are the last resort when neither is set.
func LoadConfig(log *logger.Logger) Config {
	fd := loadFileDefaults(log)
	return Config{
		Server: ServerConfig{
			Host:         utils.GetEnv("NETPULSE_SERVER__HOST", strOr(fd.Server.Host, "0.0.0.0"), log),
			Port:         utils.GetEnv("NETPULSE_SERVER__PORT", strOr(fd.Server.Port, "8080"), log),
			APIKeyHeader: utils.GetEnv("NETPULSE_SERVER__API_KEY_HEADER", strOr(fd.Server.APIKeyHeader, "X-API-KEY"), log),
			APIKey:       utils.GetEnv("NETPULSE_SERVER__API_KEY", fd.Server.APIKey, log),
			CORSOrigins:  splitCSV(utils.GetEnv("NETPULSE_SERVER__CORS_ORIGINS", strOr(fd.Server.CORSOrigins, "*"), log)),
		},
		Store: store.Options{
			Addr:           utils.GetEnv("NETPULSE_STORE__ADDR", strOr(fd.Store.Addr, "127.0.0.1:6379"), log),
			Password:       utils.GetEnv("NETPULSE_STORE__PASSWORD", fd.Store.Password, log),
			TLS:            utils.GetEnvAsBool("NETPULSE_STORE__TLS", boolOr(fd.Store.TLS, false), log),
			SentinelAddrs:  splitCSV(utils.GetEnv("NETPULSE_STORE__SENTINEL_ADDRS", strings.Join(fd.Store.SentinelAddrs, ","), log)),
			SentinelMaster: utils.GetEnv("NETPULSE_STORE__SENTINEL_MASTER", fd.Store.SentinelMaster, log),
		},
		Scheduler: scheduler.Kind(utils.GetEnv("NETPULSE_WORKER__SCHEDULER", strOr(fd.Scheduler, string(scheduler.KindLeastLoad)), log)),
		Job: dispatcher.Defaults{
			TTL:             utils.GetEnvAsDuration("NETPULSE_JOB__TTL", durOr(fd.Job.TTL, 10*time.Minute), log),
			Timeout:         utils.GetEnvAsDuration("NETPULSE_JOB__TIMEOUT", durOr(fd.Job.Timeout, 30*time.Second), log),
			ResultRetention: utils.GetEnvAsDuration("NETPULSE_JOB__RESULT_RETENTION", durOr(fd.Job.ResultRetention, time.Hour), log),
			BulkTTL:         utils.GetEnvAsDuration("NETPULSE_JOB__BULK_TTL", durOr(fd.Job.BulkTTL, 30*time.Minute), log),
			SweepInterval:   utils.GetEnvAsDuration("NETPULSE_JOB__SWEEP_INTERVAL", durOr(fd.Job.SweepInterval, 30*time.Second), log),
		},
		Worker: worker.Config{
			BlockTimeout:         utils.GetEnvAsDuration("NETPULSE_WORKER__BLOCK_TIMEOUT", durOr(fd.Worker.BlockTimeout, 5*time.Second), log),
			CredentialTimeout:    utils.GetEnvAsDuration("NETPULSE_WORKER__CREDENTIAL_TIMEOUT", durOr(fd.Worker.CredentialTimeout, 3*time.Second), log),
			DefaultTimeout:       utils.GetEnvAsDuration("NETPULSE_JOB__TIMEOUT", durOr(fd.Job.Timeout, 30*time.Second), log),
			SessionIdleInterval:  utils.GetEnvAsDuration("NETPULSE_WORKER__SESSION_IDLE_CHECK_INTERVAL", durOr(fd.Worker.SessionIdleInterval, 30*time.Second), log),
			SessionIdleThreshold: utils.GetEnvAsDuration("NETPULSE_WORKER__SESSION_IDLE_THRESHOLD", durOr(fd.Worker.SessionIdleThreshold, 5*time.Minute), log),
		},
		Node: NodeShape{
			Capacity:          utils.GetEnvAsInt("NETPULSE_NODE__PINNED_PER_NODE", intOr(fd.Node.PinnedPerNode, 16), log),
			FIFOWorkers:       utils.GetEnvAsInt("NETPULSE_WORKER__FIFO_COUNT", intOr(fd.Node.FIFOCount, 4), log),
			HeartbeatInterval: utils.GetEnvAsDuration("NETPULSE_NODE__HEARTBEAT_INTERVAL", durOr(fd.Node.HeartbeatInterval, 5*time.Second), log),
			NodeTTL:           utils.GetEnvAsDuration("NETPULSE_NODE__TTL", durOr(fd.Node.TTL, 15*time.Second), log),
			ReconcileInterval: utils.GetEnvAsDuration("NETPULSE_NODE__RECONCILE_INTERVAL", durOr(fd.Node.ReconcileInterval, 3*time.Second), log),
			DrainGrace:        utils.GetEnvAsDuration("NETPULSE_NODE__DRAIN_GRACE", durOr(fd.Node.DrainGrace, 30*time.Second), log),
		},
		Log: LogConfig{
			Mode: utils.GetEnv("NETPULSE_LOG__MODE", strOr(fd.Log.Mode, "development"), log),
		},
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NodeConfig projects Config's node-shaped fields into node.Config for
// a given node id.
func (c Config) NodeConfig(nodeID string) node.Config {
	return node.Config{
		NodeID:            nodeID,
		Capacity:          c.Node.Capacity,
		FIFOWorkers:       c.Node.FIFOWorkers,
		HeartbeatInterval: c.Node.HeartbeatInterval,
		NodeTTL:           c.Node.NodeTTL,
		ReconcileInterval: c.Node.ReconcileInterval,
		DrainGrace:        c.Node.DrainGrace,
		Worker:            c.Worker,
	}
}
