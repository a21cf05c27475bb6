package app

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/netpulse/internal/platform/logger"
)

// fileDefaults mirrors Config's leaf fields as the same strings that
// would otherwise arrive via NETPULSE_<SECTION>__<KEY> env vars, so one
// on-disk YAML file can seed every default the env-var loader falls
// back to. Per spec.md §6, env overrides always trump the file.
type fileDefaults struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         string `yaml:"port"`
		APIKeyHeader string `yaml:"api_key_header"`
		APIKey       string `yaml:"api_key"`
		CORSOrigins  string `yaml:"cors_origins"`
	} `yaml:"server"`
	Store struct {
		Addr           string   `yaml:"addr"`
		Password       string   `yaml:"password"`
		TLS            string   `yaml:"tls"`
		SentinelAddrs  []string `yaml:"sentinel_addrs"`
		SentinelMaster string   `yaml:"sentinel_master"`
	} `yaml:"store"`
	Scheduler string `yaml:"scheduler"`
	Job       struct {
		TTL             string `yaml:"ttl"`
		Timeout         string `yaml:"timeout"`
		ResultRetention string `yaml:"result_retention"`
		BulkTTL         string `yaml:"bulk_ttl"`
		SweepInterval   string `yaml:"sweep_interval"`
	} `yaml:"job"`
	Worker struct {
		BlockTimeout         string `yaml:"block_timeout"`
		CredentialTimeout    string `yaml:"credential_timeout"`
		SessionIdleInterval  string `yaml:"session_idle_check_interval"`
		SessionIdleThreshold string `yaml:"session_idle_threshold"`
	} `yaml:"worker"`
	Node struct {
		PinnedPerNode     string `yaml:"pinned_per_node"`
		FIFOCount         string `yaml:"fifo_count"`
		HeartbeatInterval string `yaml:"heartbeat_interval"`
		TTL               string `yaml:"ttl"`
		ReconcileInterval string `yaml:"reconcile_interval"`
		DrainGrace        string `yaml:"drain_grace"`
	} `yaml:"node"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
}

// defaultConfigPaths are searched, in order, when NETPULSE_CONFIG_FILE
// is unset.
var defaultConfigPaths = []string{"./netpulse.yaml", "./netpulse.yml", "/etc/netpulse/config.yaml"}

// loadFileDefaults reads the YAML file that env-var overrides layer on
// top of. A missing or absent file is not an error: NetPulse is fully
// runnable from environment variables alone.
func loadFileDefaults(log *logger.Logger) fileDefaults {
	var fd fileDefaults
	candidates := defaultConfigPaths
	if path := os.Getenv("NETPULSE_CONFIG_FILE"); path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(raw, &fd); err != nil {
			if log != nil {
				log.Warn("failed to parse config file, ignoring", "path", p, "error", err)
			}
			continue
		}
		if log != nil {
			log.Info("loaded config file", "path", p)
		}
		break
	}
	return fd
}

// strOr returns fileVal unless it's empty, in which case it falls back
// to hardDefault.
func strOr(fileVal, hardDefault string) string {
	if fileVal != "" {
		return fileVal
	}
	return hardDefault
}

// durOr parses fileVal as a duration, falling back to hardDefault when
// fileVal is empty or unparsable.
func durOr(fileVal string, hardDefault time.Duration) time.Duration {
	if fileVal == "" {
		return hardDefault
	}
	d, err := time.ParseDuration(fileVal)
	if err != nil {
		return hardDefault
	}
	return d
}

// intOr parses fileVal as an int, falling back to hardDefault when
// fileVal is empty or unparsable.
func intOr(fileVal string, hardDefault int) int {
	if fileVal == "" {
		return hardDefault
	}
	i, err := strconv.Atoi(fileVal)
	if err != nil {
		return hardDefault
	}
	return i
}

// boolOr parses fileVal as a bool, falling back to hardDefault when
// fileVal is empty or unparsable.
func boolOr(fileVal string, hardDefault bool) bool {
	if fileVal == "" {
		return hardDefault
	}
	b, err := strconv.ParseBool(fileVal)
	if err != nil {
		return hardDefault
	}
	return b
}
