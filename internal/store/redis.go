package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/netpulse/internal/domain"
	"github.com/yungbote/netpulse/internal/platform/logger"
)

// Redis key layout: queues are LISTs, jobs are HASHes carrying a
// single JSON blob field, bindings are plain STRINGs without expiry,
// node and worker records are HASHes with TTL, and two SETs index live
// nodes and known nodes.
const (
	keyQueuePrefix   = "np:queue:"
	keyJobPrefix     = "np:job:"
	keyJobIndex      = "np:jobindex"
	keyHostPrefix    = "np:host:"
	keyNodePrefix    = "np:node:"
	keyNodesSet      = "np:nodes"
	keyNodeHostsPre  = "np:nodehosts:"
	keyWorkerPrefix  = "np:worker:"
	keyWorkersSet    = "np:workers"
	keyNodesAllSet   = "np:nodes:all"
)

type redisStore struct {
	log *logger.Logger
	rdb *goredis.Client

	bindHostScript   *goredis.Script
	unbindHostScript *goredis.Script
}

// Options configures the Redis-backed store. SentinelAddrs/SentinelMaster
// select sentinel-style high-availability per spec.md §6; when empty the
// store dials Addr directly.
type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool

	SentinelAddrs  []string
	SentinelMaster string
}

// OptionsFromEnv reads the NETPULSE_STORE__<KEY> environment
// variables, falling back to local defaults.
func OptionsFromEnv(log *logger.Logger) Options {
	return Options{
		Addr:     envOr("NETPULSE_STORE__ADDR", "127.0.0.1:6379"),
		Password: envOr("NETPULSE_STORE__PASSWORD", ""),
		DB:       0,
		TLS:      envOr("NETPULSE_STORE__TLS", "") == "true",
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// bindHostScript implements the create-if-absent CAS: if the host is
// unbound, bind it to ARGV[1] and add it to that node's host set;
// either way, return the node now on record.
const bindHostLua = `
local existing = redis.call("GET", KEYS[1])
if existing then
  return existing
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[3])
return ARGV[1]
`

// unbindHostScript implements the conditional delete: only remove the
// binding if it still points at the caller's node.
const unbindHostLua = `
local existing = redis.call("GET", KEYS[1])
if existing == ARGV[1] then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[2])
  return 1
end
return 0
`

// New constructs a Redis-backed Store and verifies connectivity. When
// opts.SentinelAddrs is non-empty it dials through Sentinel for
// automatic master failover instead of a fixed Addr; opts.TLS enables
// TLS on the connection either way.
func New(ctx context.Context, opts Options, log *logger.Logger) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("store: logger required")
	}
	var tlsCfg *tls.Config
	if opts.TLS {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	var rdb *goredis.Client
	if len(opts.SentinelAddrs) > 0 {
		rdb = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    opts.SentinelMaster,
			SentinelAddrs: opts.SentinelAddrs,
			Password:      opts.Password,
			DB:            opts.DB,
			DialTimeout:   5 * time.Second,
			TLSConfig:     tlsCfg,
		})
	} else {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: 5 * time.Second,
			TLSConfig:   tlsCfg,
		})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &redisStore{
		log:              log.With("component", "store"),
		rdb:              rdb,
		bindHostScript:   goredis.NewScript(bindHostLua),
		unbindHostScript: goredis.NewScript(unbindHostLua),
	}, nil
}

// NewFromClient wraps an already-constructed client (used by tests
// against miniredis).
func NewFromClient(rdb *goredis.Client, log *logger.Logger) Store {
	return &redisStore{
		log:              log.With("component", "store"),
		rdb:              rdb,
		bindHostScript:   goredis.NewScript(bindHostLua),
		unbindHostScript: goredis.NewScript(unbindHostLua),
	}
}

func (s *redisStore) Close() error { return s.rdb.Close() }

func jobKey(id string) string   { return keyJobPrefix + id }
func nodeKey(id string) string  { return keyNodePrefix + id }
func hostKey(h string) string   { return keyHostPrefix + h }
func nhostsKey(n string) string { return keyNodeHostsPre + n }
func workerKey(id string) string { return keyWorkerPrefix + id }

// --- Queues ---

func (s *redisStore) Enqueue(ctx context.Context, queue string, job *domain.Job) error {
	job.Queue = queue
	fields, err := job.MarshalRecord()
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), fields)
	if job.TTL > 0 {
		pipe.Expire(ctx, jobKey(job.ID), job.TTL)
	}
	pipe.SAdd(ctx, keyJobIndex, job.ID)
	pipe.RPush(ctx, keyQueuePrefix+queue, job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Dequeue(ctx context.Context, queues []string, blockTimeout time.Duration) (*domain.Job, error) {
	keys := make([]string, 0, len(queues))
	for _, q := range queues {
		keys = append(keys, keyQueuePrefix+q)
	}
	res, err := s.rdb.BLPop(ctx, blockTimeout, keys...).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res = [queueKey, jobID]
	id := res[1]
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		// TTL'd out between push and pop; caller loops back.
		return nil, nil
	}
	return job, nil
}

// --- Jobs ---

func (s *redisStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return domain.UnmarshalRecord(fields)
}

// SaveJob rewrites the job hash and re-arms its key TTL according to
// status: while queued the key's expiry is re-armed to a full ttl from
// now; once a job leaves the queue (running, or any terminal status without
// a retention window) the queued TTL must not keep counting down
// underneath it, so the key is persisted until a terminal status with a
// result-retention deadline re-arms a fresh expiry.
func (s *redisStore) SaveJob(ctx context.Context, job *domain.Job) error {
	fields, err := job.MarshalRecord()
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), fields)
	switch {
	case job.Status.IsTerminal() && job.ResultRetention > 0:
		pipe.Expire(ctx, jobKey(job.ID), job.ResultRetention)
	case job.Status == domain.StatusQueued && job.TTL > 0:
		pipe.Expire(ctx, jobKey(job.ID), job.TTL)
	default:
		pipe.Persist(ctx, jobKey(job.ID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	if filter.ID != "" {
		j, err := s.GetJob(ctx, filter.ID)
		if err != nil || j == nil {
			return nil, err
		}
		return []*domain.Job{j}, nil
	}
	ids, err := s.rdb.SMembers(ctx, keyJobIndex).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if j == nil {
			// Expired without a sweep pass; drop from the index lazily.
			s.rdb.SRem(ctx, keyJobIndex, id)
			continue
		}
		if filter.Queue != "" && j.Queue != filter.Queue {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.NodeID != "" && j.NodeID != filter.NodeID {
			continue
		}
		if filter.Host != "" && j.Conn.Host != filter.Host {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *redisStore) DeleteJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	if job.Status == domain.StatusQueued {
		pipe := s.rdb.TxPipeline()
		pipe.LRem(ctx, keyQueuePrefix+job.Queue, 0, id)
		job.Status = domain.StatusCancelled
		fields, _ := job.MarshalRecord()
		pipe.HSet(ctx, jobKey(id), fields)
		_, err = pipe.Exec(ctx)
		return err
	}
	if job.Status == domain.StatusRunning {
		return s.RequestCancel(ctx, id)
	}
	return nil
}

func (s *redisStore) RequestCancel(ctx context.Context, id string) error {
	return s.rdb.HSet(ctx, jobKey(id), "cancel", "1").Err()
}

func (s *redisStore) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	v, err := s.rdb.HGet(ctx, jobKey(id), "cancel").Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SweepExpired scans the job index. An id whose key has already TTL'd
// out of Redis is only removed from the index: no record of that job
// remains, so it is not marked expired. A job whose key still exists,
// is still queued, and is older than its ttl (counted from CreatedAt)
// is marked expired and removed from its queue. Enqueue arms the key's
// expiry to that same ttl, so most unclaimed jobs take the first path.
func (s *redisStore) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.rdb.SMembers(ctx, keyJobIndex).Result()
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range ids {
		exists, err := s.rdb.Exists(ctx, jobKey(id)).Result()
		if err != nil {
			return swept, err
		}
		if exists == 0 {
			s.rdb.SRem(ctx, keyJobIndex, id)
			swept++
			continue
		}
		job, err := s.GetJob(ctx, id)
		if err != nil || job == nil {
			continue
		}
		if job.Status == domain.StatusQueued && time.Since(job.CreatedAt) > job.TTL && job.TTL > 0 {
			job.Status = domain.StatusExpired
			now := time.Now()
			job.EndedAt = &now
			_ = s.SaveJob(ctx, job)
			s.rdb.LRem(ctx, keyQueuePrefix+job.Queue, 0, id)
			swept++
		}
	}
	return swept, nil
}

// --- Host -> node bindings ---

func (s *redisStore) BindHost(ctx context.Context, host, node string) (string, error) {
	res, err := s.bindHostScript.Run(ctx, s.rdb, []string{hostKey(host), nhostsKey(node)}, node, host, host).Result()
	if err != nil {
		return "", err
	}
	winner, _ := res.(string)
	return winner, nil
}

func (s *redisStore) GetHostNode(ctx context.Context, host string) (string, error) {
	v, err := s.rdb.Get(ctx, hostKey(host)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	return v, err
}

func (s *redisStore) UnbindHost(ctx context.Context, host, node string) (bool, error) {
	res, err := s.unbindHostScript.Run(ctx, s.rdb, []string{hostKey(host), nhostsKey(node)}, node, host).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *redisStore) ListHostsForNode(ctx context.Context, node string) ([]string, error) {
	return s.rdb.SMembers(ctx, nhostsKey(node)).Result()
}

// --- Node records ---

func (s *redisStore) Heartbeat(ctx context.Context, node string, rec *domain.NodeRecord, ttl time.Duration) error {
	rec.NodeID = node
	rec.LastHeartbeat = time.Now()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, nodeKey(node), map[string]interface{}{
		"hostname": rec.Hostname,
		"pid":      rec.PID,
		"capacity": rec.Capacity,
		"pinned":   rec.CurrentPinnedCount,
	})
	pipe.Expire(ctx, nodeKey(node), ttl)
	pipe.SAdd(ctx, keyNodesSet, node)
	pipe.SAdd(ctx, keyNodesAllSet, node)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) ListKnownNodeIDs(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, keyNodesAllSet).Result()
}

func (s *redisStore) GetNode(ctx context.Context, node string) (*domain.NodeRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, nodeKey(node)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseNodeFields(node, fields), nil
}

func (s *redisStore) ListNodes(ctx context.Context) ([]*domain.NodeRecord, error) {
	ids, err := s.rdb.SMembers(ctx, keyNodesSet).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.NodeRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Heartbeat TTL'd out; the node is dead. Drop it from the
			// live set lazily so list_nodes reflects reality.
			s.rdb.SRem(ctx, keyNodesSet, id)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *redisStore) ExpireNode(ctx context.Context, node string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, nodeKey(node))
	pipe.SRem(ctx, keyNodesSet, node)
	_, err := pipe.Exec(ctx)
	return err
}

func parseNodeFields(id string, f map[string]string) *domain.NodeRecord {
	rec := &domain.NodeRecord{NodeID: id, Hostname: f["hostname"]}
	fmt.Sscanf(f["pid"], "%d", &rec.PID)
	fmt.Sscanf(f["capacity"], "%d", &rec.Capacity)
	fmt.Sscanf(f["pinned"], "%d", &rec.CurrentPinnedCount)
	return rec
}

// --- Worker records ---

func (s *redisStore) RegisterWorker(ctx context.Context, w *domain.WorkerRecord, ttl time.Duration) error {
	w.LastSeen = time.Now()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, workerKey(w.ID), map[string]interface{}{
		"kind":    string(w.Kind),
		"queues":  joinStrings(w.Queues),
		"node_id": w.NodeID,
	})
	pipe.Expire(ctx, workerKey(w.ID), ttl)
	pipe.SAdd(ctx, keyWorkersSet, w.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) UnregisterWorker(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, workerKey(id))
	pipe.SRem(ctx, keyWorkersSet, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) ListWorkers(ctx context.Context) ([]*domain.WorkerRecord, error) {
	ids, err := s.rdb.SMembers(ctx, keyWorkersSet).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.WorkerRecord, 0, len(ids))
	for _, id := range ids {
		fields, err := s.rdb.HGetAll(ctx, workerKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			s.rdb.SRem(ctx, keyWorkersSet, id)
			continue
		}
		out = append(out, &domain.WorkerRecord{
			ID:     id,
			Kind:   domain.WorkerKind(fields["kind"]),
			Queues: splitStrings(fields["queues"]),
			NodeID: fields["node_id"],
		})
	}
	return out, nil
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func splitStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
