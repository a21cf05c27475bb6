// Package domain holds the data model shared by the store, scheduler,
// dispatcher, node supervisor, and worker runtime.
package domain

import (
	"encoding/json"
	"time"
)

type OperationKind string

const (
	OpExecute        OperationKind = "execute"
	OpPush           OperationKind = "push"
	OpTestConnection OperationKind = "test-connection"
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusFinished  JobStatus = "finished"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	StatusStopped   JobStatus = "stopped"
	StatusExpired   JobStatus = "expired"
)

// QueueStrategy is the request-level override of a driver's default
// routing.
type QueueStrategy string

const (
	StrategyDefault QueueStrategy = ""
	StrategyFIFO    QueueStrategy = "fifo"
	StrategyPinned  QueueStrategy = "pinned"
)

// ConnectionParams is the device fingerprint: host plus driver-specific
// connection arguments, normalized to a flat map at the API boundary.
type ConnectionParams struct {
	Host            string            `json:"host"`
	Port            int               `json:"port,omitempty"`
	Driver          string            `json:"driver"`
	CredentialRef   string            `json:"credential_ref,omitempty"`
	Username        string            `json:"username,omitempty"`
	Password        string            `json:"password,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Payload is the normalized command/config body. Exactly one of
// Commands or ConfigLines is populated after normalization; the raw
// wire shape (string, []string, or template map) is collapsed by the
// dispatcher before enqueue.
type Payload struct {
	Commands     []string          `json:"commands,omitempty"`
	ConfigLines  []string          `json:"config_lines,omitempty"`
	RenderCtx    map[string]string `json:"render_ctx,omitempty"`
	ParsingHint  string            `json:"parsing_hint,omitempty"`
	RenderHint   string            `json:"render_hint,omitempty"`
}

// ResultError is the terminal error recorded on a failed/stopped job.
type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is a finished job's structured output: command/config-line
// keyed output, or a terminal error — never both.
type Result struct {
	Retval           map[string]string `json:"retval,omitempty"`
	Error            *ResultError      `json:"error,omitempty"`
	ConnectionTimeMs int64             `json:"connection_time_ms,omitempty"`
}

// Job is the unit of work dispatched against a single device.
type Job struct {
	ID        string        `json:"id"`
	Driver    string        `json:"driver"`
	Operation OperationKind `json:"operation"`

	Conn    ConnectionParams `json:"conn"`
	Payload Payload          `json:"payload"`

	Queue string `json:"queue"`

	QueueStrategy QueueStrategy `json:"queue_strategy,omitempty"`

	Status JobStatus `json:"status"`

	TTL              time.Duration `json:"ttl"`
	Timeout          time.Duration `json:"timeout"`
	ResultRetention  time.Duration `json:"result_retention"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	NodeID string `json:"node_id,omitempty"`

	Result *Result `json:"result,omitempty"`

	CancelRequested bool `json:"cancel_requested,omitempty"`
}

func (j *Job) MarshalRecord() (map[string]string, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return map[string]string{"json": string(raw)}, nil
}

func UnmarshalRecord(fields map[string]string) (*Job, error) {
	raw, ok := fields["json"]
	if !ok {
		return nil, nil
	}
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCancelled, StatusStopped, StatusExpired:
		return true
	default:
		return false
	}
}
