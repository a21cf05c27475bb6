// Package handlers implements the HTTP surface's route handlers. Only
// routing/binding/validation lives here; device and job behavior is
// delegated to internal/dispatcher, and the worker endpoints read and
// write the store's worker records directly.
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/netpulse/internal/domain"
)

// stringOrSlice accepts a bare string or a JSON array of strings, so a
// command field may be given as either shape.
type stringOrSlice []string

func (s *stringOrSlice) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*s = nil
		} else {
			*s = stringOrSlice{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = stringOrSlice(many)
		return nil
	}
	return fmt.Errorf("expected a string or an array of strings")
}

// configField accepts a string, a list of lines, or a template-context
// mapping for config-push payloads.
type configField struct {
	Lines []string
	Ctx   map[string]string
}

func (c *configField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			c.Lines = []string{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		c.Lines = many
		return nil
	}
	var ctx map[string]string
	if err := json.Unmarshal(data, &ctx); err == nil {
		c.Ctx = ctx
		return nil
	}
	return fmt.Errorf("expected a string, an array of strings, or an object")
}

// connectionArgsDTO is the wire shape of a device fingerprint.
type connectionArgsDTO struct {
	Host          string            `json:"host" binding:"required"`
	Port          int               `json:"port"`
	CredentialRef string            `json:"credential_ref"`
	Username      string            `json:"username"`
	Password      string            `json:"password"`
	Extra         map[string]string `json:"extra"`
}

func (c connectionArgsDTO) toDomain(driverName string) domain.ConnectionParams {
	return domain.ConnectionParams{
		Host:          c.Host,
		Port:          c.Port,
		Driver:        driverName,
		CredentialRef: c.CredentialRef,
		Username:      c.Username,
		Password:      c.Password,
		Extra:         c.Extra,
	}
}

// optionsDTO is the wire shape of the per-request options bag:
// queue_strategy, ttl, parsing, and rendering hints.
type optionsDTO struct {
	QueueStrategy   string `json:"queue_strategy"`
	TTLSeconds      int    `json:"ttl_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	RetentionSeconds int   `json:"result_retention_seconds"`
	Parsing         string `json:"parsing"`
	Rendering       string `json:"rendering"`
}

// executeRequestDTO is the POST /device/execute body.
type executeRequestDTO struct {
	Driver          string            `json:"driver" binding:"required"`
	ConnectionArgs  connectionArgsDTO `json:"connection_args" binding:"required"`
	Command         stringOrSlice     `json:"command"`
	Config          *configField      `json:"config"`
	DriverArgs      map[string]string `json:"driver_args"`
	Options         optionsDTO        `json:"options"`
}

func (r executeRequestDTO) operation() domain.OperationKind {
	if r.Config != nil {
		return domain.OpPush
	}
	return domain.OpExecute
}

func (r executeRequestDTO) payload() domain.Payload {
	p := domain.Payload{ParsingHint: r.Options.Parsing, RenderHint: r.Options.Rendering}
	if len(r.Command) > 0 {
		p.Commands = []string(r.Command)
	}
	if r.Config != nil {
		p.ConfigLines = r.Config.Lines
		p.RenderCtx = r.Config.Ctx
	}
	return p
}

// bulkRequestDTO is the POST /device/bulk body.
type bulkRequestDTO struct {
	Driver     string              `json:"driver" binding:"required"`
	Devices    []connectionArgsDTO `json:"devices" binding:"required"`
	Command    stringOrSlice       `json:"command"`
	Config     *configField        `json:"config"`
	Options    optionsDTO          `json:"options"`
}
