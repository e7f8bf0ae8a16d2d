package models

import (
	"encoding/json"
	"time"
)

// SimulationTrigger periodically invokes a module with a fixed payload
type SimulationTrigger struct {
	ID         string          `json:"id"`
	Project    string          `json:"project"`
	ModuleID   string          `json:"module_id"`
	Interval   string          `json:"interval"`
	Payload    json.RawMessage `json:"payload"`
	Runs       int             `json:"runs"`
	LastStatus string          `json:"last_status,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateTriggerRequest is used to start a simulation trigger.
// Interval is a Go duration such as "2s".
type CreateTriggerRequest struct {
	Interval string          `json:"interval"`
	Payload  json.RawMessage `json:"payload"`
}
