package models

import (
	"encoding/json"
	"time"

	"wasmlab-server/wasmvm"
)

// IOEntry is one captured stdout/stderr line
type IOEntry = wasmvm.Entry

// HostCall is one journaled host import call
type HostCall = wasmvm.Call

// IORun is the captured IO of one invocation in a module's session log
type IORun = wasmvm.Run

// Invocation status constants
const (
	StatusSuccess = "success"
	StatusTrap    = "trap"
	StatusFail    = "fail"
	StatusTimeout = "timeout"
	StatusBusy    = "busy"
	StatusPending = "pending"
)

// DebugRequest represents the request body for a synchronous debug run.
// A missing payload reuses the module's cached payload.
type DebugRequest struct {
	RecordID *int32          `json:"record_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// InvokeResponse represents the outcome of a debug run
type InvokeResponse struct {
	Status     string          `json:"status"`
	ModuleID   string          `json:"module_id"`
	RecordID   int32           `json:"record_id"`
	ExitCode   int32           `json:"exit_code"`
	Payload    json.RawMessage `json:"payload"`
	Stdout     []IOEntry       `json:"stdout"`
	Stderr     []IOEntry       `json:"stderr"`
	Entries    []IOEntry       `json:"entries"`
	Calls      []HostCall      `json:"calls"`
	Trap       string          `json:"trap,omitempty"`
	Dropped    int             `json:"dropped,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// NewInvokeResponse flattens a sandbox result
func NewInvokeResponse(moduleID string, payload json.RawMessage, res *wasmvm.Result) *InvokeResponse {
	resp := &InvokeResponse{
		Status:     StatusSuccess,
		ModuleID:   moduleID,
		RecordID:   res.RecordID,
		ExitCode:   res.Status,
		Payload:    payload,
		Stdout:     orEmpty(res.Stdout()),
		Stderr:     orEmpty(res.Stderr()),
		Entries:    orEmpty(res.Entries),
		Calls:      res.Calls,
		Trap:       res.Trap,
		Dropped:    res.Dropped,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Trap != "" {
		resp.Status = StatusTrap
	}
	if resp.Calls == nil {
		resp.Calls = []HostCall{}
	}
	return resp
}

func orEmpty(entries []IOEntry) []IOEntry {
	if entries == nil {
		return []IOEntry{}
	}
	return entries
}

// InvokeRequest represents the request body for a queued invocation
type InvokeRequest struct {
	RecordID *int32          `json:"record_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Invocation represents a queued module execution
type Invocation struct {
	ID        string           `json:"id"`
	Project   string           `json:"project"`
	ModuleID  string           `json:"module_id"`
	RecordID  int32            `json:"record_id"`
	Payload   json.RawMessage  `json:"payload"`
	Status    string           `json:"status"`
	Result    *ExecutionResult `json:"result,omitempty"`
	InvokedAt time.Time        `json:"invoked_at"`
}

// CachedPayload is the last payload used to debug a guest file
type CachedPayload struct {
	FileKey string          `json:"file_key"`
	Payload json.RawMessage `json:"payload"`
}
