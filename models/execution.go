package models

// ExecutionRequest represents a request to run a module (sent to Redis queue)
type ExecutionRequest struct {
	InvocationID string `json:"invocationId"`
	Project      string `json:"project"`
	ModuleID     string `json:"moduleId"`
	BinaryKey    string `json:"binaryKey"`
	EntryPoint   string `json:"entryPoint"`
	RecordID     int32  `json:"recordId"`
	Payload      string `json:"payload"`
}

// ExecutionResult represents the result from worker (stored in Redis)
type ExecutionResult struct {
	InvocationID string     `json:"invocationId"`
	Status       string     `json:"status"`
	ExitCode     int32      `json:"exitCode"`
	Entries      []IOEntry  `json:"entries"`
	Calls        []HostCall `json:"calls,omitempty"`
	Trap         string     `json:"trap,omitempty"`
	Dropped      int        `json:"dropped,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	DurationMs   int64      `json:"durationMs"`
}
