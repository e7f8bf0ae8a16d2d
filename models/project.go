package models

import "encoding/json"

// KVEntry is one key of a project's key-value store
type KVEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetKVRequest sets a key. Value may be a JSON string or number; numbers are
// stored in their string form.
type SetKVRequest struct {
	Value json.RawMessage `json:"value"`
}

// TableResult reports the outcome of creating one table
type TableResult struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// QueryRequest runs a statement against a project's SQL engine
type QueryRequest struct {
	Query string `json:"query"`
	Args  []any  `json:"args"`
}
