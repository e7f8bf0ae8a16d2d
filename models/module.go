package models

import (
	"time"
)

// GuestModule represents a compiled guest module owned by a project
type GuestModule struct {
	ID          string    `json:"id"`
	Project     string    `json:"project"`
	Name        string    `json:"name"`
	FileKey     string    `json:"file_key"`
	EntryPoint  string    `json:"entry_point"`
	Source      string    `json:"source,omitempty"`
	Binary      []byte    `json:"-"`
	SourceKey   string    `json:"source_key,omitempty"`
	BinaryKey   string    `json:"binary_key"`
	Size        int       `json:"size"`
	Diagnostics string    `json:"diagnostics,omitempty"`
	ABIVersion  int       `json:"abi_version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GuestModuleListItem represents a module in list view (without source)
type GuestModuleListItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FileKey    string    `json:"file_key"`
	EntryPoint string    `json:"entry_point"`
	Size       int       `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateModuleRequest represents the request body for creating a module.
// Exactly one of Source and Binary (base64 in JSON) is set.
type CreateModuleRequest struct {
	Name       string `json:"name"`
	FileKey    string `json:"file_key"`
	Source     string `json:"source"`
	Binary     []byte `json:"binary"`
	EntryPoint string `json:"entry_point"`
}

// UpdateModuleRequest replaces a module's source and recompiles it
type UpdateModuleRequest struct {
	Source     string `json:"source"`
	EntryPoint string `json:"entry_point"`
}

// CompileResponse is returned when a source fails to compile
type CompileResponse struct {
	Error       string `json:"error"`
	Diagnostics string `json:"diagnostics"`
}
