// Package wasmvm runs guest WebAssembly modules against the fixed host ABI.
// It uses wazero to compile a module once, link it strictly against the
// Bridge's host functions, and instantiate it afresh for every invocation.
package wasmvm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// Config holds the sandbox limits of a Runtime.
type Config struct {
	// MemoryLimitPages caps guest linear memory (64KiB pages). Zero keeps
	// wazero's default.
	MemoryLimitPages uint32
	// MaxIOEntries caps one invocation's IO buffer. Zero is unbounded.
	MaxIOEntries int
}

// Runtime owns a wazero runtime with the host module already instantiated.
// Create one per project and share it across that project's modules.
type Runtime struct {
	runtime wazero.Runtime
	bridge  *Bridge
	cfg     Config
	logger  *zap.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

func WithConfig(cfg Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime creates the wazero runtime and registers the bridge's host
// module on it.
func NewRuntime(ctx context.Context, bridge *Bridge, opts ...Option) (*Runtime, error) {
	r := &Runtime{bridge: bridge, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}

	rc := wazero.NewRuntimeConfig()
	if r.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(r.cfg.MemoryLimitPages)
	}
	r.runtime = wazero.NewRuntimeWithConfig(ctx, rc)

	if err := bridge.instantiate(ctx, r.runtime); err != nil {
		_ = r.runtime.Close(ctx)
		return nil, err
	}
	return r, nil
}

// Close releases the runtime and every module compiled by it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Load compiles binary and resolves every import strictly against the host
// ABI. Any unresolved or ill-typed import, or a missing required export, fails
// as a *LinkError before guest code runs.
func (r *Runtime) Load(ctx context.Context, binary []byte, entryPoint string) (*Handle, error) {
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	compiled, err := r.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, &LinkError{Name: "module", Reason: fmt.Sprintf("invalid binary: %v", err)}
	}
	if err := link(compiled, entryPoint); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	r.logger.Debug("module loaded",
		zap.String("entry_point", entryPoint),
		zap.Int("size", len(binary)),
		zap.Int("imports", len(compiled.ImportedFunctions())))
	return &Handle{runtime: r, compiled: compiled, entryPoint: entryPoint}, nil
}

func link(compiled wazero.CompiledModule, entryPoint string) error {
	needsAlloc := false
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != HostModule {
			return &LinkError{Module: module, Name: name, Reason: "unknown import module"}
		}
		sig, ok := Signatures[name]
		if !ok {
			return &LinkError{Module: module, Name: name, Reason: "no such host function"}
		}
		if !sameTypes(def.ParamTypes(), sig.Params) || !sameTypes(def.ResultTypes(), sig.Results) {
			got := Signature{Params: def.ParamTypes(), Results: def.ResultTypes()}
			return &LinkError{Module: module, Name: name,
				Reason: fmt.Sprintf("signature %s, host expects %s", got, sig)}
		}
		needsAlloc = needsAlloc || sig.ReturnsString
	}
	for _, def := range compiled.ImportedMemories() {
		module, name, _ := def.Import()
		return &LinkError{Module: module, Name: name, Reason: "memory imports are not provided, export memory instead"}
	}

	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		return &LinkError{Name: ExportMemory, Reason: "module must export its memory"}
	}
	exports := compiled.ExportedFunctions()
	entry, ok := exports[entryPoint]
	if !ok {
		return &LinkError{Name: entryPoint, Reason: "entry point is not exported"}
	}
	if !sameTypes(entry.ParamTypes(), []api.ValueType{i32}) || !sameTypes(entry.ResultTypes(), []api.ValueType{i32}) {
		return &LinkError{Name: entryPoint, Reason: "entry point must have signature (i32) -> (i32)"}
	}
	if needsAlloc {
		alloc, ok := exports[ExportAlloc]
		if !ok {
			return &LinkError{Name: ExportAlloc, Reason: "module imports string-returning host functions but does not export alloc"}
		}
		if !sameTypes(alloc.ParamTypes(), []api.ValueType{i32}) || !sameTypes(alloc.ResultTypes(), []api.ValueType{i32}) {
			return &LinkError{Name: ExportAlloc, Reason: "alloc must have signature (i32) -> (i32)"}
		}
	}
	return nil
}

// Result is the outcome of one invocation. On a trap it is still returned,
// holding everything captured before the fault.
type Result struct {
	RecordID int32         `json:"recordId"`
	Status   int32         `json:"status"`
	Entries  []Entry       `json:"entries"`
	Calls    []Call        `json:"calls"`
	Trap     string        `json:"trap,omitempty"`
	Dropped  int           `json:"dropped,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Stdout returns the stdout entries in call order.
func (r *Result) Stdout() []Entry { return filter(r.Entries, Stdout) }

// Stderr returns the stderr entries in call order.
func (r *Result) Stderr() []Entry { return filter(r.Entries, Stderr) }

func filter(entries []Entry, s Stream) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Stream == s {
			out = append(out, e)
		}
	}
	return out
}

// Handle is a loaded guest module. At most one invocation runs on a handle at
// a time.
type Handle struct {
	runtime    *Runtime
	compiled   wazero.CompiledModule
	entryPoint string

	busy      atomic.Bool
	closeOnce sync.Once
	closed    atomic.Bool
}

func (h *Handle) EntryPoint() string { return h.entryPoint }

// Invoke runs the entry point with recordID, exposing payload through
// GetDataByRID. It is synchronous and run-to-completion: ctx is handed to host
// functions but does not interrupt guest code. A concurrent call on the same
// handle returns ErrBusy immediately. A guest fault returns the partial Result
// together with a *TrapError.
func (h *Handle) Invoke(ctx context.Context, recordID int32, payload string) (*Result, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	if !h.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer h.busy.Store(false)

	r := h.runtime
	inv := newInvocation(ExecutionContext{RecordID: recordID, Payload: payload}, r.cfg.MaxIOEntries)
	ctx = withInvocation(ctx, inv)
	start := time.Now()

	status, runErr := h.run(ctx, recordID)

	inv.stdio.seal()
	res := &Result{
		RecordID: recordID,
		Status:   status,
		Entries:  inv.stdio.Snapshot(),
		Calls:    inv.journalSnapshot(),
		Dropped:  inv.stdio.Dropped(),
		Duration: time.Since(start),
	}
	if runErr != nil {
		var linkErr *LinkError
		if errors.As(runErr, &linkErr) {
			return nil, runErr
		}
		trap := &TrapError{Cause: runErr}
		res.Trap = trapMessage(runErr)
		r.logger.Debug("guest trapped",
			zap.Int32("record_id", recordID),
			zap.String("trap", res.Trap),
			zap.Int("entries", len(res.Entries)))
		return res, trap
	}
	r.logger.Debug("guest returned",
		zap.Int32("record_id", recordID),
		zap.Int32("status", status),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (h *Handle) run(ctx context.Context, recordID int32) (int32, error) {
	cfg := wazero.NewModuleConfig().
		WithName(""). // anonymous, so instances of one handle never collide
		WithStartFunctions()

	mod, err := h.runtime.runtime.InstantiateModule(ctx, h.compiled, cfg)
	if err != nil {
		return 0, err
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(h.entryPoint)
	if fn == nil {
		return 0, &LinkError{Name: h.entryPoint, Reason: "entry point is not exported"}
	}
	out, err := fn.Call(ctx, api.EncodeI32(recordID))
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			return int32(exitErr.ExitCode()), nil
		}
		return 0, err
	}
	return api.DecodeI32(out[0]), nil
}

// Close releases the compiled module. Invocations already running finish.
func (h *Handle) Close(ctx context.Context) error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		err = h.compiled.Close(ctx)
	})
	return err
}
