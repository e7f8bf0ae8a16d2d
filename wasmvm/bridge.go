package wasmvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// KVStore is the per-project key-value store behind SetDB/GetDB.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SQLStore is the per-project SQL engine behind ExecSQL/QuerySQL. Query must
// return JSON-safe encoded rows.
type SQLStore interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) ([]byte, error)
}

// Stores are the context objects a Bridge is built on. Any of them may be nil;
// the matching host functions then fail with their sentinel.
type Stores struct {
	KV  KVStore
	SQL SQLStore
	Tx  TxDispatcher
}

// ExecutionContext is the per-invocation state visible to host functions.
type ExecutionContext struct {
	RecordID int32
	Payload  string
}

// Call is one journaled host import call.
type Call struct {
	Func   string `json:"func"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type invocation struct {
	exec  ExecutionContext
	stdio *Buffer

	mu    sync.Mutex
	calls []Call
}

func newInvocation(exec ExecutionContext, limit int) *invocation {
	return &invocation{exec: exec, stdio: NewBuffer(limit)}
}

func (inv *invocation) journal(c Call) {
	inv.mu.Lock()
	inv.calls = append(inv.calls, c)
	inv.mu.Unlock()
}

func (inv *invocation) journalSnapshot() []Call {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]Call, len(inv.calls))
	copy(out, inv.calls)
	return out
}

type invocationKey struct{}

func withInvocation(ctx context.Context, inv *invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// invocationFrom returns the invocation driving ctx. Host functions reached
// without one (a guest start function calling imports during instantiation
// outside Invoke) get a detached invocation so nothing is dereferenced nil.
func invocationFrom(ctx context.Context) *invocation {
	if inv, ok := ctx.Value(invocationKey{}).(*invocation); ok {
		return inv
	}
	return newInvocation(ExecutionContext{}, 0)
}

// Bridge implements the host ABI on top of injected stores.
type Bridge struct {
	stores    Stores
	txTimeout time.Duration
	logger    *zap.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithTxTimeout bounds how long SendTx blocks the guest. Zero waits until the
// invocation context is done.
func WithTxTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.txTimeout = d }
}

func WithBridgeLogger(l *zap.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBridge(stores Stores, opts ...BridgeOption) *Bridge {
	b := &Bridge{stores: stores, txTimeout: 30 * time.Second, logger: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bridge) functions() map[string]api.GoModuleFunc {
	return map[string]api.GoModuleFunc{
		FnLog:          b.log,
		FnSetDB:        b.setDB,
		FnGetDB:        b.getDB,
		FnSendTx:       b.sendTx,
		FnGetDataByRID: b.getDataByRID,
		FnExecSQL:      b.execSQL,
		FnQuerySQL:     b.querySQL,
	}
}

// instantiate registers the host module on rt.
func (b *Bridge) instantiate(ctx context.Context, rt wazero.Runtime) error {
	builder := rt.NewHostModuleBuilder(HostModule)
	for name, fn := range b.functions() {
		sig := Signatures[name]
		builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, sig.Params, sig.Results).
			WithName(name).
			Export(name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %q: %w", HostModule, err)
	}
	return nil
}

func (b *Bridge) ok(inv *invocation, fn string) {
	inv.journal(Call{Func: fn, OK: true})
}

// fail records a sentinel failure: one stderr entry for the guest's IO log
// and a journal record. It never raises into the guest.
func (b *Bridge) fail(inv *invocation, fn string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	inv.stdio.Stderr(fn + ": " + msg)
	inv.journal(Call{Func: fn, Detail: msg})
	b.logger.Debug("host call failed",
		zap.String("func", fn),
		zap.Int32("record_id", inv.exec.RecordID),
		zap.String("reason", msg))
}

func (b *Bridge) log(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	msg, ok := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if !ok {
		b.fail(inv, FnLog, "message is out of memory bounds")
		return
	}
	inv.stdio.Stdout(msg)
	b.ok(inv, FnLog)
}

func (b *Bridge) setDB(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	key, ok := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if !ok {
		b.fail(inv, FnSetDB, "key is out of memory bounds")
		return
	}
	value, ok := readString(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if !ok {
		b.fail(inv, FnSetDB, "value is out of memory bounds")
		return
	}
	if b.stores.KV == nil {
		b.fail(inv, FnSetDB, "no key-value store bound")
		return
	}
	if err := b.stores.KV.Set(ctx, key, value); err != nil {
		b.fail(inv, FnSetDB, "set %q: %v", key, err)
		return
	}
	b.ok(inv, FnSetDB)
}

func (b *Bridge) getDB(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	key, ok := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	stack[0] = 0
	if !ok {
		b.fail(inv, FnGetDB, "key is out of memory bounds")
		return
	}
	if b.stores.KV == nil {
		b.fail(inv, FnGetDB, "no key-value store bound")
		return
	}
	value, found, err := b.stores.KV.Get(ctx, key)
	if err != nil {
		b.fail(inv, FnGetDB, "get %q: %v", key, err)
		return
	}
	if !found {
		b.ok(inv, FnGetDB)
		return
	}
	b.returnString(ctx, inv, mod, stack, FnGetDB, value)
}

func (b *Bridge) sendTx(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	req := TxRequest{ChainID: api.DecodeI32(stack[0])}
	var ok bool
	if req.To, ok = readString(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2])); !ok {
		stack[0] = 0
		b.fail(inv, FnSendTx, "to is out of memory bounds")
		return
	}
	if req.Value, ok = readString(mod, api.DecodeU32(stack[3]), api.DecodeU32(stack[4])); !ok {
		stack[0] = 0
		b.fail(inv, FnSendTx, "value is out of memory bounds")
		return
	}
	if req.Data, ok = readString(mod, api.DecodeU32(stack[5]), api.DecodeU32(stack[6])); !ok {
		stack[0] = 0
		b.fail(inv, FnSendTx, "data is out of memory bounds")
		return
	}
	stack[0] = 0
	if b.stores.Tx == nil {
		b.fail(inv, FnSendTx, "no chain client bound")
		return
	}
	res := Await(ctx, b.stores.Tx.Dispatch(ctx, req), b.txTimeout)
	if res.Err != nil {
		b.fail(inv, FnSendTx, "chain %d: %v", req.ChainID, res.Err)
		return
	}
	b.returnString(ctx, inv, mod, stack, FnSendTx, res.Hash)
}

func (b *Bridge) getDataByRID(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	rid := api.DecodeI32(stack[0])
	stack[0] = 0
	if rid != inv.exec.RecordID {
		b.fail(inv, FnGetDataByRID, "unknown record id %d", rid)
		return
	}
	b.returnString(ctx, inv, mod, stack, FnGetDataByRID, inv.exec.Payload)
}

func (b *Bridge) execSQL(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	query, args, code := b.readStatement(inv, mod, stack, FnExecSQL)
	if code != 0 {
		stack[0] = api.EncodeI32(code)
		return
	}
	if b.stores.SQL == nil {
		stack[0] = api.EncodeI32(CodeNoSQLEngine)
		b.fail(inv, FnExecSQL, "no sql engine bound")
		return
	}
	n, err := b.stores.SQL.Exec(ctx, query, args...)
	if err != nil {
		stack[0] = api.EncodeI32(CodeSQLFailure)
		b.fail(inv, FnExecSQL, "%v", err)
		return
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	stack[0] = api.EncodeI32(int32(n))
	b.ok(inv, FnExecSQL)
}

func (b *Bridge) querySQL(ctx context.Context, mod api.Module, stack []uint64) {
	inv := invocationFrom(ctx)
	query, args, code := b.readStatement(inv, mod, stack, FnQuerySQL)
	stack[0] = 0
	if code != 0 {
		return
	}
	if b.stores.SQL == nil {
		b.fail(inv, FnQuerySQL, "no sql engine bound")
		return
	}
	rows, err := b.stores.SQL.Query(ctx, query, args...)
	if err != nil {
		b.fail(inv, FnQuerySQL, "%v", err)
		return
	}
	b.returnString(ctx, inv, mod, stack, FnQuerySQL, string(rows))
}

// readStatement decodes the (query, args) pairs shared by ExecSQL and
// QuerySQL. A non-zero code means the failure was already recorded.
func (b *Bridge) readStatement(inv *invocation, mod api.Module, stack []uint64, fn string) (string, []any, int32) {
	query, ok := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if !ok {
		b.fail(inv, fn, "query is out of memory bounds")
		return "", nil, CodeMemoryFault
	}
	raw, ok := readString(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if !ok {
		b.fail(inv, fn, "args are out of memory bounds")
		return "", nil, CodeMemoryFault
	}
	args, err := ParseArgs(raw)
	if err != nil {
		b.fail(inv, fn, "bad args: %v", err)
		return "", nil, CodeBadArgs
	}
	return query, args, 0
}

func (b *Bridge) returnString(ctx context.Context, inv *invocation, mod api.Module, stack []uint64, fn, s string) {
	packed, err := writeString(ctx, mod, s)
	if err != nil {
		stack[0] = 0
		b.fail(inv, fn, "return value: %v", err)
		return
	}
	stack[0] = packed
	b.ok(inv, fn)
}

// ParseArgs decodes the optional JSON array of statement arguments. Integral
// numbers become int64, other numbers float64, nested values their JSON text.
func ParseArgs(raw string) ([]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var list []any
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("args must be a JSON array: %w", err)
	}
	out := make([]any, len(list))
	for i, v := range list {
		switch t := v.(type) {
		case json.Number:
			if n, err := t.Int64(); err == nil {
				out[i] = n
			} else if f, err := t.Float64(); err == nil {
				out[i] = f
			} else {
				return nil, fmt.Errorf("arg %d: %w", i, err)
			}
		case map[string]any, []any:
			buf, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("arg %d: %w", i, err)
			}
			out[i] = string(buf)
		default:
			out[i] = t
		}
	}
	return out, nil
}
