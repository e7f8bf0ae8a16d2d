package wasmvm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// ABIVersion is bumped whenever a host function name, argument order or type
// changes. Guest SDK preludes are generated against it.
const ABIVersion = 1

// HostModule is the import module every host function lives in.
const HostModule = "env"

// Exports the guest has to provide.
const (
	ExportMemory      = "memory"
	ExportAlloc       = "alloc"
	DefaultEntryPoint = "start"
)

// Host function names, as imported by the guest.
const (
	FnLog          = "Log"
	FnSetDB        = "SetDB"
	FnGetDB        = "GetDB"
	FnSendTx       = "SendTx"
	FnGetDataByRID = "GetDataByRID"
	FnExecSQL      = "ExecSQL"
	FnQuerySQL     = "QuerySQL"
)

// Negative ExecSQL status codes.
const (
	CodeSQLFailure  int32 = -1
	CodeBadArgs     int32 = -2
	CodeMemoryFault int32 = -3
	CodeNoSQLEngine int32 = -4
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// Signature is the wasm type of one host function.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
	// ReturnsString marks functions that hand memory back through the guest's
	// alloc export.
	ReturnsString bool
}

func (s Signature) String() string {
	return fmt.Sprintf("%s -> %s", typeList(s.Params), typeList(s.Results))
}

func typeList(ts []api.ValueType) string {
	out := "("
	for i, t := range ts {
		if i > 0 {
			out += ", "
		}
		out += api.ValueTypeName(t)
	}
	return out + ")"
}

// Signatures is the fixed host ABI.
var Signatures = map[string]Signature{
	FnLog:          {Params: []api.ValueType{i32, i32}},
	FnSetDB:        {Params: []api.ValueType{i32, i32, i32, i32}},
	FnGetDB:        {Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i64}, ReturnsString: true},
	FnSendTx:       {Params: []api.ValueType{i32, i32, i32, i32, i32, i32, i32}, Results: []api.ValueType{i64}, ReturnsString: true},
	FnGetDataByRID: {Params: []api.ValueType{i32}, Results: []api.ValueType{i64}, ReturnsString: true},
	FnExecSQL:      {Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}},
	FnQuerySQL:     {Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i64}, ReturnsString: true},
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Pack encodes a guest memory region as the i64 returned by string results.
func Pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// Unpack is the inverse of Pack.
func Unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// readString copies length bytes at ptr out of guest memory.
func readString(mod api.Module, ptr, length uint32) (string, bool) {
	if length == 0 {
		return "", true
	}
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(buf), true
}

// writeString allocates len(s) bytes through the guest's alloc export, copies
// s into them and returns the packed region. The empty string packs to zero
// without calling alloc.
func writeString(ctx context.Context, mod api.Module, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	alloc := mod.ExportedFunction(ExportAlloc)
	if alloc == nil {
		return 0, fmt.Errorf("guest does not export %q", ExportAlloc)
	}
	res, err := alloc.Call(ctx, api.EncodeI32(int32(len(s))))
	if err != nil {
		return 0, fmt.Errorf("guest alloc: %w", err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, fmt.Errorf("guest alloc returned null for %d bytes", len(s))
	}
	if !mod.Memory().Write(ptr, []byte(s)) {
		return 0, fmt.Errorf("guest alloc returned out of range region %d+%d", ptr, len(s))
	}
	return Pack(ptr, uint32(len(s))), nil
}
