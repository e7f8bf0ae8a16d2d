// Package wasmvmtest assembles small WebAssembly binaries for tests so guest
// behaviour can be scripted without a compiler toolchain.
package wasmvmtest

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"wasmlab-server/wasmvm"
)

// DataStart is where the first String is placed. The alloc heap starts at
// HeapStart, leaving the range in between for static strings.
const (
	DataStart = 1024
	HeapStart = 32 * 1024
)

type funcType struct {
	params, results []api.ValueType
}

type importFunc struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []api.ValueType
	body    []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type global struct {
	typ     api.ValueType
	mutable bool
	init    int64
}

type segment struct {
	offset uint32
	data   []byte
}

// Module is a wasm module under construction. Imports have to be declared
// before the first Func so function indices stay stable.
type Module struct {
	types    []funcType
	imports  []importFunc
	funcs    []function
	exports  []export
	globals  []global
	data     []segment
	memPages uint32
	memory   bool
	dataEnd  uint32
}

func New() *Module {
	return &Module{dataEnd: DataStart}
}

func (m *Module) typeIndex(params, results []api.ValueType) uint32 {
	for i, t := range m.types {
		if equal(t.params, params) && equal(t.results, results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

func equal(a, b []api.ValueType) bool {
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

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmvmtest: imports must be declared before functions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typeIdx: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Host imports the named host function with its ABI signature.
func (m *Module) Host(name string) uint32 {
	sig, ok := wasmvm.Signatures[name]
	if !ok {
		panic(fmt.Sprintf("wasmvmtest: no host function %q", name))
	}
	return m.Import(wasmvm.HostModule, name, sig.Params, sig.Results)
}

// Func defines a function. Parameters are locals 0..len(params)-1, the extra
// locals follow them. The trailing end opcode is added automatically.
func (m *Module) Func(params, results, locals []api.ValueType, body ...[]byte) uint32 {
	var code []byte
	for _, b := range body {
		code = append(code, b...)
	}
	m.funcs = append(m.funcs, function{typeIdx: m.typeIndex(params, results), locals: locals, body: code})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Export exports function idx under name.
func (m *Module) Export(name string, idx uint32) *Module {
	m.exports = append(m.exports, export{name: name, kind: 0x00, idx: idx})
	return m
}

// Memory declares a memory of pages pages exported as "memory".
func (m *Module) Memory(pages uint32) *Module {
	m.memory = true
	m.memPages = pages
	m.exports = append(m.exports, export{name: wasmvm.ExportMemory, kind: 0x02, idx: 0})
	return m
}

// Global declares a mutable i32 global and returns its index.
func (m *Module) Global(init int32) uint32 {
	m.globals = append(m.globals, global{typ: api.ValueTypeI32, mutable: true, init: int64(init)})
	return uint32(len(m.globals) - 1)
}

// String places s in a data segment and returns its address and length.
func (m *Module) String(s string) (ptr, length int32) {
	ptr = int32(m.dataEnd)
	m.data = append(m.data, segment{offset: m.dataEnd, data: []byte(s)})
	m.dataEnd += uint32(len(s))
	if m.dataEnd > HeapStart {
		panic("wasmvmtest: static strings overflow into the heap")
	}
	return ptr, int32(len(s))
}

// Alloc defines and exports a bump allocator as "alloc" starting at
// HeapStart.
func (m *Module) Alloc() uint32 {
	heap := m.Global(HeapStart)
	i32 := []api.ValueType{api.ValueTypeI32}
	idx := m.Func(i32, i32, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add(), GlobalSet(heap),
	)
	m.Export(wasmvm.ExportAlloc, idx)
	return idx
}

// Entry defines the (i32) -> (i32) entry point and exports it as name. One
// extra i64 local (index 1) is available for packed string results. The body
// must leave an i32 status on the stack.
func (m *Module) Entry(name string, body ...[]byte) uint32 {
	i32 := []api.ValueType{api.ValueTypeI32}
	idx := m.Func(i32, i32, []api.ValueType{api.ValueTypeI64}, body...)
	m.Export(name, idx)
	return idx
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec = append(sec, 0x60)
			sec = appendTypes(sec, t.params)
			sec = appendTypes(sec, t.results)
		}
		out = appendSection(out, 1, sec)
	}
	if len(m.imports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec = appendName(sec, imp.module)
			sec = appendName(sec, imp.name)
			sec = append(sec, 0x00)
			sec = appendU32(sec, imp.typeIdx)
		}
		out = appendSection(out, 2, sec)
	}
	if len(m.funcs) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec = appendU32(sec, f.typeIdx)
		}
		out = appendSection(out, 3, sec)
	}
	if m.memory {
		var sec []byte
		sec = appendU32(sec, 1)
		sec = append(sec, 0x00)
		sec = appendU32(sec, m.memPages)
		out = appendSection(out, 5, sec)
	}
	if len(m.globals) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec = append(sec, g.typ)
			if g.mutable {
				sec = append(sec, 0x01)
			} else {
				sec = append(sec, 0x00)
			}
			sec = append(sec, I32Const(int32(g.init))...)
			sec = append(sec, 0x0b)
		}
		out = appendSection(out, 6, sec)
	}
	if len(m.exports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = appendU32(sec, e.idx)
		}
		out = appendSection(out, 7, sec)
	}
	if len(m.funcs) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body []byte
			body = appendU32(body, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = appendU32(body, 1)
				body = append(body, l)
			}
			body = append(body, f.body...)
			body = append(body, 0x0b)
			sec = appendU32(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, 10, sec)
	}
	if len(m.data) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec = append(sec, 0x00)
			sec = append(sec, I32Const(int32(d.offset))...)
			sec = append(sec, 0x0b)
			sec = appendU32(sec, uint32(len(d.data)))
			sec = append(sec, d.data...)
		}
		out = appendSection(out, 11, sec)
	}
	return out
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(body)))
	return append(out, body...)
}

func appendTypes(out []byte, ts []api.ValueType) []byte {
	out = appendU32(out, uint32(len(ts)))
	return append(out, ts...)
}

func appendName(out []byte, s string) []byte {
	out = appendU32(out, uint32(len(s)))
	return append(out, s...)
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func appendS64(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
