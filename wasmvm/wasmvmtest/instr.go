package wasmvmtest

func I32Const(v int32) []byte { return appendS64([]byte{0x41}, int64(v)) }

func I64Const(v int64) []byte { return appendS64([]byte{0x42}, v) }

func Call(idx uint32) []byte { return appendU32([]byte{0x10}, idx) }

func LocalGet(idx uint32) []byte { return appendU32([]byte{0x20}, idx) }

func LocalSet(idx uint32) []byte { return appendU32([]byte{0x21}, idx) }

func GlobalGet(idx uint32) []byte { return appendU32([]byte{0x23}, idx) }

func GlobalSet(idx uint32) []byte { return appendU32([]byte{0x24}, idx) }

// I32Load loads an i32 with natural alignment at the given static offset.
func I32Load(offset uint32) []byte { return appendU32([]byte{0x28, 0x02}, offset) }

func Drop() []byte        { return []byte{0x1a} }
func I32Add() []byte      { return []byte{0x6a} }
func I64ShrU() []byte     { return []byte{0x88} }
func I32WrapI64() []byte  { return []byte{0xa7} }
func Unreachable() []byte { return []byte{0x00} }

// Str pushes the (ptr, len) pair of a static string.
func Str(ptr, length int32) []byte {
	return append(I32Const(ptr), I32Const(length)...)
}

// Unpacked pushes the (ptr, len) pair stored as a packed i64 in local.
func Unpacked(local uint32) []byte {
	var out []byte
	out = append(out, LocalGet(local)...)
	out = append(out, I64Const(32)...)
	out = append(out, I64ShrU()...)
	out = append(out, I32WrapI64()...)
	out = append(out, LocalGet(local)...)
	out = append(out, I32WrapI64()...)
	return out
}

// Echo logs the string packed in local through the Log import logFn. A packed
// zero logs the empty string.
func Echo(logFn, local uint32) []byte {
	return append(Unpacked(local), Call(logFn)...)
}
