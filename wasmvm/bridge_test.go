package wasmvm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmlab-server/wasmvm"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		raw  string
		want []any
	}{
		{"", nil},
		{"  ", nil},
		{"[]", []any{}},
		{`[1, -2, 9007199254740993]`, []any{int64(1), int64(-2), int64(9007199254740993)}},
		{`[1.5, "a", true, null]`, []any{1.5, "a", true, nil}},
		{`[{"k":1}, [1,2]]`, []any{`{"k":1}`, `[1,2]`}},
	}
	for _, tt := range tests {
		got, err := wasmvm.ParseArgs(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := wasmvm.ParseArgs(`{"a":1}`)
	assert.Error(t, err)
}

func TestPackUnpack(t *testing.T) {
	v := wasmvm.Pack(0x10000, 42)
	ptr, length := wasmvm.Unpack(v)
	assert.Equal(t, uint32(0x10000), ptr)
	assert.Equal(t, uint32(42), length)
	assert.Zero(t, wasmvm.Pack(0, 0))
}

func TestBufferLimit(t *testing.T) {
	b := wasmvm.NewBuffer(2)
	assert.True(t, b.Stdout("a"))
	assert.True(t, b.Stderr("b"))
	assert.False(t, b.Stdout("c"))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Dropped())
	assert.Len(t, b.Stream(wasmvm.Stdout), 1)

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Dropped())
}

func TestAwait(t *testing.T) {
	ctx := context.Background()

	res := wasmvm.Await(ctx, wasmvm.Resolved{Hash: "0x1"}.Dispatch(ctx, wasmvm.TxRequest{}), time.Second)
	assert.Equal(t, "0x1", res.Hash)
	assert.NoError(t, res.Err)

	never := make(chan wasmvm.TxResult)
	res = wasmvm.Await(ctx, never, 10*time.Millisecond)
	assert.ErrorIs(t, res.Err, wasmvm.ErrAwaitTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res = wasmvm.Await(cancelled, never, 0)
	assert.ErrorIs(t, res.Err, context.Canceled)

	closed := make(chan wasmvm.TxResult)
	close(closed)
	res = wasmvm.Await(ctx, closed, time.Second)
	assert.Error(t, res.Err)

	boom := errors.New("boom")
	fn := wasmvm.DispatchFunc(func(context.Context, wasmvm.TxRequest) (string, error) { return "", boom })
	res = wasmvm.Await(ctx, fn.Dispatch(ctx, wasmvm.TxRequest{}), time.Second)
	assert.ErrorIs(t, res.Err, boom)
}
