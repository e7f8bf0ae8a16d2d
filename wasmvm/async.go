package wasmvm

import (
	"context"
	"errors"
	"time"
)

// TxRequest is the outbound transaction a guest asks SendTx to dispatch.
type TxRequest struct {
	ChainID int32  `json:"chainId"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
}

// TxResult is the resolution of a dispatched transaction.
type TxResult struct {
	Hash string
	Err  error
}

// TxDispatcher starts a transaction and returns the channel its single result
// is delivered on. Dispatching is asynchronous; SendTx turns it back into a
// synchronous guest call with Await.
type TxDispatcher interface {
	Dispatch(ctx context.Context, req TxRequest) <-chan TxResult
}

// ErrAwaitTimeout is returned by Await when the result did not arrive in time.
var ErrAwaitTimeout = errors.New("wasmvm: timed out waiting for host action")

// Await blocks the calling guest until the asynchronous action delivers its
// result on ch. This is the only point where a guest call is suspended on the
// host. A zero timeout waits until ctx is done.
func Await(ctx context.Context, ch <-chan TxResult, timeout time.Duration) TxResult {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return TxResult{Err: errors.New("wasmvm: host action closed without a result")}
		}
		return res
	case <-expired:
		return TxResult{Err: ErrAwaitTimeout}
	case <-ctx.Done():
		return TxResult{Err: ctx.Err()}
	}
}

// DispatchFunc adapts a blocking send function into a TxDispatcher by running
// it on its own goroutine. The result channel is buffered so the goroutine
// never outlives a caller that stopped waiting.
type DispatchFunc func(ctx context.Context, req TxRequest) (string, error)

func (f DispatchFunc) Dispatch(ctx context.Context, req TxRequest) <-chan TxResult {
	ch := make(chan TxResult, 1)
	go func() {
		hash, err := f(ctx, req)
		ch <- TxResult{Hash: hash, Err: err}
	}()
	return ch
}

// Resolved is a TxDispatcher whose result is known before dispatch. It is
// drained synchronously and never starts a goroutine, which makes it the
// dispatcher for sandboxed debug runs and tests.
type Resolved TxResult

func (r Resolved) Dispatch(context.Context, TxRequest) <-chan TxResult {
	ch := make(chan TxResult, 1)
	ch <- TxResult(r)
	return ch
}
