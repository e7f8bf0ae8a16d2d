package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmlab-server/config"
	"wasmlab-server/wasmvm"
)

func newRPCServer(t *testing.T, handler func(req map[string]any) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendTransaction(t *testing.T) {
	var got map[string]any
	srv := newRPCServer(t, func(req map[string]any) any {
		got = req
		return map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "0xabc"}
	})
	chains, err := NewChainService(map[string]config.ChainConfig{
		"1": {RPCURL: srv.URL, From: "0xsender"},
	}, srv.Client(), nil)
	require.NoError(t, err)

	hash, err := chains.SendTransaction(context.Background(), wasmvm.TxRequest{
		ChainID: 1,
		To:      "0xrecipient",
		Value:   "1000",
		Data:    "deadbeef",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)

	assert.Equal(t, "eth_sendTransaction", got["method"])
	assert.Equal(t, []any{map[string]any{
		"from":  "0xsender",
		"to":    "0xrecipient",
		"value": "0x3e8",
		"data":  "0xdeadbeef",
	}}, got["params"])
}

func TestSendTransactionRPCError(t *testing.T) {
	srv := newRPCServer(t, func(req map[string]any) any {
		return map[string]any{"jsonrpc": "2.0", "id": req["id"], "error": map[string]any{"code": -32000, "message": "insufficient funds"}}
	})
	chains, err := NewChainService(map[string]config.ChainConfig{"5": {RPCURL: srv.URL}}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = chains.SendTransaction(context.Background(), wasmvm.TxRequest{ChainID: 5, To: "0x1"})
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestSendTransactionUnknownChain(t *testing.T) {
	chains, err := NewChainService(nil, nil, nil)
	require.NoError(t, err)

	_, err = chains.SendTransaction(context.Background(), wasmvm.TxRequest{ChainID: 999})
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestNewChainServiceRejectsBadID(t *testing.T) {
	_, err := NewChainService(map[string]config.ChainConfig{"mainnet": {}}, nil, nil)
	assert.Error(t, err)
}

func TestDispatcherDeliversHash(t *testing.T) {
	srv := newRPCServer(t, func(req map[string]any) any {
		return map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "0xfeed"}
	})
	chains, err := NewChainService(map[string]config.ChainConfig{"1": {RPCURL: srv.URL}}, srv.Client(), nil)
	require.NoError(t, err)

	ch := chains.Dispatcher().Dispatch(context.Background(), wasmvm.TxRequest{ChainID: 1, To: "0x1"})
	res := wasmvm.Await(context.Background(), ch, 0)
	require.NoError(t, res.Err)
	assert.Equal(t, "0xfeed", res.Hash)
}

func TestHexQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"0", "0x0", false},
		{"1000", "0x3e8", false},
		{"0x3e8", "0x3e8", false},
		{"010", "0xa", false},
		{"1000000000000000000000", "0x3635c9adc5dea00000", false},
		{"-1", "", true},
		{"ten", "", true},
	}
	for _, tt := range tests {
		got, err := hexQuantity(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
