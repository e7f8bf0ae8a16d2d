package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"wasmlab-server/config"
	"wasmlab-server/wasmvm"
)

var ErrUnknownChain = errors.New("unknown chain id")

// ChainService sends guest transactions to the configured chain RPC endpoints
type ChainService struct {
	chains map[int32]config.ChainConfig
	client *http.Client
	logger *zap.Logger
	nextID atomic.Int64
}

func NewChainService(chains map[string]config.ChainConfig, client *http.Client, logger *zap.Logger) (*ChainService, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ChainService{chains: make(map[int32]config.ChainConfig, len(chains)), client: client, logger: logger}
	for id, c := range chains {
		n, err := strconv.ParseInt(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("chain id %q: %w", id, err)
		}
		s.chains[int32(n)] = c
	}
	return s, nil
}

// Dispatcher adapts the service to the sandbox's transaction seam
func (s *ChainService) Dispatcher() wasmvm.TxDispatcher {
	return wasmvm.DispatchFunc(s.SendTransaction)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type sendTxParams struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// SendTransaction submits eth_sendTransaction and returns the tx hash
func (s *ChainService) SendTransaction(ctx context.Context, req wasmvm.TxRequest) (string, error) {
	chain, ok := s.chains[req.ChainID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownChain, req.ChainID)
	}
	value, err := hexQuantity(req.Value)
	if err != nil {
		return "", err
	}
	data := req.Data
	if data != "" && !strings.HasPrefix(data, "0x") {
		data = "0x" + data
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID.Add(1),
		Method:  "eth_sendTransaction",
		Params:  []any{sendTxParams{From: chain.From, To: req.To, Value: value, Data: data}},
	})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chain.RPCURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	var hash string
	if err := json.Unmarshal(out.Result, &hash); err != nil || hash == "" {
		return "", fmt.Errorf("rpc returned no transaction hash")
	}
	s.logger.Debug("transaction sent", zap.Int32("chain_id", req.ChainID), zap.String("hash", hash))
	return hash, nil
}

// hexQuantity converts a decimal or 0x-prefixed amount to a JSON-RPC quantity
func hexQuantity(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	base := 10
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		v, base = v[2:], 16
	}
	n, ok := new(big.Int).SetString(v, base)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid value %q", v)
	}
	return "0x" + n.Text(16), nil
}
