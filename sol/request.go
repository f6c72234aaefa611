package sol

import (
	"context"
	"encoding/json"
	"fmt"

	"bundler/utils"
)

type RpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type RpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RpcError       `json:"error,omitempty"`
}

type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %d %s", utils.RPCERROR, e.Code, e.Message)
}

// callRpc posts one JSON-RPC request to a specific endpoint. Retries live
// above this, in the failover and send layers, so a single attempt here
// fails straight back to the caller.
func callRpc(ctx context.Context, pool *utils.HTTPPool, endpoint, method string, params []interface{}) (json.RawMessage, error) {
	req := RpcRequest{
		Jsonrpc: "2.0",
		ID:      "1",
		Method:  method,
		Params:  params,
	}

	var resp RpcResponse
	if err := pool.PostJSON(ctx, endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("RPC %s failed: %w", method, err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC %s returned error: %w", method, resp.Error)
	}

	return resp.Result, nil
}
