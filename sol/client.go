package sol

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"bundler/config"
	"bundler/logger"
	"bundler/utils"
)

// Client talks to the Solana JSON-RPC surface in one of two fixed modes:
// a single endpoint posting through an injected HTTP pool, or a set of
// endpoints delegated to a FailoverRouter. The mode is decided at
// construction and never re-probed.
type Client struct {
	endpoint string
	router   *FailoverRouter
	pool     *utils.HTTPPool

	// single-endpoint mode owns its own blockhash cache and refresh loop
	blockhash *BlockhashCache
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewClient builds a single-endpoint client with no failover.
func NewClient(endpoint string, pool *utils.HTTPPool) *Client {
	return &Client{
		endpoint:  endpoint,
		pool:      pool,
		blockhash: NewBlockhashCache(),
	}
}

// NewFailoverClient builds a client that routes everything through the
// given router, sharing its blockhash cache and connection pool.
func NewFailoverClient(router *FailoverRouter) *Client {
	return &Client{
		router: router,
		pool:   router.pool,
	}
}

// Start launches the background refresh work for the client's mode. In
// failover mode that is the router's loops; in single-endpoint mode the
// client runs its own blockhash refresh loop.
func (c *Client) Start(ctx context.Context) {
	if c.router != nil {
		c.router.Start(ctx)
		return
	}
	if c.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(config.BlockhashRefreshTick)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := c.fetchBlockhash(loopCtx); err != nil {
					logger.RpcLogger.Warn("Blockhash refresh failed", "endpoint", c.endpoint, "err", err)
				}
			}
		}
	}()
}

// Stop cancels background work and releases the pooled connections.
func (c *Client) Stop() {
	if c.router != nil {
		c.router.Stop()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.wg.Wait()
	}
	c.pool.Close()
}

func (c *Client) Router() *FailoverRouter {
	return c.router
}

// call dispatches one JSON-RPC request according to the client's mode.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if c.router != nil {
		return c.router.PostRpc(ctx, method, params)
	}
	return callRpc(ctx, c.pool, c.endpoint, method, params)
}

func (c *Client) GetHealth(ctx context.Context) error {
	_, err := c.call(ctx, "getHealth", nil)
	return err
}

func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	raw, err := c.call(ctx, "getBalance", []interface{}{pubkey.String()})
	if err != nil {
		// Accounts do not exist on Solana until they receive lamports.
		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, err
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("unexpected getBalance result: %w", err)
	}
	return result.Value, nil
}

func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (lamports uint64, exists bool, err error) {
	raw, err := c.call(ctx, "getAccountInfo",
		[]interface{}{pubkey.String(), map[string]interface{}{"encoding": "base64"}})
	if err != nil {
		return 0, false, err
	}

	var result struct {
		Value *struct {
			Lamports uint64 `json:"lamports"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, false, fmt.Errorf("unexpected getAccountInfo result: %w", err)
	}
	if result.Value == nil {
		return 0, false, nil
	}
	return result.Value.Lamports, true, nil
}

// GetMultipleBalances reads lamport balances for many accounts in one
// call. Missing accounts report zero.
func (c *Client) GetMultipleBalances(ctx context.Context, pubkeys []solana.PublicKey) ([]uint64, error) {
	keys := make([]string, 0, len(pubkeys))
	for _, pk := range pubkeys {
		keys = append(keys, pk.String())
	}

	raw, err := c.call(ctx, "getMultipleAccounts",
		[]interface{}{keys, map[string]interface{}{"encoding": "base64"}})
	if err != nil {
		return nil, err
	}

	var result struct {
		Value []*struct {
			Lamports uint64 `json:"lamports"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unexpected getMultipleAccounts result: %w", err)
	}
	if len(result.Value) != len(pubkeys) {
		return nil, fmt.Errorf("getMultipleAccounts returned %d accounts for %d keys", len(result.Value), len(pubkeys))
	}

	balances := make([]uint64, len(pubkeys))
	for i, acc := range result.Value {
		if acc != nil {
			balances[i] = acc.Lamports
		}
	}
	return balances, nil
}

// GetTokenAccountBalance reads a token account balance in base units.
// A missing token account reads as zero.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	raw, err := c.call(ctx, "getTokenAccountBalance", []interface{}{account.String()})
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, err
	}

	var result struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("unexpected getTokenAccountBalance result: %w", err)
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

// GetCachedBlockhash returns the cached blockhash, performing exactly one
// synchronous fetch when the cache is cold.
func (c *Client) GetCachedBlockhash(ctx context.Context) (solana.Hash, error) {
	if c.router != nil {
		return c.router.GetLatestBlockhash(ctx)
	}
	if hash, ok := c.blockhash.Get(); ok {
		return hash, nil
	}
	return c.fetchBlockhash(ctx)
}

func (c *Client) fetchBlockhash(ctx context.Context) (solana.Hash, error) {
	raw, err := c.call(ctx, "getLatestBlockhash",
		[]interface{}{map[string]interface{}{"commitment": "finalized"}})
	if err != nil {
		return solana.Hash{}, err
	}

	hash, err := parseBlockhashResult(raw)
	if err != nil {
		return solana.Hash{}, err
	}
	c.blockhash.Set(hash)
	return hash, nil
}

// SendTransaction serializes and submits a signed transaction, returning
// its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	serialized, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	encoded := base58.Encode(serialized)

	if c.router != nil {
		return c.router.SendTransaction(ctx, encoded)
	}

	raw, err := c.call(ctx, "sendTransaction",
		[]interface{}{encoded, map[string]interface{}{"encoding": "base58"}})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return "", fmt.Errorf("unexpected sendTransaction result: %w", err)
	}
	return signature, nil
}

// ConfirmTransaction polls signature status until the requested
// commitment is reached. It never fails hard: RPC errors and on-chain
// transaction errors both log and report false.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string, commitment string) bool {
	for {
		raw, err := c.call(ctx, "getSignatureStatuses",
			[]interface{}{[]string{signature}, map[string]interface{}{"searchTransactionHistory": true}})
		if err != nil {
			logger.RpcLogger.Warn("Confirmation poll failed", "signature", signature, "err", err)
			return false
		}

		var result struct {
			Value []*struct {
				ConfirmationStatus string          `json:"confirmationStatus"`
				Err                json.RawMessage `json:"err"`
			} `json:"value"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			logger.RpcLogger.Warn("Unexpected getSignatureStatuses result", "signature", signature, "err", err)
			return false
		}

		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if len(status.Err) > 0 && string(status.Err) != "null" {
				logger.RpcLogger.Warn("Transaction failed on chain", "signature", signature, "err", string(status.Err))
				return false
			}
			if commitmentReached(status.ConfirmationStatus, commitment) {
				return true
			}
		}

		select {
		case <-ctx.Done():
			logger.RpcLogger.Warn("Confirmation cancelled", "signature", signature, "err", ctx.Err())
			return false
		case <-time.After(config.ConfirmPollInterval):
		}
	}
}

// commitmentReached treats finalized as satisfying confirmed.
func commitmentReached(status, want string) bool {
	switch want {
	case "", "confirmed":
		return status == "confirmed" || status == "finalized"
	case "finalized":
		return status == "finalized"
	default:
		return status == want
	}
}
