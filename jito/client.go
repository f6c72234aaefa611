package jito

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"bundler/config"
	"bundler/logger"
	"bundler/types"
	"bundler/utils"
)

const defaultBlockEngineURL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

// Well-known Jito tip accounts. One transaction in every bundle must pay
// one of these or the block engine rejects the bundle.
var TipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

func GetBlockEngineURL() string {
	url := viper.GetString("jito.block-engine-url")
	if url == "" {
		url = defaultBlockEngineURL
		logger.BundleLogger.Warn("jito.block-engine-url not set in config, using default", "url", url)
	}
	return url
}

type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// BundleStatus is one entry from getBundleStatuses.
type BundleStatus struct {
	BundleID           string          `json:"bundle_id"`
	Transactions       []string        `json:"transactions"`
	Slot               uint64          `json:"slot"`
	ConfirmationStatus string          `json:"confirmation_status"`
	Err                json.RawMessage `json:"err"`
}

// Client talks to the Jito block engine. The engine's all-or-nothing
// guarantee for a bundle is assumed, not re-implemented here.
type Client struct {
	pool *utils.HTTPPool
	url  string
}

func NewClient(pool *utils.HTTPPool) *Client {
	return &Client{
		pool: pool,
		url:  GetBlockEngineURL(),
	}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		Jsonrpc: "2.0",
		ID:      "1",
		Method:  method,
		Params:  params,
	}

	var resp rpcResponse
	if err := c.pool.PostJSON(ctx, c.url, req, &resp); err != nil {
		return nil, fmt.Errorf("block engine %s failed: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("block engine %s returned error: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// SendBundle submits base58-encoded signed transactions as one bundle and
// returns the bundle id.
func (c *Client) SendBundle(ctx context.Context, txsBase58 []string) (string, error) {
	raw, err := c.call(ctx, "sendBundle", []interface{}{txsBase58})
	if err != nil {
		return "", err
	}

	var bundleID string
	if err := json.Unmarshal(raw, &bundleID); err != nil {
		return "", fmt.Errorf("unexpected sendBundle result: %w", err)
	}
	return bundleID, nil
}

func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]*BundleStatus, error) {
	raw, err := c.call(ctx, "getBundleStatuses", []interface{}{bundleIDs})
	if err != nil {
		return nil, err
	}

	var result struct {
		Value []*BundleStatus `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unexpected getBundleStatuses result: %w", err)
	}
	return result.Value, nil
}

// Submit sends one bundle and waits a bounded time for it to land.
// Rejection and timeout both come back as a soft failure; the tip passed
// in is already embedded in the transactions and only reported here.
func (c *Client) Submit(ctx context.Context, txsBase58 []string, tipLamports uint64) types.BundleResult {
	bundleID, err := c.SendBundle(ctx, txsBase58)
	if err != nil {
		return types.BundleResult{
			Success:      false,
			ErrorMessage: err.Error(),
			TipLamports:  tipLamports,
		}
	}

	logger.BundleLogger.Info("Bundle submitted",
		"bundle_id", bundleID, "txs", len(txsBase58), "tip", tipLamports)

	landed, err := c.waitLanded(ctx, bundleID)
	result := types.BundleResult{
		Success:     landed,
		BundleID:    bundleID,
		TipLamports: tipLamports,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	} else if !landed {
		result.ErrorMessage = utils.BUNDLE_NOT_LANDED
	}
	return result
}

func (c *Client) waitLanded(ctx context.Context, bundleID string) (bool, error) {
	deadline := time.Now().Add(config.BundleStatusWait)

	for time.Now().Before(deadline) {
		statuses, err := c.GetBundleStatuses(ctx, []string{bundleID})
		if err != nil {
			logger.BundleLogger.Warn("Bundle status poll failed", "bundle_id", bundleID, "err", err)
		} else {
			for _, st := range statuses {
				if st == nil || st.BundleID != bundleID {
					continue
				}
				if len(st.Err) > 0 && string(st.Err) != "null" && string(st.Err) != `{"Ok":null}` {
					return false, fmt.Errorf("bundle rejected: %s", string(st.Err))
				}
				if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
					return true, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(config.BundleStatusPollInterval):
		}
	}
	return false, nil
}
