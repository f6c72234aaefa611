package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultRetryTimes    = 5
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultTimeout       = 10 * time.Second

	maxIdleConns        = 64
	maxIdleConnsPerHost = 8
	idleConnTimeout     = 90 * time.Second
)

// HTTPPool owns the pooled keep-alive connections shared by every caller.
// It is created once at startup, injected where needed, and closed
// explicitly on shutdown.
type HTTPPool struct {
	client *http.Client
}

func NewHTTPPool(timeout time.Duration) *HTTPPool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPPool{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
			},
		},
	}
}

func (p *HTTPPool) Close() {
	p.client.CloseIdleConnections()
}

func (p *HTTPPool) PostJSON(ctx context.Context, url string, body any, result any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal POST body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s: %s: %w", RPC_TIMEOUT, url, err)
		}
		return fmt.Errorf("POST request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyResp, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", RPC_BAD_STATUS, resp.StatusCode, string(bodyResp))
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("failed to stream and unmarshal POST response: %w", err)
	}

	return nil
}

func (p *HTTPPool) PostJSONWithRetry(ctx context.Context, url string, body any, result any, retry int, logger *slog.Logger) error {
	var lastErr error
	for i := 0; i < retry; i++ {
		lastErr = p.PostJSON(ctx, url, body, result)
		if lastErr == nil {
			return nil
		}
		logger.Warn("POST request failed, retrying...", "url", url, "attempt", i+1, "err", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(DefaultRetryInterval):
		}
	}
	return fmt.Errorf("POST request failed after %d attempts: %w", retry, lastErr)
}
