package sol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bundler/types"
	"bundler/utils"
)

// fakeRpcServer answers JSON-RPC posts from a per-method handler map.
func fakeRpcServer(t *testing.T, handlers map[string]func() (any, *RpcError)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req RpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			return
		}

		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
			return
		}

		result, rpcErr := handler()
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func healthyHandlers() map[string]func() (any, *RpcError) {
	return map[string]func() (any, *RpcError){
		"getHealth": func() (any, *RpcError) { return "ok", nil },
		"getLatestBlockhash": func() (any, *RpcError) {
			return map[string]any{"value": map[string]any{"blockhash": "GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W"}}, nil
		},
	}
}

func TestNewFailoverRouterRequiresProviders(t *testing.T) {
	pool := utils.NewHTTPPool(0)
	_, err := NewFailoverRouter(nil, pool)
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestExecuteWithFailoverExhaustsRetries(t *testing.T) {
	srvA, _ := fakeRpcServer(t, healthyHandlers())
	srvB, _ := fakeRpcServer(t, healthyHandlers())

	pool := utils.NewHTTPPool(0)
	router, err := NewFailoverRouter([]string{srvA.URL, srvB.URL}, pool)
	if err != nil {
		t.Fatalf("NewFailoverRouter failed: %v", err)
	}

	var attempts int
	opErr := errors.New("send rejected: blockhash expired")
	err = router.ExecuteWithFailover(context.Background(), func(ctx context.Context, endpoint string) error {
		attempts++
		return fmt.Errorf("%s: %w", endpoint, opErr)
	}, 3)

	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
	if !strings.Contains(err.Error(), "blockhash expired") {
		t.Fatalf("expected aggregated error to carry the last failure, got %v", err)
	}
}

func TestSelectBestNeverEmpty(t *testing.T) {
	pool := utils.NewHTTPPool(0)
	router, err := NewFailoverRouter([]string{"http://a.invalid", "http://b.invalid"}, pool)
	if err != nil {
		t.Fatalf("NewFailoverRouter failed: %v", err)
	}

	// Make everything unhealthy.
	for _, p := range router.Providers() {
		for i := 0; i < 5; i++ {
			p.RecordFailure(errors.New("down"))
		}
		if p.Status() != types.ProviderUnhealthy {
			t.Fatalf("expected unhealthy setup, got %s", p.Status())
		}
	}

	best := router.SelectBest()
	if best == nil {
		t.Fatalf("SelectBest returned nil with all providers unhealthy")
	}
	found := false
	for _, p := range router.Providers() {
		if p == best {
			found = true
		}
	}
	if !found {
		t.Fatalf("SelectBest returned a provider outside the configured set")
	}
}

func TestFailoverSwitchesToHealthyProvider(t *testing.T) {
	srvB, _ := fakeRpcServer(t, healthyHandlers())

	pool := utils.NewHTTPPool(0)
	router, err := NewFailoverRouter([]string{"http://a.invalid", srvB.URL}, pool)
	if err != nil {
		t.Fatalf("NewFailoverRouter failed: %v", err)
	}

	providers := router.Providers()
	a, b := providers[0], providers[1]

	// A fails liveness three times in a row, B responds.
	for i := 0; i < 3; i++ {
		a.RecordFailure(errors.New("connection refused"))
	}
	b.RecordSuccess(20 * time.Millisecond)

	if a.Status() != types.ProviderUnhealthy {
		t.Fatalf("expected A unhealthy, got %s", a.Status())
	}

	best := router.SelectBest()
	if best != b {
		t.Fatalf("expected current provider to switch to B, got %s", best.Endpoint())
	}

	// Subsequent sends route to B.
	var usedEndpoint string
	err = router.ExecuteWithFailover(context.Background(), func(ctx context.Context, endpoint string) error {
		usedEndpoint = endpoint
		return nil
	}, 3)
	if err != nil {
		t.Fatalf("ExecuteWithFailover failed: %v", err)
	}
	if usedEndpoint != srvB.URL {
		t.Fatalf("expected dispatch to %s, got %s", srvB.URL, usedEndpoint)
	}
}

func TestRouterBlockhashCachedSingleFetch(t *testing.T) {
	srv, calls := fakeRpcServer(t, healthyHandlers())

	pool := utils.NewHTTPPool(0)
	router, err := NewFailoverRouter([]string{srv.URL}, pool)
	if err != nil {
		t.Fatalf("NewFailoverRouter failed: %v", err)
	}

	first, err := router.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash failed: %v", err)
	}
	fetches := calls.Load()
	if fetches != 1 {
		t.Fatalf("expected exactly 1 network fetch on cold cache, got %d", fetches)
	}

	second, err := router.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash failed: %v", err)
	}
	if calls.Load() != fetches {
		t.Fatalf("expected zero additional fetches within the refresh interval, got %d", calls.Load()-fetches)
	}
	if first != second {
		t.Fatalf("cached blockhash changed between reads")
	}
}

func TestStartStopReleasesLoops(t *testing.T) {
	srv, _ := fakeRpcServer(t, healthyHandlers())

	pool := utils.NewHTTPPool(0)
	router, err := NewFailoverRouter([]string{srv.URL}, pool)
	if err != nil {
		t.Fatalf("NewFailoverRouter failed: %v", err)
	}

	router.Start(context.Background())
	if router.SelectBest() == nil {
		t.Fatalf("no current provider after Start")
	}

	done := make(chan struct{})
	go func() {
		router.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return, background loops still running")
	}
}
