package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bundler/logger"
)

func init() {
	logger.InitLogs("utils-test")
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		w.Write([]byte(`{"value":7}`))
	}))
	defer srv.Close()

	pool := NewHTTPPool(0)
	defer pool.Close()

	var result struct {
		Value int `json:"value"`
	}
	if err := pool.PostJSON(context.Background(), srv.URL, map[string]any{"a": 1}, &result); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if result.Value != 7 {
		t.Fatalf("expected value 7, got %d", result.Value)
	}
}

func TestPostJSONBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pool := NewHTTPPool(0)
	defer pool.Close()

	err := pool.PostJSON(context.Background(), srv.URL, map[string]any{}, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), RPC_BAD_STATUS) {
		t.Fatalf("expected bad-status error class, got %v", err)
	}
}

func TestPostJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	pool := NewHTTPPool(0)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.PostJSON(ctx, srv.URL, map[string]any{}, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), RPC_TIMEOUT) {
		t.Fatalf("expected timeout error class, got %v", err)
	}
}

func TestPostJSONWithRetryEventuallySucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	pool := NewHTTPPool(0)
	defer pool.Close()

	var result struct {
		OK bool `json:"ok"`
	}
	err := pool.PostJSONWithRetry(context.Background(), srv.URL, map[string]any{}, &result, DefaultRetryTimes, logger.GlobalLogger)
	if err != nil {
		t.Fatalf("PostJSONWithRetry failed: %v", err)
	}
	if !result.OK || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, got ok=%v calls=%d", result.OK, calls.Load())
	}
}
