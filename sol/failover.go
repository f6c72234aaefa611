package sol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"bundler/config"
	"bundler/logger"
	"bundler/types"
	"bundler/utils"
)

var (
	ErrNoProviders           = errors.New("failover router requires at least one provider")
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
)

// HealthSink receives provider snapshots after each health sweep.
// A nil sink disables persistence.
type HealthSink interface {
	InsertProviderHealth(snaps []types.ProviderSnapshot) error
}

// FailoverRouter owns a fixed set of RPC providers, keeps their health
// scores current, and retries operations across them. The current
// provider is read without the selection lock on the hot path; a stale
// read at worst costs one extra failure-triggered reselect.
type FailoverRouter struct {
	providers []*HealthTracker
	pool      *utils.HTTPPool
	blockhash *BlockhashCache
	sink      HealthSink

	selectMu sync.Mutex
	current  atomic.Pointer[HealthTracker]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFailoverRouter(endpoints []string, pool *utils.HTTPPool) (*FailoverRouter, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoProviders
	}

	providers := make([]*HealthTracker, 0, len(endpoints))
	for _, ep := range endpoints {
		providers = append(providers, NewHealthTracker(ep))
	}

	return &FailoverRouter{
		providers: providers,
		pool:      pool,
		blockhash: NewBlockhashCache(),
	}, nil
}

func (r *FailoverRouter) SetHealthSink(sink HealthSink) {
	r.sink = sink
}

func (r *FailoverRouter) Providers() []*HealthTracker {
	return r.providers
}

// Start sweeps every provider once, picks the initial best, then runs the
// periodic health-check and blockhash-refresh loops until Stop.
func (r *FailoverRouter) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.healthCheckAll(loopCtx)
	r.SelectBest()

	r.wg.Add(2)
	go r.healthLoop(loopCtx)
	go r.blockhashLoop(loopCtx)

	logger.RpcLogger.Info("Failover router started", "providers", len(r.providers))
}

// Stop cancels both background loops, waits for them, and releases the
// pooled connections.
func (r *FailoverRouter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	r.wg.Wait()
	r.pool.Close()

	logger.RpcLogger.Info("Failover router stopped")
}

func (r *FailoverRouter) healthLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.healthCheckAll(ctx)
			r.SelectBest()
			r.emitSnapshots()
		}
	}
}

func (r *FailoverRouter) blockhashLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(config.BlockhashRefreshTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.fetchBlockhash(ctx); err != nil {
				logger.RpcLogger.Warn("Blockhash refresh failed", "err", err)
			}
		}
	}
}

// healthCheckAll probes every provider concurrently with one lightweight
// getHealth call each.
func (r *FailoverRouter) healthCheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range r.providers {
		wg.Add(1)
		go func(p *HealthTracker) {
			defer wg.Done()
			r.probe(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (r *FailoverRouter) probe(ctx context.Context, p *HealthTracker) {
	probeCtx, cancel := context.WithTimeout(ctx, config.HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	_, err := callRpc(probeCtx, r.pool, p.Endpoint(), "getHealth", nil)
	latency := time.Since(start)

	if err != nil {
		p.RecordFailure(err)
		logger.RpcLogger.Warn("Provider health check failed", "endpoint", p.Endpoint(), "err", err)
		return
	}
	p.RecordSuccess(latency)
}

func (r *FailoverRouter) emitSnapshots() {
	if r.sink == nil {
		return
	}
	snaps := make([]types.ProviderSnapshot, 0, len(r.providers))
	for _, p := range r.providers {
		snaps = append(snaps, p.Snapshot())
	}
	if err := r.sink.InsertProviderHealth(snaps); err != nil {
		logger.RpcLogger.Warn("Failed to persist provider health", "err", err)
	}
}

// SelectBest picks the highest-scoring usable provider and installs it as
// current. It always returns a provider from the configured set.
func (r *FailoverRouter) SelectBest() *HealthTracker {
	return r.selectBest(nil)
}

func (r *FailoverRouter) selectBest(avoid map[*HealthTracker]bool) *HealthTracker {
	r.selectMu.Lock()
	defer r.selectMu.Unlock()

	candidates := make([]*HealthTracker, 0, len(r.providers))
	for _, p := range r.providers {
		if avoid[p] {
			continue
		}
		status := p.Status()
		if status != types.ProviderHealthy && status != types.ProviderDegraded {
			continue
		}
		if p.SuccessRate() < config.PROVIDER_MIN_SUCCESS_RATE {
			continue
		}
		if p.AvgLatency() > config.PROVIDER_MAX_AVG_LATENCY {
			continue
		}
		candidates = append(candidates, p)
	}

	// Nothing usable: rank whatever is not avoided, and as a last resort
	// the full set. The router never runs out of providers to hand back.
	if len(candidates) == 0 {
		for _, p := range r.providers {
			if !avoid[p] {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, r.providers...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score() > candidates[j].Score()
	})

	winner := candidates[0]
	if prev := r.current.Load(); prev != winner {
		prevEndpoint := ""
		if prev != nil {
			prevEndpoint = prev.Endpoint()
		}
		logger.RpcLogger.Info("Switching current provider",
			"from", prevEndpoint,
			"to", winner.Endpoint(),
			"score", winner.Score(),
		)
		r.current.Store(winner)
	}
	return winner
}

// ExecuteWithFailover runs op against the current provider, failing over
// to the next best on error with exponential backoff. Providers already
// tried in this call are avoided until the whole set has been burned
// through, then the avoid-set resets.
func (r *FailoverRouter) ExecuteWithFailover(ctx context.Context, op func(ctx context.Context, endpoint string) error, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = config.DefaultFailoverRetries
	}

	tried := make(map[*HealthTracker]bool, len(r.providers))
	var lastErr error
	lastEndpoint := ""

	for attempt := 0; attempt < maxRetries; attempt++ {
		p := r.current.Load()
		if p == nil {
			p = r.selectBest(tried)
		}

		start := time.Now()
		err := op(ctx, p.Endpoint())
		if err == nil {
			p.RecordSuccess(time.Since(start))
			return nil
		}

		p.RecordFailure(err)
		lastErr = err
		lastEndpoint = p.Endpoint()
		logger.RpcLogger.Warn("Operation failed, reselecting provider",
			"endpoint", p.Endpoint(), "attempt", attempt+1, "err", err)

		tried[p] = true
		if len(tried) == len(r.providers) {
			clear(tried)
		}
		r.selectBest(tried)

		if attempt < maxRetries-1 {
			backoff := config.FailoverBackoffBase << attempt // 0.5s * 2^attempt
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("%w after %d attempts, last provider %s: %v",
		ErrAllProvidersExhausted, maxRetries, lastEndpoint, lastErr)
}

// PostRpc runs one JSON-RPC call through the failover layer.
func (r *FailoverRouter) PostRpc(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	err := r.ExecuteWithFailover(ctx, func(ctx context.Context, endpoint string) error {
		raw, err := callRpc(ctx, r.pool, endpoint, method, params)
		if err != nil {
			return err
		}
		result = raw
		return nil
	}, config.DefaultFailoverRetries)
	return result, err
}

// GetLatestBlockhash serves from the shared cache, falling back to one
// synchronous fetch when the cache is cold.
func (r *FailoverRouter) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if hash, ok := r.blockhash.Get(); ok {
		return hash, nil
	}
	return r.fetchBlockhash(ctx)
}

func (r *FailoverRouter) fetchBlockhash(ctx context.Context) (solana.Hash, error) {
	raw, err := r.PostRpc(ctx, "getLatestBlockhash",
		[]interface{}{map[string]interface{}{"commitment": "finalized"}})
	if err != nil {
		return solana.Hash{}, err
	}

	hash, err := parseBlockhashResult(raw)
	if err != nil {
		return solana.Hash{}, err
	}

	r.blockhash.Set(hash)
	return hash, nil
}

// SendTransaction submits a base58-encoded signed transaction through the
// failover layer and returns its signature.
func (r *FailoverRouter) SendTransaction(ctx context.Context, txBase58 string) (string, error) {
	raw, err := r.PostRpc(ctx, "sendTransaction",
		[]interface{}{txBase58, map[string]interface{}{"encoding": "base58"}})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return "", fmt.Errorf("unexpected sendTransaction result: %w", err)
	}
	return signature, nil
}

func parseBlockhashResult(raw json.RawMessage) (solana.Hash, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return solana.Hash{}, fmt.Errorf("unexpected getLatestBlockhash result: %w", err)
	}

	hash, err := solana.HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash %q: %w", result.Value.Blockhash, err)
	}
	return hash, nil
}
