package sol

import (
	"sync"
	"time"

	"bundler/config"
	"bundler/types"
)

// Health score weights. Score is success rate minus a latency penalty
// (avg latency capped at 1s) minus a consecutive-failure penalty (capped
// at 5 failures), clamped to [0,1].
const (
	latencyPenaltyWeight = 0.2
	failurePenaltyWeight = 0.3

	degradedThreshold  = 1
	unhealthyThreshold = 3

	neutralScore = 0.5
)

// HealthTracker keeps rolling health metrics for one RPC endpoint.
type HealthTracker struct {
	mu sync.Mutex

	endpoint string
	status   types.ProviderStatus

	latencies []time.Duration // ring buffer, at most PROVIDER_LATENCY_WINDOW
	latIndex  int

	totalRequests       uint64
	successfulRequests  uint64
	consecutiveFailures uint32
	lastError           string
	lastCheck           time.Time
}

func NewHealthTracker(endpoint string) *HealthTracker {
	return &HealthTracker{
		endpoint:  endpoint,
		status:    types.ProviderUnknown,
		latencies: make([]time.Duration, 0, config.PROVIDER_LATENCY_WINDOW),
	}
}

func (h *HealthTracker) Endpoint() string {
	return h.endpoint
}

func (h *HealthTracker) RecordSuccess(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pushLatency(latency)
	h.totalRequests++
	h.successfulRequests++
	h.consecutiveFailures = 0
	h.status = types.ProviderHealthy
	h.lastCheck = time.Now()
}

// RecordFailure never fails itself; a nil error is recorded as an
// unspecified failure.
func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.consecutiveFailures++
	if err != nil {
		h.lastError = err.Error()
	} else {
		h.lastError = "unspecified failure"
	}
	h.status = statusFor(h.consecutiveFailures)
	h.lastCheck = time.Now()
}

// Score ranks the endpoint in [0,1]. An endpoint with no observations is
// neutral at 0.5 so it sorts between proven-good and proven-bad peers.
func (h *HealthTracker) Score() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scoreLocked()
}

func (h *HealthTracker) Status() types.ProviderStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *HealthTracker) SuccessRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successRateLocked()
}

func (h *HealthTracker) AvgLatency() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.avgLatencyLocked()
}

func (h *HealthTracker) Snapshot() types.ProviderSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return types.ProviderSnapshot{
		Endpoint:            h.endpoint,
		Status:              h.status,
		Score:               h.scoreLocked(),
		SuccessRate:         h.successRateLocked(),
		AvgLatencyMs:        float64(h.avgLatencyLocked()) / float64(time.Millisecond),
		ConsecutiveFailures: h.consecutiveFailures,
		TotalRequests:       h.totalRequests,
		LastError:           h.lastError,
		CheckedAt:           h.lastCheck,
	}
}

func (h *HealthTracker) pushLatency(latency time.Duration) {
	if len(h.latencies) < config.PROVIDER_LATENCY_WINDOW {
		h.latencies = append(h.latencies, latency)
		return
	}
	h.latencies[h.latIndex] = latency
	h.latIndex = (h.latIndex + 1) % config.PROVIDER_LATENCY_WINDOW
}

func (h *HealthTracker) scoreLocked() float64 {
	if h.totalRequests == 0 {
		return neutralScore
	}

	avgMs := float64(h.avgLatencyLocked()) / float64(time.Millisecond)
	latencyPenalty := min(avgMs/1000, 1) * latencyPenaltyWeight
	failurePenalty := min(float64(h.consecutiveFailures)/5, 1) * failurePenaltyWeight

	score := h.successRateLocked() - latencyPenalty - failurePenalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (h *HealthTracker) successRateLocked() float64 {
	if h.totalRequests == 0 {
		return 0
	}
	return float64(h.successfulRequests) / float64(h.totalRequests)
}

func (h *HealthTracker) avgLatencyLocked() time.Duration {
	if len(h.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range h.latencies {
		sum += l
	}
	return sum / time.Duration(len(h.latencies))
}

func statusFor(consecutiveFailures uint32) types.ProviderStatus {
	switch {
	case consecutiveFailures >= unhealthyThreshold:
		return types.ProviderUnhealthy
	case consecutiveFailures >= degradedThreshold:
		return types.ProviderDegraded
	default:
		return types.ProviderHealthy
	}
}
