package types

import "time"

// ProviderStatus classifies an RPC endpoint by its recent failure streak.
type ProviderStatus string

const (
	ProviderUnknown   ProviderStatus = "unknown"
	ProviderHealthy   ProviderStatus = "healthy"
	ProviderDegraded  ProviderStatus = "degraded"
	ProviderUnhealthy ProviderStatus = "unhealthy"
)

// ProviderSnapshot is a point-in-time view of one endpoint's health,
// taken after a health sweep and persisted for history.
type ProviderSnapshot struct {
	Endpoint            string         `json:"endpoint" ch:"endpoint"`
	Status              ProviderStatus `json:"status" ch:"status"`
	Score               float64        `json:"score" ch:"score"`
	SuccessRate         float64        `json:"successRate" ch:"successRate"`
	AvgLatencyMs        float64        `json:"avgLatencyMs" ch:"avgLatencyMs"`
	ConsecutiveFailures uint32         `json:"consecutiveFailures" ch:"consecutiveFailures"`
	TotalRequests       uint64         `json:"totalRequests" ch:"totalRequests"`
	LastError           string         `json:"lastError" ch:"lastError"`
	CheckedAt           time.Time      `json:"checkedAt" ch:"checkedAt"`
}
