package config

import "time"

// Path config
const (
	LogPath    = "./logs/"
	ConfigPath = "./"
)

// Network config
const (
	DefaultRpcTimeout    = 10 * time.Second
	HealthCheckTimeout   = 5 * time.Second
	HealthCheckInterval  = 30 * time.Second
	BlockhashRefreshTick = 5 * time.Second

	DefaultFailoverRetries = 3
	FailoverBackoffBase    = 500 * time.Millisecond

	DefaultSendRetries  = 3
	ConfirmPollInterval = 1 * time.Second
)

// Provider selection config
const (
	// A provider falls out of the preferred set when its success rate or
	// average latency crosses these bounds. The full set is ranked anyway
	// when nothing survives the filter.
	PROVIDER_MIN_SUCCESS_RATE = 0.5
	PROVIDER_MAX_AVG_LATENCY  = 2 * time.Second

	PROVIDER_LATENCY_WINDOW = 100 // rolling latency samples kept per provider
)

// Transaction config
const (
	DefaultComputeUnitLimit = 85_000
)

// Bundle config
const (
	DefaultInitialTipLamports   = 100_000_000
	DefaultTipIncrementLamports = 50_000_000
	DefaultMaxTipLamports       = 1_000_000_000

	DefaultBundleRetries = 3
	BundleRetryInterval  = 1 * time.Second

	// How long to poll getBundleStatuses before an attempt counts as failed.
	BundleStatusPollInterval = 2 * time.Second
	BundleStatusWait         = 30 * time.Second
)

// Identity pool config
const (
	DefaultPoolSize = 5

	DefaultMinBalanceLamports    = 50_000_000  // 0.05 SOL
	DefaultTargetBalanceLamports = 100_000_000 // 0.1 SOL
	FundingFeeMarginLamports     = 5_000_000   // kept aside for transfer fees
	DefaultPoolStorePath         = "./pool.json"
)
