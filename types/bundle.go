package types

import "time"

// BundleState tracks one bundle attempt through its lifecycle.
// Failed attempts with retries left go back to Building with a higher tip.
type BundleState string

const (
	BundleBuilding     BundleState = "building"
	BundleSubmitted    BundleState = "submitted"
	BundleLanded       BundleState = "landed"
	BundleFailed       BundleState = "failed"
	BundleFinalFailure BundleState = "final_failure"
)

// BundleResult is what a caller gets back from a bundle submission.
// Relay rejection is a soft failure: Success is false and ErrorMessage is
// set, nothing is raised.
type BundleResult struct {
	Success      bool
	BundleID     string
	ErrorMessage string
	TipLamports  uint64 // tip attached to the final attempt
	Attempts     int
}

// BundleAttemptRecord is the per-attempt history row persisted to ClickHouse.
type BundleAttemptRecord struct {
	BundleID    string      `ch:"bundleId"`
	Side        string      `ch:"side"` // buy or sell
	Target      string      `ch:"target"`
	Attempt     uint32      `ch:"attempt"`
	TipLamports uint64      `ch:"tipLamports"`
	TxCount     uint32      `ch:"txCount"`
	State       BundleState `ch:"state"`
	Error       string      `ch:"error"`
	Timestamp   time.Time   `ch:"timestamp"`
}
