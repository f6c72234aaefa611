package types

import "time"

// IdentityRecord is the persisted form of one pool identity. Balances are
// integer base units (lamports / token base units), never floats.
type IdentityRecord struct {
	KeyMaterial   string    `json:"key_material"` // base58 private key
	BalanceSol    uint64    `json:"balance_sol"`
	BalanceTokens uint64    `json:"balance_tokens"`
	TotalTrades   uint64    `json:"total_trades"`
	LastUsed      time.Time `json:"last_used"`
}

// PoolState is the on-disk identity pool file, read at startup if present
// and rewritten after generation or funding.
type PoolState struct {
	Identities []IdentityRecord `json:"identities"`
}
