package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Units
const (
	LamportsPerSol = 1_000_000_000
)

var lamportsPerSol = decimal.NewFromInt(LamportsPerSol)

// SolToLamports parses a human SOL amount ("0.05") into integer lamports.
// All internal arithmetic works on lamports; decimals exist only at this
// boundary.
func SolToLamports(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative SOL amount %q", s)
	}
	lamports := d.Mul(lamportsPerSol)
	if !lamports.IsInteger() {
		return 0, fmt.Errorf("SOL amount %q is below one lamport of precision", s)
	}
	return uint64(lamports.IntPart()), nil
}

// LamportsToSol renders lamports as a SOL string for logs and CLI output.
func LamportsToSol(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSol).String()
}
