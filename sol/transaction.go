package sol

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"bundler/config"
	"bundler/logger"
)

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Compute-budget instruction tags.
const (
	tagSetComputeUnitLimit            = 2
	tagSetComputeUnitPrice            = 3
	tagSetLoadedAccountsDataSizeLimit = 4
)

// Budget carries the optional compute-budget knobs for a transaction.
// Zero values mean unset.
type Budget struct {
	PriorityFee          uint64 // micro-lamports per compute unit
	ComputeUnitLimit     uint32
	AccountDataSizeLimit uint32
}

func (b Budget) isSet() bool {
	return b.PriorityFee > 0 || b.ComputeUnitLimit > 0 || b.AccountDataSizeLimit > 0
}

func computeUnitLimitInstruction(units uint32) (solana.Instruction, error) {
	return computeBudgetInstruction(tagSetComputeUnitLimit, func(enc *bin.Encoder) error {
		return enc.WriteUint32(units, binary.LittleEndian)
	})
}

func computeUnitPriceInstruction(microLamports uint64) (solana.Instruction, error) {
	return computeBudgetInstruction(tagSetComputeUnitPrice, func(enc *bin.Encoder) error {
		return enc.WriteUint64(microLamports, binary.LittleEndian)
	})
}

func accountDataSizeLimitInstruction(limit uint32) (solana.Instruction, error) {
	return computeBudgetInstruction(tagSetLoadedAccountsDataSizeLimit, func(enc *bin.Encoder) error {
		return enc.WriteUint32(limit, binary.LittleEndian)
	})
}

func computeBudgetInstruction(tag byte, writePayload func(*bin.Encoder) error) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteByte(tag); err != nil {
		return nil, err
	}
	if err := writePayload(enc); err != nil {
		return nil, err
	}
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, buf.Bytes()), nil
}

// budgetInstructions expands a Budget into its instruction prefix, in the
// fixed order: data-size limit, unit limit, unit price. The unit limit
// defaults when any other budget knob is set without it.
func budgetInstructions(budget Budget) ([]solana.Instruction, error) {
	if !budget.isSet() {
		return nil, nil
	}

	prefix := make([]solana.Instruction, 0, 3)

	if budget.AccountDataSizeLimit > 0 {
		ix, err := accountDataSizeLimitInstruction(budget.AccountDataSizeLimit)
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, ix)
	}

	units := budget.ComputeUnitLimit
	if units == 0 {
		units = config.DefaultComputeUnitLimit
	}
	ix, err := computeUnitLimitInstruction(units)
	if err != nil {
		return nil, err
	}
	prefix = append(prefix, ix)

	if budget.PriorityFee > 0 {
		ix, err := computeUnitPriceInstruction(budget.PriorityFee)
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, ix)
	}

	return prefix, nil
}

// BuildTransaction assembles and signs a transaction for the given signer
// with the budget prefix prepended. The cached blockhash read is its only
// network dependency.
func (c *Client) BuildTransaction(ctx context.Context, instructions []solana.Instruction, signer solana.PrivateKey, budget Budget) (*solana.Transaction, error) {
	prefix, err := budgetInstructions(budget)
	if err != nil {
		return nil, fmt.Errorf("failed to build compute budget instructions: %w", err)
	}
	ixs := append(prefix, instructions...)

	blockhash, err := c.GetCachedBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(signer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return tx, nil
}

// BuildAndSendTransaction builds once, then sends with its own retry
// layer on top of whatever failover retries the routing mode adds.
func (c *Client) BuildAndSendTransaction(ctx context.Context, instructions []solana.Instruction, signer solana.PrivateKey, budget Budget, maxRetries int) (string, error) {
	if maxRetries <= 0 {
		maxRetries = config.DefaultSendRetries
	}

	tx, err := c.BuildTransaction(ctx, instructions, signer, budget)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		signature, err := c.SendTransaction(ctx, tx)
		if err == nil {
			return signature, nil
		}
		lastErr = err
		logger.RpcLogger.Warn("Send failed, retrying...", "attempt", attempt+1, "err", err)

		if attempt < maxRetries-1 {
			backoff := time.Second << attempt // 2^attempt seconds
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("send failed after %d attempts: %w", maxRetries, lastErr)
}
