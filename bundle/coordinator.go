package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"

	"bundler/config"
	"bundler/logger"
	"bundler/sol"
	"bundler/types"
	"bundler/wallet"
)

var ErrNoTransactionsBuilt = errors.New("no transactions built")

// Relay is the external bundle relay. Its atomicity guarantee is assumed:
// the transactions handed to Submit land together or not at all.
type Relay interface {
	Submit(ctx context.Context, txsBase58 []string, tipLamports uint64) types.BundleResult
}

// AttemptSink receives per-attempt history rows. A nil sink disables
// persistence.
type AttemptSink interface {
	InsertBundleAttempt(rec types.BundleAttemptRecord) error
}

type TipConfig struct {
	InitialTip   uint64
	TipIncrement uint64
	MaxTip       uint64
	MaxRetries   int

	TipAccount solana.PublicKey

	// Per-transaction compute budget.
	PriorityFee      uint64
	ComputeUnitLimit uint32
}

func (c *TipConfig) applyDefaults() {
	if c.InitialTip == 0 {
		c.InitialTip = config.DefaultInitialTipLamports
	}
	if c.TipIncrement == 0 {
		c.TipIncrement = config.DefaultTipIncrementLamports
	}
	if c.MaxTip == 0 {
		c.MaxTip = config.DefaultMaxTipLamports
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = config.DefaultBundleRetries
	}
}

// Coordinator builds one transaction per identity and submits the set as
// a single atomic bundle, escalating the tip on failure.
type Coordinator struct {
	client  *sol.Client
	pool    *wallet.IdentityPool
	relay   Relay
	builder InstructionBuilder
	sink    AttemptSink
	cfg     TipConfig
}

func NewCoordinator(client *sol.Client, pool *wallet.IdentityPool, relay Relay, builder InstructionBuilder, cfg TipConfig) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		client:  client,
		pool:    pool,
		relay:   relay,
		builder: builder,
		cfg:     cfg,
	}
}

func (c *Coordinator) SetAttemptSink(sink AttemptSink) {
	c.sink = sink
}

// identityBuild is one identity's share of a bundle: its signer plus the
// instruction list the builder produced for it.
type identityBuild struct {
	index        int
	signer       solana.PrivateKey
	instructions []solana.Instruction
}

// ExecuteBuy builds one buy transaction per selected identity and submits
// them as one bundle. Identities whose build fails are skipped with a
// warning; a batch that produced nothing fails fast.
func (c *Coordinator) ExecuteBuy(ctx context.Context, target solana.PublicKey, lamportsPerIdentity uint64, subset []int) (types.BundleResult, error) {
	builds := c.fanOutBuilds(ctx, c.selectIndices(subset), func(ctx context.Context, id *wallet.Identity) ([]solana.Instruction, error) {
		return c.builder.BuildBuy(ctx, target, id.Key.PublicKey(), lamportsPerIdentity)
	})
	if len(builds) == 0 {
		return types.BundleResult{}, ErrNoTransactionsBuilt
	}

	result := c.SubmitWithRetry(ctx, "buy", target, builds)
	c.finish(builds, result)
	return result, nil
}

// ExecutePercentageSell reads each identity's token balance for the
// target, sells floor(balance*percentage), and submits one bundle.
// Identities with nothing to sell are skipped.
func (c *Coordinator) ExecutePercentageSell(ctx context.Context, target solana.PublicKey, percentage float64, subset []int) (types.BundleResult, error) {
	if percentage <= 0 || percentage > 1 {
		return types.BundleResult{}, fmt.Errorf("percentage %v outside (0,1]", percentage)
	}

	builds := c.fanOutBuilds(ctx, c.selectIndices(subset), func(ctx context.Context, id *wallet.Identity) ([]solana.Instruction, error) {
		owner := id.Key.PublicKey()
		tokenAccount, _, err := solana.FindAssociatedTokenAddress(owner, target)
		if err != nil {
			return nil, fmt.Errorf("failed to derive token account: %w", err)
		}

		balance, err := c.client.GetTokenAccountBalance(ctx, tokenAccount)
		if err != nil {
			return nil, fmt.Errorf("failed to read token balance: %w", err)
		}

		amount := balance
		if percentage < 1 {
			amount = uint64(float64(balance) * percentage)
		}
		if amount == 0 {
			return nil, nil // nothing to sell, skip quietly
		}
		return c.builder.BuildSell(ctx, target, owner, amount)
	})
	if len(builds) == 0 {
		return types.BundleResult{}, ErrNoTransactionsBuilt
	}

	result := c.SubmitWithRetry(ctx, "sell", target, builds)
	c.finish(builds, result)
	return result, nil
}

func (c *Coordinator) selectIndices(subset []int) []int {
	if len(subset) > 0 {
		return subset
	}
	indices := make([]int, c.pool.Count())
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// fanOutBuilds runs the per-identity build concurrently and joins at a
// barrier before anything is submitted. A failed or empty build skips
// that identity only.
func (c *Coordinator) fanOutBuilds(ctx context.Context, indices []int, build func(ctx context.Context, id *wallet.Identity) ([]solana.Instruction, error)) []*identityBuild {
	results := make([]*identityBuild, len(indices))

	var wg sync.WaitGroup
	for slot, index := range indices {
		wg.Add(1)
		go func(slot, index int) {
			defer wg.Done()

			id, err := c.pool.Get(index)
			if err != nil {
				logger.BundleLogger.Warn("Skipping unknown identity", "index", index, "err", err)
				return
			}

			instructions, err := build(ctx, id)
			if err != nil {
				logger.BundleLogger.Warn("Build failed, skipping identity", "index", index, "err", err)
				return
			}
			if len(instructions) == 0 {
				return
			}
			results[slot] = &identityBuild{
				index:        index,
				signer:       id.Key,
				instructions: instructions,
			}
		}(slot, index)
	}
	wg.Wait()

	builds := make([]*identityBuild, 0, len(results))
	for _, b := range results {
		if b != nil {
			builds = append(builds, b)
		}
	}
	return builds
}

// SubmitWithRetry signs and submits the bundle, raising the tip by a
// fixed increment after every failure up to the cap. It never fails hard:
// exhausting retries hands back the last result with Success false.
func (c *Coordinator) SubmitWithRetry(ctx context.Context, side string, target solana.PublicKey, builds []*identityBuild) types.BundleResult {
	var last types.BundleResult

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		tip := c.tipFor(attempt)

		txs, err := c.signBundle(ctx, builds, tip)
		if err != nil {
			// The attempt is abandoned whole: no partial submission.
			last = types.BundleResult{
				ErrorMessage: err.Error(),
				TipLamports:  tip,
			}
			logger.BundleLogger.Warn("Bundle signing failed", "side", side, "attempt", attempt+1, "err", err)
		} else {
			logger.BundleLogger.Info("Submitting bundle",
				"side", side, "target", target.String(),
				"txs", len(txs), "tip", tip, "attempt", attempt+1)
			last = c.relay.Submit(ctx, txs, tip)
		}
		last.Attempts = attempt + 1

		state := types.BundleFailed
		if last.Success {
			state = types.BundleLanded
		} else if attempt == c.cfg.MaxRetries-1 {
			state = types.BundleFinalFailure
		}
		c.record(side, target, attempt+1, tip, len(builds), state, last)

		if last.Success {
			logger.BundleLogger.Info("Bundle landed",
				"side", side, "bundle_id", last.BundleID, "tip", tip, "attempts", last.Attempts)
			return last
		}

		logger.BundleLogger.Warn("Bundle attempt failed",
			"side", side, "attempt", attempt+1, "tip", tip, "err", last.ErrorMessage)

		if attempt < c.cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				last.ErrorMessage = ctx.Err().Error()
				return last
			case <-time.After(config.BundleRetryInterval):
			}
		}
	}
	return last
}

func (c *Coordinator) tipFor(attempt int) uint64 {
	tip := c.cfg.InitialTip + uint64(attempt)*c.cfg.TipIncrement
	if tip > c.cfg.MaxTip {
		tip = c.cfg.MaxTip
	}
	return tip
}

// signBundle signs one transaction per build with a fresh cached
// blockhash, appending the tip payment to the last transaction so the tip
// rides inside the atomic unit. Any failure abandons the whole attempt.
func (c *Coordinator) signBundle(ctx context.Context, builds []*identityBuild, tip uint64) ([]string, error) {
	budget := sol.Budget{
		PriorityFee:      c.cfg.PriorityFee,
		ComputeUnitLimit: c.cfg.ComputeUnitLimit,
	}

	txs := make([]string, 0, len(builds))
	for i, b := range builds {
		ixs := b.instructions
		if i == len(builds)-1 {
			tipIx := system.NewTransferInstruction(tip, b.signer.PublicKey(), c.cfg.TipAccount).Build()
			ixs = append(append([]solana.Instruction{}, ixs...), tipIx)
		}

		tx, err := c.client.BuildTransaction(ctx, ixs, b.signer, budget)
		if err != nil {
			return nil, fmt.Errorf("failed to build transaction for identity %d: %w", b.index, err)
		}
		serialized, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize transaction for identity %d: %w", b.index, err)
		}
		txs = append(txs, base58.Encode(serialized))
	}
	return txs, nil
}

func (c *Coordinator) record(side string, target solana.PublicKey, attempt int, tip uint64, txCount int, state types.BundleState, result types.BundleResult) {
	if c.sink == nil {
		return
	}
	rec := types.BundleAttemptRecord{
		BundleID:    result.BundleID,
		Side:        side,
		Target:      target.String(),
		Attempt:     uint32(attempt),
		TipLamports: tip,
		TxCount:     uint32(txCount),
		State:       state,
		Error:       result.ErrorMessage,
		Timestamp:   time.Now(),
	}
	if err := c.sink.InsertBundleAttempt(rec); err != nil {
		logger.BundleLogger.Warn("Failed to persist bundle attempt", "err", err)
	}
}

func (c *Coordinator) finish(builds []*identityBuild, result types.BundleResult) {
	if !result.Success {
		return
	}
	for _, b := range builds {
		c.pool.MarkUsed(b.index)
	}
	if err := c.pool.Save(); err != nil {
		logger.BundleLogger.Warn("Failed to persist pool state", "err", err)
	}
}
