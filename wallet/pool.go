package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"bundler/config"
	"bundler/logger"
	"bundler/sol"
	"bundler/types"
	"bundler/utils"
)

// Identity is one signing wallet in the pool with its cached balances.
type Identity struct {
	Key             solana.PrivateKey
	BalanceLamports uint64
	TokenBalance    uint64
	TotalTrades     uint64
	LastUsed        time.Time
}

type PoolConfig struct {
	Size          int
	MinBalance    uint64 // identities below this get topped up
	TargetBalance uint64 // funding target per identity
	FeeMargin     uint64 // lamports the funder keeps aside for fees
	StorePath     string // empty disables persistence
}

func (c *PoolConfig) applyDefaults() {
	if c.Size <= 0 {
		c.Size = config.DefaultPoolSize
	}
	if c.MinBalance == 0 {
		c.MinBalance = config.DefaultMinBalanceLamports
	}
	if c.TargetBalance == 0 {
		c.TargetBalance = config.DefaultTargetBalanceLamports
	}
	if c.FeeMargin == 0 {
		c.FeeMargin = config.FundingFeeMarginLamports
	}
}

// IdentityPool manages a fixed set of signing identities: generation or
// loading from disk, funding from a source wallet, balance refresh, and
// rebalancing. Identities are never removed during a run.
type IdentityPool struct {
	mu sync.Mutex

	client     *sol.Client
	cfg        PoolConfig
	funder     solana.PrivateKey
	identities []*Identity
}

func NewIdentityPool(client *sol.Client, cfg PoolConfig) *IdentityPool {
	cfg.applyDefaults()
	return &IdentityPool{
		client: client,
		cfg:    cfg,
	}
}

// Initialize loads or generates the identities, persists them, refreshes
// balances, and funds every identity below the minimum up to the target.
// An underfunded funder downgrades funding to a warning, never an error.
func (p *IdentityPool) Initialize(ctx context.Context, funder solana.PrivateKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.funder = funder

	if err := p.loadOrGenerate(); err != nil {
		return err
	}
	if err := p.save(); err != nil {
		return err
	}
	if err := p.refreshBalances(ctx); err != nil {
		return fmt.Errorf("failed to read identity balances: %w", err)
	}

	shortfalls := make(map[int]uint64)
	var total uint64
	for i, id := range p.identities {
		if id.BalanceLamports < p.cfg.MinBalance {
			shortfall := p.cfg.TargetBalance - id.BalanceLamports
			shortfalls[i] = shortfall
			total += shortfall
		}
	}
	if total == 0 {
		logger.GlobalLogger.Info("Identity pool initialized, all identities funded",
			"count", len(p.identities))
		return nil
	}

	funderBalance, err := p.client.GetBalance(ctx, funder.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to read funder balance: %w", err)
	}
	if funderBalance < total+p.cfg.FeeMargin {
		logger.GlobalLogger.Warn("Funder balance insufficient, skipping funding",
			"funder", funder.PublicKey().String(),
			"balance", utils.LamportsToSol(funderBalance),
			"needed", utils.LamportsToSol(total+p.cfg.FeeMargin),
		)
		return nil
	}

	for i, shortfall := range shortfalls {
		if err := p.fundLocked(ctx, i, shortfall); err != nil {
			logger.GlobalLogger.Warn("Failed to fund identity, skipping",
				"index", i, "amount", utils.LamportsToSol(shortfall), "err", err)
		}
	}

	if err := p.save(); err != nil {
		return err
	}
	logger.GlobalLogger.Info("Identity pool initialized", "count", len(p.identities))
	return nil
}

func (p *IdentityPool) loadOrGenerate() error {
	state, err := loadState(p.cfg.StorePath)
	if err != nil {
		return err
	}

	if state != nil {
		for _, rec := range state.Identities {
			key, err := solana.PrivateKeyFromBase58(rec.KeyMaterial)
			if err != nil {
				return fmt.Errorf("invalid stored key material: %w", err)
			}
			p.identities = append(p.identities, &Identity{
				Key:             key,
				BalanceLamports: rec.BalanceSol,
				TokenBalance:    rec.BalanceTokens,
				TotalTrades:     rec.TotalTrades,
				LastUsed:        rec.LastUsed,
			})
		}
		logger.GlobalLogger.Info("Loaded identities from store",
			"path", p.cfg.StorePath, "count", len(p.identities))
	}

	// Top up to the configured size by generating the shortfall.
	for len(p.identities) < p.cfg.Size {
		p.identities = append(p.identities, &Identity{
			Key: solana.NewWallet().PrivateKey,
		})
	}
	return nil
}

func (p *IdentityPool) save() error {
	if p.cfg.StorePath == "" {
		return nil
	}

	state := &types.PoolState{
		Identities: make([]types.IdentityRecord, 0, len(p.identities)),
	}
	for _, id := range p.identities {
		state.Identities = append(state.Identities, types.IdentityRecord{
			KeyMaterial:   id.Key.String(),
			BalanceSol:    id.BalanceLamports,
			BalanceTokens: id.TokenBalance,
			TotalTrades:   id.TotalTrades,
			LastUsed:      id.LastUsed,
		})
	}
	return saveState(p.cfg.StorePath, state)
}

// Fund transfers lamports from the funder to one identity and updates
// its cached balance once the transfer confirms.
func (p *IdentityPool) Fund(ctx context.Context, index int, lamports uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fundLocked(ctx, index, lamports)
}

func (p *IdentityPool) fundLocked(ctx context.Context, index int, lamports uint64) error {
	if index < 0 || index >= len(p.identities) {
		return fmt.Errorf("identity index %d out of range [0,%d)", index, len(p.identities))
	}
	id := p.identities[index]

	ix := system.NewTransferInstruction(
		lamports,
		p.funder.PublicKey(),
		id.Key.PublicKey(),
	).Build()

	signature, err := p.client.BuildAndSendTransaction(ctx,
		[]solana.Instruction{ix}, p.funder, sol.Budget{}, config.DefaultSendRetries)
	if err != nil {
		return fmt.Errorf("funding transfer failed: %w", err)
	}
	if !p.client.ConfirmTransaction(ctx, signature, "confirmed") {
		return fmt.Errorf("funding transfer %s was not confirmed", signature)
	}

	id.BalanceLamports += lamports
	logger.GlobalLogger.Info("Funded identity",
		"index", index, "amount", utils.LamportsToSol(lamports), "signature", signature)
	return nil
}

// Rebalance re-reads every balance and spreads the aggregate shortfall
// against the pool target evenly across under-target identities.
func (p *IdentityPool) Rebalance(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.refreshBalances(ctx); err != nil {
		return fmt.Errorf("failed to refresh balances: %w", err)
	}

	var total uint64
	under := make([]int, 0, len(p.identities))
	for i, id := range p.identities {
		total += id.BalanceLamports
		if id.BalanceLamports < p.cfg.TargetBalance {
			under = append(under, i)
		}
	}

	poolTarget := p.cfg.TargetBalance * uint64(len(p.identities))
	if total >= poolTarget || len(under) == 0 {
		logger.GlobalLogger.Info("Pool balanced, nothing to do",
			"total", utils.LamportsToSol(total))
		return nil
	}

	share := (poolTarget - total) / uint64(len(under))
	if share == 0 {
		return nil
	}

	for _, i := range under {
		if err := p.fundLocked(ctx, i, share); err != nil {
			logger.GlobalLogger.Warn("Rebalance funding failed, skipping identity",
				"index", i, "err", err)
		}
	}
	return p.save()
}

func (p *IdentityPool) refreshBalances(ctx context.Context) error {
	keys := make([]solana.PublicKey, 0, len(p.identities))
	for _, id := range p.identities {
		keys = append(keys, id.Key.PublicKey())
	}

	balances, err := p.client.GetMultipleBalances(ctx, keys)
	if err != nil {
		return err
	}
	for i, bal := range balances {
		p.identities[i].BalanceLamports = bal
	}
	return nil
}

func (p *IdentityPool) Get(index int) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.identities) {
		return nil, fmt.Errorf("identity index %d out of range [0,%d)", index, len(p.identities))
	}
	return p.identities[index], nil
}

func (p *IdentityPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.identities)
}

// AllBalances refreshes every balance from the network first.
func (p *IdentityPool) AllBalances(ctx context.Context) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.refreshBalances(ctx); err != nil {
		return nil, err
	}
	balances := make([]uint64, len(p.identities))
	for i, id := range p.identities {
		balances[i] = id.BalanceLamports
	}
	return balances, nil
}

// MarkUsed bumps the usage counters after an identity signs a trade.
func (p *IdentityPool) MarkUsed(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.identities) {
		return
	}
	p.identities[index].TotalTrades++
	p.identities[index].LastUsed = time.Now()
}

// Save persists the current pool state, including usage counters.
func (p *IdentityPool) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.save()
}
