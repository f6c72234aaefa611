package cmd

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"bundler/bundle"
	"bundler/config"
	"bundler/db"
	"bundler/jito"
	"bundler/logger"
	"bundler/sol"
	"bundler/utils"
	"bundler/wallet"
)

// stack is the wired-up application: RPC client (single or failover),
// identity pool, relay, coordinator, and the optional history store.
type stack struct {
	client      *sol.Client
	pool        *wallet.IdentityPool
	coordinator *bundle.Coordinator
	store       db.Database
	relayPool   *utils.HTTPPool
}

func buildStack(ctx context.Context) (*stack, error) {
	httpPool := utils.NewHTTPPool(viper.GetDuration("sol.timeout"))

	var client *sol.Client
	var router *sol.FailoverRouter

	endpoints := viper.GetStringSlice("sol.endpoints")
	switch {
	case len(endpoints) > 1:
		var err error
		router, err = sol.NewFailoverRouter(endpoints, httpPool)
		if err != nil {
			return nil, err
		}
		client = sol.NewFailoverClient(router)
	case len(endpoints) == 1:
		client = sol.NewClient(endpoints[0], httpPool)
	default:
		endpoint := viper.GetString("sol.endpoint")
		if endpoint == "" {
			return nil, fmt.Errorf("no RPC endpoint configured, set sol.endpoints or sol.endpoint")
		}
		client = sol.NewClient(endpoint, httpPool)
	}

	var store db.Database
	if viper.GetString("CLICKHOUSE_ADDR") != "" {
		store = db.NewClickhouse()
		if err := store.EnsureDatabaseExists(); err != nil {
			logger.GlobalLogger.Error("Failed to ensure database", "err", err)
		} else if err := store.CreateTables(); err != nil {
			logger.GlobalLogger.Error("Failed to create tables", "err", err)
		}
		if router != nil {
			router.SetHealthSink(store)
		}
	}

	client.Start(ctx)

	funderKey := viper.GetString("FUNDER_PRIVATE_KEY")
	if funderKey == "" {
		return nil, fmt.Errorf("FUNDER_PRIVATE_KEY not set")
	}
	funder, err := solana.PrivateKeyFromBase58(funderKey)
	if err != nil {
		return nil, fmt.Errorf("invalid FUNDER_PRIVATE_KEY: %w", err)
	}

	poolCfg := wallet.PoolConfig{
		Size:      viper.GetInt("pool.size"),
		StorePath: viper.GetString("pool.store-path"),
	}
	if poolCfg.StorePath == "" {
		poolCfg.StorePath = config.DefaultPoolStorePath
	}
	if s := viper.GetString("pool.min-balance-sol"); s != "" {
		if poolCfg.MinBalance, err = utils.SolToLamports(s); err != nil {
			return nil, err
		}
	}
	if s := viper.GetString("pool.target-balance-sol"); s != "" {
		if poolCfg.TargetBalance, err = utils.SolToLamports(s); err != nil {
			return nil, err
		}
	}

	identityPool := wallet.NewIdentityPool(client, poolCfg)
	if err := identityPool.Initialize(ctx, funder); err != nil {
		client.Stop()
		return nil, fmt.Errorf("failed to initialize identity pool: %w", err)
	}

	relayPool := utils.NewHTTPPool(config.DefaultRpcTimeout)
	relay := jito.NewClient(relayPool)

	tipAccount := viper.GetString("jito.tip-account")
	if tipAccount == "" {
		tipAccount = jito.TipAccounts[0]
	}
	tipPk, err := solana.PublicKeyFromBase58(tipAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid jito.tip-account: %w", err)
	}

	tipCfg := bundle.TipConfig{
		InitialTip:       viper.GetUint64("bundle.initial-tip"),
		TipIncrement:     viper.GetUint64("bundle.tip-increment"),
		MaxTip:           viper.GetUint64("bundle.max-tip"),
		MaxRetries:       viper.GetInt("bundle.max-retries"),
		TipAccount:       tipPk,
		PriorityFee:      viper.GetUint64("bundle.priority-fee"),
		ComputeUnitLimit: uint32(viper.GetUint64("bundle.compute-unit-limit")),
	}

	coordinator := bundle.NewCoordinator(client, identityPool, relay, bundle.TransferBuilder{}, tipCfg)
	if store != nil {
		coordinator.SetAttemptSink(store)
	}

	return &stack{
		client:      client,
		pool:        identityPool,
		coordinator: coordinator,
		store:       store,
		relayPool:   relayPool,
	}, nil
}

func (s *stack) shutdown() {
	if err := s.pool.Save(); err != nil {
		logger.GlobalLogger.Warn("Failed to persist pool state", "err", err)
	}
	s.client.Stop()
	s.relayPool.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.GlobalLogger.Warn("Failed to close history store", "err", err)
		}
	}
}
