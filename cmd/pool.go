package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"bundler/logger"
	"bundler/utils"
)

var balancesCmd = cobra.Command{
	Use:   "balances",
	Short: "Initialize the identity pool and report per-identity balances",
	Run: func(cmd *cobra.Command, args []string) {
		logger.InitLogs("balances")

		ctx := context.Background()
		s, err := buildStack(ctx)
		if err != nil {
			logger.GlobalLogger.Error("Failed to build stack", "err", err)
			return
		}
		defer s.shutdown()

		balances, err := s.pool.AllBalances(ctx)
		if err != nil {
			logger.GlobalLogger.Error("Failed to read balances", "err", err)
			return
		}
		for i, bal := range balances {
			id, err := s.pool.Get(i)
			if err != nil {
				continue
			}
			logger.GlobalLogger.Info("Identity balance",
				"index", i,
				"pubkey", id.Key.PublicKey().String(),
				"sol", utils.LamportsToSol(bal),
				"trades", id.TotalTrades,
			)
		}
	},
}

var rebalanceCmd = cobra.Command{
	Use:   "rebalance",
	Short: "Refresh balances and spread the pool shortfall across under-target identities",
	Run: func(cmd *cobra.Command, args []string) {
		logger.InitLogs("rebalance")

		ctx := context.Background()
		s, err := buildStack(ctx)
		if err != nil {
			logger.GlobalLogger.Error("Failed to build stack", "err", err)
			return
		}
		defer s.shutdown()

		if err := s.pool.Rebalance(ctx); err != nil {
			logger.GlobalLogger.Error("Rebalance failed", "err", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(&balancesCmd)
	RootCmd.AddCommand(&rebalanceCmd)
}
