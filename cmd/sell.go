package cmd

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"bundler/logger"
)

var (
	sellTarget     string
	sellPercentage float64
	sellIdentities []int
)

var sellCmd = cobra.Command{
	Use:   "sell",
	Short: "Sell a percentage of each identity's token balance as one bundle",
	Run: func(cmd *cobra.Command, args []string) {
		logger.InitLogs("sell")

		target, err := solana.PublicKeyFromBase58(sellTarget)
		if err != nil {
			logger.BundleLogger.Error("Invalid target address", "target", sellTarget, "err", err)
			return
		}

		ctx := context.Background()
		s, err := buildStack(ctx)
		if err != nil {
			logger.BundleLogger.Error("Failed to build stack", "err", err)
			return
		}
		defer s.shutdown()

		result, err := s.coordinator.ExecutePercentageSell(ctx, target, sellPercentage, sellIdentities)
		if err != nil {
			logger.BundleLogger.Error("Sell failed", "err", err)
			return
		}
		logger.BundleLogger.Info("Sell finished",
			"success", result.Success,
			"bundle_id", result.BundleID,
			"attempts", result.Attempts,
			"tip", result.TipLamports,
			"error", result.ErrorMessage,
		)
	},
}

func init() {
	sellCmd.Flags().StringVarP(&sellTarget, "target", "t", "", "target token mint (base58)")
	sellCmd.Flags().Float64VarP(&sellPercentage, "percentage", "p", 1.0, "fraction of each balance to sell, in (0,1]")
	sellCmd.Flags().IntSliceVarP(&sellIdentities, "identities", "i", nil, "(Optional) identity indices, default all")
	sellCmd.MarkFlagRequired("target")
	RootCmd.AddCommand(&sellCmd)
}
