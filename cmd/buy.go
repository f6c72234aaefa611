package cmd

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"bundler/logger"
	"bundler/utils"
)

var (
	buyTarget     string
	buyAmountSol  string
	buyIdentities []int
)

var buyCmd = cobra.Command{
	Use:   "buy",
	Short: "Buy into a target with one transaction per identity, submitted as one bundle",
	Run: func(cmd *cobra.Command, args []string) {
		logger.InitLogs("buy")

		target, err := solana.PublicKeyFromBase58(buyTarget)
		if err != nil {
			logger.BundleLogger.Error("Invalid target address", "target", buyTarget, "err", err)
			return
		}
		lamports, err := utils.SolToLamports(buyAmountSol)
		if err != nil {
			logger.BundleLogger.Error("Invalid buy amount", "amount", buyAmountSol, "err", err)
			return
		}

		ctx := context.Background()
		s, err := buildStack(ctx)
		if err != nil {
			logger.BundleLogger.Error("Failed to build stack", "err", err)
			return
		}
		defer s.shutdown()

		result, err := s.coordinator.ExecuteBuy(ctx, target, lamports, buyIdentities)
		if err != nil {
			logger.BundleLogger.Error("Buy failed", "err", err)
			return
		}
		logger.BundleLogger.Info("Buy finished",
			"success", result.Success,
			"bundle_id", result.BundleID,
			"attempts", result.Attempts,
			"tip", result.TipLamports,
			"error", result.ErrorMessage,
		)
	},
}

func init() {
	buyCmd.Flags().StringVarP(&buyTarget, "target", "t", "", "target account (base58)")
	buyCmd.Flags().StringVarP(&buyAmountSol, "amount", "a", "", "SOL to spend per identity, e.g. 0.05")
	buyCmd.Flags().IntSliceVarP(&buyIdentities, "identities", "i", nil, "(Optional) identity indices, default all")
	buyCmd.MarkFlagRequired("target")
	buyCmd.MarkFlagRequired("amount")
	RootCmd.AddCommand(&buyCmd)
}
