package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bundler/logger"
	"bundler/sol"
	"bundler/utils"
)

var providersCmd = cobra.Command{
	Use:   "providers",
	Short: "Run one health sweep over the configured RPC providers and report scores",
	Run: func(cmd *cobra.Command, args []string) {
		logger.InitLogs("providers")

		endpoints := viper.GetStringSlice("sol.endpoints")
		if len(endpoints) == 0 {
			if ep := viper.GetString("sol.endpoint"); ep != "" {
				endpoints = []string{ep}
			}
		}

		pool := utils.NewHTTPPool(viper.GetDuration("sol.timeout"))
		router, err := sol.NewFailoverRouter(endpoints, pool)
		if err != nil {
			logger.RpcLogger.Error("Failed to build failover router", "err", err)
			return
		}

		router.Start(context.Background())
		defer router.Stop()

		best := router.SelectBest()
		for _, p := range router.Providers() {
			snap := p.Snapshot()
			logger.RpcLogger.Info("Provider health",
				"endpoint", snap.Endpoint,
				"status", snap.Status,
				"score", snap.Score,
				"success_rate", snap.SuccessRate,
				"avg_latency_ms", snap.AvgLatencyMs,
				"last_error", snap.LastError,
				"current", p == best,
			)
		}
	},
}

func init() {
	RootCmd.AddCommand(&providersCmd)
}
