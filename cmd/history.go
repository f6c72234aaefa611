package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bundler/db"
	"bundler/logger"
)

var historyLimit uint

var historyCmd = cobra.Command{
	Use:   "history",
	Short: "Report recent bundle attempts from the history store",
	Run: func(cmd *cobra.Command, args []string) {
		logger.InitLogs("history")

		if viper.GetString("CLICKHOUSE_ADDR") == "" {
			logger.GlobalLogger.Error("CLICKHOUSE_ADDR not set, history requires the ClickHouse store")
			return
		}

		store := db.NewClickhouse()
		defer store.Close()

		recs, err := store.QueryRecentBundleAttempts(historyLimit)
		if err != nil {
			logger.GlobalLogger.Error("Failed to query bundle attempts", "err", err)
			return
		}
		for _, rec := range recs {
			logger.GlobalLogger.Info("Bundle attempt",
				"bundle_id", rec.BundleID,
				"side", rec.Side,
				"target", rec.Target,
				"attempt", rec.Attempt,
				"tip", rec.TipLamports,
				"txs", rec.TxCount,
				"state", rec.State,
				"error", rec.Error,
				"at", rec.Timestamp,
			)
		}
	},
}

func init() {
	historyCmd.Flags().UintVarP(&historyLimit, "limit", "n", 20, "number of recent attempts to report")
	RootCmd.AddCommand(&historyCmd)
}
