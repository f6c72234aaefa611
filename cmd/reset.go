package cmd

import (
	"github.com/spf13/cobra"

	"bundler/db"
	"bundler/logger"
)

var resetCmd = cobra.Command{
	Use:   "reset",
	Short: "Drop the history tables",
	Run: func(cmd *cobra.Command, args []string) {
		ch := db.NewClickhouse()
		defer ch.Close()

		logger.GlobalLogger.Info("Dropping tables in database...")
		if err := ch.DropTables(); err != nil {
			logger.GlobalLogger.Error("Failed to drop tables", "err", err)
		}
		logger.GlobalLogger.Info("Done.")
	},
}

func init() {
	RootCmd.AddCommand(&resetCmd)
}
