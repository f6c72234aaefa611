package cmd

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "solana-bundle-sender",
	Short: "A tool for multi-wallet atomic bundle submission on solana",
}
