package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	datadir   = btcutil.AppDataDir("multisig-cli", false)
	statePath = filepath.Join(datadir, "state.json")

	rootCmd = &cobra.Command{
		Use:   "multisig",
		Short: "CLI for the multisig co-signing daemon",
		Long:  "This CLI lets you interact with a running multisigd daemon",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if _, err := os.Stat(datadir); os.IsNotExist(err) {
				// nolint
				os.MkdirAll(datadir, os.ModeDir|0755)
			}
		},
		Version:       formatVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.AddCommand(configCmd, walletCmd, accountCmd, txCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

func formatVersion() string {
	return fmt.Sprintf(
		"\nVersion: %s\nCommit: %s\nDate: %s", version, commit, date,
	)
}
