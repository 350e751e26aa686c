// Command stakeberryd runs the staking application behind a gRPC host
// boundary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "stakeberryd",
		Short:         "Time-weighted staking ledger daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (defaults and STAKEBERRY_ env vars when empty)")

	root.AddCommand(
		newStartCmd(&configPath),
		newInitCmd(),
		newAddressCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
