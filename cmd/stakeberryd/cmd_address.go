package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockberries/stakeberry/config"
	"github.com/blockberries/stakeberry/ledger"
)

func newAddressCmd(configPath *string) *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "address <owner>",
		Short: "Print the stake record address derived for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ledger.ParseAddress(args[0])
			if err != nil {
				return fmt.Errorf("owner: %w", err)
			}

			var prog ledger.Address
			if program != "" {
				prog, err = ledger.ParseAddress(program)
			} else {
				var cfg *config.Config
				cfg, err = config.Load(*configPath)
				if err == nil {
					prog, err = cfg.ProgramAddress()
				}
			}
			if err != nil {
				return fmt.Errorf("program: %w", err)
			}

			addr, bump, err := ledger.FindAddress(prog, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", addr, bump)
			return nil
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "Program ID (overrides the configuration)")
	return cmd
}
