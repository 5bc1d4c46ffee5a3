package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newTestConnectionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the configured model answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if !a.Service.TestConnection(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "Connection test failed")
				return errors.New("llm service is not reachable")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Connection test succeeded")
			return nil
		},
	}
}
