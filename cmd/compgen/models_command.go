package main

import (
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/compgen/catalog"
	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models installed on the model server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if a.Lister == nil {
				return errors.New("the configured provider cannot list models")
			}

			models, err := a.Lister.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, models)
			}

			out := cmd.OutOrStdout()
			if len(models) == 0 {
				fmt.Fprintln(out, "No models installed")
				return nil
			}

			selected, _ := catalog.Resolve(a.Key.Model, models)
			rows := lo.Map(models, func(m llm.ModelDescriptor, _ int) []string {
				return []string{m.Name, m.Family, lo.Ternary(m.Name == selected, "*", "")}
			})
			fmt.Fprintln(out, renderTable([]string{"Model", "Family", "Selected"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print models as JSON")
	return cmd
}
