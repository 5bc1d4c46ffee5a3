package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the configured LLM service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			cfg := a.Config
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.Service.Describe())

			rows := [][]string{
				{"Config", ctx.configPath()},
				{"Provider", cfg.Provider},
				{"Enabled", yesNo(!cfg.Disabled)},
				{"Retry attempts", fmt.Sprintf("%d (base %ds, max %ds)", cfg.Retry.Attempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)},
				{"Timeout", fmt.Sprintf("%ds", cfg.Ollama.Timeout)},
				{"Fallback models", strings.Join(cfg.Generation.FallbackModels, ", ")},
				{"Vision model", cfg.Ollama.VisionModel},
				{"Strip markdown", yesNo(cfg.StripMarkdown())},
				{"History", historyLabel(a.History != nil, cfg.History.Path)},
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, nil))
			return nil
		},
	}
}

func historyLabel(enabled bool, path string) string {
	if !enabled {
		return "disabled"
	}
	return path
}
