package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aschepis/backscratcher/compgen/history"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      uint64
		status     string
		model      string
		since      time.Duration
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if a.History == nil {
				return errors.New("history is disabled in the configuration")
			}

			filter := history.Filter{Limit: limit, Status: status, Model: model}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			entries, err := a.History.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			rows := lo.Map(entries, func(e history.Entry, _ int) []string {
				return []string{
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.Status,
					e.Component,
					e.Model,
					strconv.Itoa(e.Attempts),
					yesNo(e.Fallback),
					e.Duration.Round(time.Millisecond).String(),
				}
			})
			fmt.Fprintln(out, renderTable(
				[]string{"Time", "Status", "Component", "Model", "Attempts", "Fallback", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
			))

			stats, err := a.History.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %d, succeeded: %d, fallbacks: %d, warm-ups: %d\n",
				stats.Total, stats.Succeeded, stats.Fallbacks, stats.WarmUps)
			return nil
		},
	}

	cmd.Flags().Uint64VarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&status, "status", "", "Only show runs with this status (success or error)")
	cmd.Flags().StringVar(&model, "model", "", "Only show runs served by this model")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show runs newer than this, e.g. 24h")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}
