package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/compgen/metrics"
	"github.com/aschepis/backscratcher/compgen/runtime"
	"github.com/spf13/cobra"
)

func newKeepWarmCommand(ctx *commandContext) *cobra.Command {
	var (
		schedule    string
		metricsAddr string
		models      []string
		once        bool
	)

	cmd := &cobra.Command{
		Use:   "keepwarm",
		Short: "Keep models loaded on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if a.Warmer == nil {
				return errors.New("the configured provider does not support warm-up")
			}

			cfg := a.Config
			if schedule == "" {
				schedule = cfg.KeepWarm.Schedule
			}
			if len(models) == 0 {
				models = cfg.KeepWarm.Models
			}
			if len(models) == 0 {
				models = []string{a.Key.Model}
			}
			if metricsAddr == "" {
				metricsAddr = cfg.Metrics.Addr
			}

			kw, err := runtime.NewKeepWarm(a.Warmer, models, schedule, ctx.logger)
			if err != nil {
				return err
			}

			if once {
				warmed := kw.WarmAll(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Warmed %d of %d models\n", warmed, len(models))
				if warmed < len(models) {
					return errors.New("some models failed to warm up")
				}
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Keeping %s warm (%s)\n", strings.Join(models, ", "), schedule)

			metricsErr := make(chan error, 1)
			if metricsAddr != "" {
				ctx.logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
				go func() {
					metricsErr <- metrics.Serve(cmd.Context(), metricsAddr)
				}()
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan struct{})
			go func() {
				kw.Start(runCtx)
				close(done)
			}()

			select {
			case <-done:
			case err := <-metricsErr:
				cancel()
				<-done
				if err != nil {
					return fmt.Errorf("metrics server: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression, descriptor or interval (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :2112")
	cmd.Flags().StringSliceVar(&models, "model", nil, "Model to keep warm (repeatable; default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "Warm the models once and exit")
	return cmd
}
