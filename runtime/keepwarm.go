// Package runtime runs background work next to the generator.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/aschepis/backscratcher/compgen/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@every 10m", "@hourly"
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule)
	if err == nil {
		return sched, nil
	}

	duration, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule as cron expression or duration: %w", err)
	}
	if duration < time.Second {
		return nil, fmt.Errorf("schedule interval %v is shorter than one second", duration)
	}
	return cron.Every(duration), nil
}

// KeepWarm periodically loads models into memory so that generation
// requests do not pay the cold-start cost.
type KeepWarm struct {
	warmer   llm.WarmUpper
	models   []string
	schedule cron.Schedule
	now      func() time.Time
	logger   zerolog.Logger
}

// NewKeepWarm creates a keep-warm loop for models on the given schedule.
func NewKeepWarm(warmer llm.WarmUpper, models []string, schedule string, logger zerolog.Logger) (*KeepWarm, error) {
	if warmer == nil {
		return nil, fmt.Errorf("provider does not support warm-up")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models to keep warm")
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", schedule, err)
	}
	return &KeepWarm{
		warmer:   warmer,
		models:   models,
		schedule: sched,
		now:      time.Now,
		logger:   logger.With().Str("component", "keepWarm").Logger(),
	}, nil
}

// Start warms all models immediately, then on every scheduled tick, until
// ctx is done.
func (k *KeepWarm) Start(ctx context.Context) {
	k.logger.Info().Strs("models", k.models).Msg("Starting keep-warm loop")
	k.WarmAll(ctx)

	for {
		next := k.schedule.Next(k.now())
		wait := time.Until(next)
		k.logger.Debug().Time("next", next).Msg("Keep-warm: waiting for next round")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			k.logger.Info().Msg("Keep-warm stopped: context cancelled")
			return
		case <-timer.C:
			k.WarmAll(ctx)
		}
	}
}

// WarmAll warms each model once and returns how many succeeded.
func (k *KeepWarm) WarmAll(ctx context.Context) int {
	warmed := 0
	for _, model := range k.models {
		if ctx.Err() != nil {
			break
		}
		start := k.now()
		err := k.warmer.WarmUp(ctx, model)
		metrics.IncWarmUp(model, err == nil)
		if err != nil {
			k.logger.Warn().Err(err).Str("model", model).Msg("Keep-warm ping failed")
			continue
		}
		warmed++
		k.logger.Info().Str("model", model).Dur("duration", time.Since(start)).Msg("Model kept warm")
	}
	return warmed
}
