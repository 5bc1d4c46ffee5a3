// Package generator drives component generation: it builds prompts, runs the
// retry, warm-up and fallback state machine against an llm.Client, and maps
// the recovered JSON onto component files.
package generator

import (
	"context"
	"errors"
	"time"

	"github.com/aschepis/backscratcher/compgen/catalog"
	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/aschepis/backscratcher/compgen/metrics"
	"github.com/aschepis/backscratcher/compgen/recovery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultFallbackModels are tried in order once the primary model is exhausted.
var DefaultFallbackModels = []string{"llama3", "llama2", "codellama", "llama3.2:latest"}

// Options configures an Orchestrator.
type Options struct {
	Client    llm.Client
	Resolver  *catalog.Resolver // Optional; nil uses requested names as-is
	Warmer    llm.WarmUpper     // Optional; nil disables warm-up
	Policy    RetryPolicy
	Sleep     Sleeper // Defaults to SleepContext
	Fallbacks []string
	Recovery  recovery.Options
	Endpoint  string        // Reported in connectivity failures
	Timeout   time.Duration // Reported in timeout failures
	Logger    zerolog.Logger
}

// Orchestrator runs invocations. It holds no per-invocation state and is
// safe for concurrent use.
type Orchestrator struct {
	client    llm.Client
	resolver  *catalog.Resolver
	warmer    llm.WarmUpper
	policy    RetryPolicy
	sleep     Sleeper
	fallbacks []string
	recovery  recovery.Options
	endpoint  string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, llm.NewConfigurationError("llm client is required")
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return &Orchestrator{
		client:    opts.Client,
		resolver:  opts.Resolver,
		warmer:    opts.Warmer,
		policy:    opts.Policy,
		sleep:     sleep,
		fallbacks: opts.Fallbacks,
		recovery:  opts.Recovery,
		endpoint:  opts.Endpoint,
		timeout:   opts.Timeout,
		logger:    opts.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Outcome describes one invocation. It is returned on failure too, so the
// caller can see what was tried.
type Outcome struct {
	ID        string
	Requested string
	Model     string // Model that produced Document, or the last one tried
	Document  recovery.Document
	Raw       string
	Attempts  int // Primary attempts consumed
	Calls     int // Model calls made, including fallbacks
	WarmedUp  bool
	Fallback  bool
	Delay     time.Duration // Total backoff slept
	Trace     []State
	Duration  time.Duration
}

// invocation is the mutable state of one Invoke call.
type invocation struct {
	id           string
	requested    string
	model        string
	attempt      int
	failures     int
	warmedUp     bool
	warmupFailed bool
	calls        int
	delay        time.Duration
	tried        map[string]bool
	state        State
	trace        []State
	logger       zerolog.Logger
}

func newInvocation(requested string, logger zerolog.Logger) *invocation {
	id := uuid.NewString()
	return &invocation{
		id:        id,
		requested: requested,
		tried:     make(map[string]bool),
		state:     StateIdle,
		trace:     []State{StateIdle},
		logger:    logger.With().Str("invocation_id", id).Logger(),
	}
}

func (inv *invocation) transition(to State) {
	inv.logger.Debug().Stringer("from", inv.state).Stringer("state", to).Int("attempt", inv.attempt).Msg("State transition")
	inv.state = to
	inv.trace = append(inv.trace, to)
}

func (inv *invocation) markTried(model string) {
	inv.tried[llm.NormalizeModelName(model)] = true
}

func (inv *invocation) hasTried(model string) bool {
	return inv.tried[llm.NormalizeModelName(model)]
}

func (inv *invocation) outcome(start time.Time) *Outcome {
	return &Outcome{
		ID:        inv.id,
		Requested: inv.requested,
		Model:     inv.model,
		Attempts:  inv.attempt,
		Calls:     inv.calls,
		WarmedUp:  inv.warmedUp,
		Delay:     inv.delay,
		Trace:     inv.trace,
		Duration:  time.Since(start),
	}
}

// Invoke sends req to the model, retrying, warming up and falling back as
// needed, and returns the recovered JSON document. req.Model is the
// requested model. Requests carrying images are never sent to fallbacks.
//
// The returned Outcome is never nil. On failure err is a *Failure.
func (o *Orchestrator) Invoke(ctx context.Context, req *llm.Request) (*Outcome, error) {
	start := time.Now()
	inv := newInvocation(req.Model, o.logger)
	maxAttempts := o.policy.attempts()
	bo := o.policy.newBackOff()

	var lastErr error
	inv.transition(StateAttempting)
	inv.attempt = 1
	for inv.attempt <= maxAttempts {
		inv.model = o.selectModel(ctx, inv.requested)
		inv.markTried(inv.model)

		inv.logger.Info().
			Str("model", inv.model).
			Int("attempt", inv.attempt).
			Int("max_attempts", maxAttempts).
			Msg("Sending prompt to model")

		doc, raw, err := o.try(ctx, inv, req.WithModel(inv.model))
		if err == nil {
			return o.succeed(inv, start, doc, raw, false)
		}
		if isHardFailure(ctx, err) {
			return o.fail(inv, start, err)
		}

		lastErr = err
		inv.failures++
		inv.logger.Warn().Err(err).Str("model", inv.model).Int("attempt", inv.attempt).Int("max_attempts", maxAttempts).Msg("Attempt failed")

		if o.shouldWarmUp(inv, err) {
			if o.warmUp(ctx, inv) {
				continue
			}
			if ctx.Err() != nil {
				return o.fail(inv, start, ctx.Err())
			}
		}

		if inv.attempt == maxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if retryAfter := llm.ExtractRetryAfter(err); retryAfter != nil && *retryAfter > delay {
			delay = *retryAfter
		}
		inv.logger.Info().Dur("delay", delay).Int("attempt", inv.attempt+1).Int("max_attempts", maxAttempts).Msg("Waiting before retry")
		if err := o.sleep(ctx, delay); err != nil {
			return o.fail(inv, start, err)
		}
		inv.delay += delay
		inv.attempt++
	}

	fallbacks := o.fallbacks
	if req.HasImages() {
		fallbacks = nil
	}
	if len(fallbacks) > 0 && fallbackEligible(lastErr) {
		return o.tryFallbacks(ctx, inv, start, req, fallbacks, lastErr)
	}
	return o.fail(inv, start, lastErr)
}

func (o *Orchestrator) shouldWarmUp(inv *invocation, err error) bool {
	return o.warmer != nil && !inv.warmedUp && inv.failures == 1 && Classify(err) == FailureTimeout
}

// warmUp pings the current model once. It reports whether the failed
// attempt should be repeated without being counted.
func (o *Orchestrator) warmUp(ctx context.Context, inv *invocation) bool {
	inv.warmedUp = true
	inv.transition(StateWarmingUp)
	inv.logger.Info().Str("model", inv.model).Msg("Model warm-up triggered, waiting for model to load")

	err := o.warmer.WarmUp(ctx, inv.model)
	metrics.IncWarmUp(inv.model, err == nil)
	inv.transition(StateAttempting)
	if err != nil {
		inv.warmupFailed = true
		inv.logger.Warn().Err(err).Str("model", inv.model).Msg("Model warm-up failed")
		return false
	}
	inv.logger.Info().Str("model", inv.model).Msg("Model warm-up completed, retrying original request")
	return true
}

func (o *Orchestrator) tryFallbacks(ctx context.Context, inv *invocation, start time.Time, req *llm.Request, fallbacks []string, original error) (*Outcome, error) {
	primary := inv.model
	inv.transition(StateFallbackAttempting)
	inv.logger.Info().Str("model", primary).Msg("Trying fallback models after primary model failed")

	for _, model := range fallbacks {
		if inv.hasTried(model) {
			continue
		}
		inv.markTried(model)
		inv.model = model

		inv.logger.Info().Str("model", model).Msg("Trying fallback model")
		doc, raw, err := o.try(ctx, inv, req.WithModel(model))
		metrics.IncFallback(model, err == nil)
		if err == nil {
			inv.logger.Info().Str("model", model).Msg("Fallback model succeeded")
			return o.succeed(inv, start, doc, raw, true)
		}
		if isHardFailure(ctx, err) {
			return o.fail(inv, start, err)
		}
		inv.logger.Warn().Err(err).Str("model", model).Msg("Fallback model failed")
	}

	inv.logger.Error().Msg("All fallback models failed")
	inv.model = primary
	return o.fail(inv, start, original)
}

// try makes one model call and recovers its JSON.
func (o *Orchestrator) try(ctx context.Context, inv *invocation, req *llm.Request) (recovery.Document, string, error) {
	inv.calls++
	resp, err := o.client.Generate(ctx, req)
	if err != nil {
		return recovery.Document{}, "", err
	}

	doc, err := recovery.Recover(resp.Text, o.recovery)
	if err != nil {
		metrics.IncRepair("no_json")
		inv.logger.Error().Str("model", req.Model).Str("preview", preview(resp.Text, 500)).Msg("No JSON content found in response")
		return recovery.Document{}, resp.Text, llm.NewMalformedResponseError("no JSON object found in response", err)
	}
	if doc.HeuristicMismatch {
		metrics.IncRepair("mismatch")
		inv.logger.Warn().Str("model", req.Model).Msg("Quote repair disagreed with structural balance")
	}
	if doc.Repaired {
		inv.logger.Info().Int("escaped_quotes", doc.EscapedQuotes).Bool("valid", doc.Valid).Msg("Repaired unescaped quotes in response")
		metrics.IncRepair(lo.Ternary(doc.Valid, "valid", "invalid"))
	}
	if !doc.Valid {
		return recovery.Document{}, resp.Text, llm.NewMalformedResponseError("response is not valid JSON after repair", nil)
	}
	return doc, resp.Text, nil
}

func (o *Orchestrator) selectModel(ctx context.Context, requested string) string {
	if o.resolver == nil {
		return requested
	}
	return o.resolver.Select(ctx, requested)
}

func (o *Orchestrator) succeed(inv *invocation, start time.Time, doc recovery.Document, raw string, fallback bool) (*Outcome, error) {
	inv.transition(StateSucceeded)
	out := inv.outcome(start)
	out.Document = doc
	out.Raw = raw
	out.Fallback = fallback

	metrics.IncInvocation(StateSucceeded.String())
	metrics.ObserveInvocation(out.Duration)
	inv.logger.Info().Str("model", out.Model).Int("attempts", out.Attempts).Bool("fallback", fallback).Dur("duration", out.Duration).Msg("Invocation succeeded")
	return out, nil
}

func (o *Orchestrator) fail(inv *invocation, start time.Time, err error) (*Outcome, error) {
	if err == nil {
		err = errors.New("all retry attempts failed")
	}
	inv.transition(StateFailed)
	out := inv.outcome(start)

	failure := newFailure(err, failureContext{
		model:        inv.model,
		endpoint:     o.endpoint,
		timeout:      o.timeout,
		warmupFailed: inv.warmupFailed,
	})

	metrics.IncInvocation(StateFailed.String())
	metrics.ObserveInvocation(out.Duration)
	inv.logger.Error().Err(err).Str("kind", string(failure.Kind)).Str("model", out.Model).Int("attempts", out.Attempts).Msg("Invocation failed")
	return out, failure
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
