package generator

import (
	"context"
	"errors"

	"github.com/aschepis/backscratcher/compgen/llm"
)

// State is a step of an invocation.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateWarmingUp
	StateFallbackAttempting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateWarmingUp:
		return "warming_up"
	case StateFallbackAttempting:
		return "fallback_attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind is the orchestration-relevant category of a failed call.
type FailureKind string

const (
	FailureTimeout           FailureKind = "timeout"
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureModelNotFound     FailureKind = "model_not_found"
	FailureOther             FailureKind = "other"
)

// Classify maps an error to its FailureKind using the llm.Error tag.
func Classify(err error) FailureKind {
	switch llm.TypeOf(err) {
	case llm.ErrorTypeTimeout:
		return FailureTimeout
	case llm.ErrorTypeConnectivity:
		return FailureConnectionRefused
	case llm.ErrorTypeModelNotFound:
		return FailureModelNotFound
	default:
		return FailureOther
	}
}

// isHardFailure reports errors that end an invocation without retry or fallback.
func isHardFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch llm.TypeOf(err) {
	case llm.ErrorTypeMalformedResponse, llm.ErrorTypeConfiguration, llm.ErrorTypeInvalidRequest:
		return true
	}
	return false
}

// fallbackEligible reports whether the last primary failure may be retried
// on other models.
func fallbackEligible(err error) bool {
	kind := Classify(err)
	return kind == FailureModelNotFound || kind == FailureTimeout
}
