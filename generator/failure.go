package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/compgen/llm"
)

// Failure is a terminal invocation failure with the three-part message
// shown to users.
type Failure struct {
	Kind       FailureKind
	Type       llm.ErrorType
	Summary    string
	Detail     string
	Suggestion string
	Model      string
	Cause      error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return f.Summary
	}
	return f.Summary + ": " + f.Detail
}

func (f *Failure) Unwrap() error { return f.Cause }

// Message joins summary and suggestion the way results present them.
func (f *Failure) Message() string {
	if f.Suggestion == "" {
		return f.Summary
	}
	return f.Summary + ". " + f.Suggestion
}

// failureContext is what the message texts need beyond the error itself.
type failureContext struct {
	model        string
	endpoint     string
	timeout      time.Duration
	warmupFailed bool
}

func newFailure(err error, fc failureContext) *Failure {
	var existing *Failure
	if errors.As(err, &existing) {
		return existing
	}

	f := &Failure{
		Kind:  Classify(err),
		Type:  llm.TypeOf(err),
		Model: fc.model,
		Cause: err,
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.Model != "" {
			f.Model = llmErr.Model
		}
		if llmErr.Endpoint != "" {
			fc.endpoint = llmErr.Endpoint
		}
	}

	switch {
	case errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && llmErr == nil):
		f.Type = llm.ErrorTypeUnknown
		f.Summary = "Request canceled"
		f.Detail = err.Error()
	case f.Type == llm.ErrorTypeTimeout && fc.warmupFailed:
		f.Summary = "Model is starting up (cold start)"
		f.Detail = fmt.Sprintf("Model '%s' needs to be loaded into memory", f.Model)
		f.Suggestion = "The system will attempt to warm up the model automatically. This may take 30-60 seconds on first use"
	case f.Type == llm.ErrorTypeTimeout:
		f.Summary = "LLM request timed out"
		f.Detail = fmt.Sprintf("Model '%s' did not respond within %d seconds", f.Model, int(fc.timeout.Seconds()))
		f.Suggestion = fmt.Sprintf("Try starting model manually using 'ollama run %s' or increase timeout in config", f.Model)
	case f.Type == llm.ErrorTypeConnectivity:
		f.Summary = "Cannot connect to LLM service"
		f.Detail = "Failed to connect to " + fc.endpoint
		f.Suggestion = "Please ensure Ollama is running. Try: 'ollama serve' or check if the service is accessible"
	case f.Type == llm.ErrorTypeModelNotFound:
		f.Summary = "Model not available"
		f.Detail = fmt.Sprintf("Model '%s' not found on the model server", f.Model)
		f.Suggestion = fmt.Sprintf("Please run 'ollama pull %s' to install this model", f.Model)
	case f.Type == llm.ErrorTypeUpstreamStream:
		f.Summary = "Model server reported an error"
		f.Detail = err.Error()
		f.Suggestion = "Check the model server logs and try again"
	case f.Type == llm.ErrorTypeEmptyResponse:
		f.Summary = "Empty response from LLM after all retry attempts"
		f.Detail = fmt.Sprintf("Model '%s' returned no content", f.Model)
		f.Suggestion = "Try again or choose a different model"
	case f.Type == llm.ErrorTypeMalformedResponse:
		f.Summary = "Failed to parse LLM response"
		f.Detail = err.Error()
		f.Suggestion = "Try again or simplify the prompt"
	case f.Type == llm.ErrorTypeConfiguration:
		f.Summary = "LLM service is not configured"
		f.Detail = err.Error()
		f.Suggestion = "Check the provider settings in the configuration file"
	case f.Type == llm.ErrorTypeRateLimit:
		f.Summary = "LLM rate limit reached"
		f.Detail = err.Error()
		f.Suggestion = "Wait a moment and try again"
	default:
		f.Summary = "Failed to generate component"
		f.Detail = err.Error()
		f.Suggestion = "Check the model server logs and try again"
	}
	return f
}
