package app

import (
	"context"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

// LoggingMiddleware logs each provider call and its failure category.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger.With().Str("component", "llmMiddleware").Logger()}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("prompt_chars", len(req.Prompt)).
		Int("images", len(req.Images)).
		Msg("Sending request to provider")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("chars", len(resp.Text)).
		Int("chunks", resp.Chunks).
		Msg("Received provider response")
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	if err == nil {
		return nil
	}

	event := m.logger.Warn().Err(err).Str("model", req.Model).Str("type", string(llm.TypeOf(err)))
	if retryAfter := llm.ExtractRetryAfter(err); retryAfter != nil {
		event = event.Dur("retry_after", *retryAfter)
	}
	event.Bool("retryable", llm.IsRetryableError(err)).Msg("Provider call failed")
	return err
}

var _ llm.Middleware = (*LoggingMiddleware)(nil)
