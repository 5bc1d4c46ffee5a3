package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens applies when a request does not set MaxTokens; the
// Messages API requires one.
const defaultMaxTokens = 4000

const imageNote = "\n\n[Note: Image data provided for analysis]"

// Client implements the llm.Client interface for Anthropic's API.
type Client struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// Config configures a Client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string // Empty for the public API
	HTTPClient *http.Client
}

// NewClient creates a new Client with the given API key.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("anthropic api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = llm.DefaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)
	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "request is required"}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	prompt := req.Prompt
	if req.HasImages() {
		prompt += imageNote
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	c.logger.Info().Str("model", model).Int("prompt_chars", len(prompt)).Msg("Calling Anthropic messages")

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.convertError(ctx, model, err)
	}

	var text strings.Builder
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, llm.NewEmptyResponseError(model)
	}

	c.logger.Debug().
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Str("stop_reason", string(message.StopReason)).
		Msg("Anthropic usage")

	return &llm.Response{
		Text:   text.String(),
		Model:  model,
		Chunks: len(message.Content),
	}, nil
}

func (c *Client) convertError(ctx context.Context, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		switch {
		case llm.IsTimeout(err):
			return llm.NewTimeoutError(model, "", err)
		case llm.IsConnectionFailure(err):
			return llm.NewConnectivityError("api.anthropic.com", err)
		}
		e := llm.NewProviderError("Anthropic API error", 0, err)
		e.Model = model
		return e
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError("Anthropic rate limit", nil, err)
	case http.StatusNotFound:
		return llm.NewModelNotFoundError(model, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		e := llm.NewConfigurationError("Anthropic rejected credentials")
		e.StatusCode = apiErr.StatusCode
		e.ProviderErr = err
		return e
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     "Anthropic invalid request",
			Model:       model,
			StatusCode:  apiErr.StatusCode,
			ProviderErr: err,
		}
	default:
		e := llm.NewProviderError(fmt.Sprintf("Anthropic API failed with status %d", apiErr.StatusCode), apiErr.StatusCode, err)
		e.Model = model
		return e
	}
}

var _ llm.Client = (*Client)(nil)
