package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI API errors don't directly expose retry-after headers
// We'll use a default retry after duration for rate limits
const defaultRetryAfter = 60 * time.Second

// imageNote replaces attached images; chat completions here are text-only.
const imageNote = "\n\n[Note: Image data provided for analysis]"

// Client implements llm.Client for OpenAI-compatible chat completion APIs,
// including LocalAI when BaseURL points at it.
type Client struct {
	client  *openai.Client
	model   string // Default model to use if not specified in request
	baseURL string
	logger  zerolog.Logger
}

// Config configures a Client.
type Config struct {
	APIKey       string
	BaseURL      string // Empty for api.openai.com
	Model        string
	Organization string
	HTTPClient   *http.Client
}

// NewClient creates a new Client.
// An empty API key is accepted only together with a BaseURL, since LocalAI
// does not require one.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, llm.NewConfigurationError("openai api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Organization != "" {
		config.OrgID = cfg.Organization
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		model:   cfg.Model,
		baseURL: config.BaseURL,
		logger:  logger.With().Str("component", "openaiClient").Logger(),
	}, nil
}

// BaseURL returns the API base URL in use.
func (c *Client) BaseURL() string { return c.baseURL }

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "request is required"}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "model is required"}
	}

	prompt := req.Prompt
	if req.HasImages() {
		prompt += imageNote
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	// OpenAI supports the system role in messages
	if req.System != "" {
		systemMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}
		chatReq.Messages = append([]openai.ChatCompletionMessage{systemMsg}, chatReq.Messages...)
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	c.logger.Info().Str("model", model).Str("base_url", c.baseURL).Int("prompt_chars", len(prompt)).Msg("Calling chat completions")

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, c.convertError(ctx, model, err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, llm.NewEmptyResponseError(model)
	}

	return &llm.Response{
		Text:   chatResp.Choices[0].Message.Content,
		Model:  model,
		Chunks: 1,
	}, nil
}

// ListModels implements llm.ModelLister.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, c.convertError(ctx, "", err)
	}
	models := make([]llm.ModelDescriptor, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, llm.NewModelDescriptor(m.ID))
	}
	return models, nil
}

// convertError converts OpenAI API errors to llm.Error types.
func (c *Client) convertError(ctx context.Context, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		switch {
		case llm.IsTimeout(err):
			return llm.NewTimeoutError(model, c.baseURL, err)
		case llm.IsConnectionFailure(err):
			return llm.NewConnectivityError(c.baseURL, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return c.statusError(model, reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode), err)
		}
		e := llm.NewProviderError("OpenAI API error", 0, err)
		e.Model = model
		return e
	}

	return c.statusError(model, apiErr.HTTPStatusCode, apiErr.Message, err)
}

func (c *Client) statusError(model string, status int, message string, err error) error {
	switch status {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(fmt.Sprintf("OpenAI rate limit: %s", message), &retryAfter, err)
	case http.StatusNotFound:
		e := llm.NewModelNotFoundError(model, err)
		e.Endpoint = c.baseURL
		return e
	case http.StatusUnauthorized, http.StatusForbidden:
		e := llm.NewConfigurationError(fmt.Sprintf("OpenAI rejected credentials: %s", message))
		e.StatusCode = status
		e.ProviderErr = err
		return e
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("OpenAI invalid request: %s", message),
			Model:       model,
			StatusCode:  status,
			ProviderErr: err,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &llm.Error{
			Type:        llm.ErrorTypeServer,
			Message:     fmt.Sprintf("OpenAI server error: %s", message),
			Model:       model,
			Retryable:   true,
			StatusCode:  status,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI API error: %s", message),
			Model:       model,
			StatusCode:  status,
			ProviderErr: err,
		}
	}
}

var (
	_ llm.Client      = (*Client)(nil)
	_ llm.ModelLister = (*Client)(nil)
)
