package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	generatePath = "/api/generate"
	tagsPath     = "/api/tags"

	DefaultTimeout       = 180 * time.Second
	DefaultWarmupTimeout = 10 * time.Second
	DefaultReadyTimeout  = 5 * time.Second

	warmupPrompt = "hi"
)

// Config configures a Client.
type Config struct {
	Endpoint      string        // Generate endpoint, e.g. http://localhost:11434/api/generate
	Model         string        // Default model if a request does not name one
	Timeout       time.Duration // Budget for one generate call, including the stream
	WarmupTimeout time.Duration // Budget for a warm-up ping
	ReadyTimeout  time.Duration // Budget for a readiness check
	HTTPClient    *http.Client  // Shared transport; http.DefaultClient if nil
}

// Client talks to an Ollama server. It streams /api/generate itself so that
// malformed lines can be skipped, and uses the SDK client for the catalog,
// warm-up and heartbeat calls. A Client is safe for concurrent use.
type Client struct {
	api           *api.Client
	http          *http.Client
	endpoint      string
	tagsURL       string
	model         string
	timeout       time.Duration
	warmupTimeout time.Duration
	readyTimeout  time.Duration
	logger        zerolog.Logger
}

// NewClient creates a new Client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = llm.DefaultOllamaEndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if !strings.Contains(endpoint, generatePath) {
		endpoint = strings.TrimRight(endpoint, "/") + generatePath
	}

	baseURL, err := url.Parse(strings.Replace(endpoint, generatePath, "", 1))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		api:           api.NewClient(baseURL, httpClient),
		http:          httpClient,
		endpoint:      endpoint,
		tagsURL:       strings.Replace(endpoint, generatePath, tagsPath, 1),
		model:         cfg.Model,
		timeout:       lo.Ternary(cfg.Timeout > 0, cfg.Timeout, DefaultTimeout),
		warmupTimeout: lo.Ternary(cfg.WarmupTimeout > 0, cfg.WarmupTimeout, DefaultWarmupTimeout),
		readyTimeout:  lo.Ternary(cfg.ReadyTimeout > 0, cfg.ReadyTimeout, DefaultReadyTimeout),
		logger:        logger.With().Str("component", "ollamaClient").Logger(),
	}, nil
}

// Endpoint returns the generate endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// TagsURL returns the catalog endpoint URL.
func (c *Client) TagsURL() string { return c.tagsURL }

// Timeout returns the per-call budget.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Generate implements llm.Client. It posts a streaming generate request and
// assembles the NDJSON reply.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "request is required"}
	}

	model := lo.Ternary(req.Model != "", req.Model, c.model)
	if model == "" {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "model is required"}
	}

	stream := true
	body := api.GenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  &stream,
		Options: make(map[string]any),
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body.Options["temperature"] = *req.Temperature
	}
	for _, img := range req.Images {
		body.Images = append(body.Images, api.ImageData(img))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "encode request", ProviderErr: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "build request", ProviderErr: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	start := time.Now()
	c.logger.Info().
		Str("model", model).
		Int("prompt_chars", len(req.Prompt)).
		Int("images", len(req.Images)).
		Int("request_bytes", len(payload)).
		Dur("timeout", c.timeout).
		Msg("Calling Ollama generate")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.classifyCall(ctx, callCtx, model, err)
	}
	defer resp.Body.Close() //nolint:errcheck // No remedy for body close errors

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(ctx, model, resp)
	}

	assembled, err := Assemble(resp.Body, c.logger.With().Str("model", model).Logger())
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) {
			llmErr.Model = model
			llmErr.Endpoint = c.endpoint
			return nil, llmErr
		}
		return nil, c.classifyCall(ctx, callCtx, model, err)
	}

	c.logger.Info().
		Str("model", model).
		Int("chars", len(assembled.Text)).
		Int("chunks", assembled.Chunks).
		Dur("duration", time.Since(start)).
		Msg("Received Ollama response")

	return &llm.Response{
		Text:   assembled.Text,
		Model:  model,
		Chunks: assembled.Chunks,
	}, nil
}

// WarmUp implements llm.WarmUpper with a one-token, non-streaming request.
func (c *Client) WarmUp(ctx context.Context, model string) error {
	model = lo.Ternary(model != "", model, c.model)

	callCtx, cancel := context.WithTimeout(ctx, c.warmupTimeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:   model,
		Prompt:  warmupPrompt,
		Stream:  &stream,
		Options: map[string]any{"num_predict": 1},
	}

	c.logger.Info().Str("model", model).Dur("timeout", c.warmupTimeout).Msg("Warming up model")
	err := c.api.Generate(callCtx, req, func(api.GenerateResponse) error { return nil })
	if err != nil {
		return c.classify(ctx, model, err)
	}
	c.logger.Info().Str("model", model).Msg("Model warm-up successful")
	return nil
}

// ListModels implements llm.ModelLister via /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	defer cancel()

	list, err := c.api.List(callCtx)
	if err != nil {
		return nil, c.classify(ctx, "", err)
	}

	return lo.Map(list.Models, func(m api.ListModelResponse, _ int) llm.ModelDescriptor {
		return llm.NewModelDescriptor(m.Name)
	}), nil
}

// Ping implements llm.Pinger.
func (c *Client) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	defer cancel()

	if err := c.api.Heartbeat(callCtx); err != nil {
		return c.classify(ctx, "", err)
	}
	return nil
}

// statusError converts a non-200 generate response into an *llm.Error.
func (c *Client) statusError(ctx context.Context, model string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	detail := serverMessage(raw)

	switch resp.StatusCode {
	case http.StatusNotFound:
		msg := fmt.Sprintf("model '%s' not found on Ollama server", model)
		if names := c.availableNames(ctx); len(names) > 0 {
			msg += fmt.Sprintf(". Available models: %v", names)
		}
		c.logger.Error().Str("model", model).Str("detail", detail).Msg("Model not found")
		e := llm.NewModelNotFoundError(model, errors.New(detail))
		e.Message = msg
		e.Endpoint = c.endpoint
		return e
	case http.StatusInternalServerError:
		c.logger.Error().Str("model", model).Str("detail", detail).Msg("Ollama server error")
		return &llm.Error{
			Type:        llm.ErrorTypeServer,
			Message:     "ollama server error",
			Model:       model,
			Endpoint:    c.endpoint,
			Retryable:   true,
			StatusCode:  resp.StatusCode,
			ProviderErr: errors.New(detail),
		}
	default:
		c.logger.Error().Int("status", resp.StatusCode).Str("model", model).Str("detail", detail).Msg("Ollama API failed")
		e := llm.NewProviderError(fmt.Sprintf("ollama API failed with status %d", resp.StatusCode), resp.StatusCode, errors.New(detail))
		e.Model = model
		e.Endpoint = c.endpoint
		return e
	}
}

// availableNames lists installed models for error messages; failures yield nil.
func (c *Client) availableNames(ctx context.Context) []string {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil
	}
	return lo.Map(models, func(m llm.ModelDescriptor, _ int) string { return m.Name })
}

// classifyCall is classify for errors raised under callCtx, a deadline
// derived from ctx. Expiry of callCtx alone is a timeout.
func (c *Client) classifyCall(ctx, callCtx context.Context, model string, err error) error {
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		c.logger.Error().Str("model", model).Dur("timeout", c.timeout).Msg("Timed out waiting for Ollama")
		return llm.NewTimeoutError(model, c.endpoint, err)
	}
	return c.classify(ctx, model, err)
}

// classify converts a transport error into an *llm.Error. Cancellation of the
// caller's context is returned as the context error so callers can stop.
func (c *Client) classify(ctx context.Context, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound {
			e := llm.NewModelNotFoundError(model, err)
			e.Endpoint = c.endpoint
			return e
		}
		e := llm.NewProviderError("ollama request failed", statusErr.StatusCode, err)
		e.Model = model
		e.Endpoint = c.endpoint
		return e
	}

	if llm.IsTimeout(err) {
		c.logger.Error().Str("model", model).Dur("timeout", c.timeout).Msg("Timed out waiting for Ollama")
		return llm.NewTimeoutError(model, c.endpoint, err)
	}

	if llm.IsConnectionFailure(err) {
		c.logger.Error().Str("endpoint", c.endpoint).Msg("Cannot connect to Ollama")
		return llm.NewConnectivityError(c.endpoint, err)
	}

	e := llm.NewProviderError("ollama request failed", 0, err)
	e.Model = model
	e.Endpoint = c.endpoint
	return e
}

// serverMessage extracts {"error": "..."} from a response body, or returns it trimmed.
func serverMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

var (
	_ llm.Client      = (*Client)(nil)
	_ llm.WarmUpper   = (*Client)(nil)
	_ llm.ModelLister = (*Client)(nil)
	_ llm.Pinger      = (*Client)(nil)
)
