package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/compgen/history"
	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

// TimestampLayout is the Result timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one generation request. It is not modified once built.
type Request struct {
	Prompt        string
	Requirements  string
	ComponentType string
	Image         *llm.Image
}

// HasImage reports whether an image accompanies the prompt.
func (r Request) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

// Result is the response shape returned to callers.
type Result struct {
	Status               string            `json:"status"`
	Message              string            `json:"message,omitempty"`
	ComponentName        string            `json:"componentName,omitempty"`
	ComponentDescription string            `json:"componentDescription,omitempty"`
	GeneratedFiles       map[string]string `json:"generatedFiles,omitempty"`
	PreviewHTML          string            `json:"previewHtml,omitempty"`
	SampleData           map[string]any    `json:"sampleData,omitempty"`
	Error                string            `json:"error,omitempty"`
	ModelError           string            `json:"modelError,omitempty"`
	Suggestion           string            `json:"suggestion,omitempty"`
	Model                string            `json:"model,omitempty"`
	Attempts             int               `json:"attempts,omitempty"`
	Fallback             bool              `json:"fallback,omitempty"`
	Timestamp            string            `json:"timestamp"`
}

// Recorder stores invocation history.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Disabled     bool
	Provider     string
	Model        string
	VisionModel  string // Used for requests with an image; empty uses Model
	Endpoint     string
	MaxTokens    int
	Temperature  *float64
	SystemPrompt string
}

// Service is the generation entry point.
type Service struct {
	cfg          ServiceConfig
	orchestrator *Orchestrator
	client       llm.Client // Single-shot calls for TestConnection
	pinger       llm.Pinger // Optional readiness check
	recorder     Recorder   // Optional
	now          func() time.Time
	logger       zerolog.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithPinger adds a readiness check before the TestConnection call.
func WithPinger(p llm.Pinger) ServiceOption {
	return func(s *Service) { s.pinger = p }
}

// WithRecorder records each invocation.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. orchestrator and client may be nil only
// when cfg.Disabled is set.
func NewService(cfg ServiceConfig, orchestrator *Orchestrator, client llm.Client, logger zerolog.Logger, opts ...ServiceOption) *Service {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	s := &Service{
		cfg:          cfg,
		orchestrator: orchestrator,
		client:       client,
		now:          time.Now,
		logger:       logger.With().Str("component", "generator").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate turns req into component files. Model failures are reported in
// the Result; the error is non-nil only for an invalid request or when ctx
// ends.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "prompt is required"}
	}
	result := &Result{Timestamp: s.now().Format(TimestampLayout)}

	s.logger.Info().Str("prompt", preview(req.Prompt, 120)).Bool("image", req.HasImage()).Msg("Generating component")

	if s.cfg.Disabled || s.orchestrator == nil {
		s.applyFailure(result, newFailure(llm.NewConfigurationError("Local LLM service is not enabled"), failureContext{}))
		return result, nil
	}

	llmReq := s.buildRequest(req)
	outcome, err := s.orchestrator.Invoke(ctx, llmReq)
	result.Model = outcome.Model
	result.Attempts = outcome.Attempts
	result.Fallback = outcome.Fallback

	var component *Component
	if err == nil {
		component, err = DecodeComponent(outcome.Document)
		if err != nil {
			err = newFailure(err, failureContext{model: outcome.Model})
		}
	}

	if err != nil {
		var failure *Failure
		if !errors.As(err, &failure) {
			failure = newFailure(err, failureContext{model: outcome.Model})
		}
		s.applyFailure(result, failure)
		s.record(ctx, req, outcome, result)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, nil
	}

	result.Status = StatusSuccess
	result.Message = "Component generated successfully using Local LLM"
	result.ComponentName = component.Name
	result.ComponentDescription = component.Description
	result.GeneratedFiles = component.Files()
	result.PreviewHTML = RenderPreview(component)
	result.SampleData = component.SampleData

	s.logger.Info().Str("component_name", component.Name).Int("files", len(result.GeneratedFiles)).Str("model", result.Model).Msg("Generated component")
	s.record(ctx, req, outcome, result)
	return result, nil
}

func (s *Service) buildRequest(req Request) *llm.Request {
	model := s.cfg.Model
	var images [][]byte
	if req.HasImage() {
		images = [][]byte{req.Image.Data}
		if s.cfg.VisionModel != "" {
			model = s.cfg.VisionModel
		}
	}
	return &llm.Request{
		Model:       model,
		Prompt:      BuildPrompt(req),
		System:      s.cfg.SystemPrompt,
		Images:      images,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
}

func (s *Service) applyFailure(result *Result, f *Failure) {
	result.Status = StatusError
	result.Error = f.Message()
	result.ModelError = f.Detail
	result.Suggestion = f.Suggestion
	if result.Model == "" {
		result.Model = f.Model
	}
}

func (s *Service) record(ctx context.Context, req Request, outcome *Outcome, result *Result) {
	if s.recorder == nil {
		return
	}
	entry := history.Entry{
		ID:        outcome.ID,
		Prompt:    req.Prompt,
		Requested: outcome.Requested,
		Model:     outcome.Model,
		Provider:  s.cfg.Provider,
		Status:    result.Status,
		Component: result.ComponentName,
		Attempts:  outcome.Attempts,
		Calls:     outcome.Calls,
		WarmedUp:  outcome.WarmedUp,
		Fallback:  outcome.Fallback,
		Repaired:  outcome.Document.Repaired,
		Error:     result.Error,
		Duration:  outcome.Duration,
		CreatedAt: s.now(),
	}
	// The invocation may have ended because ctx did; the ledger write must not.
	if err := s.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn().Err(err).Str("invocation_id", outcome.ID).Msg("Failed to record invocation")
	}
}

// TestConnection reports whether the model answers a single short prompt.
// It makes one attempt with no retries.
func (s *Service) TestConnection(ctx context.Context) bool {
	if s.cfg.Disabled || s.client == nil {
		s.logger.Warn().Msg("LLM service is not enabled")
		return false
	}
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Model server readiness check failed")
			return false
		}
	}

	resp, err := s.client.Generate(ctx, &llm.Request{
		Model:     s.cfg.Model,
		Prompt:    ConnectionTestPrompt,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Connection test failed")
		return false
	}
	ok := strings.TrimSpace(resp.Text) != ""
	s.logger.Info().Bool("connected", ok).Msg("Connection test finished")
	return ok
}

// Describe returns a one-line description of the configured backend.
func (s *Service) Describe() string {
	if s.cfg.Disabled {
		return "Local LLM Service: Disabled"
	}
	return fmt.Sprintf("Local LLM Service: %s - %s - %s", s.cfg.Provider, s.cfg.Model, s.cfg.Endpoint)
}
