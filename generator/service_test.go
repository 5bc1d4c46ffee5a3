package generator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/compgen/history"
	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (r *memoryRecorder) Record(ctx context.Context, e history.Entry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestService(t *testing.T, respond func(int, *llm.Request) (*llm.Response, error), opts ...ServiceOption) (*Service, *testRig) {
	t.Helper()
	rig := newRig(respond, nil)
	cfg := ServiceConfig{
		Provider:    llm.ProviderOllama,
		Model:       "llama3",
		VisionModel: "llava:7b",
		Endpoint:    "http://localhost:11434/api/generate",
		MaxTokens:   4000,
	}
	opts = append([]ServiceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(cfg, rig.orch, rig.client, zerolog.Nop(), opts...), rig
}

func TestServiceGenerateSuccess(t *testing.T) {
	recorder := &memoryRecorder{}
	svc, rig := newTestService(t, func(int, *llm.Request) (*llm.Response, error) { return reply(heroJSON) }, WithRecorder(recorder))

	result, err := svc.Generate(context.Background(), Request{Prompt: "hero banner", Requirements: "accessible"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Status != StatusSuccess || result.Message != "Component generated successfully using Local LLM" {
		t.Errorf("status = %q, message = %q", result.Status, result.Message)
	}
	if result.ComponentName != "hero" || result.ComponentDescription != "Hero banner" {
		t.Errorf("component = %q / %q", result.ComponentName, result.ComponentDescription)
	}
	for _, name := range []string{"hero.html", "hero.js", "HeroModel.java", "dialog.xml", ".content.xml"} {
		if _, ok := result.GeneratedFiles[name]; !ok {
			t.Errorf("missing generated file %s (have %v)", name, result.GeneratedFiles)
		}
	}
	if result.PreviewHTML != `<h1 class="hero">Sample title</h1>` {
		t.Errorf("preview = %q", result.PreviewHTML)
	}
	if result.SampleData["title"] != "Welcome" {
		t.Errorf("sample data = %v", result.SampleData)
	}
	if result.Timestamp != "2026-03-14 09:26:53" {
		t.Errorf("timestamp = %q", result.Timestamp)
	}
	if result.Model != "llama3" || result.Attempts != 1 {
		t.Errorf("model = %q, attempts = %d", result.Model, result.Attempts)
	}

	req := rig.client.reqs[0]
	if req.System != DefaultSystemPrompt || req.MaxTokens != 4000 || req.HasImages() {
		t.Errorf("unexpected request %+v", req)
	}
	if !strings.Contains(req.Prompt, "Additional Requirements: accessible") {
		t.Errorf("prompt missing requirements: %s", req.Prompt)
	}

	if len(recorder.entries) != 1 {
		t.Fatalf("recorded %d entries", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Status != StatusSuccess || entry.Component != "hero" || entry.Provider != llm.ProviderOllama || entry.ID == "" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestServiceGenerateResultJSON(t *testing.T) {
	svc, _ := newTestService(t, func(int, *llm.Request) (*llm.Response, error) { return reply(heroJSON) })
	result, err := svc.Generate(context.Background(), Request{Prompt: "hero"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"status", "message", "componentName", "generatedFiles", "previewHtml", "timestamp"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("result JSON missing %q: %s", key, data)
		}
	}
	if _, ok := fields["error"]; ok {
		t.Errorf("successful result carries an error: %s", data)
	}
}

func TestServiceGenerateReportsFailureInResult(t *testing.T) {
	recorder := &memoryRecorder{}
	svc, _ := newTestService(t, alwaysFail(connectivityErr), WithRecorder(recorder))

	result, err := svc.Generate(context.Background(), Request{Prompt: "hero"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Status != StatusError {
		t.Fatalf("status = %q", result.Status)
	}
	if !strings.HasPrefix(result.Error, "Cannot connect to LLM service. Please ensure Ollama is running") {
		t.Errorf("error = %q", result.Error)
	}
	if result.ModelError != "Failed to connect to http://localhost:11434/api/generate" {
		t.Errorf("model error = %q", result.ModelError)
	}
	if result.Suggestion == "" || result.Attempts != 3 {
		t.Errorf("suggestion = %q, attempts = %d", result.Suggestion, result.Attempts)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Status != StatusError || recorder.entries[0].Error == "" {
		t.Errorf("entries = %+v", recorder.entries)
	}
}

func TestServiceGenerateComponentShapeMismatch(t *testing.T) {
	svc, _ := newTestService(t, func(int, *llm.Request) (*llm.Response, error) {
		return reply(`{"name":["not","a","string"]}`)
	})

	result, err := svc.Generate(context.Background(), Request{Prompt: "hero"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusError || !strings.HasPrefix(result.Error, "Failed to parse LLM response") {
		t.Errorf("result = %+v", result)
	}
}

func TestServiceGenerateRequiresPrompt(t *testing.T) {
	svc, rig := newTestService(t, func(int, *llm.Request) (*llm.Response, error) { return reply(heroJSON) })

	_, err := svc.Generate(context.Background(), Request{Prompt: "   "})
	if !llm.IsType(err, llm.ErrorTypeInvalidRequest) {
		t.Fatalf("expected invalid request error, got %v", err)
	}
	if len(rig.client.calledModels()) != 0 {
		t.Error("model called for an empty prompt")
	}
}

func TestServiceGenerateCanceled(t *testing.T) {
	svc, _ := newTestService(t, alwaysFail(connectivityErr))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Generate(ctx, Request{Prompt: "hero"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.Status != StatusError {
		t.Errorf("result = %+v", result)
	}
}

func TestServiceGenerateImageUsesVisionModel(t *testing.T) {
	svc, rig := newTestService(t, func(int, *llm.Request) (*llm.Response, error) { return reply(heroJSON) })

	img := &llm.Image{Data: []byte{1, 2, 3}, MIMEType: "image/png"}
	if _, err := svc.Generate(context.Background(), Request{Prompt: "like this", Image: img}); err != nil {
		t.Fatal(err)
	}
	req := rig.client.reqs[0]
	if req.Model != "llava:7b" || len(req.Images) != 1 {
		t.Errorf("model = %q, images = %d", req.Model, len(req.Images))
	}
	if !strings.Contains(req.Prompt, "IMPORTANT: An image has been provided") {
		t.Errorf("prompt missing image instruction")
	}
}

func TestServiceRecorderFailureDoesNotFailGenerate(t *testing.T) {
	recorder := &memoryRecorder{err: errors.New("disk full")}
	svc, _ := newTestService(t, func(int, *llm.Request) (*llm.Response, error) { return reply(heroJSON) }, WithRecorder(recorder))

	result, err := svc.Generate(context.Background(), Request{Prompt: "hero"})
	if err != nil || result.Status != StatusSuccess {
		t.Errorf("err = %v, status = %q", err, result.Status)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(ServiceConfig{Disabled: true}, nil, nil, zerolog.Nop())

	if got := svc.Describe(); got != "Local LLM Service: Disabled" {
		t.Errorf("Describe() = %q", got)
	}
	if svc.TestConnection(context.Background()) {
		t.Error("TestConnection() = true for a disabled service")
	}
	result, err := svc.Generate(context.Background(), Request{Prompt: "hero"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusError || result.ModelError != "Local LLM service is not enabled" {
		t.Errorf("result = %+v", result)
	}
}

func TestServiceDescribe(t *testing.T) {
	svc, _ := newTestService(t, nil)
	want := "Local LLM Service: ollama - llama3 - http://localhost:11434/api/generate"
	if got := svc.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestServiceTestConnection(t *testing.T) {
	tests := []struct {
		name    string
		respond func(int, *llm.Request) (*llm.Response, error)
		ping    error
		want    bool
		calls   int
	}{
		{
			name:    "answers",
			respond: func(int, *llm.Request) (*llm.Response, error) { return reply("ok") },
			want:    true,
			calls:   1,
		},
		{
			name:    "blank answer",
			respond: func(int, *llm.Request) (*llm.Response, error) { return reply("  ") },
			calls:   1,
		},
		{
			name:    "timeout is not retried",
			respond: alwaysFail(timeoutErr),
			calls:   1,
		},
		{
			name:    "ping fails",
			respond: func(int, *llm.Request) (*llm.Response, error) { return reply("ok") },
			ping:    connectivityErr(""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ping := pingerFunc(func(context.Context) error { return tt.ping })
			svc, rig := newTestService(t, tt.respond, WithPinger(ping))
			if got := svc.TestConnection(context.Background()); got != tt.want {
				t.Errorf("TestConnection() = %v, want %v", got, tt.want)
			}
			if got := len(rig.client.calledModels()); got != tt.calls {
				t.Errorf("calls = %d, want %d", got, tt.calls)
			}
			if tt.calls > 0 && rig.client.reqs[0].Prompt != ConnectionTestPrompt {
				t.Errorf("prompt = %q", rig.client.reqs[0].Prompt)
			}
		})
	}
}
