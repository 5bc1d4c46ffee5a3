package generator

import (
	"context"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

const heroJSON = `{"name":"hero","description":"Hero banner","fields":[{"name":"title","type":"text","label":"Title"}],` +
	`"html":"<h1 class=\"hero\">${properties.title}</h1>","dialog":"<jcr:root/>","js":"console.log(1);",` +
	`"java":"public class HeroModel {}","content":"<jcr:root jcr:title=\"Hero\"/>","sampleData":{"title":"Welcome"}}`

// fakeClient answers each call with respond, recording the models it was asked for.
type fakeClient struct {
	mu      sync.Mutex
	models  []string
	reqs    []*llm.Request
	respond func(call int, req *llm.Request) (*llm.Response, error)
}

func (f *fakeClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	call := len(f.models)
	f.models = append(f.models, req.Model)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.respond(call, req)
}

func (f *fakeClient) calledModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

func reply(text string) (*llm.Response, error) {
	return &llm.Response{Text: text}, nil
}

func alwaysFail(errFor func(model string) error) func(int, *llm.Request) (*llm.Response, error) {
	return func(_ int, req *llm.Request) (*llm.Response, error) {
		return nil, errFor(req.Model)
	}
}

func timeoutErr(model string) error {
	return llm.NewTimeoutError(model, "http://localhost:11434/api/generate", context.DeadlineExceeded)
}

func connectivityErr(string) error {
	return llm.NewConnectivityError("http://localhost:11434/api/generate", nil)
}

func notFoundErr(model string) error {
	return llm.NewModelNotFoundError(model, nil)
}

type fakeWarmer struct {
	mu     sync.Mutex
	models []string
	err    error
}

func (w *fakeWarmer) WarmUp(_ context.Context, model string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.models = append(w.models, model)
	return w.err
}

func (w *fakeWarmer) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.models)
}

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type testRig struct {
	client  *fakeClient
	warmer  *fakeWarmer
	sleeper *recordingSleeper
	orch    *Orchestrator
}

func newRig(respond func(int, *llm.Request) (*llm.Response, error), modify func(*Options)) *testRig {
	rig := &testRig{
		client:  &fakeClient{respond: respond},
		sleeper: &recordingSleeper{},
	}
	opts := Options{
		Client:    rig.client,
		Policy:    DefaultRetryPolicy(),
		Sleep:     rig.sleeper.Sleep,
		Fallbacks: []string{"llama3", "llama2"},
		Endpoint:  "http://localhost:11434/api/generate",
		Timeout:   180 * time.Second,
		Logger:    zerolog.Nop(),
	}
	if modify != nil {
		modify(&opts)
	}
	if w, ok := opts.Warmer.(*fakeWarmer); ok {
		rig.warmer = w
	}
	orch, err := NewOrchestrator(opts)
	if err != nil {
		panic(err)
	}
	rig.orch = orch
	return rig
}

func withWarmer(w *fakeWarmer) func(*Options) {
	return func(o *Options) { o.Warmer = w }
}

func newRequest(model string) *llm.Request {
	return &llm.Request{Model: model, Prompt: "a hero banner", System: DefaultSystemPrompt}
}
