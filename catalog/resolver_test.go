package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

func descriptors(names ...string) []llm.ModelDescriptor {
	return lo.Map(names, func(n string, _ int) llm.ModelDescriptor { return llm.NewModelDescriptor(n) })
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		catalog   []string
		want      string
	}{
		{
			name:      "implicit latest tag",
			requested: "llama3",
			catalog:   []string{"llama3:latest", "mistral:latest"},
			want:      "llama3:latest",
		},
		{
			name:      "exact tagged match",
			requested: "llava:7b",
			catalog:   []string{"llama3:latest", "llava:7b"},
			want:      "llava:7b",
		},
		{
			name:      "family match",
			requested: "llama3.2",
			catalog:   []string{"mistral:latest", "llama3.1:8b"},
			want:      "llama3.1:8b",
		},
		{
			name:      "family priority prefers llama3 over llama",
			requested: "llama3.2",
			catalog:   []string{"llama2:latest", "llama3:70b"},
			want:      "llama3:70b",
		},
		{
			name:      "mistral family",
			requested: "mistral-nemo",
			catalog:   []string{"phi3:latest", "mistral:7b"},
			want:      "mistral:7b",
		},
		{
			name:      "generic llama fallback",
			requested: "qwen2",
			catalog:   []string{"gemma:2b", "codellama:13b"},
			want:      "codellama:13b",
		},
		{
			name:      "first available as last resort",
			requested: "qwen2",
			catalog:   []string{"gemma:2b", "phi3:latest"},
			want:      "gemma:2b",
		},
		{
			name:      "case insensitive family",
			requested: "Mistral",
			catalog:   []string{"gemma:2b", "mistral:latest"},
			want:      "mistral:latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.requested, descriptors(tt.catalog...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.requested, got, tt.want)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	models := descriptors("gemma:2b", "llama2:latest", "mistral:latest", "llama3:8b")
	first, err := Resolve("llama3.2", models)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		got, _ := Resolve("llama3.2", models)
		if got != first {
			t.Fatalf("iteration %d: got %q, want %q", i, got, first)
		}
	}
}

func TestResolveEmptyCatalog(t *testing.T) {
	_, err := Resolve("llama3", nil)
	var noModels *NoModelsAvailableError
	if !errors.As(err, &noModels) {
		t.Fatalf("expected NoModelsAvailableError, got %v", err)
	}
	if noModels.Requested != "llama3" {
		t.Errorf("Requested = %q", noModels.Requested)
	}
}

type listerFunc func(ctx context.Context) ([]llm.ModelDescriptor, error)

func (f listerFunc) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) { return f(ctx) }

func TestSelectFallsBackToRequestedOnCatalogFailure(t *testing.T) {
	failing := listerFunc(func(ctx context.Context) ([]llm.ModelDescriptor, error) {
		return nil, llm.NewConnectivityError("http://localhost:11434/api/tags", errors.New("connection refused"))
	})
	r := NewResolver(failing, zerolog.Nop())

	if got := r.List(context.Background()); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
	if got := r.Select(context.Background(), "llama3.2"); got != "llama3.2" {
		t.Errorf("Select() = %q, want requested name", got)
	}
}

func TestSelectUsesCatalog(t *testing.T) {
	lister := listerFunc(func(ctx context.Context) ([]llm.ModelDescriptor, error) {
		return descriptors("llama3:latest", "mistral:latest"), nil
	})
	r := NewResolver(lister, zerolog.Nop())

	if got := r.Select(context.Background(), "llama3"); got != "llama3:latest" {
		t.Errorf("Select() = %q", got)
	}
}

func TestSelectNilLister(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	if got := r.Select(context.Background(), "phi3"); got != "phi3" {
		t.Errorf("Select() = %q", got)
	}
}
