package history

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	entries := []Entry{
		{ID: "a", Prompt: "hero", Requested: "llama3.2", Model: "llama3.2:latest", Provider: "ollama", Status: "success", Component: "hero", Attempts: 1, Calls: 1, Duration: 1500 * time.Millisecond, CreatedAt: base},
		{ID: "b", Prompt: "card", Requested: "llama3.2", Model: "llama3.2", Provider: "ollama", Status: "error", Attempts: 3, Calls: 7, WarmedUp: true, Error: "LLM request timed out", CreatedAt: base.Add(time.Minute)},
		{ID: "c", Prompt: "teaser", Requested: "mistral", Model: "llama3", Provider: "ollama", Status: "success", Attempts: 3, Calls: 4, Fallback: true, Repaired: true, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s): %v", e.ID, err)
		}
	}

	got, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("entries not newest first: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if !got[0].Fallback || !got[0].Repaired || got[0].Component != "" {
		t.Errorf("unexpected entry c: %+v", got[0])
	}
	if !got[1].WarmedUp || got[1].Error != "LLM request timed out" || got[1].Calls != 7 {
		t.Errorf("unexpected entry b: %+v", got[1])
	}
	if got[2].Duration != 1500*time.Millisecond || !got[2].CreatedAt.Equal(base) {
		t.Errorf("unexpected entry a: %+v", got[2])
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i, status := range []string{"success", "error", "success", "success"} {
		e := Entry{ID: string(rune('a' + i)), Prompt: "p", Requested: "m", Model: "m", Provider: "ollama", Status: status, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if i == 3 {
			e.Model = "other"
		}
		if err := store.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"limit", Filter{Limit: 2}, 2},
		{"status", Filter{Status: "success"}, 3},
		{"model", Filter{Model: "other"}, 1},
		{"since", Filter{Since: base.Add(2 * time.Hour)}, 2},
		{"combined", Filter{Status: "success", Model: "m"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != (Stats{}) {
		t.Errorf("empty ledger stats = %+v", st)
	}

	_ = store.Record(ctx, Entry{ID: "1", Prompt: "p", Requested: "m", Model: "m", Provider: "ollama", Status: "success", Fallback: true})
	_ = store.Record(ctx, Entry{ID: "2", Prompt: "p", Requested: "m", Model: "m", Provider: "ollama", Status: "error", WarmedUp: true})

	st, err = store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Total: 2, Succeeded: 1, Fallbacks: 1, WarmUps: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestRecordDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	e := Entry{ID: "dup", Prompt: "p", Requested: "m", Model: "m", Provider: "ollama", Status: "success"}
	if err := store.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, e); err == nil {
		t.Error("expected primary key violation")
	}
}
