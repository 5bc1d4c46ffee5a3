package ollama

import (
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

func TestAssemble(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantText   string
		wantChunks int
		wantSkip   int
		wantDone   bool
	}{
		{
			name:       "concatenates in order",
			input:      "{\"response\":\"{\\\"a\\\":\"}\n{\"response\":\"1}\"}\n{\"response\":\"\",\"done\":true}\n",
			wantText:   `{"a":1}`,
			wantChunks: 3,
			wantDone:   true,
		},
		{
			name:       "skips malformed lines",
			input:      "{\"response\":\"he\"}\nnot json at all\n{\"response\":\"llo\",\"done\":true}\n",
			wantText:   "hello",
			wantChunks: 2,
			wantSkip:   1,
			wantDone:   true,
		},
		{
			name:       "skips blank lines",
			input:      "\n\n{\"response\":\"x\"}\n   \n{\"done\":true}\n",
			wantText:   "x",
			wantChunks: 2,
			wantDone:   true,
		},
		{
			name:       "stops reading at done",
			input:      "{\"response\":\"a\",\"done\":true}\n{\"response\":\"b\"}\n",
			wantText:   "a",
			wantChunks: 1,
			wantDone:   true,
		},
		{
			name:       "json without known fields is malformed",
			input:      "{\"model\":\"llama3\"}\n{\"response\":\"ok\"}\n",
			wantText:   "ok",
			wantChunks: 1,
			wantSkip:   1,
		},
		{
			name:       "stream without done keeps text",
			input:      "{\"response\":\"partial\"}",
			wantText:   "partial",
			wantChunks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Assemble(strings.NewReader(tt.input), zerolog.Nop())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Chunks != tt.wantChunks {
				t.Errorf("Chunks = %d, want %d", got.Chunks, tt.wantChunks)
			}
			if got.Skipped != tt.wantSkip {
				t.Errorf("Skipped = %d, want %d", got.Skipped, tt.wantSkip)
			}
			if got.Done != tt.wantDone {
				t.Errorf("Done = %v, want %v", got.Done, tt.wantDone)
			}
		})
	}
}

func TestAssembleErrorChunk(t *testing.T) {
	input := "{\"response\":\"par\"}\n{\"error\":\"model crashed\"}\n{\"response\":\"tial\"}\n"
	_, err := Assemble(strings.NewReader(input), zerolog.Nop())
	if !llm.IsType(err, llm.ErrorTypeUpstreamStream) {
		t.Fatalf("expected upstream stream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("error should carry server message, got %v", err)
	}
}

func TestAssembleEmpty(t *testing.T) {
	inputs := map[string]string{
		"no lines":      "",
		"only blanks":   "\n\n",
		"only done":     "{\"done\":true}\n",
		"only garbage":  "garbage\n<html>\n",
		"empty strings": "{\"response\":\"\"}\n{\"response\":\"\",\"done\":true}\n",
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Assemble(strings.NewReader(input), zerolog.Nop())
			if !llm.IsType(err, llm.ErrorTypeEmptyResponse) {
				t.Errorf("expected empty response error, got %v", err)
			}
		})
	}
}

func TestAssembleLargeChunk(t *testing.T) {
	big := strings.Repeat("x", 256*1024)
	input := "{\"response\":\"" + big + "\",\"done\":true}\n"
	got, err := Assemble(strings.NewReader(input), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Text) != len(big) {
		t.Errorf("len(Text) = %d, want %d", len(got.Text), len(big))
	}
}

func TestAssembleOversizedLine(t *testing.T) {
	input := "{\"response\":\"" + strings.Repeat("x", maxChunkSize+1) + "\"}\n"
	_, err := Assemble(strings.NewReader(input), zerolog.Nop())
	if err == nil {
		t.Fatal("expected read error for line over the buffer limit")
	}
	if llm.TypeOf(err) != llm.ErrorTypeUnknown {
		t.Errorf("read errors are classified by the client, got type %s", llm.TypeOf(err))
	}
}
