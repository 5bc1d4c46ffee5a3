package recovery

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid input unchanged",
			input: `{"a":"b","c":["d","e"],"f":{"g":"h"}}`,
			want:  `{"a":"b","c":["d","e"],"f":{"g":"h"}}`,
		},
		{
			name:  "interior quotes escaped",
			input: `{"sample":"<p>This is a "bad" example</p>"}`,
			want:  `{"sample":"<p>This is a \"bad\" example</p>"}`,
		},
		{
			name:  "already escaped quotes kept",
			input: `{"sample":"say \"hi\" now"}`,
			want:  `{"sample":"say \"hi\" now"}`,
		},
		{
			name:  "whitespace around colon",
			input: "{\"html\" :   \"<a href=\"/x\">x</a>\" }",
			want:  "{\"html\" :   \"<a href=\\\"/x\\\">x</a>\" }",
		},
		{
			name:  "value closed before comma",
			input: `{"a":"x "y" z","b":"ok"}`,
			want:  `{"a":"x \"y\" z","b":"ok"}`,
		},
		{
			name:  "array element strings are structural",
			input: `{"options":["one","two"]}`,
			want:  `{"options":["one","two"]}`,
		},
		{
			name:  "escaped backslash before closing quote",
			input: `{"path":"C:\\","next":"v"}`,
			want:  `{"path":"C:\\","next":"v"}`,
		},
		{
			name:  "colon inside key is not a value opener",
			input: `{"a:":"b"}`,
			want:  `{"a:":"b"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Repair(tt.input)
			if got != tt.want {
				t.Errorf("Repair() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRepairIdempotent(t *testing.T) {
	inputs := []string{
		`{"sample":"<p>This is a "bad" example</p>"}`,
		`{"html":"<div class="a"><span id="b">"quoted"</span></div>","js":"x"}`,
		`{"a":"b"}`,
		`{"a":"trailing "quote"}`,
		`{"a":"unterminated`,
		`{"a":"x\"y"}`,
		`{"k":"v"}}} extra`,
	}

	for _, input := range inputs {
		once, _ := Repair(input)
		twice, _ := Repair(once)
		if once != twice {
			t.Errorf("Repair not idempotent for %q:\n once: %s\ntwice: %s", input, once, twice)
		}
	}
}

func TestRepairOnlyTouchesValueInteriors(t *testing.T) {
	input := `{"name":"hero","html":"<h1 class="title">Hi</h1>","fields":[{"label":"A "B" C"}]}`
	got, report := Repair(input)

	// Removing the inserted backslashes must give back the input exactly.
	if strings.ReplaceAll(got, `\"`, `"`) != input {
		t.Errorf("repair altered more than interior quotes: %s", got)
	}
	for _, off := range report.Escaped {
		if input[off] != '"' {
			t.Errorf("offset %d is %q, not a quote", off, input[off])
		}
	}
	if len(report.Escaped) != 4 {
		t.Errorf("escaped %d quotes, want 4", len(report.Escaped))
	}
	if !json.Valid([]byte(got)) {
		t.Errorf("expected valid JSON, got %s", got)
	}
	if report.HeuristicMismatch {
		t.Error("unexpected heuristic mismatch")
	}
}

func TestRepairHeuristicMismatch(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"balanced", `{"a":"b"}`, false},
		{"closes early", `{"a":"b"} {"c":"d"}`, true},
		{"never closes", `{"a":{"b":"c"}`, true},
		{"unterminated value", `{"a":"b`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, report := Repair(tt.input)
			if report.HeuristicMismatch != tt.want {
				t.Errorf("HeuristicMismatch = %v, want %v", report.HeuristicMismatch, tt.want)
			}
		})
	}
}

func TestScanStateString(t *testing.T) {
	for state, want := range map[scanState]string{
		stateOutside: "outside",
		stateInKey:   "in_key",
		stateInValue: "in_value",
		stateEscaped: "escaped",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
