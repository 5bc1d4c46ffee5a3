// Package recovery turns raw model output into a JSON document.
//
// Model replies are often correct JSON wrapped in markdown fences or prose,
// with unescaped quotes inside string values (typically HTML attributes).
// Recover strips the wrapping, extracts the outermost object and, if that
// does not parse, runs the quote-repair scanner in Repair.
package recovery

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when the input has no '{' ... '}' span.
var ErrNoJSON = errors.New("no JSON object found in response")

const fence = "```"

// Options controls the optional stages of Recover.
type Options struct {
	// StripMarkdown enables fence stripping and noise trimming.
	StripMarkdown bool
}

// Document is the outcome of Recover.
type Document struct {
	Text              string
	Valid             bool
	Repaired          bool // Quote repair ran
	EscapedQuotes     int  // Quotes escaped by repair
	HeuristicMismatch bool // Repair's end-of-value lookahead disagreed with brace balancing
}

// Recover runs the pipeline: fence stripping, noise trimming, balanced
// extraction, validity probe, quote repair, re-probe. The repaired text is
// returned even when it is still invalid; Valid tells the caller.
func Recover(raw string, opts Options) (Document, error) {
	text := raw
	if opts.StripMarkdown {
		text = StripFences(text)
		text = TrimNoise(text)
	}

	extracted, err := Extract(text)
	if err != nil {
		return Document{}, err
	}

	if json.Valid([]byte(extracted)) {
		return Document{Text: extracted, Valid: true}, nil
	}

	repaired, report := Repair(extracted)
	return Document{
		Text:              repaired,
		Valid:             json.Valid([]byte(repaired)),
		Repaired:          true,
		EscapedQuotes:     len(report.Escaped),
		HeuristicMismatch: report.HeuristicMismatch,
	}, nil
}

// StripFences removes leading and trailing ``` fences, with or without a
// language tag and at any nesting depth, then stray backticks at either end.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	for {
		changed := false
		if strings.HasPrefix(s, fence) {
			s = dropOpeningFence(s)
			changed = true
		}
		if strings.HasSuffix(s, fence) {
			s = strings.TrimSpace(strings.TrimSuffix(s, fence))
			changed = true
		}
		if !changed {
			break
		}
	}
	return strings.TrimSpace(strings.Trim(s, "`"))
}

// dropOpeningFence removes a leading ``` and its language tag.
func dropOpeningFence(s string) string {
	s = strings.TrimPrefix(s, fence)
	i := 0
	for i < len(s) && isTagByte(s[i]) {
		i++
	}
	return strings.TrimSpace(s[i:])
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '+'
}

// TrimNoise discards everything before the first '{' and after the last '}'.
// Input without braces is returned unchanged.
func TrimNoise(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	s = s[start:]
	end := strings.LastIndexByte(s, '}')
	if end < 0 {
		return s
	}
	return s[:end+1]
}

// Extract returns the substring from the first '{' to the last '}' inclusive.
func Extract(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}
