package ollama

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
)

const maxChunkSize = 4 * 1024 * 1024

// wireChunk is one NDJSON line of a /api/generate stream.
type wireChunk struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

// Assembly is the text assembled from a stream.
type Assembly struct {
	Text    string
	Chunks  int // Well-formed chunks consumed
	Skipped int // Malformed lines skipped
	Done    bool
}

// Assemble reads newline-delimited chunk records from r and concatenates
// their response text in arrival order.
//
// Malformed lines are skipped. A chunk with an error field fails the whole
// assembly. A chunk marked done ends it; anything after is not read.
// A stream that produced no text fails with an empty-response error.
func Assemble(r io.Reader, logger zerolog.Logger) (*Assembly, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)

	var (
		text strings.Builder
		out  Assembly
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		chunk, err := decodeChunk(line)
		if err != nil {
			out.Skipped++
			logger.Warn().Str("line", truncate(line, 200)).Msg("Skipping malformed stream chunk")
			continue
		}

		if chunk.Error != "" {
			logger.Error().Str("error", chunk.Error).Msg("Model server reported a streaming error")
			return nil, llm.NewUpstreamStreamError(chunk.Error)
		}

		if chunk.Text != "" {
			text.WriteString(chunk.Text)
		}
		out.Chunks++

		if chunk.Done {
			out.Done = true
			break
		}
	}

	if !out.Done {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
	}

	out.Text = text.String()
	if out.Text == "" {
		return nil, llm.NewEmptyResponseError("")
	}

	logger.Debug().Int("chunks", out.Chunks).Int("skipped", out.Skipped).Int("chars", len(out.Text)).Msg("Stream assembled")
	return &out, nil
}

// decodeChunk parses one line. Lines that are valid JSON but carry neither
// a response, a done flag nor an error are treated as malformed.
func decodeChunk(line string) (llm.StreamChunk, error) {
	var wc wireChunk
	if err := json.Unmarshal([]byte(line), &wc); err != nil {
		return llm.StreamChunk{}, err
	}
	if wc.Response == nil && !wc.Done && wc.Error == "" {
		return llm.StreamChunk{}, fmt.Errorf("chunk has no response, done or error field")
	}
	chunk := llm.StreamChunk{Done: wc.Done, Error: wc.Error}
	if wc.Response != nil {
		chunk.Text = *wc.Response
	}
	return chunk, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
