package llm

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Request represents a single completion call against one model.
type Request struct {
	Model       string
	Prompt      string
	System      string
	Images      [][]byte // Raw image bytes; providers encode as needed
	MaxTokens   int
	Temperature *float64 // Optional temperature override
}

// HasImages reports whether the request carries image data.
func (r *Request) HasImages() bool {
	return r != nil && len(r.Images) > 0
}

// WithModel returns a shallow copy of r targeting model.
// The receiver is never modified.
func (r *Request) WithModel(model string) *Request {
	cp := *r
	cp.Model = model
	return &cp
}

// Response represents the complete text produced by one call.
type Response struct {
	Text   string
	Model  string // Model that actually served the call
	Chunks int    // Stream chunks consumed, zero for non-streaming providers
}

// Image is an attached image payload.
type Image struct {
	Data     []byte
	MIMEType string
}

// ParseDataURL decodes an image given either as a data URL
// ("data:image/png;base64,....") or as bare base64.
// Everything up to and including the first comma is treated as the header.
func ParseDataURL(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty image data")
	}

	img := &Image{}
	payload := s
	if idx := strings.Index(s, ","); idx >= 0 {
		header := s[:idx]
		payload = s[idx+1:]
		header = strings.TrimPrefix(header, "data:")
		if semi := strings.Index(header, ";"); semi >= 0 {
			header = header[:semi]
		}
		img.MIMEType = header
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	img.Data = data
	return img, nil
}

// ModelDescriptor is one installed model as reported by a model catalog.
type ModelDescriptor struct {
	Name   string
	Family string // Lowercased name without tag, e.g. "llama3" for "llama3:8b"
}

// NewModelDescriptor builds a descriptor, deriving the family from name.
func NewModelDescriptor(name string) ModelDescriptor {
	return ModelDescriptor{Name: name, Family: ModelFamily(name)}
}

// ModelFamily returns the lowercased part of a model name before its tag.
func ModelFamily(name string) string {
	base, _, _ := strings.Cut(name, ":")
	return strings.ToLower(base)
}

// NormalizeModelName adds the implicit ":latest" tag to untagged names.
func NormalizeModelName(name string) string {
	if name == "" || strings.Contains(name, ":") {
		return name
	}
	return name + ":latest"
}

// StreamChunk is one decoded line of a streaming response.
type StreamChunk struct {
	Text  string
	Done  bool
	Error string
}
