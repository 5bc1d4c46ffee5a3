package generator

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/aschepis/backscratcher/compgen/recovery"
)

// Field is one authorable property of a component.
type Field struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Label        string   `json:"label,omitempty"`
	Description  string   `json:"description,omitempty"`
	Required     bool     `json:"required,omitempty"`
	DefaultValue string   `json:"defaultValue,omitempty"`
	Sample       string   `json:"sample,omitempty"`
	Options      []string `json:"options,omitempty"`
}

// Component is the structured object a model returns.
type Component struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Fields      []Field        `json:"fields,omitempty"`
	HTML        *string        `json:"html,omitempty"`
	Dialog      *string        `json:"dialog,omitempty"`
	JS          *string        `json:"js,omitempty"`
	Java        *string        `json:"java,omitempty"`
	Content     *string        `json:"content,omitempty"`
	PreviewHTML *string        `json:"previewHtml,omitempty"`
	SampleData  map[string]any `json:"sampleData,omitempty"`
}

// DecodeComponent decodes a recovered document. An invalid document, or one
// whose shape does not fit Component, is a malformed response.
func DecodeComponent(doc recovery.Document) (*Component, error) {
	if !doc.Valid {
		return nil, llm.NewMalformedResponseError("response is not valid JSON after repair", nil)
	}
	var c Component
	if err := json.Unmarshal([]byte(doc.Text), &c); err != nil {
		return nil, llm.NewMalformedResponseError("response does not match the component structure", err)
	}
	return &c, nil
}

// Files maps file names to contents for each part the model produced.
func (c *Component) Files() map[string]string {
	files := make(map[string]string)
	if c.Dialog != nil {
		files["dialog.xml"] = *c.Dialog
	}
	if c.HTML != nil {
		files[c.Name+".html"] = *c.HTML
	}
	if c.JS != nil {
		files[c.Name+".js"] = *c.JS
	}
	if c.Java != nil {
		files[capitalize(c.Name)+"Model.java"] = *c.Java
	}
	if c.Content != nil {
		files[".content.xml"] = *c.Content
	}
	return files
}

// Validate reports a component that cannot be written out.
func (c *Component) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("component has no name")
	}
	if strings.ContainsAny(c.Name, `/\`) || strings.Contains(c.Name, "..") {
		return fmt.Errorf("component name %q is not a valid file name", c.Name)
	}
	return nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
