package generator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
)

const noTemplatePreview = "<div>No HTML template available for preview</div>"

var (
	propertiesPattern = regexp.MustCompile(`\$\{properties\.([^}]+)\}?`)
	wcmModePattern    = regexp.MustCompile(`\$\{wcmmode\.(edit|preview)\}`)
)

// RenderPreview returns the component's own preview HTML when present, or
// its template with placeholders filled from sample data.
func RenderPreview(c *Component) string {
	if c.PreviewHTML != nil {
		return *c.PreviewHTML
	}
	if c.HTML == nil {
		return noTemplatePreview
	}

	html := *c.HTML
	keys := lo.Keys(c.SampleData)
	slices.Sort(keys)
	for _, key := range keys {
		html = strings.ReplaceAll(html, "${"+key+"}", sampleString(c.SampleData[key]))
	}

	html = propertiesPattern.ReplaceAllString(html, "Sample ${1}")
	return wcmModePattern.ReplaceAllString(html, "")
}

func sampleString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
