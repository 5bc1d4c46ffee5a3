package generator

import "strings"

// DefaultSystemPrompt is used when configuration supplies none.
const DefaultSystemPrompt = "You are an expert AEM developer. Generate clean, production-ready AEM component files following Adobe best practices."

// ConnectionTestPrompt is the single-shot prompt used by TestConnection.
const ConnectionTestPrompt = "Generate a simple test response for AEM component generation."

const imageInstruction = "IMPORTANT: An image has been provided with this request. " +
	"Analyze the visual content and incorporate relevant design elements, " +
	"colors, layout, and content structure from the image into the AEM component. " +
	"If the image shows UI elements, recreate them as appropriate AEM fields and styling.\n\n"

const responseShape = `Please respond with a valid JSON object containing the following structure:
{
  "name": "component-name",
  "description": "Component description",
  "fields": [
    {
      "name": "fieldName",
      "type": "text|richtext|image|link|select",
      "label": "Field Label",
      "description": "Field description",
      "required": false,
      "sample": "Sample value for preview"
    }
  ],
  "html": "HTL template code",
  "dialog": "Dialog XML code",
  "js": "JavaScript code",
  "java": "Sling Model Java code",
  "content": ".content.xml code",
  "previewHtml": "HTML for preview with sample data",
  "sampleData": {
    "fieldName": "sample value"
  }
}

Ensure all code follows AEM best practices and is production-ready.`

// BuildPrompt renders the generation prompt for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Generate an AEM component based on the following requirements:\n\n")
	b.WriteString("User Prompt: " + req.Prompt + "\n\n")

	if req.ComponentType != "" {
		b.WriteString("Component Type: " + req.ComponentType + "\n\n")
	}
	if req.HasImage() {
		b.WriteString(imageInstruction)
	}
	if strings.TrimSpace(req.Requirements) != "" {
		b.WriteString("Additional Requirements: " + req.Requirements + "\n\n")
	}

	b.WriteString(responseShape)
	return b.String()
}
