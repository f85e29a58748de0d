package prompts

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// ChartReply is the shape the chart persona must answer with.
type ChartReply struct {
	Type       string         `json:"type" jsonschema:"description=Nivo chart type such as bar line pie or scatterplot"`
	NivoConfig map[string]any `json:"nivoConfig" jsonschema:"description=Props passed to the Nivo component including data"`
	Title      string         `json:"title,omitempty"`
}

var chartReplySchema = func() string {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	out, err := json.MarshalIndent(r.Reflect(&ChartReply{}), "", "  ")
	if err != nil {
		panic(err)
	}
	return string(out)
}()

// ChartReplySchema returns the JSON schema embedded in chart prompts.
func ChartReplySchema() string {
	return chartReplySchema
}

// BuildChartConfigPrompt asks for an updated chart configuration. configPreview
// is the current configuration with its data truncated.
func BuildChartConfigPrompt(message, tableMetadata, chartType, configPreview string) string {
	var prompt strings.Builder

	prompt.WriteString("## Source Table\n")
	prompt.WriteString(tableMetadata)
	prompt.WriteString("\n\n## Current Chart\n")
	prompt.WriteString("Type: ")
	prompt.WriteString(chartType)
	prompt.WriteString("\nConfiguration (data truncated):\n")
	prompt.WriteString(configPreview)
	prompt.WriteString("\n\n## Request\n")
	prompt.WriteString(message)
	prompt.WriteString("\n\n## Response Format\n")
	prompt.WriteString("Reply with one JSON object matching this schema:\n")
	prompt.WriteString(chartReplySchema)
	return prompt.String()
}

// BuildExtractionPrompt wraps a data profile's instructions for the vision model.
func BuildExtractionPrompt(instructions string, imageCount int) string {
	var prompt strings.Builder
	prompt.WriteString("Extract records from the attached image")
	if imageCount != 1 {
		prompt.WriteString("s")
	}
	prompt.WriteString(".\n\n## Instructions\n")
	prompt.WriteString(instructions)
	prompt.WriteString("\n\nReply with a JSON array of flat objects.")
	return prompt.String()
}
