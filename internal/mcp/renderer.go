package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/neuroidss/ToolArtifact/internal/tools"
)

// Render formats accepted by RenderDescriptors.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatCompact  = "compact"
)

// ToolRenderer renders tool descriptors for an LLM or a terminal.
type ToolRenderer struct {
	includeSchemas bool
	maxSchemaLen   int
}

// NewToolRenderer creates a new tool renderer.
func NewToolRenderer() *ToolRenderer {
	return &ToolRenderer{
		includeSchemas: true,
		maxSchemaLen:   500,
	}
}

// SetIncludeSchemas sets whether to include parameter schemas in markdown output.
func (r *ToolRenderer) SetIncludeSchemas(include bool) {
	r.includeSchemas = include
}

// SetMaxSchemaLen sets the maximum length for rendered schemas. 0 means unlimited.
func (r *ToolRenderer) SetMaxSchemaLen(maxLen int) {
	r.maxSchemaLen = maxLen
}

// Render renders descriptors in the named format. An empty format means JSON.
func (r *ToolRenderer) Render(descs []tools.Descriptor, format string) (string, error) {
	switch format {
	case "", FormatJSON:
		return r.RenderJSON(descs)
	case FormatMarkdown:
		return r.RenderMarkdown(descs), nil
	case FormatCompact:
		return r.RenderCompact(descs), nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: %s, %s, %s)", format, FormatJSON, FormatMarkdown, FormatCompact)
	}
}

// RenderMarkdown renders descriptors into markdown for LLM context.
func (r *ToolRenderer) RenderMarkdown(descs []tools.Descriptor) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Available Tools (%d)\n\n", len(descs)))
	for i := range descs {
		r.renderTool(&sb, &descs[i])
	}

	return sb.String()
}

func (r *ToolRenderer) renderTool(sb *strings.Builder, d *tools.Descriptor) {
	sb.WriteString(fmt.Sprintf("#### %s\n", d.Name))

	if d.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", d.Description))
	}

	if len(d.Parameters.Properties) > 0 {
		required := make(map[string]bool, len(d.Parameters.Required))
		for _, name := range d.Parameters.Required {
			required[name] = true
		}
		names := make([]string, 0, len(d.Parameters.Properties))
		for name := range d.Parameters.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		sb.WriteString("**Arguments:**\n")
		for _, name := range names {
			p := d.Parameters.Properties[name]
			flag := "optional"
			if required[name] {
				flag = "required"
			}
			line := fmt.Sprintf("- `%s` (%s, %s)", name, p.Type, flag)
			if p.Description != "" {
				line += ": " + p.Description
			}
			sb.WriteString(line + "\n")
		}
	}

	if r.includeSchemas {
		if schema := r.formatSchema(d.Parameters); schema != "" {
			sb.WriteString(fmt.Sprintf("\n**Parameters:**\n```json\n%s\n```\n", schema))
		}
	}

	sb.WriteString("\n")
}

// formatSchema pretty-prints a parameter schema, truncated to maxSchemaLen.
func (r *ToolRenderer) formatSchema(schema tools.ParameterSchema) string {
	formatted, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return ""
	}

	result := string(formatted)
	if r.maxSchemaLen > 0 && len(result) > r.maxSchemaLen {
		result = result[:r.maxSchemaLen] + "\n  ...(truncated)"
	}
	return result
}

// RenderCompact renders a compact single-line summary.
func (r *ToolRenderer) RenderCompact(descs []tools.Descriptor) string {
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return fmt.Sprintf("Tools [%s]", strings.Join(names, ", "))
}

// RenderJSON renders descriptors as an indented JSON array.
func (r *ToolRenderer) RenderJSON(descs []tools.Descriptor) (string, error) {
	if descs == nil {
		descs = []tools.Descriptor{}
	}
	data, err := json.MarshalIndent(descs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
