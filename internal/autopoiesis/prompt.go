package autopoiesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neuroidss/ToolArtifact/internal/llm"
	"github.com/neuroidss/ToolArtifact/internal/tools"
)

// buildPrompt states the whole contract the generated source must meet.
func buildPrompt(name, description string, schema tools.ParameterSchema, allowed []string) string {
	var sb strings.Builder

	sb.WriteString("Write one Go function that implements this tool.\n\n")
	fmt.Fprintf(&sb, "%s %s\n", llm.PromptNameLabel, name)
	fmt.Fprintf(&sb, "Purpose: %s\n", description)

	sb.WriteString("Parameters (read them from params):\n")
	names := make([]string, 0, len(schema.Properties))
	for p := range schema.Properties {
		names = append(names, p)
	}
	sort.Strings(names)
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	if len(names) == 0 {
		sb.WriteString("- (none)\n")
	}
	for _, p := range names {
		prop := schema.Properties[p]
		flag := "optional"
		if required[p] {
			flag = "required"
		}
		fmt.Fprintf(&sb, "- %s (%s, %s)", p, prop.Type, flag)
		if prop.Description != "" {
			fmt.Fprintf(&sb, ": %s", prop.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nRules:\n")
	fmt.Fprintf(&sb, "- The signature must be exactly: func %s(params map[string]interface{}) string\n", name)
	sb.WriteString("- Declare nothing else: no other functions, types, variables or constants, no package clause.\n")
	sb.WriteString("- JSON numbers arrive as float64; use type assertions with the ok form.\n")
	sb.WriteString("- Never panic. On any internal failure return a string that starts with \"Error:\".\n")
	sb.WriteString("- Do not start goroutines or use time.AfterFunc; do all work before returning.\n")
	fmt.Fprintf(&sb, "- You may import only: %s.\n", strings.Join(allowed, ", "))
	sb.WriteString("- Output raw Go source only. No comments, no explanations, no markdown fences.\n")

	return sb.String()
}
