package llm

import (
	"context"
	"fmt"
	"regexp"
)

// PromptNameLabel precedes the requested function name in generation prompts.
// The stub provider reads the name back from this line.
const PromptNameLabel = "Function name:"

var promptNameRe = regexp.MustCompile(regexp.QuoteMeta(PromptNameLabel) + `\s*([A-Za-z_][A-Za-z0-9_]*)`)

// StubProvider is an offline CodeProvider. With no template it returns a
// function that echoes its parameters as JSON, which lets the whole
// create/resolve/execute cycle run without network access.
type StubProvider struct {
	template func(name, prompt string) string
}

// NewStubProvider creates a stub. A nil template selects the echo tool.
func NewStubProvider(template func(name, prompt string) string) *StubProvider {
	if template == nil {
		template = echoTool
	}
	return &StubProvider{template: template}
}

// Name returns the provider name.
func (s *StubProvider) Name() string { return "stub" }

// Complete returns the template output for the function named in prompt.
func (s *StubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m := promptNameRe.FindStringSubmatch(prompt)
	if m == nil {
		return "", fmt.Errorf("stub provider: prompt has no %q line", PromptNameLabel)
	}
	return s.template(m[1], prompt), nil
}

func echoTool(name, _ string) string {
	return fmt.Sprintf(`import "encoding/json"

func %s(params map[string]interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}`, name)
}
