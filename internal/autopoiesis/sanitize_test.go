package autopoiesis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	const fn = "func greet_soul(params map[string]interface{}) string {\n\treturn \"hi\"\n}"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain",
			input: fn,
			want:  fn,
		},
		{
			name:  "go fence with commentary",
			input: "Sure! Here is the tool:\n\n```go\n" + fn + "\n```\nLet me know if you need more.",
			want:  fn,
		},
		{
			name:  "bare fence",
			input: "```\n" + fn + "\n```",
			want:  fn,
		},
		{
			name:  "unclosed fence",
			input: "```go\n" + fn,
			want:  fn,
		},
		{
			name:  "package clause dropped",
			input: "package main\n\nimport \"strings\"\n\n" + fn,
			want:  "import \"strings\"\n\n" + fn,
		},
		{
			name:  "leading prose without fence",
			input: "The function below greets.\n" + fn,
			want:  fn,
		},
		{
			name:  "trailing prose without fence",
			input: fn + "\n\nThis returns hi.",
			want:  fn,
		},
		{
			name:  "body only is wrapped",
			input: "return \"hi\"",
			want:  fn,
		},
		{
			name:  "imports kept outside the shell",
			input: "import \"strings\"\n\nreturn strings.ToUpper(\"hi\")",
			want:  "import \"strings\"\n\nfunc greet_soul(params map[string]interface{}) string {\n\treturn strings.ToUpper(\"hi\")\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize("greet_soul", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "```go\n```", "package main\n", "import \"fmt\""} {
		_, err := Sanitize("x", input)
		assert.ErrorIs(t, err, ErrEmptySource, "input %q", input)
	}
}

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"go code block", "```go\npackage main\n```", "package main"},
		{"generic code block", "```\nsome code\n```", "some code"},
		{"no code block", "just plain text", "just plain text"},
		{"crlf", "```go\r\nx := 1\r\n```", "x := 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCodeBlock(tt.input, "go"))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("greet_soul", "Return a greeting", greetSchema(), []string{"fmt", "strings"})

	assert.Contains(t, prompt, "Function name: greet_soul")
	assert.Contains(t, prompt, "func greet_soul(params map[string]interface{}) string")
	assert.Contains(t, prompt, "- name (string, required)")
	assert.Contains(t, prompt, `"Error:"`)
	assert.Contains(t, prompt, "fmt, strings")
	assert.Contains(t, prompt, "Do not start goroutines")
	assert.True(t, strings.Contains(prompt, "no markdown fences"))
}
