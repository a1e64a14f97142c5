package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/neuroidss/ToolArtifact/internal/mcp"
	"github.com/neuroidss/ToolArtifact/internal/tools"

	"github.com/kaptinlin/jsonrepair"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// TOOL COMMANDS
// =============================================================================

var (
	createParams     string
	createParamsFile string

	toolsK      int
	toolsFormat string

	showSource bool
)

// createCmd generates and stores a new tool
var createCmd = &cobra.Command{
	Use:   "create <name> <description...>",
	Short: "Generate a new tool from a description",
	Long: `Asks the code provider for a Go function implementing the description,
validates it in the sandbox and stores it under name.

Example:
  toolartifact create word_count "Count the words in text" \
    --params '{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCreate,
}

// execCmd runs a stored tool
var execCmd = &cobra.Command{
	Use:   "exec <name> [arguments-json]",
	Short: "Run a stored tool",
	Long: `Runs a stored tool with a JSON object of arguments. Slightly malformed
JSON (trailing commas, single quotes) is repaired before decoding.

Example:
  toolartifact exec word_count '{"text": "one two three"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExec,
}

// toolsCmd lists the tools relevant to a context
var toolsCmd = &cobra.Command{
	Use:   "tools [context...]",
	Short: "List the tools most relevant to a context",
	RunE:  runTools,
}

// showCmd prints one stored tool
var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a stored tool's descriptor and source",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	schema, err := readSchema()
	if err != nil {
		return err
	}

	forge, _, err := openForge(ctx)
	if err != nil {
		return err
	}
	defer forge.Close()

	name := args[0]
	description := strings.Join(args[1:], " ")
	logger.Info("Creating tool", zap.String("name", name))
	return printOutcome(cmd, forge.CreateTool(ctx, name, description, schema))
}

// readSchema returns the schema given by --params or --params-file, or an
// empty object schema when neither is set.
func readSchema() (tools.ParameterSchema, error) {
	text := createParams
	if createParamsFile != "" {
		if text != "" {
			return tools.ParameterSchema{}, fmt.Errorf("--params and --params-file are mutually exclusive")
		}
		data, err := os.ReadFile(createParamsFile)
		if err != nil {
			return tools.ParameterSchema{}, fmt.Errorf("failed to read params file: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return tools.ParameterSchema{Type: "object", Properties: map[string]tools.Property{}}, nil
	}
	return tools.SchemaFromValue(text)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var raw string
	if len(args) == 2 {
		raw = args[1]
	}
	toolArgs, err := parseArguments(raw)
	if err != nil {
		return err
	}

	forge, _, err := openForge(ctx)
	if err != nil {
		return err
	}
	defer forge.Close()

	logger.Debug("Executing tool", zap.String("name", args[0]), zap.Int("args", len(toolArgs)))
	return printOutcome(cmd, forge.ExecuteTool(ctx, args[0], toolArgs))
}

// parseArguments decodes a JSON object of tool arguments, repairing it first
// when it is not valid JSON. Empty input yields an empty map.
func parseArguments(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	if !json.Valid([]byte(raw)) {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err != nil {
			return nil, fmt.Errorf("arguments are not JSON: %w", err)
		}
		raw = repaired
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	forge, _, err := openForge(ctx)
	if err != nil {
		return err
	}
	defer forge.Close()

	k := toolsK
	if k < 0 {
		k = forge.DefaultK()
	}
	descs := forge.GetAvailableTools(ctx, strings.Join(args, " "), k)

	out, err := mcp.NewToolRenderer().Render(descs, toolsFormat)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	forge, _, err := openForge(ctx)
	if err != nil {
		return err
	}
	defer forge.Close()

	tool, err := forge.Describe(ctx, args[0])
	if err != nil {
		return printOutcome(cmd, tools.ErrorOutcome(err))
	}

	r := mcp.NewToolRenderer()
	r.SetMaxSchemaLen(0)
	w := cmd.OutOrStdout()
	fmt.Fprint(w, r.RenderMarkdown([]tools.Descriptor{tool.Descriptor()}))
	fmt.Fprintf(w, "Provenance: %s\n", tool.Provenance)
	if showSource && tool.Source != "" {
		fmt.Fprintf(w, "\n```go\n%s\n```\n", tool.Source)
	}
	return nil
}
