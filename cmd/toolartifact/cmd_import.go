package main

import (
	"context"
	"fmt"
	"os"

	"github.com/neuroidss/ToolArtifact/internal/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var importConcurrency int

// importCmd creates every tool listed in a manifest
var importCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Create the tools listed in a YAML manifest",
	Long: `Creates each tool in the manifest through the same path as create.
Tools that already exist are skipped with a warning.

Manifest format:
  tools:
    - name: word_count
      description: Count the words in text
      parameters:
        type: object
        properties:
          text: {type: string}
        required: [text]`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// Manifest lists tools to create in bulk.
type Manifest struct {
	Tools []ManifestEntry `yaml:"tools"`
}

// ManifestEntry is one tool in a manifest. Parameters may be a YAML mapping
// or a JSON string.
type ManifestEntry struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Parameters  interface{} `yaml:"parameters"`
}

type toolCreator interface {
	CreateTool(ctx context.Context, name, description string, schema tools.ParameterSchema) string
}

// importResult pairs a manifest entry with its outcome string.
type importResult struct {
	Name    string
	Outcome string
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Tools) == 0 {
		return nil, fmt.Errorf("manifest %s lists no tools", path)
	}
	return &m, nil
}

// importManifest creates every entry with at most limit generations in
// flight. Results keep manifest order.
func importManifest(ctx context.Context, creator toolCreator, m *Manifest, limit int) []importResult {
	if limit < 1 {
		limit = 1
	}
	results := make([]importResult, len(m.Tools))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, entry := range m.Tools {
		g.Go(func() error {
			results[i] = importResult{Name: entry.Name, Outcome: importOne(gctx, creator, entry)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func importOne(ctx context.Context, creator toolCreator, entry ManifestEntry) string {
	params := entry.Parameters
	if params == nil {
		params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	schema, err := tools.SchemaFromValue(params)
	if err != nil {
		return tools.ErrorOutcome(tools.Fail(tools.KindValidation, entry.Name, err))
	}
	return creator.CreateTool(ctx, entry.Name, entry.Description, schema)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	forge, _, err := openForge(ctx)
	if err != nil {
		return err
	}
	defer forge.Close()

	logger.Info("Importing manifest", zap.String("path", args[0]), zap.Int("tools", len(m.Tools)), zap.Int("concurrency", importConcurrency))

	failed := 0
	for _, r := range importManifest(ctx, forge, m, importConcurrency) {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", r.Name, r.Outcome)
		if tools.IsError(r.Outcome) {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d tools failed\n", failed, len(m.Tools))
		return errFailed
	}
	return nil
}
