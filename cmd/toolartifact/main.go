package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/autopoiesis"
	"github.com/neuroidss/ToolArtifact/internal/config"
	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration
	provider   string

	// Logger
	logger *zap.Logger
)

// errFailed marks a command whose operation returned an "Error:" outcome.
// The outcome itself has already been printed.
var errFailed = errors.New("operation failed")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "toolartifact",
	Short: "ToolArtifact - a tool registry that writes its own tools",
	Long: `ToolArtifact stores tools as Go functions, finds them by meaning, and runs
them in an interpreter sandbox. When no stored tool fits, the bootstrap tool
create_new_tool asks a language model to write one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.toolartifact/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Code provider override (openai, gemini, stub)")

	createCmd.Flags().StringVarP(&createParams, "params", "p", "", "Parameter schema as JSON")
	createCmd.Flags().StringVar(&createParamsFile, "params-file", "", "Read the parameter schema from a file")

	toolsCmd.Flags().IntVar(&toolsK, "k", -1, "Number of generated tools to list (default: resolver.default_k)")
	toolsCmd.Flags().StringVarP(&toolsFormat, "format", "f", "markdown", "Output format: markdown, json, compact")

	showCmd.Flags().BoolVar(&showSource, "source", true, "Print the tool source")

	importCmd.Flags().IntVarP(&importConcurrency, "concurrency", "j", 4, "Tools generated in parallel")

	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload logging settings when the config file changes")

	rootCmd.AddCommand(
		createCmd,
		execCmd,
		toolsCmd,
		showCmd,
		importCmd,
		serveCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// resolveWorkspace returns the absolute workspace directory.
func resolveWorkspace() (string, error) {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	return filepath.Abs(ws)
}

// resolveConfigPath returns the config file to load for ws.
func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, ".toolartifact", "config.yaml")
}

// loadConfig loads and validates the configuration, then starts category logging.
func loadConfig() (*config.Config, string, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, "", err
	}
	path := resolveConfigPath(ws)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	cfg.Workspace = ws
	if provider != "" {
		cfg.LLM.Provider = provider
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	if err := logging.Initialize(ws, cfg.Logging); err != nil {
		logger.Warn("Category logging disabled", zap.Error(err))
	}
	logger.Debug("Config loaded",
		zap.String("path", path),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("store", cfg.Store.Backend))
	return cfg, path, nil
}

// openForge loads config and builds a Forge with default collaborators.
func openForge(ctx context.Context) (*autopoiesis.Forge, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	forge, err := autopoiesis.New(ctx, cfg, autopoiesis.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open forge: %w", err)
	}
	return forge, cfg, nil
}

// printOutcome writes an operation outcome and maps "Error:" to errFailed.
func printOutcome(cmd *cobra.Command, outcome string) error {
	fmt.Fprintln(cmd.OutOrStdout(), outcome)
	if tools.IsError(outcome) {
		return errFailed
	}
	return nil
}
