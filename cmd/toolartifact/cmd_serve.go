package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/autopoiesis"
	"github.com/neuroidss/ToolArtifact/internal/config"
	"github.com/neuroidss/ToolArtifact/internal/logging"
	"github.com/neuroidss/ToolArtifact/internal/mcp"
	"github.com/neuroidss/ToolArtifact/internal/telemetry"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveWatch bool

// serveCmd serves the forge over MCP on stdio
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve create_tool, execute_tool and get_available_tools over MCP (stdio)",
	Long: `Runs an MCP server on stdin/stdout until the client disconnects or the
process is interrupted. Logs go to stderr and the workspace log directory.

When telemetry is enabled in the config, traces are exported over OTLP/HTTP
and metrics are served in Prometheus format on telemetry.metrics_addr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown", zap.Error(err))
		}
	}()
	if addr := tp.MetricsAddr(); addr != "" {
		logger.Info("Serving metrics", zap.String("addr", addr))
	}

	forge, err := autopoiesis.New(ctx, cfg, autopoiesis.Options{Observer: tp.Observer})
	if err != nil {
		return fmt.Errorf("failed to open forge: %w", err)
	}
	defer forge.Close()

	if serveWatch {
		watcher, err := config.NewWatcher(path, func(c *config.Config) {
			logging.Reload(c.Logging)
			logger.Info("Logging settings reloaded", zap.String("level", c.Logging.Level))
		})
		if err != nil {
			logger.Warn("Config watcher disabled", zap.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("Config watcher disabled", zap.Error(err))
			watcher.Stop()
		} else {
			defer watcher.Stop()
		}
	}

	logger.Info("Serving MCP on stdio", zap.String("version", version), zap.String("workspace", cfg.Workspace))
	err = mcp.NewServer(forge, version).Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
