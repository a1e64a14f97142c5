// Package logging provides config-driven categorized file-based logging for ToolArtifact.
// Logs are written to .toolartifact/logs/ with separate files per category.
// Logging is controlled by Config.DebugMode - when false, no logs are written.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Boot/initialization
	CategoryPerformance Category = "performance" // Slow operations
	CategoryAPI         Category = "api"         // LLM API calls
	CategoryTools       Category = "tools"       // Tool registry and execution
	CategoryAutopoiesis Category = "autopoiesis" // Tool generation
	CategorySandbox     Category = "sandbox"     // Interpreter runs
	CategoryEmbedding   Category = "embedding"   // Embedding engine
	CategoryStore       Category = "store"       // Vector store operations
	CategoryMCP         Category = "mcp"         // MCP server
)

// AllCategories lists every category known to the subsystem.
var AllCategories = []Category{
	CategoryBoot,
	CategoryPerformance,
	CategoryAPI,
	CategoryTools,
	CategoryAutopoiesis,
	CategorySandbox,
	CategoryEmbedding,
	CategoryStore,
	CategoryMCP,
}

// Config is the logging section of the application config.
// It lives here rather than in internal/config to avoid an import cycle.
type Config struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// Logger writes leveled messages for a single category.
// A Logger with a nil sugar is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

type sink struct {
	logger *zap.Logger
	file   *os.File
}

var (
	sinks    = make(map[Category]*sink)
	sinksMu  sync.RWMutex
	logsDir  string
	cfg      Config
	cfgMu    sync.RWMutex
	minLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize sets up the logging directory for the workspace.
// An empty workspace leaves logging disabled.
func Initialize(workspace string, c Config) error {
	CloseAll()

	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
	minLevel.SetLevel(parseLevel(c.Level))

	if workspace == "" || !c.DebugMode {
		logsDir = ""
		return nil
	}

	dir := filepath.Join(workspace, ".toolartifact", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logsDir = dir

	boot := Get(CategoryBoot)
	boot.Info("=== ToolArtifact logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", minLevel.Level())
	if len(c.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	}
	return nil
}

// Reload applies a new logging config without reopening the workspace.
// Level changes take effect on existing loggers immediately.
func Reload(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
	minLevel.SetLevel(parseLevel(c.Level))
	Get(CategoryBoot).Info("Logging config reloaded (level=%s)", minLevel.Level())
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()

	if !cfg.DebugMode {
		return false
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	sinksMu.RLock()
	s, ok := sinks[category]
	sinksMu.RUnlock()
	if ok {
		return &Logger{category: category, sugar: s.logger.Sugar()}
	}

	sinksMu.Lock()
	defer sinksMu.Unlock()
	if s, ok := sinks[category]; ok {
		return &Logger{category: category, sugar: s.logger.Sugar()}
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	s = &sink{
		logger: zap.New(newCore(zapcore.AddSync(file))).Named(string(category)),
		file:   file,
	}
	sinks[category] = s
	return &Logger{category: category, sugar: s.logger.Sugar()}
}

func newCore(w zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfgMu.RLock()
	jsonFormat := cfg.JSONFormat
	cfgMu.RUnlock()

	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, w, minLevel)
}

// CloseAll flushes and closes every open log file.
func CloseAll() {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	for cat, s := range sinks {
		_ = s.logger.Sync()
		_ = s.file.Close()
		delete(sinks, cat)
	}
}

// Category returns the category the logger writes to.
func (l *Logger) Category() Category { return l.category }

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message (always logged if category enabled)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger that attaches the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }

func ToolsWarn(format string, args ...interface{}) { Get(CategoryTools).Warn(format, args...) }

func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

func Autopoiesis(format string, args ...interface{}) { Get(CategoryAutopoiesis).Info(format, args...) }

func AutopoiesisDebug(format string, args ...interface{}) {
	Get(CategoryAutopoiesis).Debug(format, args...)
}

func Sandbox(format string, args ...interface{}) { Get(CategorySandbox).Info(format, args...) }

func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debug(format, args...) }

func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func MCP(format string, args ...interface{}) { Get(CategoryMCP).Info(format, args...) }

func MCPDebug(format string, args ...interface{}) { Get(CategoryMCP).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning to the performance category if the
// duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("[%s] %s took %v (threshold: %v)", t.category, t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
