// Package sandbox runs generated tool functions inside a restricted Go
// interpreter.
//
// Every run builds a fresh interpreter that can see only the allowlisted
// standard library packages plus a small host package. The tool source is
// compiled together with an init that registers the function under its
// name; the runner then checks that exactly that name was bound and calls
// it under a wall-clock limit. Nothing from the host process scope is
// reachable from tool code.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/logging"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

var (
	// ErrNotRegistered is returned when the unit did not register exactly the expected function.
	ErrNotRegistered = errors.New("function not registered")

	// ErrTimeout is returned when a run exceeds its wall-clock limit.
	ErrTimeout = errors.New("execution timed out")

	// ErrCompile is returned when the interpreter rejects the unit.
	ErrCompile = errors.New("compile error")

	// ErrPanic is returned when tool code panics.
	ErrPanic = errors.New("tool panicked")
)

// Config bounds what a run may do.
type Config struct {
	Timeout         time.Duration
	AllowedPackages []string
	MaxSourceBytes  int
	MaxOutputBytes  int
}

// Result is the outcome of a successful run.
type Result struct {
	// Output is the function's return value as text.
	Output string
	// Console holds anything the tool printed. It is diagnostic only.
	Console  string
	Duration time.Duration
}

// Runner executes tool sources. It is safe for concurrent use.
type Runner struct {
	cfg     Config
	allowed map[string]bool
	symbols interp.Exports
}

// NewRunner creates a runner restricted to cfg.AllowedPackages.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = 64 * 1024
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 16 * 1024
	}

	allowed := make(map[string]bool, len(cfg.AllowedPackages))
	for _, p := range cfg.AllowedPackages {
		allowed[p] = true
	}

	// stdlib keys look like "encoding/json/json": import path plus package name.
	symbols := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowed[key[:idx]] {
			symbols[key] = syms
		}
	}

	return &Runner{cfg: cfg, allowed: allowed, symbols: symbols}
}

// Allowed returns the allowlist as a set.
func (r *Runner) Allowed() map[string]bool {
	out := make(map[string]bool, len(r.allowed))
	for k, v := range r.allowed {
		out[k] = v
	}
	return out
}

// Timeout returns the per-run wall-clock limit.
func (r *Runner) Timeout() time.Duration { return r.cfg.Timeout }

// Check validates source without executing it.
func (r *Runner) Check(name, source string) (*Unit, error) {
	if len(source) > r.cfg.MaxSourceBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrSourceTooLarge, len(source), r.cfg.MaxSourceBytes)
	}
	return Parse(name, source, r.allowed)
}

// Run compiles source in a fresh interpreter and calls the function
// registered as name with params.
func (r *Runner) Run(ctx context.Context, name, source string, params map[string]interface{}) (*Result, error) {
	if _, err := r.Check(name, source); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	timer := logging.StartTimer(logging.CategorySandbox, "run "+name)
	defer timer.StopWithThreshold(r.cfg.Timeout / 2)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	console := &limitedBuffer{max: r.cfg.MaxOutputBytes}
	i := interp.New(interp.Options{Stdout: console, Stderr: console})
	if err := i.Use(r.symbols); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}
	h := newHost(params)
	if err := i.Use(h.exports()); err != nil {
		return nil, fmt.Errorf("load host package: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, wrap(name, source)); err != nil {
		r.logConsole(name, console)
		return nil, r.classify(ctx, err, ErrCompile)
	}
	if err := h.bound(name); err != nil {
		return nil, err
	}

	if _, err := i.EvalWithContext(ctx, "main."+invokeFunc+"()"); err != nil {
		r.logConsole(name, console)
		return nil, r.classify(ctx, err, ErrPanic)
	}

	out, ok := h.outcome()
	if !ok {
		return nil, fmt.Errorf("%w: %s returned without a result", ErrNotRegistered, name)
	}
	r.logConsole(name, console)

	return &Result{
		Output:   Stringify(out),
		Console:  console.String(),
		Duration: time.Since(start),
	}, nil
}

// classify maps interpreter errors onto the package sentinels.
func (r *Runner) classify(ctx context.Context, err, fallback error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrTimeout, r.cfg.Timeout)
	case errors.Is(err, context.Canceled):
		return err
	}
	var p interp.Panic
	if errors.As(err, &p) {
		return fmt.Errorf("%w: %v", ErrPanic, p.Value)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

func (r *Runner) logConsole(name string, console *limitedBuffer) {
	if out := console.String(); out != "" {
		logging.Get(logging.CategorySandbox).With("tool", name).Debug("console output: %s", out)
	}
}

// Stringify renders a tool result as text. Strings pass through unchanged
// and nil renders as "null".
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprintf("%v", x)
	}
}
