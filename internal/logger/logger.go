// Package logger provides structured logging for docqa.
//
// Log records are written through log/slog. Services hold a module logger
// from Module so every record carries its module and component. When
// verbose mode is enabled via the --verbose flag, debug records are
// emitted to help trace the ingestion and retrieval pipeline.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config configures the log output.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// Format is text or json. Defaults to text.
	Format string
}

var (
	mu        sync.RWMutex
	verbose   bool
	baseLevel = slog.LevelInfo
	levelVar  = new(slog.LevelVar)
	output    = &switchWriter{w: os.Stderr}
	base      = newLogger("text")
)

// switchWriter lets SetOutput redirect loggers that were already created.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelVar}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	return slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "docqa")}))
}

// Init configures the level and format. Call it once at startup, before
// any module logger is created; module loggers keep the format they were
// created with.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	baseLevel = parseLevel(cfg.Level)
	applyLevel()
	base = newLogger(cfg.Format)
	slog.SetDefault(base)
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	applyLevel()
}

// SetOutput sets the output writer for all loggers.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	output.set(w)
}

// L returns the base logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Module returns a logger tagged with a module and component.
func Module(module, component string) *slog.Logger {
	return L().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

// applyLevel must be called with mu held.
func applyLevel() {
	if verbose {
		levelVar.Set(slog.LevelDebug)
		return
	}
	levelVar.Set(baseLevel)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
