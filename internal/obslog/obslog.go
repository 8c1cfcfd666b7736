// Package obslog builds the process logger. Library packages take a
// *zap.Logger explicitly; only the command wiring reads the global.
package obslog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu           sync.Mutex
	globalLogger = zap.NewNop()
	closeFile    func() error
)

// L returns the global logger. It is a no-op logger until InitFromEnv runs.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return globalLogger
}

// Options selects where and how logs are written.
type Options struct {
	Level   zapcore.Level
	Format  string // legacy, json or console
	Caller  bool
	Console io.Writer
	File    string
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_CALLER, LOG_TO_CONSOLE,
// LOG_TO_FILE and LOG_FILE. Console output goes to stderr so stdout stays free
// for game records.
func OptionsFromEnv() Options {
	opts := Options{
		Level:  parseLevel(getenvDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "legacy"))),
		Caller: strings.EqualFold(getenvDefault("LOG_CALLER", "false"), "true"),
	}
	if strings.EqualFold(getenvDefault("LOG_TO_CONSOLE", "true"), "true") {
		opts.Console = os.Stderr
	}
	if strings.EqualFold(getenvDefault("LOG_TO_FILE", "false"), "true") {
		opts.File = strings.TrimSpace(getenvDefault("LOG_FILE", filepath.Join("logs", "arena.log")))
	}
	return opts
}

// New builds a logger from opts. The returned close function releases the
// log file, if one was opened.
func New(opts Options) (*zap.Logger, func() error, error) {
	if opts.Format != "json" && opts.Format != "console" {
		opts.Format = "legacy"
	}
	var cores []zapcore.Core
	closer := func() error { return nil }

	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(encoder(opts.Format), zapcore.AddSync(opts.Console), opts.Level))
	}
	if opts.File != "" {
		if err := ensureDir(filepath.Dir(opts.File)); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closer = f.Close
		cores = append(cores, zapcore.NewCore(encoder(opts.Format), zapcore.AddSync(f), opts.Level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), closer, nil
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if opts.Caller || opts.Format == "legacy" {
		logger = logger.WithOptions(zap.AddCaller())
	}
	logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, closer, nil
}

// InitFromEnv replaces the global logger with one configured from the
// environment.
func InitFromEnv() error {
	logger, closer, err := New(OptionsFromEnv())
	if err != nil {
		return err
	}
	mu.Lock()
	prev := closeFile
	globalLogger, closeFile = logger, closer
	mu.Unlock()
	if prev != nil {
		_ = prev()
	}
	return nil
}

// Sync flushes the global logger and closes its file.
func Sync() error {
	mu.Lock()
	logger, closer := globalLogger, closeFile
	closeFile = nil
	mu.Unlock()
	_ = logger.Sync()
	if closer != nil {
		return closer()
	}
	return nil
}

func encoder(format string) zapcore.Encoder {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig())
	default:
		return zapcore.NewConsoleEncoder(legacyEncoderConfig())
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func legacyEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return cfg
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}
