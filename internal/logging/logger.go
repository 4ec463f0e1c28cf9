// Package logging provides categorized file-based logging for volition.
// Logs are written to <workspace>/.volition/logs/ with one file per category,
// backed by zap cores. Logging is controlled by the debug flag in the engine
// config; when disabled, loggers are silent no-ops.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and wiring
	CategoryLifecycle Category = "lifecycle" // Desire state machine
	CategoryStrength  Category = "strength"  // Decay and reinforcement
	CategoryPlanner   Category = "planner"   // Plan generation
	CategoryReview    Category = "review"    // Alignment/safety review
	CategoryVerify    Category = "verify"    // Outcome verification
	CategoryExecutor  Category = "executor"  // Step execution backends
	CategorySkill     Category = "skill"     // Skill registry and trust gate
	CategoryStore     Category = "store"     // Persistence
	CategoryLLM       Category = "llm"       // LLM API calls
)

// Config controls logger construction. Passed in at Initialize; nothing in
// this package reads ambient config files.
type Config struct {
	Debug   bool
	Level   string          // debug | info | warn | error
	Console bool            // also mirror to stderr
	Enabled map[string]bool // per-category enable; empty means all
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	enabled  bool
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	logsDir string
	cfg     Config
	ready   bool
)

// Initialize sets up the logging directory. Call once at startup with the
// workspace path before any Get.
func Initialize(workspace string, c Config) error {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	loggers = make(map[Category]*Logger)

	if !c.Debug {
		ready = true
		return nil
	}

	logsDir = filepath.Join(workspace, ".volition", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	ready = true

	boot := get(CategoryBoot)
	boot.Info("logging initialized (dir=%s level=%s)", logsDir, c.Level)
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
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

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	return get(category)
}

func get(category Category) *Logger {
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if ready && cfg.Debug && categoryEnabled(category) {
		if core, err := buildCore(category); err == nil {
			l.sugar = zap.New(core).Sugar().Named(string(category))
			l.enabled = true
		}
	}
	loggers[category] = l
	return l
}

func categoryEnabled(category Category) bool {
	if len(cfg.Enabled) == 0 {
		return true
	}
	return cfg.Enabled[string(category)]
}

func buildCore(category Category) (zapcore.Core, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	path := filepath.Join(logsDir, fmt.Sprintf("%s.log", category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	level := parseLevel(cfg.Level)
	core := zapcore.NewCore(enc, zapcore.AddSync(file), level)
	if cfg.Console {
		stderr := zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level)
		core = zapcore.NewTee(core, stderr)
	}
	return core, nil
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) {
	if l != nil && l.enabled {
		l.sugar.Debugf(format, args...)
	}
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) {
	if l != nil && l.enabled {
		l.sugar.Infof(format, args...)
	}
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) {
	if l != nil && l.enabled {
		l.sugar.Warnf(format, args...)
	}
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) {
	if l != nil && l.enabled {
		l.sugar.Errorf(format, args...)
	}
}

// Sync flushes all category loggers. Safe to call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		if l.enabled {
			_ = l.sugar.Sync()
		}
	}
}

// Convenience wrappers for the chattiest categories, so call sites read as
// logging.Lifecycle("advanced %s", id).

func Lifecycle(format string, args ...any) { Get(CategoryLifecycle).Info(format, args...) }
func Planner(format string, args ...any)   { Get(CategoryPlanner).Info(format, args...) }
func Skill(format string, args ...any)     { Get(CategorySkill).Info(format, args...) }
func Store(format string, args ...any)     { Get(CategoryStore).Info(format, args...) }
func LLM(format string, args ...any)       { Get(CategoryLLM).Info(format, args...) }
