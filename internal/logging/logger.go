// Package logging provides categorized logging for utforge on top of zap.
// Until Init is called every category logger is a nop, so library use of
// the core packages stays silent by default.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem log stream.
type Category string

const (
	CategoryExtract   Category = "extract"   // Envelope detection and parsing
	CategoryStage     Category = "stage"     // Workspace staging
	CategoryToolchain Category = "toolchain" // Compile/run/coverage subprocesses
	CategoryCoverage  Category = "coverage"  // Coverage aggregation
	CategoryPipeline  Category = "pipeline"  // Request orchestration
	CategoryStore     Category = "store"     // Run history persistence
	CategoryAPI       Category = "api"       // LLM API calls
	CategoryBoot      Category = "boot"      // Startup and configuration
)

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	sugared    = map[Category]*zap.SugaredLogger{}
	categories map[string]bool
)

// Init installs a real zap logger. debug enables development encoding and
// the debug level. enabled restricts output to the listed categories; an
// empty or nil map enables everything.
func Init(debug bool, enabled map[string]bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	base = logger
	categories = enabled
	sugared = map[Category]*zap.SugaredLogger{}
	return nil
}

func (c Category) enabled() bool {
	if len(categories) == 0 {
		return true
	}
	return categories[string(c)]
}

// Get returns the sugared logger for a category, creating it on first use.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugared[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugared[cat]; ok {
		return l
	}
	var l *zap.SugaredLogger
	if cat.enabled() {
		l = base.Named(string(cat)).Sugar()
	} else {
		l = zap.NewNop().Sugar()
	}
	sugared[cat] = l
	return l
}

// Sync flushes buffered log entries. Safe to call on the nop logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Convenience wrappers for the hot categories.

func Extract(format string, args ...any)   { Get(CategoryExtract).Infof(format, args...) }
func Stage(format string, args ...any)     { Get(CategoryStage).Infof(format, args...) }
func Toolchain(format string, args ...any) { Get(CategoryToolchain).Infof(format, args...) }
func Pipeline(format string, args ...any)  { Get(CategoryPipeline).Infof(format, args...) }
func Store(format string, args ...any)     { Get(CategoryStore).Infof(format, args...) }
func Boot(format string, args ...any)      { Get(CategoryBoot).Infof(format, args...) }

func ExtractDebug(format string, args ...any)   { Get(CategoryExtract).Debugf(format, args...) }
func ToolchainDebug(format string, args ...any) { Get(CategoryToolchain).Debugf(format, args...) }
func PipelineDebug(format string, args ...any)  { Get(CategoryPipeline).Debugf(format, args...) }
