package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata"
)

// levelTrace sits below slog.LevelDebug (-4)
const levelTrace = slog.Level(-8)

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs cl as the logger returned by Global.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the installed CentralLogger. Before SetGlobal it lazily
// creates an info level console logger so packages can log during startup.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			config:  &LoggingConfig{DefaultLevel: DefaultLogLevel},
			tz:      time.Local,
			handler: newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
		}
	}
	return global
}

// CentralLogger owns the output handlers and hands out module loggers
type CentralLogger struct {
	mu      sync.RWMutex
	config  *LoggingConfig
	tz      *time.Location
	handler slog.Handler
	file    *BufferedFileWriter
	levels  map[string]slog.Level // per module overrides
}

// NewCentralLogger builds a logger from cfg: text on the console and JSON
// in the log file. Missing sections get defaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config: cfg,
		tz:     tz,
		levels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(level)
	}
	if err := cl.openOutputs(); err != nil {
		return nil, err
	}
	return cl, nil
}

// NewWriterLogger returns a logger writing console-style text to w.
func NewWriterLogger(w io.Writer, level LogLevel) *CentralLogger {
	if w == nil {
		w = io.Discard
	}
	return &CentralLogger{
		config:  &LoggingConfig{DefaultLevel: string(level)},
		tz:      time.UTC,
		handler: newTextHandler(w, parseLogLevel(string(level)), time.UTC),
	}
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func (cl *CentralLogger) openOutputs() error {
	var handlers []slog.Handler

	if c := cl.config.Console; c != nil && c.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(c.Level), cl.tz))
	}

	if f := cl.config.FileOutput; f != nil && f.Enabled {
		if dir := filepath.Dir(f.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		w, err := NewBufferedFileWriter(f.Path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cl.file = w
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLogLevel(f.Level)}))
	}

	switch len(handlers) {
	case 0:
		cl.handler = newTextHandler(os.Stdout, parseLogLevel(cl.config.DefaultLevel), cl.tz)
	case 1:
		cl.handler = handlers[0]
	default:
		cl.handler = newMultiWriterHandler(handlers...)
	}
	return nil
}

// Module returns a logger whose records carry module=name.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.levels[name]
	if !ok {
		level = parseLogLevel(cl.config.DefaultLevel)
	}
	return &moduleLogger{
		module: name,
		out:    slog.New(cl.handler),
		level:  level,
	}
}

// Flush pushes buffered file records to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. Safe to call more than once.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// parseLogLevel maps level names to slog levels; unknown names mean info.
func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return levelTrace
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
