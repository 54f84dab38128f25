// Package plog provides the global logger for the application.
//
// Console output goes through a level-dispatching handler: informational
// records are written to stdout and warnings/errors to stderr, so shell
// redirection separates the streams naturally. An optional plain-text file
// handler can be fanned out alongside the console handlers.
package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Log levels. LevelDone sits between Info and Warn so that per-file success
// events stay visible when informational output is suppressed.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelDone  = slog.Level(2)
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelVar = new(slog.LevelVar)
var defaultLogger *slog.Logger

// renameCustomLevels maps the non-standard LevelDone to a readable label.
func renameCustomLevels(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelDone {
			a.Value = slog.StringValue("DONE")
		}
	}
	return a
}

// levelDispatchHandler writes log records to different handlers based on the
// record's level. Records below LevelWarn go to one handler, warnings and
// above to another.
type levelDispatchHandler struct {
	outHandler slog.Handler
	errHandler slog.Handler
}

func (h *levelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.outHandler.Enabled(ctx, level) || h.errHandler.Enabled(ctx, level)
}

func (h *levelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.errHandler.Handle(ctx, r)
	}
	return h.outHandler.Handle(ctx, r)
}

func (h *levelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelDispatchHandler{
		outHandler: h.outHandler.WithAttrs(attrs),
		errHandler: h.errHandler.WithAttrs(attrs),
	}
}

func (h *levelDispatchHandler) WithGroup(name string) slog.Handler {
	return &levelDispatchHandler{
		outHandler: h.outHandler.WithGroup(name),
		errHandler: h.errHandler.WithGroup(name),
	}
}

// fanoutHandler duplicates every record to all wrapped handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// newTintHandler builds a console handler, colorized only when the writer is a terminal.
func newTintHandler(w *os.File) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       levelVar,
		NoColor:     !isatty.IsTerminal(w.Fd()),
		ReplaceAttr: renameCustomLevels,
	})
}

func newConsoleHandler() slog.Handler {
	return &levelDispatchHandler{
		outHandler: newTintHandler(os.Stdout),
		errHandler: newTintHandler(os.Stderr),
	}
}

func init() {
	levelVar.Set(LevelDone)
	defaultLogger = slog.New(newConsoleHandler())
}

// Setup reconfigures the global logger. If logFilePath is non-empty, a
// plain-text handler writing to that file (created or appended) is fanned
// out next to the console handlers. The returned closer releases the file
// and must be called at process end.
func Setup(level slog.Level, logFilePath string) (func(), error) {
	levelVar.Set(level)

	console := newConsoleHandler()
	if logFilePath == "" {
		defaultLogger = slog.New(console)
		return func() {}, nil
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}
	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: renameCustomLevels,
	})
	defaultLogger = slog.New(&fanoutHandler{handlers: []slog.Handler{console, fileHandler}})
	return func() { _ = f.Close() }, nil
}

// SetLevel adjusts the minimum level of the global logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a config/flag string to a log level. Unknown values
// fall back to the default LevelDone.
func LevelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "done":
		return LevelDone
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelDone
	}
}

// SetOutput redirects the logger to a plain text handler on w, primarily for testing.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: renameCustomLevels,
	}))
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Done logs the successful completion of an operation.
func Done(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelDone, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
