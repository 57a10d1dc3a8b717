package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrorLogTimeFormat is the timestamp layout written to error.log.
const ErrorLogTimeFormat = "2006-01-02 15:04:05"

// DefaultErrorLogPath returns error.log next to the running executable, or in
// the working directory if the executable path is unknown.
func DefaultErrorLogPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "error.log"
	}
	return filepath.Join(filepath.Dir(exe), "error.log")
}

// ErrorLog appends "[timestamp] message" lines to a file. It is
// fire-and-forget: write failures are swallowed.
type ErrorLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewErrorLog returns an ErrorLog writing to path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path, now: time.Now}
}

// Path returns the file being appended to.
func (e *ErrorLog) Path() string { return e.path }

// LogError appends one line. The file is opened per call so that it can be
// deleted or rotated externally while the agent runs.
func (e *ErrorLog) LogError(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	line := strings.ReplaceAll(message, "\n", " ")
	_, _ = fmt.Fprintf(f, "[%s] %s\n", e.now().Format(ErrorLogTimeFormat), line)
}

// ErrorLogHandler is a slog.Handler that writes records at or above its
// level to an ErrorLog. Attributes are flattened to key=value after the
// message.
type ErrorLogHandler struct {
	log    *ErrorLog
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewErrorLogHandler returns a handler accepting records at level or above.
func NewErrorLogHandler(log *ErrorLog, level slog.Leveler) *ErrorLogHandler {
	if level == nil {
		level = slog.LevelWarn
	}
	return &ErrorLogHandler{log: log, level: level}
}

func (h *ErrorLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ErrorLogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	h.log.LogError(b.String())
	return nil
}

func (h *ErrorLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	out.attrs = append(out.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return &out
}

func (h *ErrorLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.prefix = h.prefix + name + "."
	return &out
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", g)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value.Any())
}
