// Package logging provides the process-wide console sink shared by every
// watch instance. Lines are rendered by charmbracelet/log; the threshold is
// read from an atomically swappable slog.LevelVar so a configuration section
// can change it at run time.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	gosync "sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Custom levels outside the slog set. LevelOff silences everything; LevelAll
// lets every record through, including trace.
const (
	LevelTrace = slog.LevelDebug - 4
	LevelAll   = slog.Level(-100)
	LevelOff   = slog.Level(100)
)

// ParseLevel maps a configuration code to a level. Codes are matched
// case-insensitively.
func ParseLevel(code string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off", "none":
		return LevelOff, nil
	case "all":
		return LevelAll, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (want trace, debug, info, warn, error, off or all)", code)
	}
}

// LevelName returns the configuration code for l.
func LevelName(l slog.Level) string {
	switch {
	case l <= LevelAll:
		return "all"
	case l >= LevelOff:
		return "off"
	case l < slog.LevelDebug:
		return "trace"
	case l < slog.LevelInfo:
		return "debug"
	case l < slog.LevelWarn:
		return "info"
	case l < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// Handler gates a charmbracelet/log logger behind a shared level variable.
// The inner logger itself accepts everything; derived handlers keep the same
// level variable and the same locked writer, so output from concurrent
// instances never interleaves.
type Handler struct {
	inner slog.Handler
	level *slog.LevelVar
}

// NewHandler creates a Handler writing to w. Colors are enabled only when w
// is a terminal.
func NewHandler(w io.Writer, level *slog.LevelVar) *Handler {
	if level == nil {
		level = new(slog.LevelVar)
	}

	cl := log.NewWithOptions(&lockedWriter{w: w}, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           log.Level(LevelAll),
	})
	cl.SetStyles(styles())

	if isTerminal(w) {
		cl.SetColorProfile(termenv.ANSI)
	} else {
		cl.SetColorProfile(termenv.Ascii)
	}

	return &Handler{inner: cl, level: level}
}

// New builds a logger over a fresh Handler on w and returns the level
// variable that controls it.
func New(w io.Writer, initial slog.Level) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(initial)

	return slog.New(NewHandler(w, lv)), lv
}

// styles extends the default palette with a tag for the trace level, which
// would otherwise print without one.
func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Levels[log.Level(LevelTrace)] = lipgloss.NewStyle().
		SetString("TRAC").
		Bold(true).
		MaxWidth(4).
		Foreground(lipgloss.Color("13"))

	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Enabled reports whether records at l pass the current threshold.
func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle renders the record through the inner logger.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a handler that prints attrs on every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs), level: h.level}
}

// WithGroup returns a handler whose lines carry name as their prefix.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	return &Handler{inner: h.inner.WithGroup(name), level: h.level}
}

// lockedWriter serializes writes from every logger derived from one Handler;
// loggers returned by With each carry their own lock.
type lockedWriter struct {
	mu gosync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	return lw.w.Write(p)
}
