// Package trace builds the leveled diagnostic logger used by the relay.
//
// Lines carry one of five level names (Error, Warning, Info, Debug1, Debug2)
// and, when the caller supplies one with Code, an opaque eight hex digit
// event code. Filtering happens here, never in the caller.
package trace

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Level is the numeric verbosity accepted on the command line.
type Level int

const (
	ErrorLevel Level = iota
	WarningLevel
	InfoLevel
	Debug1Level
	Debug2Level
)

// MaxLevel is the most verbose level.
const MaxLevel = Debug2Level

// slog levels for the two debug tiers.
const (
	LevelDebug1 = slog.LevelDebug
	LevelDebug2 = slog.LevelDebug - 4
)

// CodeKey is the attribute key holding the event code.
const CodeKey = "code"

var levelNames = [...]string{"Error", "Warning", "Info", "Debug1", "Debug2"}

func (l Level) String() string {
	if l < ErrorLevel || l > MaxLevel {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the five known levels.
func (l Level) Valid() bool {
	return l >= ErrorLevel && l <= MaxLevel
}

// SlogLevel maps l to the minimum slog level it lets through.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case ErrorLevel:
		return slog.LevelError
	case WarningLevel:
		return slog.LevelWarn
	case InfoLevel:
		return slog.LevelInfo
	case Debug1Level:
		return LevelDebug1
	default:
		return LevelDebug2
	}
}

// Levels lists every level from least to most verbose.
func Levels() []Level {
	return []Level{ErrorLevel, WarningLevel, InfoLevel, Debug1Level, Debug2Level}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return levelNames[ErrorLevel]
	case l >= slog.LevelWarn:
		return levelNames[WarningLevel]
	case l >= slog.LevelInfo:
		return levelNames[InfoLevel]
	case l >= LevelDebug1:
		return levelNames[Debug1Level]
	default:
		return levelNames[Debug2Level]
	}
}

// EventCode is an opaque identifier of the place that emitted a line.
type EventCode uint32

// LogValue renders the code as eight hex digits.
func (c EventCode) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("%08x", uint32(c)))
}

// Code returns the attribute tagging a line with an event code.
func Code(c uint32) slog.Attr {
	return slog.Any(CodeKey, EventCode(c))
}

// New returns a logger writing to w that drops everything less severe than lvl.
func New(w io.Writer, lvl Level) *slog.Logger {
	if !lvl.Valid() {
		lvl = ErrorLevel
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       lvl.SlogLevel(),
		ReplaceAttr: replaceAttr,
	}))
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(levelName(l))
	}
	return a
}

// Debug1 logs at the first debug tier.
func Debug1(log *slog.Logger, msg string, args ...any) {
	log.Log(context.Background(), LevelDebug1, msg, args...)
}

// Debug2 logs at the second, most verbose debug tier.
func Debug2(log *slog.Logger, msg string, args ...any) {
	log.Log(context.Background(), LevelDebug2, msg, args...)
}

// Dump logs a hex dump of data at Debug2. The dump is only built when Debug2
// is enabled.
func Dump(log *slog.Logger, code uint32, label string, data []byte) {
	if !log.Enabled(context.Background(), LevelDebug2) {
		return
	}
	log.Log(context.Background(), LevelDebug2, label,
		Code(code),
		"len", len(data),
		"dump", strings.TrimRight(hex.Dump(data), "\n"),
	)
}
