package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger on top of a zerolog.Logger.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// NewZerologLogger builds a timestamped zerolog logger writing JSON to w at
// the given level.
func NewZerologLogger(w io.Writer, level LogLevel) *ZerologAdapter {
	zl := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
	return NewZerologAdapter(zl)
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) {
	z.logger.Debug().Fields(fieldsOf(args)).Msg(msg)
}

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) {
	z.logger.Info().Fields(fieldsOf(args)).Msg(msg)
}

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) {
	z.logger.Warn().Fields(fieldsOf(args)).Msg(msg)
}

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) {
	z.logger.Error().Fields(fieldsOf(args)).Msg(msg)
}

// fieldsOf normalises slog style args for zerolog. Errors are stringified so
// they render as messages instead of empty objects.
func fieldsOf(args []any) []any {
	if len(args)%2 == 1 {
		args = append(args[:len(args):len(args)], "!MISSING")
	}
	out := make([]any, len(args))
	for i, a := range args {
		if err, ok := a.(error); ok && i%2 == 1 {
			out[i] = err.Error()
			continue
		}
		out[i] = a
	}
	return out
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var _ Logger = (*ZerologAdapter)(nil)
