// Basic logging infrastructure.  Messages are leveled here and written through zerolog's console
// writer, so that they come out on stderr looking the same whether they originate in the engine or
// in a job-record source.

package status

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel indicates the level of logging that should be done.

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
	LogLevelCritical
)

// Implementations of this must be thread-safe.
type Logger interface {
	// Print only messages at level l or above
	SetLevel(l LogLevel)

	// Lower log level at least to l
	LowerLevelTo(l LogLevel)

	// Print on this stream
	SetStderr(w io.Writer)

	// Print at various levels.  None of these must exit or panic, the name indicates the log level
	// only.
	Debug(xs ...any)
	Debugf(format string, args ...any)

	Info(xs ...any)
	Infof(format string, args ...any)

	Warning(xs ...any)
	Warningf(format string, args ...any)

	Error(xs ...any)
	Errorf(format string, args ...any)

	Critical(xs ...any)
	Criticalf(format string, args ...any)
}

type StandardLogger struct {
	sync.Mutex
	level LogLevel
	sink  zerolog.Logger
}

// MT: Constant after initialization, thread-safe.
var defaultLogger Logger = New(os.Stderr, LogLevelWarning)

func Default() Logger {
	return defaultLogger
}

func New(w io.Writer, l LogLevel) *StandardLogger {
	return &StandardLogger{
		level: l,
		sink:  newSink(w),
	}
}

func newSink(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	})
}

func (sl *StandardLogger) SetLevel(l LogLevel) {
	sl.Lock()
	defer sl.Unlock()

	sl.level = l
}

func (sl *StandardLogger) LowerLevelTo(l LogLevel) {
	sl.Lock()
	defer sl.Unlock()

	if sl.level > l {
		sl.level = l
	}
}

func (sl *StandardLogger) SetStderr(stderr io.Writer) {
	sl.Lock()
	defer sl.Unlock()

	sl.sink = newSink(stderr)
}

func (sl *StandardLogger) emit(l LogLevel, s string) {
	sl.Lock()
	defer sl.Unlock()

	if l < sl.level {
		return
	}
	var ev *zerolog.Event
	switch l {
	case LogLevelDebug:
		ev = sl.sink.Debug()
	case LogLevelInfo:
		ev = sl.sink.Info()
	case LogLevelWarning:
		ev = sl.sink.Warn()
	case LogLevelError:
		ev = sl.sink.Error()
	default:
		// zerolog's Fatal and Panic levels terminate, which Critical must not do.
		ev = sl.sink.WithLevel(zerolog.FatalLevel)
	}
	ev.Msg(s)
}

func (sl *StandardLogger) Critical(xs ...any) {
	sl.emit(LogLevelCritical, fmt.Sprint(xs...))
}

func (sl *StandardLogger) Criticalf(format string, args ...any) {
	sl.emit(LogLevelCritical, fmt.Sprintf(format, args...))
}

func (sl *StandardLogger) Error(xs ...any) {
	sl.emit(LogLevelError, fmt.Sprint(xs...))
}

func (sl *StandardLogger) Errorf(format string, args ...any) {
	sl.emit(LogLevelError, fmt.Sprintf(format, args...))
}

func (sl *StandardLogger) Warning(xs ...any) {
	sl.emit(LogLevelWarning, fmt.Sprint(xs...))
}

func (sl *StandardLogger) Warningf(format string, args ...any) {
	sl.emit(LogLevelWarning, fmt.Sprintf(format, args...))
}

func (sl *StandardLogger) Info(xs ...any) {
	sl.emit(LogLevelInfo, fmt.Sprint(xs...))
}

func (sl *StandardLogger) Infof(format string, args ...any) {
	sl.emit(LogLevelInfo, fmt.Sprintf(format, args...))
}

func (sl *StandardLogger) Debug(xs ...any) {
	sl.emit(LogLevelDebug, fmt.Sprint(xs...))
}

func (sl *StandardLogger) Debugf(format string, args ...any) {
	sl.emit(LogLevelDebug, fmt.Sprintf(format, args...))
}
