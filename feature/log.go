package feature

import (
	"fmt"

	"go.uber.org/zap"
)

// Level is a native SDK logging level.
type Level uint32

const (
	LevelVerbose Level = iota + 1
	LevelInfo
	LevelWarning
	LevelError
	LevelException
)

func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelException:
		return "exception"
	default:
		return fmt.Sprintf("level(%d)", uint32(l))
	}
}

// LogFunc is the logging sink handed to native feature instances and used
// to report boundary failures.
type LogFunc func(level Level, msg string)

// Log implements native.LogSink, so a LogFunc can be pinned and handed to
// native code.
func (f LogFunc) Log(level uint32, msg string) {
	if f != nil {
		f(Level(level), msg)
	}
}

// ZapSink returns a LogFunc writing to l.
func ZapSink(l *zap.Logger) LogFunc {
	if l == nil {
		l = zap.NewNop()
	}
	return func(level Level, msg string) {
		switch level {
		case LevelVerbose:
			l.Debug(msg)
		case LevelInfo:
			l.Info(msg)
		case LevelWarning:
			l.Warn(msg)
		default:
			l.Error(msg, zap.Stringer("level", level))
		}
	}
}
