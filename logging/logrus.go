package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusAdapter implements Logger on top of a logrus entry. Key/value args
// become logrus fields.
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter wraps a *logrus.Logger. A nil logger uses logrus.StandardLogger().
func NewLogrusAdapter(l *logrus.Logger) *LogrusAdapter {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusAdapter{entry: logrus.NewEntry(l)}
}

// LogrusLevel maps a LogLevel onto the logrus level.
func LogrusLevel(l LogLevel) logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Debug logs a debug message.
func (a *LogrusAdapter) Debug(msg string, args ...any) { a.with(args).Debug(msg) }

// Info logs an informational message.
func (a *LogrusAdapter) Info(msg string, args ...any) { a.with(args).Info(msg) }

// Warn logs a warning message.
func (a *LogrusAdapter) Warn(msg string, args ...any) { a.with(args).Warn(msg) }

// Error logs an error message.
func (a *LogrusAdapter) Error(msg string, args ...any) { a.with(args).Error(msg) }

func (a *LogrusAdapter) with(args []any) *logrus.Entry {
	if len(args) == 0 {
		return a.entry
	}

	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}

	return a.entry.WithFields(fields)
}
