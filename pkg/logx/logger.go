package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger with key/value call sites.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a JSON logger at the given level tagged with component
func NewLogger(level, component string) *Logger {
	return newLogger(os.Stderr, level, component)
}

func newLogger(out io.Writer, level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	base.SetLevel(parseLevel(level))

	entry := logrus.NewEntry(base)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &Logger{entry: entry}
}

// parseLevel maps config strings to logrus levels, defaulting to info
func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel changes the level of the underlying logger
func (l *Logger) SetLevel(level string) {
	if l == nil {
		return
	}
	l.entry.Logger.SetLevel(parseLevel(level))
}

// Level returns the current level name
func (l *Logger) Level() string {
	if l == nil {
		return "info"
	}
	return l.entry.Logger.GetLevel().String()
}

// With returns a child logger carrying the given fields on every line
func (l *Logger) With(keyvals ...interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithFields(toFields(keyvals))}
}

// Trace logs at trace level
func (l *Logger) Trace(msg string, keyvals ...interface{}) {
	l.log(logrus.TraceLevel, msg, keyvals)
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(logrus.DebugLevel, msg, keyvals)
}

// Info logs at info level
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(logrus.InfoLevel, msg, keyvals)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(logrus.WarnLevel, msg, keyvals)
}

// Error logs at error level
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(logrus.ErrorLevel, msg, keyvals)
}

// LogStateChange records a state machine transition
func (l *Logger) LogStateChange(component, from, to, reason string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	f := logrus.Fields{
		"state_component": component,
		"from":            from,
		"to":              to,
		"reason":          reason,
	}
	for k, v := range fields {
		f[k] = v
	}
	l.entry.WithFields(f).Info("State change")
}

// LogVerbose logs a named event with a field map at debug level
func (l *Logger) LogVerbose(event string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	l.entry.WithFields(logrus.Fields(fields)).WithField("event", event).Debug("Verbose event")
}

// LogDebugVerbose logs a named event with a field map at trace level
func (l *Logger) LogDebugVerbose(event string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	l.entry.WithFields(logrus.Fields(fields)).WithField("event", event).Trace("Debug event")
}

func (l *Logger) log(level logrus.Level, msg string, keyvals []interface{}) {
	if l == nil || !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	l.entry.WithFields(toFields(keyvals)).Log(level, msg)
}

// toFields accepts either alternating key/value pairs or a single field map
func toFields(keyvals []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	if len(keyvals) == 1 {
		if m, ok := keyvals[0].(map[string]interface{}); ok {
			for k, v := range m {
				fields[k] = v
			}
			return fields
		}
	}

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields[key] = "(MISSING)"
			break
		}
		v := keyvals[i+1]
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		fields[key] = v
	}
	return fields
}
