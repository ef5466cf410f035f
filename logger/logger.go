package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// LogLevel defines the severity of the log
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// LogFormat defines the output format of the log
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// ParseLevel converts a configuration string into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off", "none":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "", "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is the interface for logging SQL and internal messages
type Logger interface {
	SetLevel(level LogLevel)
	SetFormat(format LogFormat)
	SetOutput(w io.Writer)
	// SetLevelOutput copies every message at exactly the given level to w,
	// in addition to the main output.
	SetLevelOutput(level LogLevel, w io.Writer)
	WithFields(fields map[string]any) Logger
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	SQL(sql string, duration time.Duration, args ...any)
}

type baseLogger struct {
	mu           *sync.Mutex
	level        LogLevel
	format       LogFormat
	writer       io.Writer
	levelWriters map[LogLevel]io.Writer
	fields       map[string]any
}

func (l *baseLogger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *baseLogger) SetFormat(format LogFormat) {
	l.format = format
}

func (l *baseLogger) SetOutput(w io.Writer) {
	l.writer = w
}

func (l *baseLogger) SetLevelOutput(level LogLevel, w io.Writer) {
	if l.levelWriters == nil {
		l.levelWriters = make(map[LogLevel]io.Writer)
	}
	l.levelWriters[level] = w
}

func (l *baseLogger) clone() *baseLogger {
	newFields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	writers := make(map[LogLevel]io.Writer, len(l.levelWriters))
	for k, v := range l.levelWriters {
		writers[k] = v
	}
	return &baseLogger{
		mu:           l.mu,
		level:        l.level,
		format:       l.format,
		writer:       l.writer,
		levelWriters: writers,
		fields:       newFields,
	}
}

// stdLogger is the default implementation of Logger
type stdLogger struct {
	baseLogger
}

// NewStdLogger creates a new standard logger
func NewStdLogger() Logger {
	return &stdLogger{
		baseLogger: baseLogger{
			mu:     &sync.Mutex{},
			level:  LogLevelInfo,
			format: LogFormatText,
			writer: os.Stdout,
			fields: make(map[string]any),
		},
	}
}

// Discard returns a logger that writes nothing.
func Discard() Logger {
	l := NewStdLogger()
	l.SetLevel(LogLevelSilent)
	l.SetOutput(io.Discard)
	return l
}

func (l *stdLogger) WithFields(fields map[string]any) Logger {
	newLogger := &stdLogger{
		baseLogger: *l.clone(),
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

func (l *stdLogger) Debug(format string, args ...any) {
	if l.level >= LogLevelDebug {
		l.log(LogLevelDebug, "DEBUG", format, args...)
	}
}

func (l *stdLogger) Info(format string, args ...any) {
	if l.level >= LogLevelInfo {
		l.log(LogLevelInfo, "INFO", format, args...)
	}
}

func (l *stdLogger) Warn(format string, args ...any) {
	if l.level >= LogLevelWarn {
		l.log(LogLevelWarn, "WARN", format, args...)
	}
}

func (l *stdLogger) Error(format string, args ...any) {
	if l.level >= LogLevelError {
		l.log(LogLevelError, "ERROR", format, args...)
	}
}

// SQL logs a statement at debug level, so it stays quiet unless asked for.
func (l *stdLogger) SQL(sql string, duration time.Duration, args ...any) {
	if l.level < LogLevelDebug {
		return
	}
	if l.format == LogFormatJSON {
		l.write(LogLevelDebug, l.jsonLine("SQL", map[string]any{
			"sql":      sql,
			"duration": duration.String(),
			"args":     args,
		}))
		return
	}
	msg := fmt.Sprintf("%s[%v] %s | args: %v%s", getSQLColor(sql), duration, sql, args, ansiReset)
	l.write(LogLevelDebug, l.textLine("SQL", msg))
}

func (l *stdLogger) log(level LogLevel, name string, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if l.format == LogFormatJSON {
		l.write(level, l.jsonLine(name, map[string]any{"msg": msg}))
		return
	}
	l.write(level, l.textLine(name, msg))
}

func (l *stdLogger) jsonLine(level string, extra map[string]any) []byte {
	data := make(map[string]any, len(l.fields)+len(extra)+2)
	for k, v := range l.fields {
		data[k] = v
	}
	for k, v := range extra {
		data[k] = v
	}
	data["time"] = time.Now().Format(time.RFC3339)
	data["level"] = level
	b, err := json.Marshal(data)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"level":%q,"msg":"unencodable log entry"}`, level))
	}
	return append(b, '\n')
}

func (l *stdLogger) textLine(level string, msg string) []byte {
	fieldStr := ""
	if len(l.fields) > 0 {
		fieldStr = fmt.Sprintf(" fields: %v", l.fields)
	}
	return []byte(fmt.Sprintf("[JDB] %s %s: %s%s\n", time.Now().Format("2006-01-02 15:04:05"), level, msg, fieldStr))
}

func (l *stdLogger) write(level LogLevel, line []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		_, _ = l.writer.Write(line)
	}
	if w, ok := l.levelWriters[level]; ok && w != nil {
		_, _ = w.Write(line)
	}
}

func getSQLColor(sqlStr string) string {
	s := strings.TrimSpace(strings.ToUpper(sqlStr))
	switch {
	case strings.HasPrefix(s, "SELECT"):
		return ansiYellow
	case strings.HasPrefix(s, "INSERT"), strings.HasPrefix(s, "UPDATE"):
		return ansiGreen
	case strings.HasPrefix(s, "DELETE"), strings.HasPrefix(s, "DROP"):
		return ansiRed
	default:
		return ansiCyan
	}
}
