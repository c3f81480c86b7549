package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts string to Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Fields represents additional structured fields for logging
type Fields map[string]interface{}

// Logger writes structured entries as JSON or text lines
type Logger struct {
	level         Level
	output        io.Writer
	closer        io.Closer
	formatJSON    bool
	enableTracing bool
	mu            sync.Mutex
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	TaskID    string                 `json:"task_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Event     string                 `json:"event,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     *ErrorInfo             `json:"error,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// ErrorInfo contains detailed error information
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// New creates a Logger writing to "stdout", "stderr" or a file path
func New(level string, format string, output string, enableTracing bool) (*Logger, error) {
	switch output {
	case "", "stdout":
		return NewWithWriter(level, format, os.Stdout, enableTracing), nil
	case "stderr":
		return NewWithWriter(level, format, os.Stderr, enableTracing), nil
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := NewWithWriter(level, format, file, enableTracing)
	l.closer = file
	return l, nil
}

// NewWithWriter creates a Logger writing to w
func NewWithWriter(level string, format string, w io.Writer, enableTracing bool) *Logger {
	return &Logger{
		level:         ParseLevel(level),
		output:        w,
		formatJSON:    format == "json",
		enableTracing: enableTracing,
	}
}

// Nop returns a Logger that discards everything
func Nop() *Logger {
	return NewWithWriter("fatal", "text", io.Discard, false)
}

// Close closes the log file, if the logger opened one
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithContext creates a ContextLogger bound to ctx
func (l *Logger) WithContext(ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: l,
		ctx:    ctx,
	}
}

// emit formats and writes entry if its level is enabled. skip is the number
// of frames between the public logging call and emit.
func (l *Logger) emit(entry *LogEntry, level Level, skip int) {
	if level < l.level {
		return
	}

	entry.Timestamp = time.Now().Format(time.RFC3339Nano)
	entry.Level = level.String()

	if l.enableTracing {
		if _, file, line, ok := runtime.Caller(skip + 1); ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var line string
	if l.formatJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(LogEntry{
				Timestamp: entry.Timestamp,
				Level:     entry.Level,
				Message:   entry.Message,
				Error:     &ErrorInfo{Code: "LOG_ENCODE_ERROR", Message: err.Error()},
			})
		}
		line = string(data)
	} else {
		line = formatText(entry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, line)
}

func formatText(entry *LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", entry.Timestamp, entry.Level)
	if entry.Event != "" {
		fmt.Fprintf(&b, " [%s]", entry.Event)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)
	if entry.TaskID != "" {
		fmt.Fprintf(&b, " taskID=%s", entry.TaskID)
	}
	if entry.Error != nil {
		fmt.Fprintf(&b, " error=%q", entry.Error.Message)
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	l.emit(&LogEntry{Message: msg, Fields: fields}, level, 2)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(DebugLevel, msg, mergeFields(fields...))
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(InfoLevel, msg, mergeFields(fields...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(WarnLevel, msg, mergeFields(fields...))
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(ErrorLevel, msg, mergeFields(fields...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.log(FatalLevel, msg, mergeFields(fields...))
	os.Exit(1)
}

// ContextLogger carries task and request identifiers into every entry.
// The With methods return copies and leave the receiver untouched.
type ContextLogger struct {
	logger    *Logger
	ctx       context.Context
	taskID    string
	requestID string
	traceID   string
	component string
}

// WithTaskID adds task ID to the context logger
func (cl *ContextLogger) WithTaskID(taskID string) *ContextLogger {
	c := *cl
	c.taskID = taskID
	return &c
}

// WithRequestID adds the caller's request ID to the context logger
func (cl *ContextLogger) WithRequestID(requestID string) *ContextLogger {
	c := *cl
	c.requestID = requestID
	return &c
}

// WithTraceID adds trace ID to the context logger
func (cl *ContextLogger) WithTraceID(traceID string) *ContextLogger {
	c := *cl
	c.traceID = traceID
	return &c
}

// WithComponent adds component name to the context logger
func (cl *ContextLogger) WithComponent(component string) *ContextLogger {
	c := *cl
	c.component = component
	return &c
}

func (cl *ContextLogger) log(level Level, event string, msg string, fields Fields, duration int64, err *ErrorInfo) {
	cl.logger.emit(&LogEntry{
		TaskID:    cl.taskID,
		RequestID: cl.requestID,
		TraceID:   cl.traceID,
		Component: cl.component,
		Event:     event,
		Message:   msg,
		Fields:    fields,
		Duration:  duration,
		Error:     err,
	}, level, 2)
}

// LogTaskCreated logs task creation
func (cl *ContextLogger) LogTaskCreated(msg string, fields Fields) {
	cl.log(InfoLevel, "TaskCreated", msg, fields, 0, nil)
}

// LogTaskCompleted logs task completion
func (cl *ContextLogger) LogTaskCompleted(msg string, duration int64, fields Fields) {
	cl.log(InfoLevel, "TaskCompleted", msg, fields, duration, nil)
}

// LogTaskFailed logs task failure
func (cl *ContextLogger) LogTaskFailed(msg string, errorCode string, errorMsg string, fields Fields) {
	cl.log(ErrorLevel, "TaskFailed", msg, fields, 0, &ErrorInfo{
		Code:    errorCode,
		Message: errorMsg,
	})
}

// LogBatchWritten logs a batch of lines reaching the sink
func (cl *ContextLogger) LogBatchWritten(msg string, duration int64, fields Fields) {
	cl.log(DebugLevel, "BatchWritten", msg, fields, duration, nil)
}

// LogFileCreated logs file creation
func (cl *ContextLogger) LogFileCreated(msg string, fields Fields) {
	cl.log(InfoLevel, "FileCreated", msg, fields, 0, nil)
}

// LogFileFinalized logs file finalization
func (cl *ContextLogger) LogFileFinalized(msg string, duration int64, fields Fields) {
	cl.log(InfoLevel, "FileFinalized", msg, fields, duration, nil)
}

// LogUploadStarted logs upload start
func (cl *ContextLogger) LogUploadStarted(msg string, fields Fields) {
	cl.log(InfoLevel, "UploadStarted", msg, fields, 0, nil)
}

// LogUploadCompleted logs upload completion
func (cl *ContextLogger) LogUploadCompleted(msg string, duration int64, fields Fields) {
	cl.log(InfoLevel, "UploadCompleted", msg, fields, duration, nil)
}

// LogUploadFailed logs upload failure
func (cl *ContextLogger) LogUploadFailed(msg string, errorCode string, errorMsg string, fields Fields) {
	cl.log(ErrorLevel, "UploadFailed", msg, fields, 0, &ErrorInfo{
		Code:    errorCode,
		Message: errorMsg,
	})
}

// LogError logs a generic error
func (cl *ContextLogger) LogError(event string, msg string, errorCode string, errorMsg string, fields Fields) {
	cl.log(ErrorLevel, event, msg, fields, 0, &ErrorInfo{
		Code:    errorCode,
		Message: errorMsg,
	})
}

// LogInfo logs a generic info message
func (cl *ContextLogger) LogInfo(event string, msg string, fields Fields) {
	cl.log(InfoLevel, event, msg, fields, 0, nil)
}

// LogDebug logs a generic debug message
func (cl *ContextLogger) LogDebug(event string, msg string, fields Fields) {
	cl.log(DebugLevel, event, msg, fields, 0, nil)
}

// LogWarn logs a generic warning message
func (cl *ContextLogger) LogWarn(event string, msg string, fields Fields) {
	cl.log(WarnLevel, event, msg, fields, 0, nil)
}

// mergeFields merges multiple Fields into one
func mergeFields(fields ...Fields) Fields {
	if len(fields) == 0 {
		return nil
	}
	result := Fields{}
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}
