// Package logger provides structured logging for the OpenDAX tag server.
//
// The logger supports multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
// and is safe for concurrent use: the current level lives in an atomic
// int32, so a call at a disabled level costs one load and nothing else -
// no format, no caller lookup.
//
// Log output format:
//
//	YYYY/MM/DD HH:MM:SS.ssssss [LEVEL] function.file:line: message
//
// DebugFrame and WarnFrame additionally carry the wire-protocol
// identifiers a request concerns - request id, opcode, and (when known)
// tag index - since the file/line/function triple alone rarely tells an
// operator which client request or which tag a line is about.
package logger

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel is the severity of a log message. Higher values are more severe;
// setting the current level filters out anything below it.
type LogLevel int32

// Log level constants.
//
// TRACE is for lock acquisition/release, bit-copy paths, and event match
// loops - subsystem-scoped and expected to be filtered out in production.
// DEBUG covers handle resolution, cache hits/misses, and frame decode steps.
// INFO covers session connect/disconnect, tag add/delete, and server
// startup/shutdown. WARN covers recoverable protocol errors returned to a
// client. ERROR covers conditions that end a session.
const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var (
	currentLevel atomic.Int32

	levelNames = map[LogLevel]string{
		TRACE: "TRACE",
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}

	// traceSubsystems tracks which subsystems emit TRACE output.
	//
	// Subsystems in use:
	//   - "locks"  - tag/structural lock acquisition and release
	//   - "io"     - byte and bit copy paths in the I/O engine
	//   - "events" - event matching and dispatch
	traceSubsystems = make(map[string]bool)
	traceMutex      sync.RWMutex

	out *log.Logger
)

func init() {
	out = log.New(os.Stdout, "", 0)
	currentLevel.Store(int32(INFO))
}

// SetLogLevel sets the minimum log level from its name (case-insensitive).
func SetLogLevel(level string) error {
	switch strings.ToUpper(level) {
	case "TRACE":
		currentLevel.Store(int32(TRACE))
	case "DEBUG":
		currentLevel.Store(int32(DEBUG))
	case "INFO":
		currentLevel.Store(int32(INFO))
	case "WARN":
		currentLevel.Store(int32(WARN))
	case "ERROR":
		currentLevel.Store(int32(ERROR))
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// GetLogLevel returns the current log level's name.
func GetLogLevel() string {
	level := LogLevel(currentLevel.Load())
	return strings.TrimSpace(levelNames[level])
}

// EnableTrace turns on TRACE output for the named subsystems.
func EnableTrace(subsystems ...string) {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	for _, s := range subsystems {
		traceSubsystems[s] = true
	}
}

func isTraceEnabled(subsystem string) bool {
	traceMutex.RLock()
	defer traceMutex.RUnlock()
	return traceSubsystems[subsystem]
}

// Frame annotates a log line with the wire-protocol request it concerns:
// the request id assigned by the session and the opcode being served.
// Built explicitly by a caller that has both on hand (internal/server's
// dispatch loop), never threaded implicitly through a context.Context, in
// keeping with this codebase's explicit-values-over-singletons design
// (DESIGN.md).
type Frame struct {
	RequestID uint32
	Opcode    string
	TagIndex  uint32
	hasTag    bool
}

// NewFrame builds a Frame for a request id and opcode name.
func NewFrame(requestID uint32, opcode string) Frame {
	return Frame{RequestID: requestID, Opcode: opcode}
}

// WithTag returns a copy of f annotated with the tag index the request
// targets, once the dispatch handler has resolved one.
func (f Frame) WithTag(tagIndex uint32) Frame {
	f.TagIndex = tagIndex
	f.hasTag = true
	return f
}

func (f Frame) annotation() string {
	if f.hasTag {
		return fmt.Sprintf("req=%d op=%s tag=%d", f.RequestID, f.Opcode, f.TagIndex)
	}
	return fmt.Sprintf("req=%d op=%s", f.RequestID, f.Opcode)
}

func formatMessage(level LogLevel, skip int, fr *Frame, format string, args ...interface{}) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "unknown"
		line = 0
	}

	if idx := strings.LastIndex(file, "/"); idx != -1 {
		file = file[idx+1:]
	}
	if idx := strings.LastIndex(file, ".go"); idx != -1 {
		file = file[:idx]
	}

	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		fullName := fn.Name()
		if idx := strings.LastIndex(fullName, "."); idx != -1 {
			funcName = fullName[idx+1:]
		}
	}

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006/01/02 15:04:05.000000")

	if fr != nil {
		return fmt.Sprintf("%s [%s] [%s] %s.%s:%d: %s",
			timestamp, levelNames[level], fr.annotation(), funcName, file, line, msg)
	}
	return fmt.Sprintf("%s [%s] %s.%s:%d: %s",
		timestamp, levelNames[level], funcName, file, line, msg)
}

func logMessage(level LogLevel, skip int, fr *Frame, format string, args ...interface{}) {
	if level < LogLevel(currentLevel.Load()) {
		return
	}
	out.Println(formatMessage(level, skip, fr, format, args...))
}

// TraceIf logs a TRACE message only when the named subsystem is enabled.
func TraceIf(subsystem string, format string, args ...interface{}) {
	if LogLevel(currentLevel.Load()) > TRACE || !isTraceEnabled(subsystem) {
		return
	}
	logMessage(TRACE, 3, nil, "[%s] %s", subsystem, fmt.Sprintf(format, args...))
}

// Trace logs a TRACE-level message.
func Trace(format string, args ...interface{}) { logMessage(TRACE, 3, nil, format, args...) }

// Debug logs a DEBUG-level message.
func Debug(format string, args ...interface{}) { logMessage(DEBUG, 3, nil, format, args...) }

// Info logs an INFO-level message.
func Info(format string, args ...interface{}) { logMessage(INFO, 3, nil, format, args...) }

// Warn logs a WARN-level message.
func Warn(format string, args ...interface{}) { logMessage(WARN, 3, nil, format, args...) }

// Error logs an ERROR-level message.
func Error(format string, args ...interface{}) { logMessage(ERROR, 3, nil, format, args...) }

// Fatal logs an ERROR-level message then exits the process.
func Fatal(format string, args ...interface{}) {
	out.Println(formatMessage(ERROR, 2, nil, format, args...))
	os.Exit(1)
}

// DebugFrame logs a DEBUG-level message annotated with fr: request id,
// opcode, and (if set) tag index.
func DebugFrame(fr Frame, format string, args ...interface{}) {
	logMessage(DEBUG, 3, &fr, format, args...)
}

// WarnFrame logs a WARN-level message annotated with fr.
func WarnFrame(fr Frame, format string, args ...interface{}) {
	logMessage(WARN, 3, &fr, format, args...)
}

// Configure applies OPENDAX_LOG_LEVEL and OPENDAX_TRACE_SUBSYSTEMS from
// the environment. Called once at server startup.
func Configure() {
	if level := os.Getenv("OPENDAX_LOG_LEVEL"); level != "" {
		SetLogLevel(level)
	}
	if trace := os.Getenv("OPENDAX_TRACE_SUBSYSTEMS"); trace != "" {
		subsystems := strings.Split(trace, ",")
		for i, s := range subsystems {
			subsystems[i] = strings.TrimSpace(s)
		}
		EnableTrace(subsystems...)
	}
}
