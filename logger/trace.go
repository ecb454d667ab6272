package logger

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// getGoroutineID extracts the calling goroutine's id from its stack trace
// header ("goroutine 123 [running]:"). Used only to correlate spans within
// one TraceContext across goroutine handoffs (e.g. a request handled on
// one goroutine but finished by a worker); ordinary log lines are
// annotated with a Frame instead; see logger.go.
func getGoroutineID() int {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	fields := bytes.Fields(buf)
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0
	}
	return id
}

// TraceContext is a traced operation, typically one session request or one
// event dispatch pass. Spans mark sub-steps (e.g. "resolve_handle",
// "engine_write", "event_match") within it.
type TraceContext struct {
	TraceID     string
	Operation   string
	StartTime   time.Time
	GoroutineID int

	mu       sync.Mutex
	spans    []TraceSpan
	isActive bool
}

// TraceSpan is a named sub-step of a TraceContext.
type TraceSpan struct {
	Name        string
	StartTime   time.Time
	EndTime     time.Time
	GoroutineID int
}

var (
	activeTraces   = make(map[string]*TraceContext)
	activeTracesMu sync.RWMutex

	traceCounter   uint64
	tracingEnabled atomic.Bool
)

// EnableTracing turns connection/session span tracing on or off.
func EnableTracing(enabled bool) {
	tracingEnabled.Store(enabled)
	if enabled {
		Info("session tracing enabled")
	} else {
		Info("session tracing disabled")
	}
}

// IsTracingEnabled reports whether span tracing is currently active.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartTrace begins a new trace context for one server operation. Returns
// nil when tracing is disabled; all methods on a nil *TraceContext are
// no-ops, so callers need not guard every call site.
func StartTrace(operation string) *TraceContext {
	if !IsTracingEnabled() {
		return nil
	}

	traceID := fmt.Sprintf("trace_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&traceCounter, 1))

	ctx := &TraceContext{
		TraceID:     traceID,
		Operation:   operation,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
		spans:       make([]TraceSpan, 0),
		isActive:    true,
	}

	activeTracesMu.Lock()
	activeTraces[traceID] = ctx
	activeTracesMu.Unlock()

	Trace("[TRACE_START] ID=%s Op=%s Goroutine=%d", traceID, operation, ctx.GoroutineID)
	return ctx
}

// StartSpan begins a named sub-step within the trace.
func (tc *TraceContext) StartSpan(name string) {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.spans = append(tc.spans, TraceSpan{
		Name:        name,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
	})

	Trace("[SPAN_START] Trace=%s Span=%s Elapsed=%v", tc.TraceID, name, time.Since(tc.StartTime))
}

// EndSpan completes the most recently opened span with the given name.
func (tc *TraceContext) EndSpan(name string) {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := len(tc.spans) - 1; i >= 0; i-- {
		if tc.spans[i].Name == name && tc.spans[i].EndTime.IsZero() {
			tc.spans[i].EndTime = time.Now()
			Trace("[SPAN_END] Trace=%s Span=%s Duration=%v",
				tc.TraceID, name, tc.spans[i].EndTime.Sub(tc.spans[i].StartTime))
			return
		}
	}
}

// EndTrace closes the trace and logs a warning for any span that was
// started but never ended (a likely hang point - e.g. a lock taken but
// not released along some error path).
func (tc *TraceContext) EndTrace() {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	tc.isActive = false
	duration := time.Since(tc.StartTime)
	spans := tc.spans
	tc.mu.Unlock()

	activeTracesMu.Lock()
	delete(activeTraces, tc.TraceID)
	activeTracesMu.Unlock()

	Trace("[TRACE_END] ID=%s Op=%s Duration=%v Spans=%d", tc.TraceID, tc.Operation, duration, len(spans))

	for _, span := range spans {
		if span.EndTime.IsZero() {
			Warn("[UNCLOSED_SPAN] Trace=%s Span=%s Started=%v", tc.TraceID, span.Name, span.StartTime)
		}
	}
}

// LogLockOperation records a tag/structural lock acquire or release for
// contention diagnosis. traceID may be empty when called outside a trace.
func LogLockOperation(traceID, lockType, lockName, operation string) {
	if !IsTracingEnabled() {
		return
	}
	Trace("[LOCK_%s] Type=%s Name=%s Goroutine=%d TraceID=%s",
		strings.ToUpper(operation), lockType, lockName, getGoroutineID(), traceID)
}

// LogSessionAccept records an accepted wire-protocol connection.
func LogSessionAccept(localAddr, remoteAddr string) {
	if !IsTracingEnabled() {
		return
	}
	Trace("[SESSION_ACCEPT] Local=%s Remote=%s Goroutine=%d", localAddr, remoteAddr, getGoroutineID())
}

// GetActiveTraces returns a human-readable summary of in-flight traces.
func GetActiveTraces() []string {
	activeTracesMu.RLock()
	defer activeTracesMu.RUnlock()

	traces := make([]string, 0, len(activeTraces))
	for traceID, ctx := range activeTraces {
		traces = append(traces, fmt.Sprintf("%s: %s (duration: %v)", traceID, ctx.Operation, time.Since(ctx.StartTime)))
	}
	return traces
}
