package logger

import (
	"log"
	"strings"
)

// logWriter implements io.Writer to redirect standard library log output to our logger.
type logWriter struct{}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}

	if strings.Contains(message, "error") || strings.Contains(message, "Error") {
		Error("admin http: %s", message)
	} else {
		Info("admin http: %s", message)
	}

	return len(p), nil
}

// InitLogBridge redirects standard library log output to our logger.
func InitLogBridge() {
	log.SetOutput(&logWriter{})
	log.SetFlags(0)
	Debug("standard library log output redirected to opendax logger")
}

// AdminHTTPErrorLog returns a *log.Logger suitable for http.Server.ErrorLog,
// used only by the read-only admin HTTP surface.
func AdminHTTPErrorLog() *log.Logger {
	return log.New(&logWriter{}, "", 0)
}
