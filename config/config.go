// Package config provides centralized configuration for the OpenDAX tag
// server.
//
// Configuration follows a two-tier hierarchy:
//  1. Command-line flags, parsed at the cmd/ edge
//  2. Environment variables (lowest priority, documented defaults below)
//
// There is no database-backed configuration tier: the core is purely
// in-memory and carries no persistence (see spec Non-goals).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the OpenDAX server.
type Config struct {
	// Server Configuration
	// ===================

	// ListenAddr is the TCP address the tag-protocol listener binds.
	// Environment: OPENDAX_LISTEN_ADDR
	// Default: ":7020"
	ListenAddr string

	// AdminListenAddr is the address the read-only admin HTTP surface binds.
	// Environment: OPENDAX_ADMIN_LISTEN_ADDR
	// Default: ":7021"
	AdminListenAddr string

	// MaxSessions bounds concurrent tag-protocol connections via
	// golang.org/x/net/netutil.LimitListener.
	// Environment: OPENDAX_MAX_SESSIONS
	// Default: 1024
	MaxSessions int

	// Tag Store Configuration
	// =======================

	// TagStoreInitialCapacity is the initial size of the tag vector before
	// the first doubling growth.
	// Environment: OPENDAX_TAG_STORE_INITIAL_CAPACITY
	// Default: 256
	TagStoreInitialCapacity int

	// MaxTagNameLength bounds tag name length in bytes.
	// Environment: OPENDAX_MAX_TAG_NAME_LENGTH
	// Default: 32 (per spec: tag names are at most 32 bytes)
	MaxTagNameLength int

	// Event Subsystem Configuration
	// =============================

	// EventQueueDepth bounds the number of pending notifications queued per
	// session; once the queue is full, a further notification is rejected
	// and the event dispatcher logs a warning.
	// Environment: OPENDAX_EVENT_QUEUE_DEPTH
	// Default: 256
	EventQueueDepth int

	// Client Library Configuration
	// ============================

	// ClientCacheSize is the default capacity of a client library's tag
	// cache (spec §4.5) when not overridden by the consuming module.
	// Environment: OPENDAX_CLIENT_CACHE_SIZE
	// Default: 128
	ClientCacheSize int

	// Timeouts
	// ========

	// ReadTimeout bounds how long a session read of one frame may block.
	// Environment: OPENDAX_READ_TIMEOUT (seconds)
	// Default: 30s
	ReadTimeout time.Duration

	// WriteTimeout bounds how long a session write of one frame may block.
	// Environment: OPENDAX_WRITE_TIMEOUT (seconds)
	// Default: 30s
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown: time given to in-flight
	// sessions to finish before the listener is forced closed.
	// Environment: OPENDAX_SHUTDOWN_TIMEOUT (seconds)
	// Default: 10s
	ShutdownTimeout time.Duration

	// Logging Configuration
	// =====================

	// LogLevel sets the minimum log level.
	// Environment: OPENDAX_LOG_LEVEL
	// Default: "info"
	// Valid values: "trace", "debug", "info", "warn", "error"
	LogLevel string

	// TraceSpans turns on per-request trace/span logging (session
	// accept, lock acquisition, I/O-engine timing). Expensive relative
	// to a plain TRACE log line; meant for diagnosing a specific hang or
	// contention report, not left on in normal production operation.
	// Environment: OPENDAX_TRACE_SPANS
	// Default: false
	TraceSpans bool

	// Application Metadata
	// ====================

	// AppName identifies the process in logs and the admin HTTP surface.
	// Environment: OPENDAX_APP_NAME
	// Default: "opendax-server"
	AppName string
}

// Load populates a Config from the environment with documented defaults.
// Values here form the lowest-priority tier; a flag.FlagSet at the cmd/
// edge may override any of them before the server starts.
func Load() *Config {
	return &Config{
		ListenAddr:      getEnv("OPENDAX_LISTEN_ADDR", ":7020"),
		AdminListenAddr: getEnv("OPENDAX_ADMIN_LISTEN_ADDR", ":7021"),
		MaxSessions:     getEnvInt("OPENDAX_MAX_SESSIONS", 1024),

		TagStoreInitialCapacity: getEnvInt("OPENDAX_TAG_STORE_INITIAL_CAPACITY", 256),
		MaxTagNameLength:        getEnvInt("OPENDAX_MAX_TAG_NAME_LENGTH", 32),

		EventQueueDepth: getEnvInt("OPENDAX_EVENT_QUEUE_DEPTH", 256),
		ClientCacheSize: getEnvInt("OPENDAX_CLIENT_CACHE_SIZE", 128),

		ReadTimeout:     getEnvDuration("OPENDAX_READ_TIMEOUT", 30),
		WriteTimeout:    getEnvDuration("OPENDAX_WRITE_TIMEOUT", 30),
		ShutdownTimeout: getEnvDuration("OPENDAX_SHUTDOWN_TIMEOUT", 10),

		LogLevel:   getEnv("OPENDAX_LOG_LEVEL", "info"),
		TraceSpans: getEnvBool("OPENDAX_TRACE_SPANS", false),
		AppName:    getEnv("OPENDAX_APP_NAME", "opendax-server"),
	}
}

// =============================================================================
// Environment Variable Parsing Utilities
// =============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}
