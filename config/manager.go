package config

import (
	"flag"
)

// ConfigManager layers command-line flags over the environment-derived
// Config. Flags use long names (--opendax-*) to avoid conflicting with
// flags a module binary built on this library might register for its own
// purposes.
//
// Unlike the three-tier scheme some EntityDB-lineage servers use, there is
// no database configuration tier here: the core carries no persistence
// (see spec Non-goals), so flags are the highest-priority tier.
type ConfigManager struct {
	config     *Config
	flagValues map[string]flag.Value
}

// NewConfigManager creates a manager seeded from the environment tier.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:     Load(),
		flagValues: make(map[string]flag.Value),
	}
}

// RegisterFlags registers --opendax-* flags against the default FlagSet.
// Call before flag.Parse(). Only flags explicitly set on the command line
// override the environment-derived defaults already in cm.config, since
// flag.Var itself seeds each flag's default from the current field value.
func (cm *ConfigManager) RegisterFlags() {
	c := cm.config

	flag.StringVar(&c.ListenAddr, "opendax-listen-addr", c.ListenAddr,
		"tag protocol listen address")
	flag.StringVar(&c.AdminListenAddr, "opendax-admin-listen-addr", c.AdminListenAddr,
		"read-only admin HTTP listen address")
	flag.IntVar(&c.MaxSessions, "opendax-max-sessions", c.MaxSessions,
		"maximum concurrent client sessions")

	flag.IntVar(&c.TagStoreInitialCapacity, "opendax-tag-store-initial-capacity", c.TagStoreInitialCapacity,
		"initial tag store capacity before doubling growth")
	flag.IntVar(&c.MaxTagNameLength, "opendax-max-tag-name-length", c.MaxTagNameLength,
		"maximum tag name length in bytes")

	flag.IntVar(&c.EventQueueDepth, "opendax-event-queue-depth", c.EventQueueDepth,
		"per-session pending event notification queue depth")
	flag.IntVar(&c.ClientCacheSize, "opendax-client-cache-size", c.ClientCacheSize,
		"default client tag cache capacity")

	flag.DurationVar(&c.ReadTimeout, "opendax-read-timeout", c.ReadTimeout,
		"per-frame session read timeout")
	flag.DurationVar(&c.WriteTimeout, "opendax-write-timeout", c.WriteTimeout,
		"per-frame session write timeout")
	flag.DurationVar(&c.ShutdownTimeout, "opendax-shutdown-timeout", c.ShutdownTimeout,
		"graceful shutdown timeout")

	flag.StringVar(&c.LogLevel, "opendax-log-level", c.LogLevel,
		"log level (trace, debug, info, warn, error)")
	flag.BoolVar(&c.TraceSpans, "opendax-trace-spans", c.TraceSpans,
		"enable per-request trace/span logging")
	flag.StringVar(&c.AppName, "opendax-app-name", c.AppName,
		"process name reported in logs and the admin surface")

	flag.VisitAll(func(f *flag.Flag) {
		cm.flagValues[f.Name] = f.Value
	})
}

// Config returns the manager's Config. Call after flag.Parse() so
// command-line overrides are reflected.
func (cm *ConfigManager) Config() *Config {
	return cm.config
}
