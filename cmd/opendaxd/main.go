// Command opendaxd runs the OpenDAX tag server: the binary tag protocol
// listener, the event subsystem, and a read-only admin HTTP surface over
// one shared in-memory tag store.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"opendax/config"
	"opendax/internal/adminhttp"
	"opendax/internal/events"
	"opendax/internal/ioengine"
	"opendax/internal/server"
	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/logger"
)

// Version is the OpenDAX server version string.
// Build override: -ldflags "-X main.Version=x.y.z"
var Version = "0.1.0-dev"

func main() {
	cm := config.NewConfigManager()
	cm.RegisterFlags()

	cdtFile := flag.String("opendax-cdt-file", "", "optional YAML file of compound tag types to register at startup")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("opendaxd", Version)
		return
	}

	cfg := cm.Config()
	// Configure runs first so that the flag/env-derived LogLevel applied
	// below has the last word: a flag override of the log level isn't
	// silently clobbered by Configure's own OPENDAX_LOG_LEVEL SetLogLevel.
	logger.Configure()
	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid log level %q, keeping default: %v", cfg.LogLevel, err)
	}
	logger.Info("starting %s %s", cfg.AppName, Version)
	logger.EnableTracing(cfg.TraceSpans)

	registry := types.NewRegistry()
	if *cdtFile != "" {
		if err := registry.LoadCDTFile(*cdtFile); err != nil {
			logger.Fatal("loading compound type file %q: %v", *cdtFile, err)
		}
	}

	st := store.New(registry, cfg.TagStoreInitialCapacity, cfg.MaxTagNameLength)
	if err := registerLastIndexVirtualRead(st); err != nil {
		logger.Fatal("registering _lastindex virtual read: %v", err)
	}

	engine := ioengine.New(st)
	dispatcher := events.New(registry)
	engine.SetNotifier(dispatcher)

	srv := server.New(cfg, registry, st, engine, dispatcher)

	admin := adminhttp.NewHandler(st, registry)
	adminHTTP := &http.Server{
		Addr:     cfg.AdminListenAddr,
		Handler:  admin.Router(),
		ErrorLog: logger.AdminHTTPErrorLog(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Fatal("tag protocol listener failed: %v", err)
		}
	}()
	go func() {
		logger.Info("admin HTTP surface listening on %s", cfg.AdminListenAddr)
		if err := adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin HTTP listener failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal %v, initiating graceful shutdown...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("tag protocol listener shutdown error: %v", err)
	}
	if err := adminHTTP.Shutdown(ctx); err != nil {
		logger.Error("admin HTTP shutdown error: %v", err)
	}

	logger.Info("opendaxd shutdown complete")
}

// registerLastIndexVirtualRead wires _lastindex's before-read callback
// now that a *store.Store exists. _lastindex is registered VIRTUAL by
// registerReserved at store.New time, before any function outside the
// store package holds a handle to look it up by name; this is the
// startup-time registration its doc comment in reserved.go promises.
func registerLastIndexVirtualRead(st *store.Store) error {
	meta, err := st.ByName("_lastindex")
	if err != nil {
		return err
	}
	return st.RegisterVirtualRead(meta.Index, func(_ store.TagMeta, out []byte) error {
		binary.LittleEndian.PutUint32(out, st.LastIndex())
		return nil
	})
}
