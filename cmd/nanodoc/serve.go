package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coffersTech/nanodoc/internal/config"
	"github.com/coffersTech/nanodoc/internal/controller"
	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/coffersTech/nanodoc/internal/pkg/logger"
	"github.com/coffersTech/nanodoc/internal/pkg/security"
	"github.com/coffersTech/nanodoc/internal/server"
	"github.com/coffersTech/nanodoc/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServeCmd runs the REST server.
type ServeCmd struct {
	Listen  string `help:"Override the listen address"`
	DataDir string `help:"Override the data directory" type:"path"`
}

func (cmd *ServeCmd) Run(ctx *Context) error {
	cfg, err := config.Load(ctx.Config)
	if err != nil {
		return err
	}
	if cmd.Listen != "" {
		cfg.Listen = cmd.Listen
	}
	if cmd.DataDir != "" {
		cfg.DataDir = cmd.DataDir
	}

	log := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("NanoDoc starting", "version", Version, "data_dir", cfg.DataDir)

	catalog, err := openCatalog(cfg, log)
	if err != nil {
		return err
	}

	// 1. Storage
	reader, err := storage.NewSnapshotReader()
	if err != nil {
		return fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Close()
	writer, err := storage.NewSnapshotWriter()
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	defer writer.Close()

	store, err := engine.Open(cfg.DataDir, engine.Options{
		ReadSnapshot:  reader.ReadSnapshot,
		WriteSnapshot: writer.WriteSnapshot,
		WALThreshold:  cfg.Compaction.WALThresholdBytes,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := registerCollections(store, catalog, cfg); err != nil {
		store.Close()
		return err
	}

	// 2. Background compaction
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Compaction.Interval > 0 {
		go store.RunCompactor(sigCtx, cfg.Compaction.Interval)
	}

	// 3. HTTP
	srv := server.New(store, catalog, server.Options{
		MaxFilterLength: cfg.Limits.MaxFilterLength,
		MaxBodyBytes:    cfg.Limits.MaxBodyBytes,
		RatePerSecond:   cfg.Limits.RatePerSecond,
		Burst:           cfg.Limits.Burst,
		RawPatterns:     cfg.Filter.RawPatterns,
		Logger:          log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Listen) }()

	var serveErr error
	select {
	case <-sigCtx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error("server stopped", "error", serveErr)
		}
	}

	// 4. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	log.Info("flushing to disk")
	if err := store.Close(); err != nil {
		log.Error("final flush failed", "error", err)
		return errors.Join(serveErr, err)
	}

	log.Info("NanoDoc exited gracefully")
	return serveErr
}

// openCatalog loads the master key and the encrypted token catalog.
func openCatalog(cfg *config.Config, log *slog.Logger) (*controller.Catalog, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	keyFile := cfg.Security.KeyFile
	if keyFile == "" {
		keyFile = filepath.Join(cfg.DataDir, "master.key")
	}
	key, generated, err := security.LoadMasterKey(keyFile)
	if err != nil {
		return nil, err
	}
	if generated {
		log.Warn("generated a new master key, back it up", "path", keyFile)
	}

	catalog := controller.NewCatalog(filepath.Join(cfg.DataDir, "catalog.json"), key)
	if err := catalog.Load(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// registerCollections adds the configured collections with their schemas,
// then any collection the catalog remembers from earlier runs.
func registerCollections(store *engine.Store, catalog *controller.Catalog, cfg *config.Config) error {
	for _, coll := range cfg.Collections {
		var schema []byte
		if coll.Schema != "" {
			var err error
			if schema, err = os.ReadFile(coll.Schema); err != nil {
				return fmt.Errorf("collection %s: failed to read schema: %w", coll.Name, err)
			}
		}
		if err := store.AddCollection(coll.Name, string(schema)); err != nil {
			return fmt.Errorf("collection %s: %w", coll.Name, err)
		}
		if err := catalog.RegisterCollection(coll.Name); err != nil {
			return err
		}
	}

	known := make(map[string]bool)
	for _, name := range store.Collections() {
		known[name] = true
	}
	for _, name := range catalog.Collections() {
		if known[name] {
			continue
		}
		if err := store.AddCollection(name, ""); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
	}
	return nil
}
