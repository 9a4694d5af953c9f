package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coffersTech/nanodoc/internal/config"
	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/coffersTech/nanodoc/internal/pkg/logger"
	"github.com/coffersTech/nanodoc/internal/pkg/security"
	"github.com/coffersTech/nanodoc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollections(t *testing.T) {
	t.Setenv(security.MasterKeyEnv, "")
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "users.schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{"type":"object","required":["name"]}`), 0644))

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Collections = []config.CollectionConfig{
		{Name: "users", Schema: schemaPath},
		{Name: "orders"},
	}

	catalog, err := openCatalog(cfg, logger.Get())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "master.key"))
	require.NoError(t, catalog.RegisterCollection("legacy"))

	w, err := storage.NewSnapshotWriter()
	require.NoError(t, err)
	defer w.Close()
	r, err := storage.NewSnapshotReader()
	require.NoError(t, err)
	defer r.Close()

	store, err := engine.Open(cfg.DataDir, engine.Options{ReadSnapshot: r.ReadSnapshot, WriteSnapshot: w.WriteSnapshot})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, registerCollections(store, catalog, cfg))
	assert.Equal(t, []string{"legacy", "orders", "users"}, store.Collections())
	assert.Equal(t, []string{"legacy", "orders", "users"}, catalog.Collections())

	_, err = store.Insert("users", engine.Document{"age": 3})
	assert.ErrorIs(t, err, engine.ErrSchemaViolation)

	// A second catalog opened from the same directory reuses the saved key.
	again, err := openCatalog(cfg, logger.Get())
	require.NoError(t, err)
	assert.Equal(t, catalog.Collections(), again.Collections())
}

func TestRegisterCollections_MissingSchema(t *testing.T) {
	t.Setenv(security.MasterKeyEnv, "")
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Collections = []config.CollectionConfig{{Name: "users", Schema: filepath.Join(cfg.DataDir, "nope.json")}}

	catalog, err := openCatalog(cfg, logger.Get())
	require.NoError(t, err)

	store, err := engine.Open(cfg.DataDir, engine.Options{
		ReadSnapshot:  func(string) ([]engine.Document, error) { return nil, nil },
		WriteSnapshot: func(string, []engine.Document) error { return nil },
	})
	require.NoError(t, err)
	defer store.Close()

	err = registerCollections(store, catalog, cfg)
	assert.ErrorContains(t, err, "failed to read schema")
}
