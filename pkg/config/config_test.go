package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listenAddr: ":9090"
  baseURL: /api
database:
  driver: sqlite
  dsn: file:test.db
id:
  key: 00112233445566778899aabbccddeeff
  minLength: 24
  staticIds: true
resources:
  - table: users
    excludePrefix: "_"
  - table: orders
    fields: [id, total]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "/api", cfg.Server.BaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24, cfg.ID.MinLength)
	assert.True(t, cfg.ID.StaticIDs)
	// defaults survive partial config
	assert.Equal(t, "_", cfg.ID.Separator)

	require.Len(t, cfg.Resources, 2)
	assert.Equal(t, "users", cfg.Resources[0].Table)
	assert.Equal(t, "_", cfg.Resources[0].ExcludePrefix)
	assert.Equal(t, []string{"id", "total"}, cfg.Resources[1].Fields)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// an explicitly named file must exist
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 32, cfg.ID.MinLength)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}
