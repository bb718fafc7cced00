package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Auth.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
database:
  driver: sqlite
  name: relations
  path: /tmp/rocket
log:
  level: debug
schema_file: schema.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, "/tmp/rocket/relations.db", cfg.Database.DSN())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "schema.yaml", cfg.SchemaFile)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ROCKET_SERVER_PORT", "7070")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "app"}
	assert.Equal(t, "postgres://u:p@db:5432/app?sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3306, Name: "app"}
	assert.Equal(t, "u:p@tcp(db:3306)/app?parseTime=true&clientFoundRows=true", my.DSN())

	mem := DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
	assert.Equal(t, ":memory:", mem.DSN())
}
