package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults without env file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.ServerAddr)
		assert.Equal(t, "/api/v1", cfg.URLPrefix)
		assert.Equal(t, "./courses", cfg.CoursesRoot)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "stdout", cfg.OtelExporter)
		assert.Equal(t, 4, cfg.SyncConcurrency)
		assert.False(t, cfg.OtelEnabled)
	})

	t.Run("reads env file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		content := "DATABASE_URL=postgres://localhost/pl\nJWT_SECRET=s3cret\nSYNC_CONCURRENCY=2\nLOG_DEVELOPMENT=true\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "postgres://localhost/pl", cfg.DatabaseURL)
		assert.Equal(t, "s3cret", cfg.JWTSecret)
		assert.Equal(t, 2, cfg.SyncConcurrency)
		assert.True(t, cfg.LogDevelopment)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("COURSES_ROOT=/from/file\n"), 0o600))
		t.Setenv("COURSES_ROOT", "/from/env")
		t.Setenv("OTEL_ENABLED", "true")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/from/env", cfg.CoursesRoot)
		assert.True(t, cfg.OtelEnabled)
	})

	t.Run("concurrency floor", func(t *testing.T) {
		t.Setenv("SYNC_CONCURRENCY", "0")

		cfg, err := Load(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.SyncConcurrency)
	})
}

func TestValidate(t *testing.T) {
	cfg := &Config{OtelExporter: "stdout"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)

	cfg = &Config{DatabaseURL: "postgres://x", JWTSecret: "k", OtelExporter: "jaeger"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_EXPORTER")

	cfg.OtelExporter = "none"
	assert.NoError(t, cfg.Validate())
}
