package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "threadgraph.yaml", `
log:
  level: debug
  format: pretty
store:
  driver: sqlite
  path: ./data/threads.db
  retention: 10
archive:
  driver: sqlite
model:
  provider: openai
  name: gpt-4o-mini
  temperature: 0.2
  window: 20
engine:
  max_steps: 8
  turn_policy: reject
  lock_ttl: 1m
security:
  redact_fields: ["(?i)email"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Store.Retention)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	require.NotNil(t, cfg.Model.Temperature)
	assert.InDelta(t, 0.2, *cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 8, cfg.Engine.MaxSteps)
	assert.Equal(t, "reject", cfg.Engine.TurnPolicy)
	assert.Equal(t, time.Minute, cfg.Engine.LockTTL)
	assert.Equal(t, []string{"(?i)email"}, cfg.Security.RedactFields)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"store":{"driver":"file","path":"cp"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "cp", cfg.Store.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("THREADGRAPH_STORE", "redis")
	t.Setenv("THREADGRAPH_REDIS_ADDR", "localhost:6379")
	t.Setenv("THREADGRAPH_MAX_STEPS", "3")
	t.Setenv("THREADGRAPH_STORE_TTL", "2h")
	t.Setenv("OPENAI_API_KEY", "from-openai")
	t.Setenv("THREADGRAPH_API_KEY", "namespaced")

	cfg, err := Load(writeFile(t, "c.yaml", "store:\n  driver: file\n"))
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Engine.MaxSteps)
	assert.Equal(t, 2*time.Hour, cfg.Store.TTL)
	assert.Equal(t, "namespaced", cfg.Model.APIKey)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("THREADGRAPH_MAX_STEPS", "many")

	_, err := Load("")
	assert.ErrorContains(t, err, "THREADGRAPH_MAX_STEPS")
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mongo"
	cfg.Model.Provider = "openai"
	cfg.Engine.MaxSteps = 0
	cfg.Engine.TurnPolicy = "drop"
	cfg.Engine.DistributedLock = true
	cfg.Security.RedactFields = []string{"("}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown store driver "mongo"`,
		"model.name is required",
		"max_steps must be positive",
		`unknown turn policy "drop"`,
		"distributed_lock requires the redis store",
		"security.redact_fields",
	} {
		assert.True(t, strings.Contains(err.Error(), want), "missing %q in %v", want, err)
	}
}

func TestValidate_LoamArchiveNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Archive.Driver = "loam"
	assert.ErrorContains(t, cfg.Validate(), "archive.path is required for the loam archive")

	cfg.Archive.Path = t.TempDir()
	assert.NoError(t, cfg.Validate())
}

func TestSecurityKeys(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	old := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	active, fallback, err := SecurityConfig{EncryptionKey: key, FallbackKeys: []string{old}}.Keys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	require.Len(t, fallback, 1)
	assert.Equal(t, []byte(strings.Repeat("k", 32)), fallback[0])

	active, _, err = SecurityConfig{}.Keys()
	require.NoError(t, err)
	assert.Nil(t, active)

	_, _, err = SecurityConfig{EncryptionKey: base64.StdEncoding.EncodeToString([]byte("short"))}.Keys()
	assert.ErrorContains(t, err, "32 bytes")

	_, _, err = SecurityConfig{FallbackKeys: []string{key}}.Keys()
	assert.Error(t, err)
}
