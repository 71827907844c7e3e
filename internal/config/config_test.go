package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackyZhang8/locknote/pkg/crypto"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFormat, "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, crypto.DefaultKDFParams, cfg.KDFParams())
	assert.Equal(t, 20, cfg.History.MaxVersions)
	assert.Equal(t, 5*time.Second, cfg.Session.Tick)
	assert.Equal(t, filepath.Join(dir, "backups"), cfg.BackupDir())
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	yml := `
log:
  level: debug
  format: json
kdf:
  memory_kib: 16384
  iterations: 2
  parallelism: 1
history:
  max_versions: 5
  min_interval: 2m
session:
  tick: 10s
  sleep_gap: 1m
backup:
  dir: /tmp/lnb
  keep: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), cfg.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, crypto.KDFParams{Memory: 16384, Iterations: 2, Parallelism: 1}, cfg.KDFParams())
	assert.Equal(t, 5, cfg.History.MaxVersions)
	assert.Equal(t, 2*time.Minute, cfg.History.MinInterval)
	assert.Equal(t, 10*time.Second, cfg.Session.Tick)
	assert.Equal(t, time.Minute, cfg.Session.SleepGap)
	assert.Equal(t, "/tmp/lnb", cfg.BackupDir())
	assert.Equal(t, 7, cfg.Backup.Keep)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("log:\n  level: debug\n"), 0600))
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	os.Unsetenv(EnvLogFormat)
	require.NoError(t, os.WriteFile(".env", []byte(EnvLogFormat+"=json\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("history:\n  max_versoins: 3\n"), 0600))
	_, err = Load(bad)
	assert.Error(t, err, "unknown keys are rejected")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("kdf:\n  memory_kib: 16\n"), 0600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "invalid configuration")

	t.Setenv(EnvLogLevel, "loud")
	_, err = Load("")
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, data, 0600))
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Session, again.Session)
	assert.Equal(t, cfg.KDF, again.KDF)
}
