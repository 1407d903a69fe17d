package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "shopmate.yaml")
	yml := `server_url: http://pantry.local:9000
household_id: h-perez
debounce: 500ms
max_retries: 3
log_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("SHOPMATE_HOUSEHOLD", "h-garcia")
	t.Setenv("SHOPMATE_BACKOFF_CAP", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://pantry.local:9000", cfg.ServerURL)
	assert.Equal(t, "h-garcia", cfg.HouseholdID, "env overrides file")
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Minute, cfg.BackoffCap)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "shopmate-storage", cfg.SnapshotName)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHOPMATE_USER=u-ana\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SHOPMATE_USER") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "u-ana", cfg.UserID)
}

func TestApplyEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"SHOPMATE_DEBOUNCE": "soon"}},
		{"bad int", map[string]string{"SHOPMATE_MAX_RETRIES": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 0
	cfg.BackoffCap = time.Second
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")
	assert.Contains(t, err.Error(), "backoff_cap")
	assert.Contains(t, err.Error(), "log_format")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
