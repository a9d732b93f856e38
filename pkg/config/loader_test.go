package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nestedConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TEST_NESTED_TIMEOUT" default:"5s"`
}

type testConfig struct {
	Host     string       `yaml:"host" env:"TEST_HOST" default:"localhost"`
	Port     int          `yaml:"port" env:"TEST_PORT" default:"9000"`
	Debug    bool         `yaml:"debug" env:"TEST_DEBUG" default:"false"`
	Ratio    float64      `yaml:"ratio" env:"TEST_RATIO" default:"1.5"`
	Tags     []string     `yaml:"tags" env:"TEST_TAGS"`
	Nested   nestedConfig `yaml:"nested"`
	Untagged string       `yaml:"untagged"`
}

func TestLoadDefaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, NewLoader().Load("", &cfg))

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 1.5, cfg.Ratio)
	assert.Equal(t, 5*time.Second, cfg.Nested.Timeout)
	assert.Empty(t, cfg.Untagged)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: db.internal\nnested:\n  timeout: 10s\n"), 0o644))

	var cfg testConfig
	require.NoError(t, NewLoader().Load(path, &cfg))

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 9000, cfg.Port, "unset file keys keep defaults")
	assert.Equal(t, 10*time.Second, cfg.Nested.Timeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: db.internal\nport: 5000\n"), 0o644))

	t.Setenv("TEST_HOST", "env.internal")
	t.Setenv("TEST_DEBUG", "true")
	t.Setenv("TEST_TAGS", "a, b ,c")
	t.Setenv("TEST_NESTED_TIMEOUT", "250ms")

	var cfg testConfig
	require.NoError(t, NewLoader().Load(path, &cfg))

	assert.Equal(t, "env.internal", cfg.Host)
	assert.Equal(t, 5000, cfg.Port, "file value survives when env unset")
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
	assert.Equal(t, 250*time.Millisecond, cfg.Nested.Timeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TEST_PORT", "not-a-number")
	var cfg testConfig
	assert.Error(t, NewLoader().Load("", &cfg))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	var cfg testConfig
	assert.Error(t, NewLoader().Load(path, &cfg))
}

func TestServiceConfigDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "cadaince", cfg.Database.Database)
	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpot.BaseURL)
	assert.Equal(t, "*/15 * * * *", cfg.Jobs.Schedule)
	assert.Equal(t, 24*time.Hour, cfg.Anomaly.MissingDataAfter)
	assert.Equal(t, 3.0, cfg.Anomaly.ZScoreCritical)
}
