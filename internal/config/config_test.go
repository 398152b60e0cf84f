package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "qianfan", cfg.Upstream.Provider)
	assert.Equal(t, "https://qianfan.baidubce.com/v2", cfg.Upstream.BaseURL)
	assert.Equal(t, "ernie-3.5-8k", cfg.Upstream.Model)
	assert.Equal(t, 1024, cfg.Upstream.MaxTokens)
	assert.Equal(t, 0.7, cfg.Upstream.Temperature)
	assert.Equal(t, 60, cfg.Upstream.RequestTimeout)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 24, cfg.Session.TTLHours)
}

func TestValidateDefaults(t *testing.T) {
	// Defaults without an API key are valid: that is degraded mode.
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad provider", func(c *Config) { c.Upstream.Provider = "gemini" }, "invalid upstream provider"},
		{"no model", func(c *Config) { c.Upstream.Model = "" }, "model is required"},
		{"bad max tokens", func(c *Config) { c.Upstream.MaxTokens = 0 }, "max_tokens"},
		{"bad temperature", func(c *Config) { c.Upstream.Temperature = 3 }, "temperature"},
		{"bad backend", func(c *Config) { c.Session.Backend = "redis" }, "invalid session backend"},
		{"bad ttl", func(c *Config) { c.Session.TTLHours = 0 }, "ttl_hours"},
		{
			"bad anthropic key",
			func(c *Config) { c.Upstream.Provider = "anthropic"; c.Upstream.APIKey = "nope" },
			"Anthropic API key",
		},
		{
			"bad openai key",
			func(c *Config) { c.Upstream.Provider = "openai"; c.Upstream.APIKey = "nope" },
			"OpenAI API key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAcceptsQianfanKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstream.APIKey = "bce-v3/ALTAK-xxxx/yyyy"
	assert.NoError(t, cfg.Validate())
}

func TestStringMasksAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstream.APIKey = "bce-v3/very-secret-key/sig"

	out := cfg.String()
	assert.NotContains(t, out, "very-secret-key")
	assert.Contains(t, out, `"api_key": "***"`)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoadReadsFileAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shitan.json")
	content := `{
		"server": {"port": 8080},
		"upstream": {"model": "ernie-4.0-8k", "api_key": "bce-v3/a/b"},
		"session": {"backend": "sqlite", "path": "s.db"},
		"data_dir": "` + dir + `"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ernie-4.0-8k", cfg.Upstream.Model)
	assert.Equal(t, "sqlite", cfg.Session.Backend)
	assert.Equal(t, filepath.Join(dir, "s.db"), cfg.Session.Path)
	assert.Equal(t, filepath.Join(dir, "shitan.log"), cfg.Logging.File)

	// Defaults survive for fields the file does not set.
	assert.Equal(t, "qianfan", cfg.Upstream.Provider)
	assert.Equal(t, 1024, cfg.Upstream.MaxTokens)
}

func TestLoadEnvAPIKey(t *testing.T) {
	t.Setenv("BAIDU_API_KEY", "bce-v3/from-env/sig")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "bce-v3/from-env/sig", cfg.Upstream.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shitan.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Server.Port = 9000
	cfg.Upstream.Model = "ernie-4.0-8k"
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, loaded.Server.Port)
	assert.Equal(t, "ernie-4.0-8k", loaded.Upstream.Model)
}
