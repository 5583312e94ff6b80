package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWindows(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultWindow, cfg.PendingWindow())
	assert.Equal(t, DefaultWindow, cfg.DisputeWindow())
	assert.Equal(t, "/v1", cfg.Server.BasePath)

	var nilCfg *Config
	assert.Equal(t, DefaultWindow, nilCfg.PendingWindow())
}

func TestFromYAMLOverridesWindows(t *testing.T) {
	cfg, err := FromYAML([]byte("validation:\n  pending_window: 90m\n  dispute_window: 2h\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.PendingWindow())
	assert.Equal(t, 2*time.Hour, cfg.DisputeWindow())
}

func TestFromYAMLRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad duration":       "validation:\n  pending_window: soon\n",
		"negative":           "validation:\n  dispute_window: -1h\n",
		"unknown driver":     "database:\n  driver: oracle\n",
		"postgres no dsn":    "database:\n  driver: postgres\n",
		"relative base path": "server:\n  base_path: v1\n",
		"webhook no url":     "webhooks:\n  - secret: x\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, cfg.PendingWindow())

	require.NoError(t, os.WriteFile(Path(dir), []byte("validation:\n  pending_window: 1h\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.PendingWindow())
}

func TestWebhookEnabledDefault(t *testing.T) {
	off := false
	assert.True(t, Webhook{URL: "http://x"}.IsEnabled())
	assert.False(t, Webhook{URL: "http://x", Enabled: &off}.IsEnabled())
}
