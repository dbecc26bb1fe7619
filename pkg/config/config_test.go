package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_PassesValidation(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestDefaultConfig_EngineAndViewerDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.Engine.MinFrameIntervalMs)
	assert.Equal(t, 0.45, cfg.Engine.ScoreThreshold)
	assert.Equal(t, 0.5, cfg.Engine.IOUThreshold)
	assert.Equal(t, 640, cfg.Engine.InputSize)

	assert.Equal(t, "local", cfg.Viewer.DefaultDispatchMode)
	assert.Equal(t, 200*time.Millisecond, cfg.Viewer.OffloadTimeout)

	assert.Equal(t, 100, cfg.Telemetry.LatencyWindowSize)
	assert.Equal(t, 10, cfg.Telemetry.BandwidthWindowSize)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"non-positive read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"non-positive ping interval", func(c *Config) { c.Broker.PingInterval = 0 }},
		{"frame interval must be positive", func(c *Config) { c.Engine.MinFrameIntervalMs = 0 }},
		{"score threshold out of range", func(c *Config) { c.Engine.ScoreThreshold = 1.5 }},
		{"iou threshold out of range", func(c *Config) { c.Engine.IOUThreshold = 0 }},
		{"input size must be positive", func(c *Config) { c.Engine.InputSize = -640 }},
		{"unknown dispatch mode", func(c *Config) { c.Viewer.DefaultDispatchMode = "remote" }},
		{"offload timeout must be positive", func(c *Config) { c.Viewer.OffloadTimeout = 0 }},
		{"latency window must be positive", func(c *Config) { c.Telemetry.LatencyWindowSize = 0 }},
		{"bandwidth window must be positive", func(c *Config) { c.Telemetry.BandwidthWindowSize = 0 }},
		{"port range half-set", func(c *Config) { c.WebRTC.PortRange.Min = 50000 }},
		{"port range inverted", func(c *Config) {
			c.WebRTC.PortRange.Min = 60000
			c.WebRTC.PortRange.Max = 50000
		}},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"auth enabled without secret", func(c *Config) {
			c.Auth.RequireToken = true
			c.Auth.JWTSecret = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_RateLimitingCheckedOnlyWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	assert.NoError(t, cfg.Validate())

	cfg.RateLimiting.Enabled = true
	assert.Error(t, cfg.Validate())
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "local", cfg.Viewer.DefaultDispatchMode)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
engine:
  min_frame_interval_ms: 50
  input_size: 320
viewer:
  default_dispatch_mode: auto
  offload_timeout: 400ms
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Engine.MinFrameIntervalMs)
	assert.Equal(t, 320, cfg.Engine.InputSize)
	assert.Equal(t, "auto", cfg.Viewer.DefaultDispatchMode)
	assert.Equal(t, 400*time.Millisecond, cfg.Viewer.OffloadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep defaults
	assert.Equal(t, 0.45, cfg.Engine.ScoreThreshold)
}

func TestLoad_InvalidYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  input_size: -1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DETECTMESH_SERVER_ADDRESS", ":9999")
	t.Setenv("DETECTMESH_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
