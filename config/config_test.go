package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  data_dir: " + dir + "/data\nlog:\n  file: " + dir + "/logs/facegate.log\ndb:\n  file: " + dir + "/facegate.db\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "dlib", cfg.Model.Provider)
	assert.Equal(t, 100*time.Millisecond, cfg.Recognition.Interval)
	assert.Equal(t, 0.6, cfg.Recognition.Threshold)
	assert.Equal(t, 5, cfg.Recognition.MaxFacesPerFrame)
	assert.True(t, cfg.Recognition.ShowConfidence)
	assert.Equal(t, "Main Entrance", cfg.Recognition.Location)
	assert.Equal(t, 30*time.Second, cfg.Recognition.EventCooldown)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, "facerecog_users", cfg.Gallery.Key)
	assert.Equal(t, 50, cfg.Gallery.DemoCount)
	assert.Equal(t, 90, cfg.Cleanup.RetentionDays)
	assert.False(t, cfg.MQTT.HomeAssistant.Enabled)
	assert.Equal(t, "homeassistant", cfg.MQTT.HomeAssistant.DiscoveryPrefix)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Address())
	assert.Empty(t, cfg.Server.SessionSecret)
	assert.DirExists(t, cfg.Server.DataDir)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
recognition:
  interval: 250ms
  threshold: 0.5
model:
  provider: insightface
  insightface:
    enabled: true
    url: http://insight:18081
`)
	t.Setenv("FACEGATE_RECOGNITION_THRESHOLD", "0.45")
	t.Setenv("FACEGATE_MQTT_ENABLED", "true")
	t.Setenv("FACEGATE_SERVER_SESSION_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Recognition.Interval)
	assert.Equal(t, 0.45, cfg.Recognition.Threshold)
	assert.Equal(t, "insightface", cfg.Model.Provider)
	assert.Equal(t, "http://insight:18081", cfg.Model.InsightFace.URL)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "s3cret", cfg.Server.SessionSecret)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "model:\n  provider: compreface\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "recognition:\n  threshold: 0\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "overlay:\n  backend: svg\n"))
	assert.Error(t, err)
}
