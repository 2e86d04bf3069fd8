package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigJSONOmitsToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = debugLevel
	cfg.Remote.Token = "secret"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, debugLevel, result["log_level"])
	remote, ok := result["remote"].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, remote, "token")
	assert.NotContains(t, string(data), "secret")
}

func TestConfigYAMLUnmarshaling(t *testing.T) {
	yamlData := `
log_level: warn
data_dir: /srv/marginalia
ocr:
  scale: 1.5
  estimated_duration: 3s
drawing:
  brush_size: 35.6
  pressure_enabled: false
server:
  ocr_rate_limit: 0.5
remote:
  token: from-file
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlData), &cfg))
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/srv/marginalia", cfg.DataDir)
	assert.InDelta(t, 1.5, cfg.OCR.Scale, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.OCR.EstimatedDuration)
	assert.InDelta(t, 35.6, cfg.Drawing.BrushSize, 1e-9)
	assert.False(t, cfg.Drawing.PressureEnabled)
	assert.InDelta(t, 0.5, cfg.Server.OCRRateLimit, 1e-9)
	assert.Equal(t, "from-file", cfg.Remote.Token)
}
