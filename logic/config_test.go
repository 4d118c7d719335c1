package logic

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.WebUI.HTTPPort)
	assert.Equal(t, time.Second, cfg.PushInterval())
	assert.Equal(t, "layout.yaml", cfg.Layout.Path)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.False(t, cfg.InfluxDB.Enabled)
	assert.False(t, cfg.Broker.Embedded)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"webui": {"http_port": "9000", "push_interval_ms": 500},
		"mqtt": {"broker_url": "tcp://broker:1883", "qos": 0},
		"broker": {"embedded": true, "users": [{"username": "panel", "password": "pw", "filters": {"hall/#": 3}}]}
	}`), 0o644))

	t.Setenv("DASHBOARD_LAYOUT", "/etc/dashboard/layout.yaml")
	t.Setenv("MQTT_USERNAME", "dashboard")
	t.Setenv("INFLUXDB_TOKEN", "secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.WebUI.HTTPPort)
	assert.Equal(t, 500*time.Millisecond, cfg.PushInterval())
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, "/etc/dashboard/layout.yaml", cfg.Layout.Path)
	assert.Equal(t, "dashboard", cfg.MQTT.Username)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, "secret", cfg.InfluxDB.Token)
	require.Len(t, cfg.Broker.Users, 1)
	assert.Equal(t, 3, cfg.Broker.Users[0].Filters["hall/#"])
	assert.Len(t, cfg.Broker.Listeners, 2, "default listeners are kept")
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"webui": `), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.WebUI.HTTPPort = "" }},
		{"https without cert", func(c *Config) { c.WebUI.UseHTTPS = true }},
		{"push interval too short", func(c *Config) { c.WebUI.PushIntervalMs = 10 }},
		{"no layout", func(c *Config) { c.Layout.Path = "" }},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"influx without bucket", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" }},
		{"broker without listeners", func(c *Config) { c.Broker.Embedded = true; c.Broker.Listeners = nil }},
		{"anonymous broker user", func(c *Config) { c.Broker.Users = []BrokerUser{{Password: "x"}} }},
	}
	assert.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
