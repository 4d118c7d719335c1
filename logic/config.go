package logic

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type WebUIConfig struct {
	HTTPPort       string `json:"http_port"`
	HTTPSPort      string `json:"https_port"`
	UseHTTPS       bool   `json:"use_https"`
	TLSCert        string `json:"tls_cert"`
	TLSKey         string `json:"tls_key"`
	PushIntervalMs int    `json:"push_interval_ms"`
}

type LayoutConfig struct {
	Path            string `json:"path"`
	WatchIntervalMs int    `json:"watch_interval_ms"`
}

type MQTTConfig struct {
	BrokerURL string `json:"broker_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	ClientID  string `json:"client_id"`
	QoS       byte   `json:"qos"`
}

type InfluxConfig struct {
	Enabled         bool   `json:"enabled"`
	URL             string `json:"url"`
	Token           string `json:"token"`
	Org             string `json:"org"`
	Bucket          string `json:"bucket"`
	LookbackMinutes int    `json:"lookback_minutes"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
	// Einträge in device_data, die älter sind, werden gelöscht (0 = nie)
	CacheMinutes int `json:"cache_minutes"`
	// MQTT-Nachrichten zusätzlich in device_data ablegen (deviceId = Topic)
	MirrorMQTT bool `json:"mirror_mqtt"`
}

type PollConfig struct {
	BreakerFailures    uint32 `json:"breaker_failures"`
	BreakerOpenSeconds int    `json:"breaker_open_seconds"`
	CoAPTimeoutMs      int    `json:"coap_timeout_ms"`
}

type CommandConfig struct {
	MaxRetries       uint64 `json:"max_retries"`
	PublishTimeoutMs int    `json:"publish_timeout_ms"`
}

type ListenerConfig struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Type    string `json:"type"`
	TLS     bool   `json:"tls"`
}

// BrokerUser ist ein Benutzer des eingebetteten Brokers mit seinen ACL-Filtern.
type BrokerUser struct {
	Username string         `json:"username"`
	Password string         `json:"password"`
	Filters  map[string]int `json:"filters"`
}

type BrokerConfig struct {
	Embedded  bool             `json:"embedded"`
	Listeners []ListenerConfig `json:"listeners"`
	Users     []BrokerUser     `json:"users"`
	TLSCert   string           `json:"tls_cert"`
	TLSKey    string           `json:"tls_key"`
}

type LogConfig struct {
	Level      string `json:"level"`
	MaxEntries int    `json:"max_entries"`
}

// Config ist die gesamte Konfiguration aus config.json.
type Config struct {
	WebUI    WebUIConfig    `json:"webui"`
	Layout   LayoutConfig   `json:"layout"`
	MQTT     MQTTConfig     `json:"mqtt"`
	InfluxDB InfluxConfig   `json:"influxdb"`
	Database DatabaseConfig `json:"database"`
	Poll     PollConfig     `json:"poll"`
	Command  CommandConfig  `json:"command"`
	Broker   BrokerConfig   `json:"broker"`
	Log      LogConfig      `json:"log"`
}

// DefaultConfig liefert die Standardwerte.
func DefaultConfig() *Config {
	return &Config{
		WebUI: WebUIConfig{
			HTTPPort:       "8080",
			HTTPSPort:      "8443",
			PushIntervalMs: 1000,
		},
		Layout: LayoutConfig{
			Path:            "layout.yaml",
			WatchIntervalMs: 2000,
		},
		MQTT: MQTTConfig{
			BrokerURL: "tcp://127.0.0.1:1883",
			QoS:       1,
		},
		InfluxDB: InfluxConfig{
			URL:             "http://influxdb:8086",
			Org:             "idpm",
			Bucket:          "iot-data",
			LookbackMinutes: 60,
		},
		Database: DatabaseConfig{
			Path:         "./iot_dashboard.db",
			CacheMinutes: 10,
			MirrorMQTT:   true,
		},
		Poll: PollConfig{
			BreakerFailures:    3,
			BreakerOpenSeconds: 30,
			CoAPTimeoutMs:      5000,
		},
		Command: CommandConfig{
			MaxRetries:       3,
			PublishTimeoutMs: 5000,
		},
		Broker: BrokerConfig{
			Listeners: []ListenerConfig{
				{ID: "t1", Address: ":1883", Type: "tcp"},
				{ID: "ws1", Address: ":1882", Type: "websocket"},
			},
		},
		Log: LogConfig{
			Level:      "info",
			MaxEntries: 300,
		},
	}
}

// LoadConfig lädt config.json (falls vorhanden), überschreibt Werte aus
// Umgebungsvariablen und prüft das Ergebnis.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	configBytes, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := json.Unmarshal(configBytes, config); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", filename, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// nur Standardwerte und Umgebung
	default:
		return nil, fmt.Errorf("could not read config %s: %w", filename, err)
	}

	applyEnv(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) {
	setString := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			*target = val
		}
	}
	setString("DASHBOARD_HTTP_PORT", &config.WebUI.HTTPPort)
	setString("DASHBOARD_LAYOUT", &config.Layout.Path)
	setString("DASHBOARD_DB_PATH", &config.Database.Path)
	setString("DASHBOARD_LOG_LEVEL", &config.Log.Level)
	setString("MQTT_BROKER_URL", &config.MQTT.BrokerURL)
	setString("MQTT_USERNAME", &config.MQTT.Username)
	setString("MQTT_PASSWORD", &config.MQTT.Password)
	setString("INFLUXDB_URL", &config.InfluxDB.URL)
	setString("INFLUXDB_TOKEN", &config.InfluxDB.Token)
	setString("INFLUXDB_ORG", &config.InfluxDB.Org)
	setString("INFLUXDB_BUCKET", &config.InfluxDB.Bucket)

	if val := os.Getenv("DASHBOARD_PUSH_INTERVAL_MS"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			config.WebUI.PushIntervalMs = intVal
		}
	}
	if val := os.Getenv("DASHBOARD_MIRROR_MQTT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.MirrorMQTT = b
		}
	}
	if val := os.Getenv("DASHBOARD_EMBEDDED_BROKER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Broker.Embedded = b
		}
	}
	// Backfill ist aktiv, sobald ein Token gesetzt ist
	if os.Getenv("INFLUXDB_TOKEN") != "" {
		config.InfluxDB.Enabled = true
	}
}

// Validate prüft die Konfiguration auf offensichtliche Fehler.
func (c *Config) Validate() error {
	if c.WebUI.HTTPPort == "" {
		return fmt.Errorf("webui.http_port must be set")
	}
	if c.WebUI.UseHTTPS && (c.WebUI.TLSCert == "" || c.WebUI.TLSKey == "") {
		return fmt.Errorf("TLS certificate and key must be specified for HTTPS")
	}
	if c.WebUI.PushIntervalMs < 100 {
		return fmt.Errorf("webui.push_interval_ms must be at least 100, got %d", c.WebUI.PushIntervalMs)
	}
	if c.Layout.Path == "" {
		return fmt.Errorf("layout.path must be set")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "") {
		return fmt.Errorf("influxdb url, org and bucket are required when backfill is enabled")
	}
	if c.Broker.Embedded && len(c.Broker.Listeners) == 0 {
		return fmt.Errorf("embedded broker needs at least one listener")
	}
	for _, u := range c.Broker.Users {
		if u.Username == "" {
			return fmt.Errorf("broker user without username")
		}
	}
	return nil
}

// PushInterval ist der Abstand der Websocket-Updates.
func (c *Config) PushInterval() time.Duration {
	return time.Duration(c.WebUI.PushIntervalMs) * time.Millisecond
}

// WatchInterval ist der Prüfabstand für Änderungen an der Layout-Datei (0 = aus).
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Layout.WatchIntervalMs) * time.Millisecond
}
