package logic

import (
	"crypto/x509"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogs(t *testing.T) {
	require.NoError(t, SetupLogging("debug", 3))
	t.Cleanup(func() {
		_ = SetupLogging("info", 300)
		ClearLogs()
	})
	ClearLogs()

	for i := 0; i < 5; i++ {
		GetLogger().Infof("entry %d", i)
	}
	logs := GetLogs()
	require.Len(t, logs, 3)
	assert.True(t, strings.Contains(logs[0], "entry 2"))
	assert.True(t, strings.Contains(logs[2], "entry 4"))

	require.NoError(t, SetupLogging("debug", 2))
	logs = GetLogs()
	require.Len(t, logs, 2)
	assert.True(t, strings.Contains(logs[0], "entry 3"))

	ClearLogs()
	assert.Empty(t, GetLogs())

	assert.Error(t, SetupLogging("loud", 0))
}

func TestDeviceDataStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, SaveDeviceData(db, []DeviceData{
		{DeviceName: "press", DeviceId: "7", Datapoint: "temp", DatapointId: "DB1.0", Value: "20", Timestamp: now.Add(-time.Hour).Format(DeviceTimestampLayout)},
		{DeviceName: "press", DeviceId: "7", Datapoint: "temp", DatapointId: "DB1.0", Value: "21", Timestamp: now.Add(-time.Minute).Format(DeviceTimestampLayout)},
	}))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM device_data").Scan(&count))
	assert.Equal(t, 2, count)

	removed, err := PruneDeviceData(db, 10*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var value string
	require.NoError(t, db.QueryRow("SELECT value FROM device_data").Scan(&value))
	assert.Equal(t, "21", value)

	// InitDB ist idempotent
	again, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, again.QueryRow("SELECT COUNT(*) FROM device_data").Scan(&count))
	assert.Equal(t, 1, count)
	again.Close()
}

func TestLoadOrGenerateCert(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")

	cert, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"IoT Dashboard"}, leaf.Subject.Organization)

	again, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], again.Certificate[0], "existing files are reused")
}

func TestMQTTClientOptions(t *testing.T) {
	opts := NewMQTTClientOptions(MQTTConfig{BrokerURL: "tcp://broker:1883", Username: "dash"})
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "dash", opts.Username)
	assert.True(t, strings.HasPrefix(opts.ClientID, "iot-dashboard-"))
	assert.True(t, opts.AutoReconnect)

	fixed := MQTTConfig{ClientID: "panel-1"}
	assert.Equal(t, "panel-1", fixed.ClientIDOrRandom())
}
