package logic

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClientIDOrRandom liefert die konfigurierte Client-ID oder erzeugt eine eindeutige.
func (c MQTTConfig) ClientIDOrRandom() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return "iot-dashboard-" + uuid.NewString()
}

// NewMQTTClientOptions baut die paho-Optionen für den gemeinsamen Dashboard-Client.
func NewMQTTClientOptions(cfg MQTTConfig) *MQTT.ClientOptions {
	return MQTT.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientIDOrRandom()).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		// Abos nach Reconnect wiederherstellen
		SetCleanSession(false).
		SetResumeSubs(true).
		SetConnectionLostHandler(func(_ MQTT.Client, err error) {
			logrus.Warnf("MQTT: Connection lost: %v", err)
		}).
		SetOnConnectHandler(func(MQTT.Client) {
			logrus.Info("MQTT: Connected to broker")
		})
}

// ConnectMQTT verbindet den Client mit exponentiellem Backoff.
func ConnectMQTT(client MQTT.Client, maxRetries uint64) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("timeout connecting to broker")
		}
		if err := token.Error(); err != nil {
			logrus.Warnf("MQTT: Connect attempt %d failed: %v", attempt, err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, maxRetries))
	if err != nil {
		return fmt.Errorf("error connecting to MQTT broker after %d attempts: %w", attempt, err)
	}
	return nil
}
