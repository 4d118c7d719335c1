package mqtt_broker

import (
	"crypto/tls"
	"fmt"
	"sync"

	MQTT "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"iot-dashboard/logic"
)

var (
	server *MQTT.Server
	mu     sync.Mutex
)

// Lese-/Schreibrechte wie im mochi auth-Ledger
const (
	permissionDeny      = 0
	permissionRead      = 1
	permissionWrite     = 2
	permissionReadWrite = 3
)

// StartBroker initialisiert den eingebetteten Broker synchron und startet den blockierenden
// Serve-Loop asynchron. Der Dashboard-Client (dashboard) erhält vollen Zugriff.
func StartBroker(cfg logic.BrokerConfig, dashboard logic.MQTTConfig, tlsConfig *tls.Config) (*MQTT.Server, error) {
	mu.Lock()
	defer mu.Unlock()
	if server != nil {
		return server, nil
	}

	authData, err := buildAuthData(cfg.Users, dashboard)
	if err != nil {
		return nil, fmt.Errorf("MQTT-Broker: failed to build auth data: %w", err)
	}

	s := MQTT.New(&MQTT.Options{
		InlineClient: true,
	})
	if err := s.AddHook(new(auth.Hook), &auth.Options{Data: authData}); err != nil {
		return nil, fmt.Errorf("MQTT-Broker: failed to add auth hook: %w", err)
	}
	if err := createListeners(s, cfg.Listeners, tlsConfig); err != nil {
		return nil, fmt.Errorf("MQTT-Broker: error adding listeners: %w", err)
	}

	go func() {
		if err := s.Serve(); err != nil {
			logrus.Errorf("MQTT-Broker: Serve error: %v", err)
		}
	}()
	server = s
	logrus.Infof("MQTT-Broker: Started with %d listeners", len(cfg.Listeners))
	return s, nil
}

// NeedsTLS meldet, ob mindestens ein Listener TLS verlangt.
func NeedsTLS(cfg logic.BrokerConfig) bool {
	for _, l := range cfg.Listeners {
		if l.TLS {
			return true
		}
	}
	return false
}

func createListeners(s *MQTT.Server, configs []logic.ListenerConfig, tlsConfig *tls.Config) error {
	for _, listener := range configs {
		if listener.TLS && tlsConfig == nil {
			return fmt.Errorf("listener %s requires TLS but no certificate is loaded", listener.ID)
		}

		lc := listeners.Config{
			ID:        listener.ID,
			Address:   listener.Address,
			TLSConfig: getTLSConfig(listener.TLS, tlsConfig),
		}
		var l listeners.Listener
		switch listener.Type {
		case "tcp":
			l = listeners.NewTCP(lc)
		case "websocket":
			l = listeners.NewWebsocket(lc)
		case "http":
			l = listeners.NewHTTPStats(lc, s.Info)
		default:
			logrus.Warn("MQTT-Broker: Unknown listener type: ", listener.Type)
			continue
		}

		if err := s.AddListener(l); err != nil {
			return fmt.Errorf("error adding listener %s: %w", listener.ID, err)
		}
	}
	return nil
}

func getTLSConfig(tlsRequired bool, tlsConfig *tls.Config) *tls.Config {
	if tlsRequired {
		return tlsConfig
	}
	return nil
}

// buildAuthData erzeugt den YAML-Ledger für den auth-Hook aus den konfigurierten Benutzern.
func buildAuthData(users []logic.BrokerUser, dashboard logic.MQTTConfig) ([]byte, error) {
	var authRules []map[string]interface{}
	var aclRules []map[string]interface{}

	add := func(username, password string, filters map[string]int) {
		authRules = append(authRules, map[string]interface{}{
			"username": username,
			"password": password,
			"allow":    true,
		})
		aclRules = append(aclRules, map[string]interface{}{
			"username": username,
			"filters":  filters,
		})
	}

	if dashboard.Username != "" {
		add(dashboard.Username, dashboard.Password, map[string]int{"#": permissionReadWrite})
	}
	for _, u := range users {
		if u.Username == dashboard.Username {
			continue
		}
		filters := u.Filters
		if filters == nil {
			filters = map[string]int{"#": permissionRead}
		}
		for topic, p := range filters {
			if p < permissionDeny || p > permissionReadWrite {
				return nil, fmt.Errorf("user %s: invalid permission %d for %s", u.Username, p, topic)
			}
		}
		add(u.Username, u.Password, filters)
	}

	data := map[string]interface{}{
		"auth": authRules,
		"acl":  aclRules,
	}
	return yaml.Marshal(data)
}

// StopBroker stoppt den MQTT Broker
func StopBroker() {
	mu.Lock()
	defer mu.Unlock()
	if server != nil {
		server.Close()
		server = nil
		logrus.Info("MQTT-Broker: Stopped successfully.")
	} else {
		logrus.Info("MQTT-Broker: Not running.")
	}
}
