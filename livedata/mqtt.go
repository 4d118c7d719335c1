package livedata

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"iot-dashboard/widget"
)

// Subscriber is the part of the paho client the MQTT transport uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// SampleRecorder receives every decoded MQTT sample together with its topic.
type SampleRecorder interface {
	Record(topic string, s widget.Sample)
}

// MQTTTransport subscribes data source topics on a shared client.
type MQTTTransport struct {
	client   Subscriber
	qos      byte
	timeout  time.Duration
	now      func() time.Time
	recorder SampleRecorder
	log      logrus.FieldLogger
}

// NewMQTTTransport creates a transport on an existing (auto-reconnecting) client.
func NewMQTTTransport(client Subscriber, qos byte, log logrus.FieldLogger) *MQTTTransport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTTTransport{
		client:  client,
		qos:     qos,
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     log,
	}
}

// SetRecorder copies received samples to r, e.g. a DeviceMirror. Call before the first Start.
func (t *MQTTTransport) SetRecorder(r SampleRecorder) {
	t.recorder = r
}

func (t *MQTTTransport) Start(ds widget.DataSource, push func(widget.Sample)) (func(), error) {
	if ds.Topic == "" {
		return nil, fmt.Errorf("mqtt data source without topic")
	}
	topic := ds.Topic
	log := t.log.WithField("topic", topic)

	token := t.client.Subscribe(topic, t.qos, func(_ mqtt.Client, msg mqtt.Message) {
		samples, err := DecodeSamples(msg.Topic(), msg.Payload(), t.now())
		if err != nil {
			log.Warnf("LIVE: Dropping MQTT message: %v", err)
			return
		}
		for _, s := range samples {
			if t.recorder != nil {
				t.recorder.Record(msg.Topic(), s)
			}
			push(s)
		}
	})
	if !token.WaitTimeout(t.timeout) {
		return nil, fmt.Errorf("timeout subscribing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", topic, err)
	}

	return func() {
		if tok := t.client.Unsubscribe(topic); tok.WaitTimeout(t.timeout) && tok.Error() != nil {
			log.Warnf("LIVE: Error unsubscribing: %v", tok.Error())
		}
	}, nil
}
