// Package command publishes control commands of interactive widgets to devices.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"iot-dashboard/widget"
)

// ErrNotWritable is returned by senders bound to a source that cannot take commands.
var ErrNotWritable = errors.New("data source does not accept commands")

// Publisher is the part of the paho client the channel uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Observer counts command results per transport.
type Observer interface {
	ObserveCommand(transport, result string)
}

// Options tune a Channel.
type Options struct {
	QoS            byte
	PublishTimeout time.Duration
	MaxRetries     uint64
	HTTPClient     *http.Client
	// NewBackOff creates the retry policy of one publish; defaults to exponential backoff.
	NewBackOff func() backoff.BackOff
	Observer   Observer
	Log        logrus.FieldLogger
}

// Channel binds command senders to data sources and tracks in-flight commands per target.
type Channel struct {
	mqtt Publisher
	opts Options

	mu      sync.Mutex
	targets map[string]*target
}

type target struct {
	inFlight int
	failed   bool
}

// NewChannel creates a channel. client may be nil when no broker is configured.
func NewChannel(client Publisher, opts Options) *Channel {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxElapsedTime = 10 * time.Second
			return bo
		}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Channel{mqtt: client, opts: opts, targets: make(map[string]*target)}
}

// Bind returns the senders and status flags for a data source.
func (c *Channel) Bind(ds widget.DataSource) widget.CommandBinding {
	switch ds.Type {
	case widget.SourceMQTT:
		return c.bindMQTT(ds)
	case widget.SourceHTTP:
		return c.bindHTTP(ds)
	}
	return notWritable()
}

func notWritable() widget.CommandBinding {
	return widget.CommandBinding{
		SendCommand: func(context.Context, string, interface{}) error {
			return ErrNotWritable
		},
		FanSendCommand: func(context.Context, string, string, interface{}) error {
			return ErrNotWritable
		},
		CommandControlSendCommand: func(context.Context, string, interface{}) error {
			return ErrNotWritable
		},
	}
}

// CommandTopic returns the topic commands for an MQTT source are published to.
func CommandTopic(ds widget.DataSource) string {
	if ds.CommandTopic != "" {
		return ds.CommandTopic
	}
	if ds.Topic == "" {
		return ""
	}
	return strings.TrimRight(ds.Topic, "/") + "/set"
}

var errNoTopic = errors.New("mqtt data source without topic or commandTopic")

func (c *Channel) bindMQTT(ds widget.DataSource) widget.CommandBinding {
	if c.mqtt == nil {
		return notWritable()
	}
	topic := CommandTopic(ds)
	key := "mqtt|" + topic
	sending, failed := c.status(key)

	publish := func(ctx context.Context, to string, body interface{}) error {
		return c.track(key, widget.SourceMQTT, func() error {
			return c.publish(ctx, to, body)
		})
	}

	return widget.CommandBinding{
		SendCommand: func(ctx context.Context, k string, value interface{}) error {
			return publish(ctx, topic, map[string]interface{}{k: value})
		},
		FanSendCommand: func(ctx context.Context, fanID, command string, value interface{}) error {
			if topic == "" {
				return errNoTopic
			}
			return publish(ctx, topic+"/fans/"+fanID, map[string]interface{}{command: value})
		},
		CommandControlSendCommand: func(ctx context.Context, command string, payload interface{}) error {
			return publish(ctx, topic, map[string]interface{}{"command": command, "payload": payload})
		},
		IsSending: sending,
		Connected: c.mqtt.IsConnected() && !failed,
	}
}

func (c *Channel) publish(ctx context.Context, topic string, body interface{}) error {
	if topic == "" {
		return errNoTopic
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshalling command: %w", err)
	}

	op := func() error {
		token := c.mqtt.Publish(topic, c.opts.QoS, false, payload)
		if !token.WaitTimeout(c.opts.PublishTimeout) {
			return fmt.Errorf("timeout publishing to %s", topic)
		}
		return token.Error()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.opts.NewBackOff(), c.opts.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("error publishing to %s: %w", topic, err)
	}
	return nil
}

func (c *Channel) bindHTTP(ds widget.DataSource) widget.CommandBinding {
	url := ds.CommandURL
	if url == "" {
		url = ds.URL
	}
	key := "http|" + url
	sending, failed := c.status(key)

	post := func(ctx context.Context, body interface{}) error {
		return c.track(key, widget.SourceHTTP, func() error {
			return c.post(ctx, url, body)
		})
	}

	return widget.CommandBinding{
		SendCommand: func(ctx context.Context, k string, value interface{}) error {
			return post(ctx, map[string]interface{}{k: value})
		},
		FanSendCommand: func(ctx context.Context, fanID, command string, value interface{}) error {
			return post(ctx, map[string]interface{}{"fanId": fanID, "command": command, "value": value})
		},
		CommandControlSendCommand: func(ctx context.Context, command string, payload interface{}) error {
			return post(ctx, map[string]interface{}{"command": command, "payload": payload})
		},
		IsSending: sending,
		Connected: url != "" && !failed,
	}
}

func (c *Channel) post(ctx context.Context, url string, body interface{}) error {
	if url == "" {
		return fmt.Errorf("http data source without url or commandUrl")
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshalling command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}

func (c *Channel) status(key string) (sending, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.targets[key]
	if !ok {
		return false, false
	}
	return t.inFlight > 0, t.failed
}

// inFlight returns the number of unfinished commands for a target key.
func (c *Channel) inFlight(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.targets[key]; ok {
		return t.inFlight
	}
	return 0
}

func (c *Channel) track(key, transport string, send func() error) error {
	c.mu.Lock()
	t, ok := c.targets[key]
	if !ok {
		t = &target{}
		c.targets[key] = t
	}
	t.inFlight++
	c.mu.Unlock()

	err := send()

	c.mu.Lock()
	t.inFlight--
	t.failed = err != nil
	c.mu.Unlock()

	log := c.opts.Log.WithFields(logrus.Fields{"transport": transport, "target": key})
	result := "ok"
	if err != nil {
		result = "error"
		log.Errorf("CMD: Error sending command: %v", err)
	} else {
		log.Debug("CMD: Command sent")
	}
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveCommand(transport, result)
	}
	return err
}
