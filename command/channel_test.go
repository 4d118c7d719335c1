package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-dashboard/widget"
)

type token struct{ err error }

func (t token) Wait() bool                     { return true }
func (t token) WaitTimeout(time.Duration) bool { return true }
func (t token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t token) Error() error { return t.err }

type published struct {
	topic   string
	payload map[string]interface{}
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	failFirst int
	calls     int
	sent      []published
	block     chan struct{}
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return token{err: errors.New("not connected")}
	}
	var body map[string]interface{}
	_ = json.Unmarshal(payload.([]byte), &body)
	f.sent = append(f.sent, published{topic: topic, payload: body})
	return token{}
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func testChannel(pub Publisher, obs Observer) *Channel {
	log, _ := test.NewNullLogger()
	return NewChannel(pub, Options{
		MaxRetries: 2,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Observer:   obs,
		Log:        log,
	})
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveCommand(transport, result string) {
	o.mu.Lock()
	o.counts[transport+"/"+result]++
	o.mu.Unlock()
}

func mqttSource() widget.DataSource {
	return widget.DataSource{Type: widget.SourceMQTT, Topic: "hall/fans/"}
}

func TestCommandTopic(t *testing.T) {
	assert.Equal(t, "hall/fans/set", CommandTopic(mqttSource()))
	assert.Equal(t, "hall/cmd", CommandTopic(widget.DataSource{Topic: "hall", CommandTopic: "hall/cmd"}))
	assert.Equal(t, "", CommandTopic(widget.DataSource{}))
}

func TestMQTTSenders(t *testing.T) {
	pub := &fakePublisher{connected: true}
	ch := testChannel(pub, nil)
	b := ch.Bind(mqttSource())
	ctx := context.Background()

	assert.True(t, b.Connected)
	assert.False(t, b.IsSending)
	require.NoError(t, b.SendCommand(ctx, "setpoint", 21.5))
	require.NoError(t, b.FanSendCommand(ctx, "fan2", "speed", 60))
	require.NoError(t, b.CommandControlSendCommand(ctx, "reset", map[string]interface{}{"hard": true}))

	assert.Equal(t, []published{
		{topic: "hall/fans/set", payload: map[string]interface{}{"setpoint": 21.5}},
		{topic: "hall/fans/set/fans/fan2", payload: map[string]interface{}{"speed": 60.0}},
		{topic: "hall/fans/set", payload: map[string]interface{}{
			"command": "reset",
			"payload": map[string]interface{}{"hard": true},
		}},
	}, pub.sent)
}

func TestMQTTSendersWithoutTopic(t *testing.T) {
	pub := &fakePublisher{connected: true}
	b := testChannel(pub, nil).Bind(widget.DataSource{Type: widget.SourceMQTT})
	ctx := context.Background()

	assert.ErrorIs(t, b.SendCommand(ctx, "on", true), errNoTopic)
	assert.ErrorIs(t, b.FanSendCommand(ctx, "fan1", "speed", 10), errNoTopic)
	assert.ErrorIs(t, b.CommandControlSendCommand(ctx, "reset", nil), errNoTopic)
	assert.Empty(t, pub.sent)
	assert.Zero(t, pub.calls)
}

func TestMQTTPublishRetries(t *testing.T) {
	pub := &fakePublisher{connected: true, failFirst: 2}
	obs := &countingObserver{counts: map[string]int{}}
	ch := testChannel(pub, obs)

	require.NoError(t, ch.Bind(mqttSource()).SendCommand(context.Background(), "on", true))
	assert.Equal(t, 3, pub.calls)
	assert.Equal(t, 1, obs.counts["mqtt/ok"])
}

func TestMQTTPublishGivesUp(t *testing.T) {
	pub := &fakePublisher{connected: true, failFirst: 10}
	obs := &countingObserver{counts: map[string]int{}}
	ch := testChannel(pub, obs)

	err := ch.Bind(mqttSource()).SendCommand(context.Background(), "on", true)
	assert.ErrorContains(t, err, "not connected")
	assert.Equal(t, 3, pub.calls)
	assert.Equal(t, 1, obs.counts["mqtt/error"])
	assert.False(t, ch.Bind(mqttSource()).Connected, "a failed target is reported as disconnected")
}

func TestIsSendingWhileInFlight(t *testing.T) {
	pub := &fakePublisher{connected: true, block: make(chan struct{})}
	ch := testChannel(pub, nil)

	done := make(chan error)
	go func() {
		done <- ch.Bind(mqttSource()).SendCommand(context.Background(), "on", true)
	}()

	require.Eventually(t, func() bool {
		return ch.inFlight("mqtt|hall/fans/set") == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, ch.Bind(mqttSource()).IsSending)

	close(pub.block)
	require.NoError(t, <-done)
	assert.False(t, ch.Bind(mqttSource()).IsSending)
}

func TestNotWritableSources(t *testing.T) {
	ch := testChannel(&fakePublisher{connected: true}, nil)
	ctx := context.Background()

	for _, typ := range []string{widget.SourceStatic, widget.SourceCoAP, widget.SourceDevice} {
		b := ch.Bind(widget.DataSource{Type: typ})
		assert.False(t, b.Connected, typ)
		assert.ErrorIs(t, b.SendCommand(ctx, "k", 1), ErrNotWritable)
		assert.ErrorIs(t, b.FanSendCommand(ctx, "f", "c", 1), ErrNotWritable)
		assert.ErrorIs(t, b.CommandControlSendCommand(ctx, "c", nil), ErrNotWritable)
	}

	noBroker := testChannel(nil, nil)
	assert.ErrorIs(t, noBroker.Bind(mqttSource()).SendCommand(ctx, "k", 1), ErrNotWritable)
}

func TestHTTPSenders(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]interface{}
		paths  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		bodies = append(bodies, body)
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := testChannel(nil, nil)
	ctx := context.Background()
	b := ch.Bind(widget.DataSource{Type: widget.SourceHTTP, URL: srv.URL + "/values", CommandURL: srv.URL + "/commands"})
	assert.True(t, b.Connected)

	require.NoError(t, b.SendCommand(ctx, "valve", "open"))
	require.NoError(t, b.FanSendCommand(ctx, "f1", "speed", 10))
	assert.Equal(t, []string{"/commands", "/commands"}, paths)
	assert.Equal(t, map[string]interface{}{"valve": "open"}, bodies[0])
	assert.Equal(t, map[string]interface{}{"fanId": "f1", "command": "speed", "value": 10.0}, bodies[1])

	broken := ch.Bind(widget.DataSource{Type: widget.SourceHTTP, URL: srv.URL + "/broken"})
	assert.Error(t, broken.CommandControlSendCommand(ctx, "reboot", nil))
	assert.False(t, ch.Bind(widget.DataSource{Type: widget.SourceHTTP, URL: srv.URL + "/broken"}).Connected)
}
