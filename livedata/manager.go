// Package livedata feeds live widgets from MQTT, HTTP, CoAP and the gateway's device cache.
// Every subscription keeps a rolling buffer that the render engine reads on each pass.
package livedata

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"iot-dashboard/widget"
)

// Transport starts feeding a data source. push may be called from any goroutine.
type Transport interface {
	Start(ds widget.DataSource, push func(widget.Sample)) (stop func(), err error)
}

// Backfiller loads recent history for a newly created buffered subscription.
type Backfiller interface {
	Backfill(ctx context.Context, ds widget.DataSource, keys []string, limit int) ([]widget.Sample, error)
}

// SampleObserver counts received samples.
type SampleObserver interface {
	ObserveSample(transport string)
}

const backfillTimeout = 10 * time.Second

type subscription struct {
	key  string
	ring *Ring
	stop func()
	refs int
	// starting is set until Transport.Start returned.
	starting bool
	// ctx ends when the subscription is stopped; running backfills are abandoned then.
	ctx    context.Context
	cancel context.CancelFunc
}

type widgetSub struct {
	key  string
	size int
}

// Manager owns all live subscriptions. Widgets reading the same source share one subscription.
// Transports are started in the background; Subscribe and Release never wait on the network.
type Manager struct {
	mu         sync.Mutex
	transports map[string]Transport
	subs       map[string]*subscription
	widgets    map[string]*widgetSub
	warned     map[string]bool

	backfill Backfiller
	observer SampleObserver
	log      logrus.FieldLogger
}

// NewManager creates a manager without transports.
func NewManager(log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		transports: make(map[string]Transport),
		subs:       make(map[string]*subscription),
		widgets:    make(map[string]*widgetSub),
		warned:     make(map[string]bool),
		log:        log,
	}
}

// Register sets the transport of a data source type.
func (m *Manager) Register(sourceType string, t Transport) {
	m.mu.Lock()
	m.transports[sourceType] = t
	m.mu.Unlock()
}

// SetBackfiller enables history backfill for buffered widgets.
func (m *Manager) SetBackfiller(b Backfiller) {
	m.mu.Lock()
	m.backfill = b
	m.mu.Unlock()
}

// SetObserver sets the sample observer.
func (m *Manager) SetObserver(o SampleObserver) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// Subscribe returns the current view of the widget's data source. A call with an
// unchanged source never reconnects; a changed source replaces the widget's old subscription.
// A new subscription yields an empty view until its transport delivers samples.
func (m *Manager) Subscribe(desc widget.Descriptor, cfg widget.Config) widget.LiveView {
	ds := widget.ParseDataSource(cfg)
	size := cfg.Int("bufferSize", widget.BufferSize(desc.Type))
	key := subscriptionKey(ds)

	m.mu.Lock()
	var stop func()
	// a subscription whose start failed is gone; the widget subscribes again
	if w, ok := m.widgets[desc.ID]; ok && (w.key != key || m.subs[w.key] == nil) {
		stop = m.releaseLocked(desc.ID)
	}
	v := m.subscribeLocked(desc.ID, key, ds, size)
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	return v
}

func (m *Manager) subscribeLocked(widgetID, key string, ds widget.DataSource, size int) widget.LiveView {
	w, ok := m.widgets[widgetID]
	if !ok {
		sub, exists := m.subs[key]
		if !exists {
			sub = m.startLocked(key, ds, size)
			if sub == nil {
				return widget.LiveView{}
			}
		}
		sub.refs++
		w = &widgetSub{key: key}
		m.widgets[widgetID] = w
	}
	w.size = size

	sub := m.subs[key]
	sub.ring.Grow(size)
	return view(sub.ring, size)
}

// Release drops the widget's reference. The last reference stops the transport.
func (m *Manager) Release(widgetID string) {
	m.mu.Lock()
	stop := m.releaseLocked(widgetID)
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Subscriptions returns the number of subscriptions, including those still starting.
func (m *Manager) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close stops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	var stops []func()
	for key, sub := range m.subs {
		sub.cancel()
		if sub.stop != nil {
			stops = append(stops, sub.stop)
		}
		delete(m.subs, key)
	}
	m.widgets = make(map[string]*widgetSub)
	m.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// releaseLocked returns the stop function the caller runs after unlocking.
func (m *Manager) releaseLocked(widgetID string) func() {
	w, ok := m.widgets[widgetID]
	if !ok {
		return nil
	}
	delete(m.widgets, widgetID)

	sub, ok := m.subs[w.key]
	if !ok {
		return nil
	}
	sub.refs--
	if sub.refs > 0 {
		return nil
	}
	if sub.starting {
		// finishStart stops it; the entry stays so a new widget reuses the pending start
		return nil
	}
	sub.cancel()
	delete(m.subs, w.key)
	m.log.WithField("subscription", w.key).Debug("LIVE: Subscription stopped")
	return sub.stop
}

func (m *Manager) startLocked(key string, ds widget.DataSource, size int) *subscription {
	log := m.log.WithFields(logrus.Fields{"transport": ds.Type, "subscription": key})

	t, ok := m.transports[ds.Type]
	if !ok {
		if !m.warned[ds.Type] {
			log.Warn("LIVE: No transport registered for data source type")
			m.warned[ds.Type] = true
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{key: key, ring: NewRing(size), starting: true, ctx: ctx, cancel: cancel}
	m.subs[key] = sub

	observer, transport, ring := m.observer, ds.Type, sub.ring
	push := func(s widget.Sample) {
		ring.Push(s)
		if observer != nil {
			observer.ObserveSample(transport)
		}
	}
	go func() {
		stop, err := t.Start(ds, push)
		m.finishStart(sub, ds, stop, err, log)
	}()
	return sub
}

func (m *Manager) finishStart(sub *subscription, ds widget.DataSource, stop func(), err error, log logrus.FieldLogger) {
	m.mu.Lock()
	sub.starting = false
	current := m.subs[sub.key] == sub

	if err != nil {
		if current {
			delete(m.subs, sub.key)
		}
		sub.cancel()
		m.mu.Unlock()
		log.Errorf("LIVE: Error starting subscription: %v", err)
		return
	}

	if !current || sub.refs <= 0 {
		if current {
			delete(m.subs, sub.key)
		}
		sub.cancel()
		m.mu.Unlock()
		if stop != nil {
			stop()
		}
		log.Debug("LIVE: Subscription released while starting")
		return
	}

	sub.stop = stop
	backfill := m.backfill
	size := sub.ring.Capacity()
	m.mu.Unlock()

	log.Info("LIVE: Subscription started")
	if backfill != nil && size > 1 {
		go m.seed(sub.ctx, backfill, sub.ring, ds, size, log)
	}
}

func (m *Manager) seed(parent context.Context, b Backfiller, ring *Ring, ds widget.DataSource, size int, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(parent, backfillTimeout)
	defer cancel()

	var keys []string
	if sel, ok := ds.Selection.(widget.TelemetrySelection); ok {
		keys = sel.Keys
	}
	history, err := b.Backfill(ctx, ds, keys, size)
	if parent.Err() != nil {
		return
	}
	if err != nil {
		log.Warnf("LIVE: Backfill failed: %v", err)
		return
	}
	n := ring.Seed(history)
	log.Debugf("LIVE: Backfilled %d samples", n)
}

func view(ring *Ring, size int) widget.LiveView {
	version := ring.Version()
	if size > 1 {
		snap := ring.Snapshot(size)
		if len(snap) == 0 {
			return widget.LiveView{Version: version}
		}
		return widget.LiveView{Data: snap, Version: version}
	}
	latest := ring.Latest()
	if latest == nil {
		return widget.LiveView{Version: version}
	}
	return widget.LiveView{Data: latest, Version: version}
}

// subscriptionKey identifies a source by transport and locator.
func subscriptionKey(ds widget.DataSource) string {
	return ds.Type + "|" + Locator(ds)
}

// Locator returns the address a transport reads a data source from.
func Locator(ds widget.DataSource) string {
	switch ds.Type {
	case widget.SourceMQTT:
		return ds.Topic
	case widget.SourceDevice:
		return ds.DeviceID
	}
	return ds.URL
}
