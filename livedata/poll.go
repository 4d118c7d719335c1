package livedata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"iot-dashboard/widget"
)

// FetchFunc reads the current samples of a polled source.
type FetchFunc func(ctx context.Context) ([]widget.Sample, error)

// poll calls fetch immediately and then on every tick until stop is called.
func poll(interval time.Duration, fetch FetchFunc, push func(widget.Sample), log logrus.FieldLogger) func() {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			samples, err := fetch(ctx)
			if err != nil && ctx.Err() == nil {
				log.Warnf("LIVE: Poll failed: %v", err)
			}
			for _, s := range samples {
				push(s)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// HTTPTransport polls a JSON endpoint. Each subscription gets its own circuit breaker
// so an unreachable endpoint is not hammered on every tick.
type HTTPTransport struct {
	client      *http.Client
	failures    uint32
	openTimeout time.Duration
	now         func() time.Time
	log         logrus.FieldLogger
}

// NewHTTPTransport creates an HTTP poller. The breaker opens after failures consecutive
// errors and lets a trial request through after openTimeout.
func NewHTTPTransport(client *http.Client, failures uint32, openTimeout time.Duration, log logrus.FieldLogger) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if failures == 0 {
		failures = 3
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPTransport{client: client, failures: failures, openTimeout: openTimeout, now: time.Now, log: log}
}

func (t *HTTPTransport) Start(ds widget.DataSource, push func(widget.Sample)) (func(), error) {
	if ds.URL == "" {
		return nil, fmt.Errorf("http data source without url")
	}
	log := t.log.WithField("url", ds.URL)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    ds.URL,
		Timeout: t.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= t.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("LIVE: Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	fetch := func(ctx context.Context) ([]widget.Sample, error) {
		res, err := cb.Execute(func() (interface{}, error) {
			return t.get(ctx, ds.URL)
		})
		if err != nil {
			return nil, err
		}
		return res.([]widget.Sample), nil
	}
	return poll(ds.Interval, fetch, push, log), nil
}

func (t *HTTPTransport) get(ctx context.Context, target string) ([]widget.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return DecodeSamples(req.URL.Path, body, t.now())
}

// CoAPTransport polls a CoAP resource over UDP.
type CoAPTransport struct {
	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
}

// NewCoAPTransport creates a CoAP poller.
func NewCoAPTransport(timeout time.Duration, log logrus.FieldLogger) *CoAPTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CoAPTransport{timeout: timeout, now: time.Now, log: log}
}

func (t *CoAPTransport) Start(ds widget.DataSource, push func(widget.Sample)) (func(), error) {
	host, path, err := SplitCoAPURL(ds.URL)
	if err != nil {
		return nil, err
	}
	conn, err := udp.Dial(host)
	if err != nil {
		return nil, fmt.Errorf("error dialing coap %s: %w", host, err)
	}
	log := t.log.WithField("url", ds.URL)

	fetch := func(ctx context.Context) ([]widget.Sample, error) {
		ctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		resp, err := conn.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("coap get %s: %w", path, err)
		}
		if resp.Code() != codes.Content {
			return nil, fmt.Errorf("coap get %s: unexpected code %v", path, resp.Code())
		}
		body, err := resp.ReadBody()
		if err != nil {
			return nil, fmt.Errorf("coap get %s: %w", path, err)
		}
		return DecodeSamples(path, body, t.now())
	}

	stop := poll(ds.Interval, fetch, push, log)
	return func() {
		stop()
		if err := conn.Close(); err != nil {
			log.Warnf("LIVE: Error closing coap connection: %v", err)
		}
	}, nil
}

// SplitCoAPURL splits coap://host[:port]/path into dial address and resource path.
func SplitCoAPURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid coap url %q: %w", raw, err)
	}
	if u.Scheme != "coap" || u.Hostname() == "" {
		return "", "", fmt.Errorf("invalid coap url %q", raw)
	}
	host := u.Host
	if u.Port() == "" {
		host += ":5683"
	}
	path := u.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host, path, nil
}
