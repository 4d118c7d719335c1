package widget

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultFanDataKey is the envelope key that carries per-fan state in live samples.
const DefaultFanDataKey = "fans"

// Normalize combines static data, live data and JSON-object data into the
// {data, dataKeys} pair every renderer expects. It has no side effects.
func Normalize(desc Descriptor, in Interpretation, cfg Config, liveData interface{}) RenderInput {
	theme := cfg.String("theme")

	if value, ok := in.DataSource.JSONObject(); ok {
		return RenderInput{Data: value, DataKeys: []string{}, Theme: theme}
	}

	var data interface{}
	if IsLive(in.DataSourceType) {
		data = liveData
		if desc.Type == TypeFanControl {
			if envelope, ok := asObject(liveData); ok {
				if fans, ok := asObject(envelope[fanDataKey(cfg)]); ok {
					data = fans
				}
			}
		}
	} else if static, ok := cfg["data"]; ok {
		data = static
	}
	if isNil(data) {
		data = emptyData(desc.Type)
	}

	return RenderInput{Data: data, DataKeys: in.TelemetryKeys, Theme: theme}
}

// fan-control consumes a keyed mapping, everything else an ordered list
func emptyData(widgetType string) interface{} {
	if widgetType == TypeFanControl {
		return map[string]interface{}{}
	}
	return []interface{}{}
}

func fanDataKey(cfg Config) string {
	if key := cfg.String("fanDataKey"); key != "" {
		return key
	}
	return DefaultFanDataKey
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Memo caches the last normalized input per widget. The cache key is a digest of
// (dataSource, dataSourceType, telemetryKeys, live version, config.data, widget type);
// nothing else invalidates an entry.
type Memo struct {
	mu      sync.Mutex
	entries map[string]memoEntry
}

type memoEntry struct {
	key   uint64
	input RenderInput
}

// NewMemo creates an empty cache.
func NewMemo() *Memo {
	return &Memo{entries: make(map[string]memoEntry)}
}

// Normalize returns the cached input for the widget or recomputes it.
// The theme is never cached.
func (m *Memo) Normalize(desc Descriptor, in Interpretation, cfg Config, view LiveView) (RenderInput, bool) {
	key := fingerprint(desc, in, cfg, view)

	m.mu.Lock()
	entry, ok := m.entries[desc.ID]
	m.mu.Unlock()
	if ok && entry.key == key {
		input := entry.input
		input.Theme = cfg.String("theme")
		return input, true
	}

	input := Normalize(desc, in, cfg, view.Data)
	m.mu.Lock()
	m.entries[desc.ID] = memoEntry{key: key, input: input}
	m.mu.Unlock()
	return input, false
}

// Forget drops the cached entry of a removed widget.
func (m *Memo) Forget(widgetID string) {
	m.mu.Lock()
	delete(m.entries, widgetID)
	m.mu.Unlock()
}

// Len returns the number of cached widgets.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func fingerprint(desc Descriptor, in Interpretation, cfg Config, view LiveView) uint64 {
	h := xxhash.New()
	writeCanonical(h, in.DataSource.raw)
	fmt.Fprintf(h, "|%s|%q|%d|", in.DataSourceType, in.TelemetryKeys, view.Version)
	writeCanonical(h, cfg["data"])
	fmt.Fprintf(h, "|%s|%s", desc.Type, fanDataKey(cfg))
	return h.Sum64()
}

// JSON map encoding is key-sorted, which makes it usable as a canonical form
func writeCanonical(h *xxhash.Digest, v interface{}) {
	if obj, ok := asObject(v); ok {
		v = stringKeyed(obj)
	}
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(h, "%#v", v)
		return
	}
	_, _ = h.Write(b)
}

// yaml.v2 nests map[interface{}]interface{}, which encoding/json rejects
func stringKeyed(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if nested, ok := asObject(v); ok {
			out[k] = stringKeyed(nested)
			continue
		}
		out[k] = v
	}
	return out
}
