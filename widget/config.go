package widget

import (
	"fmt"
	"strconv"
)

// Config is the free-form configuration bag of one widget.
// The engine treats it as read-only; use Clone before changing anything.
type Config map[string]interface{}

// Clone returns a shallow copy of the configuration.
func (c Config) Clone() Config {
	out := make(Config, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a copy of the configuration with key set to value.
func (c Config) With(key string, value interface{}) Config {
	out := c.Clone()
	out[key] = value
	return out
}

// String returns a string field or "" if it is missing or not a string.
func (c Config) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Int returns an integer field or def if it is missing or not numeric.
func (c Config) Int(key string, def int) int {
	if n, ok := toInt(c[key]); ok {
		return n
	}
	return def
}

// Object returns a nested object field.
func (c Config) Object(key string) (map[string]interface{}, bool) {
	return asObject(c[key])
}

// asObject accepts the map shapes produced by the JSON and YAML decoders.
func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Config:
		return m, true
	case Sample:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	}
	return false
}

func toStrings(v interface{}) []string {
	out := []string{}
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
