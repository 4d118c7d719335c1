// Package layout lädt das Dashboard-Layout (Widgets und ihre Konfiguration) aus YAML
// und hält es für die Render-Engine im Speicher.
package layout

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"iot-dashboard/widget"
)

// ErrWidgetNotFound wird für IDs zurückgegeben, die nicht im Layout stehen.
var ErrWidgetNotFound = errors.New("widget not found")

// File ist das Dateiformat des Layouts.
type File struct {
	Title   string       `yaml:"title" json:"title"`
	Widgets []WidgetSpec `yaml:"widgets" json:"widgets"`
}

// WidgetSpec ist ein Widget-Eintrag der Layout-Datei.
type WidgetSpec struct {
	ID     string                 `yaml:"id" json:"id"`
	Type   string                 `yaml:"type" json:"type"`
	Config map[string]interface{} `yaml:"config" json:"config"`
}

// Load liest und parst eine Layout-Datei.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read layout %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid layout %s: %w", path, err)
	}
	return f, nil
}

// Parse dekodiert ein Layout-Dokument. Verschachtelte YAML-Maps werden in Maps mit String-Schlüsseln umgewandelt.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Widgets))
	for i := range f.Widgets {
		w := &f.Widgets[i]
		if w.ID == "" {
			return nil, fmt.Errorf("widget %d has no id", i)
		}
		if w.Type == "" {
			return nil, fmt.Errorf("widget %s has no type", w.ID)
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("duplicate widget id %s", w.ID)
		}
		seen[w.ID] = true

		cfg := make(map[string]interface{}, len(w.Config))
		for k, v := range w.Config {
			cfg[k] = normalize(v)
		}
		w.Config = cfg
	}
	return &f, nil
}

// Entries wandelt die Datei in Einträge für die Render-Engine um.
func (f *File) Entries() []widget.Entry {
	entries := make([]widget.Entry, 0, len(f.Widgets))
	for _, w := range f.Widgets {
		entries = append(entries, widget.Entry{
			Descriptor: widget.Descriptor{ID: w.ID, Type: w.Type},
			Config:     widget.Config(w.Config),
		})
	}
	return entries
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}
