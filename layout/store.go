package layout

import (
	"sync"

	"github.com/sirupsen/logrus"

	"iot-dashboard/widget"
)

// Store hält das aktuelle Layout. Konfigurationsänderungen der Renderer werden
// nur im Speicher übernommen.
type Store struct {
	mu      sync.RWMutex
	title   string
	entries []widget.Entry
	index   map[string]int
	log     logrus.FieldLogger
}

// NewStore erzeugt einen Store aus einem geparsten Layout.
func NewStore(f *File, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{log: log}
	s.Replace(f)
	return s
}

// Title gibt den Titel des Dashboards zurück.
func (s *Store) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Snapshot gibt eine Kopie aller Einträge in Layout-Reihenfolge zurück.
func (s *Store) Snapshot() []widget.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]widget.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get gibt einen Eintrag zurück.
func (s *Store) Get(id string) (widget.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return widget.Entry{}, ErrWidgetNotFound
	}
	return s.entries[i], nil
}

// ApplyConfigChange ersetzt die Konfiguration eines Widgets (Signatur von
// widget.ConfigChangeFunc).
func (s *Store) ApplyConfigChange(id string, merged widget.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		s.log.WithField("widget_id", id).Warn("LAYOUT: Config change for unknown widget ignored")
		return
	}
	s.entries[i].Config = merged.Clone()
	s.log.WithField("widget_id", id).Info("LAYOUT: Widget configuration updated")
}

// Replace übernimmt ein neues Layout und gibt die IDs der entfernten Widgets zurück.
func (s *Store) Replace(f *File) []string {
	entries := f.Entries()
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, old := range s.entries {
		if _, ok := index[old.ID]; !ok {
			removed = append(removed, old.ID)
		}
	}
	s.title = f.Title
	s.entries = entries
	s.index = index
	return removed
}
