package logic

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultLogEntries = 300

// Logger-Instanz, die an die Komponenten übergeben wird, und der Speicher für GET /api/logs
var (
	log    = logrus.New()
	memory = newLogBuffer(defaultLogEntries)
)

// init hängt den Speicher an den globalen logrus.Logger und an die eigene Instanz,
// damit auch Bibliotheken ohne injizierten Logger erfasst werden.
func init() {
	for _, l := range []*logrus.Logger{logrus.StandardLogger(), log} {
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(logrus.InfoLevel)
		l.AddHook(&memoryHook{buf: memory})
	}
}

// SetupLogging setzt Log-Level und Größe des Log-Speichers.
func SetupLogging(level string, maxEntries int) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	log.SetLevel(lvl)

	if maxEntries > 0 {
		memory.resize(maxEntries)
	}
	return nil
}

// GetLogger gibt die Logger-Instanz zurück, die den Komponenten injiziert wird.
func GetLogger() *logrus.Logger {
	return log
}

// GetLogs gibt eine Kopie aller gespeicherten Logs zurück, älteste zuerst.
func GetLogs() []string {
	return memory.snapshot()
}

// ClearLogs leert den Log-Speicher.
func ClearLogs() {
	memory.clear()
}

// logBuffer hält die letzten max formatierten Log-Zeilen.
type logBuffer struct {
	mu      sync.Mutex
	max     int
	entries []string
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max, entries: make([]string, 0, max)}
}

func (b *logBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, line)
	b.trimLocked()
}

func (b *logBuffer) resize(max int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.max = max
	b.trimLocked()
}

func (b *logBuffer) trimLocked() {
	if over := len(b.entries) - b.max; over > 0 {
		b.entries = append(b.entries[:0:0], b.entries[over:]...)
	}
}

func (b *logBuffer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.entries...)
}

func (b *logBuffer) clear() {
	b.mu.Lock()
	b.entries = make([]string, 0, b.max)
	b.mu.Unlock()
}

// memoryHook schreibt jeden Eintrag formatiert in den Log-Speicher.
type memoryHook struct {
	buf *logBuffer
}

func (h *memoryHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	h.buf.add(line)
	return nil
}

func (h *memoryHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
