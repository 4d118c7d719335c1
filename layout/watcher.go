package layout

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Watch prüft regelmäßig die Änderungszeit der Layout-Datei und ruft onChange mit dem
// neu geparsten Layout auf. Fehlerhafte Änderungen werden geloggt und übersprungen.
func Watch(ctx context.Context, path string, interval time.Duration, onChange func(*File), log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	lastModTime, err := modTime(path)
	if err != nil {
		log.Warnf("LAYOUT: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := modTime(path)
		if err != nil {
			log.Warnf("LAYOUT: %v", err)
			continue
		}
		if current.Equal(lastModTime) {
			continue
		}
		lastModTime = current

		f, err := Load(path)
		if err != nil {
			log.Errorf("LAYOUT: Keeping previous layout: %v", err)
			continue
		}
		log.Info("LAYOUT: Layout file has changed")
		onChange(f)
	}
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not get file info: %w", err)
	}
	return info.ModTime(), nil
}
