package logic

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/glebarez/go-sqlite" // Import für SQLite
)

// DeviceTimestampLayout ist das Zeitformat, in dem die Gateway-Treiber device_data schreiben.
const DeviceTimestampLayout = "02.01.2006 15:04:05.000"

const (
	createDeviceDataTable = `
		CREATE TABLE IF NOT EXISTS device_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_name TEXT NOT NULL,
			deviceId TEXT NOT NULL,
			datapoint TEXT NOT NULL,
			datapointId TEXT NOT NULL,
			value TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
	`

	createDeviceDataIndex = `
		CREATE INDEX IF NOT EXISTS idx_device_data_device ON device_data (deviceId, id);
	`
)

// DeviceData ist eine Zeile des Gerätedaten-Caches.
type DeviceData struct {
	DeviceName  string
	DeviceId    string
	Datapoint   string
	DatapointId string
	Value       string
	Timestamp   string
}

// InitDB initialisiert die SQLite-Datenbank mit einem übergebenen Pfad
func InitDB(dbPath string) (*sql.DB, error) {
	// Überprüfen, ob die Datenbankdatei existiert
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		file, err := os.Create(dbPath)
		if err != nil {
			return nil, fmt.Errorf("error creating database file: %w", err)
		}
		file.Close()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite verträgt nur einen Schreiber
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{createDeviceDataTable, createDeviceDataIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating tables: %w", err)
		}
	}
	return db, nil
}

// SaveDeviceData schreibt einen Batch in den Cache.
func SaveDeviceData(db *sql.DB, batch []DeviceData) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO device_data (device_name, deviceId, datapoint, datapointId, value, timestamp) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, data := range batch {
		if _, err := stmt.Exec(data.DeviceName, data.DeviceId, data.Datapoint, data.DatapointId, data.Value, data.Timestamp); err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting device data: %w", err)
		}
	}
	return tx.Commit()
}

// PruneDeviceData löscht alle Einträge, die älter als maxAge sind, und gibt deren Anzahl zurück.
func PruneDeviceData(db *sql.DB, maxAge time.Duration, now time.Time) (int64, error) {
	// Das Zeitformat ist nicht lexikografisch sortierbar, deshalb wird in SQLite umgewandelt.
	cutoff := now.Add(-maxAge).Format("2006-01-02 15:04:05.000")
	res, err := db.Exec(`
		DELETE FROM device_data
		WHERE substr(timestamp, 7, 4) || '-' || substr(timestamp, 4, 2) || '-' || substr(timestamp, 1, 2)
			|| ' ' || substr(timestamp, 12) < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error pruning device data: %w", err)
	}
	return res.RowsAffected()
}
