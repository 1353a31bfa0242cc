package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			location_name TEXT,
			latitude REAL,
			longitude REAL,
			radius_miles REAL NOT NULL DEFAULT 0,
			polygon TEXT,
			affected_regions TEXT,
			effective_time DATETIME NOT NULL,
			expires_time DATETIME,
			source TEXT NOT NULL,
			source_url TEXT,
			metadata TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS recipients (
			id TEXT PRIMARY KEY,
			home_latitude REAL,
			home_longitude REAL,
			alert_radius_miles REAL NOT NULL DEFAULT 25,
			regions TEXT,
			severity_threshold TEXT NOT NULL DEFAULT 'minor',
			quiet_hours_start INTEGER,
			quiet_hours_end INTEGER,
			plan TEXT NOT NULL DEFAULT 'free',
			is_active INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS zones (
			id TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			name TEXT,
			center_latitude REAL,
			center_longitude REAL,
			radius_miles REAL NOT NULL DEFAULT 0,
			polygon TEXT,
			severity_threshold TEXT NOT NULL DEFAULT '',
			categories TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (recipient_id) REFERENCES recipients(id)
		);

		CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			channel_type TEXT NOT NULL,
			destination TEXT NOT NULL,
			is_verified INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			severity_threshold TEXT NOT NULL DEFAULT '',
			categories TEXT,
			FOREIGN KEY (recipient_id) REFERENCES recipients(id)
		);

		CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			alert_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			sent_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_external_id ON alerts(external_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(is_active, expires_time);
		CREATE INDEX IF NOT EXISTS idx_zones_recipient ON zones(recipient_id);
		CREATE INDEX IF NOT EXISTS idx_channels_recipient ON channels(recipient_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_alert ON deliveries(alert_id);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
