package database

import (
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(dbPath string) error {
	var err error
	DB, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	// sqlite allows a single writer; the monitor and the router share it
	DB.SetMaxOpenConns(1)

	createNotificationsTable := `
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		alert_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		threshold INTEGER NOT NULL,
		volume INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_chat ON notifications (chat_id, id);`
	if _, err = DB.Exec(createNotificationsTable); err != nil {
		return errors.Wrap(err, "failed to create notifications table")
	}

	createMetricsTable := `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err = DB.Exec(createMetricsTable); err != nil {
		return errors.Wrap(err, "failed to create metrics table")
	}

	log.Infof("database initialized at %s", dbPath)
	return nil
}

func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
