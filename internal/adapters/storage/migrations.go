package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// migration is one schema step. Statements run in a single transaction
// together with the schema_migrations bookkeeping row.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS wifi_detections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL DEFAULT 'adhoc',
				bssid TEXT NOT NULL,
				ssid TEXT NOT NULL DEFAULT '',
				channel INTEGER,
				frequency_mhz INTEGER,
				signal_dbm REAL,
				encryption TEXT,
				vendor TEXT,
				station_count INTEGER NOT NULL DEFAULT 0,
				lat REAL,
				lon REAL,
				altitude REAL,
				accuracy REAL,
				heading REAL,
				time TEXT NOT NULL,
				first_seen TEXT,
				last_seen TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_wifi_bssid_time ON wifi_detections(bssid, time)`,
			`CREATE INDEX IF NOT EXISTS idx_wifi_time ON wifi_detections(time)`,
			`CREATE TABLE IF NOT EXISTS bluetooth_detections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL DEFAULT 'adhoc',
				mac TEXT NOT NULL,
				name TEXT,
				rssi_dbm REAL,
				device_class TEXT,
				lat REAL,
				lon REAL,
				heading REAL,
				time TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_bt_time ON bluetooth_detections(time)`,
			`CREATE TABLE IF NOT EXISTS cellular_detections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL DEFAULT 'adhoc',
				cell_id TEXT NOT NULL,
				lac TEXT,
				mcc TEXT,
				mnc TEXT,
				technology TEXT,
				band TEXT,
				signal_dbm REAL,
				lat REAL,
				lon REAL,
				heading REAL,
				time TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cell_time ON cellular_detections(time)`,
			`CREATE TABLE IF NOT EXISTS gps_tracks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL DEFAULT 'adhoc',
				lat REAL NOT NULL,
				lon REAL NOT NULL,
				altitude REAL,
				accuracy REAL,
				speed REAL,
				heading REAL,
				satellites INTEGER,
				hdop REAL,
				vdop REAL,
				pdop REAL,
				fix TEXT,
				time TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_gps_time ON gps_tracks(time)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS network_fingerprints (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				bssid TEXT NOT NULL,
				ssid TEXT NOT NULL DEFAULT '',
				fingerprint_hash TEXT NOT NULL,
				characteristics TEXT NOT NULL,
				classification TEXT NOT NULL,
				risk_level TEXT NOT NULL,
				confidence REAL NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_fp_bssid ON network_fingerprints(bssid, created_at)`,
			`CREATE TABLE IF NOT EXISTS suspicious_activities (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL DEFAULT 'adhoc',
				activity_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				target_bssid TEXT,
				target_ssid TEXT,
				evidence TEXT,
				lat REAL,
				lon REAL,
				detected_at TEXT NOT NULL,
				analyzed INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_suspicious_time ON suspicious_activities(detected_at)`,
			`CREATE TABLE IF NOT EXISTS network_analytics (
				bssid TEXT NOT NULL,
				date TEXT NOT NULL,
				total_detections INTEGER NOT NULL,
				unique_locations INTEGER NOT NULL,
				signal_min REAL,
				signal_max REAL,
				signal_mean REAL,
				signal_variance REAL,
				coverage_radius_m REAL,
				mobility_score REAL,
				encryption_changes INTEGER NOT NULL DEFAULT 0,
				ssid_changes INTEGER NOT NULL DEFAULT 0,
				channel_changes INTEGER NOT NULL DEFAULT 0,
				suspicious_score REAL NOT NULL DEFAULT 0,
				PRIMARY KEY (bssid, date)
			)`,
			`CREATE TABLE IF NOT EXISTS ap_cache (
				bssid TEXT PRIMARY KEY,
				ssid TEXT NOT NULL DEFAULT '',
				encryption TEXT,
				vendor TEXT,
				lat REAL,
				lon REAL,
				last_time TEXT NOT NULL
			)`,
		},
	},
	{
		version: 3,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS health_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				time TEXT NOT NULL,
				cpu_temp_c REAL,
				cpu_percent REAL NOT NULL,
				memory_percent REAL NOT NULL,
				disk_percent REAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_health_time ON health_records(time)`,
			`CREATE TABLE IF NOT EXISTS sync_state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
	{
		version: 4,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS daily_detection_stats (
				date TEXT NOT NULL,
				source TEXT NOT NULL,
				detections INTEGER NOT NULL,
				unique_networks INTEGER NOT NULL,
				PRIMARY KEY (date, source)
			)`,
			`CREATE TABLE IF NOT EXISTS network_coverage_grid (
				cell_lat REAL NOT NULL,
				cell_lon REAL NOT NULL,
				detections INTEGER NOT NULL,
				unique_networks INTEGER NOT NULL,
				PRIMARY KEY (cell_lat, cell_lon)
			)`,
		},
	},
}

// Migrate applies pending schema migrations in order. Versions recorded in
// the database but unknown to this binary (downgrades) are logged and
// tolerated; reads still work against a newer schema.
func Migrate(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return err
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	known := make(map[int]struct{}, len(migrations))
	for _, m := range migrations {
		known[m.version] = struct{}{}
	}
	for v := range applied {
		if _, ok := known[v]; !ok {
			slog.Warn("database schema is ahead of this build", "version", v)
		}
	}

	for _, m := range migrations {
		if _, ok := applied[m.version]; ok {
			continue
		}
		err := pool.WithTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.version, domain.FormatTime(time.Now()))
			return err
		})
		if err != nil {
			return classify("migrate", err)
		}
		slog.Info("schema migration applied", "version", m.version)
	}
	return nil
}

func appliedVersions(ctx context.Context, pool *Pool) (map[int]struct{}, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, classify("scan_migrations", err)
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}
