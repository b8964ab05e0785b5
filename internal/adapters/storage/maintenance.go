package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// archivedTables are the detection tables subject to age-based archival.
// Each gets a parallel <table>_archive created on first use.
var archivedTables = []string{
	"wifi_detections",
	"bluetooth_detections",
	"cellular_detections",
	"gps_tracks",
}

// Maintenance bundles the housekeeping operations run by scheduled jobs.
type Maintenance struct {
	pool *Pool
}

func NewMaintenance(pool *Pool) *Maintenance {
	return &Maintenance{pool: pool}
}

// ArchiveOld moves rows older than the cutoff into <table>_archive and
// removes them from the live table, one transaction per table so a failure
// never leaves a table half-archived.
func (m *Maintenance) ArchiveOld(ctx context.Context, days int) (int64, error) {
	cutoff := domain.FormatTime(time.Now().AddDate(0, 0, -days))

	var moved int64
	for _, table := range archivedTables {
		n, err := m.archiveTable(ctx, table, cutoff)
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (m *Maintenance) archiveTable(ctx context.Context, table, cutoff string) (int64, error) {
	var moved int64
	err := m.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s_archive AS SELECT * FROM %s WHERE 0`, table, table)); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s_archive SELECT * FROM %s WHERE time < ?`, table, table), cutoff)
		if err != nil {
			return err
		}
		moved, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE time < ?`, table), cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		slog.Info("archived old rows", "table", table, "rows", moved)
	}
	return moved, nil
}

// Backup writes a consistent copy of the database to dest using VACUUM INTO,
// which works while the pool stays open.
func (m *Maintenance) Backup(ctx context.Context, dest string) error {
	_, err := m.pool.Exec(ctx, `VACUUM INTO ?`, dest)
	return err
}

// Vacuum compacts the live database file.
func (m *Maintenance) Vacuum(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `VACUUM`)
	return err
}

// RefreshViews recomputes the two materialized tables. The statements are
// idempotent: each run clears and rebuilds inside one transaction.
func (m *Maintenance) RefreshViews(ctx context.Context) error {
	err := m.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily_detection_stats`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO daily_detection_stats
			(date, source, detections, unique_networks)
			SELECT substr(time, 1, 10), 'wifi', COUNT(*), COUNT(DISTINCT bssid)
			FROM wifi_detections GROUP BY substr(time, 1, 10)`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO daily_detection_stats
			(date, source, detections, unique_networks)
			SELECT substr(time, 1, 10), 'bluetooth', COUNT(*), COUNT(DISTINCT mac)
			FROM bluetooth_detections GROUP BY substr(time, 1, 10)`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO daily_detection_stats
			(date, source, detections, unique_networks)
			SELECT substr(time, 1, 10), 'cellular', COUNT(*), COUNT(DISTINCT cell_id)
			FROM cellular_detections GROUP BY substr(time, 1, 10)`)
		return err
	})
	if err != nil {
		return err
	}

	return m.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM network_coverage_grid`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO network_coverage_grid
			(cell_lat, cell_lon, detections, unique_networks)
			SELECT ROUND(lat, 4), ROUND(lon, 4), COUNT(*), COUNT(DISTINCT bssid)
			FROM wifi_detections
			WHERE lat IS NOT NULL AND lon IS NOT NULL
			GROUP BY ROUND(lat, 4), ROUND(lon, 4)`)
		return err
	})
}
