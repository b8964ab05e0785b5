package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// HealthRepo persists node health samples and the remote-sync watermark.
type HealthRepo struct {
	pool *Pool
}

func NewHealthRepo(pool *Pool) *HealthRepo {
	return &HealthRepo{pool: pool}
}

// Insert writes one health sample.
func (r *HealthRepo) Insert(ctx context.Context, s *domain.HealthSample) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO health_records
		(time, cpu_temp_c, cpu_percent, memory_percent, disk_percent)
		VALUES (?, ?, ?, ?, ?)`,
		domain.FormatTime(s.Time), nullFloat(s.CPUTempC),
		s.CPUPercent, s.MemoryPercent, s.DiskPercent)
	return err
}

// Recent returns the last n samples, newest first.
func (r *HealthRepo) Recent(ctx context.Context, n int) ([]*domain.HealthSample, error) {
	rows, err := r.pool.Query(ctx, `SELECT time, cpu_temp_c, cpu_percent, memory_percent, disk_percent
		FROM health_records ORDER BY time DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHealthRows(rows)
}

// After returns up to limit samples strictly newer than the watermark
// timestamp, oldest first, for incremental sync.
func (r *HealthRepo) After(ctx context.Context, watermark string, limit int) ([]*domain.HealthSample, error) {
	rows, err := r.pool.Query(ctx, `SELECT time, cpu_temp_c, cpu_percent, memory_percent, disk_percent
		FROM health_records WHERE time > ? ORDER BY time ASC LIMIT ?`, watermark, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHealthRows(rows)
}

// PurgeOlderThan deletes samples older than the retention window.
func (r *HealthRepo) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := domain.FormatTime(time.Now().AddDate(0, 0, -days))
	res, err := r.pool.Exec(ctx, `DELETE FROM health_records WHERE time < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Watermark returns the stored sync watermark for a key; empty when unset.
func (r *HealthRepo) Watermark(ctx context.Context, key string) (string, error) {
	var value string
	row := r.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", classify("watermark", err)
	}
	return value, nil
}

// SetWatermark advances the sync watermark; called only after a successful
// upload.
func (r *HealthRepo) SetWatermark(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func scanHealthRows(rows *sql.Rows) ([]*domain.HealthSample, error) {
	var out []*domain.HealthSample
	for rows.Next() {
		var s domain.HealthSample
		var temp sql.NullFloat64
		var ts string
		if err := rows.Scan(&ts, &temp, &s.CPUPercent, &s.MemoryPercent, &s.DiskPercent); err != nil {
			return nil, classify("scan_health", err)
		}
		s.CPUTempC = floatPtr(temp)
		if t, err := domain.ParseTime(ts); err == nil {
			s.Time = t
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
