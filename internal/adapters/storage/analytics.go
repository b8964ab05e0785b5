package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// AnalyticsRepo persists the derived data: fingerprints, suspicious
// activities, per-day analytics rows and the AP cache.
type AnalyticsRepo struct {
	pool *Pool
}

func NewAnalyticsRepo(pool *Pool) *AnalyticsRepo {
	return &AnalyticsRepo{pool: pool}
}

// InsertFingerprints appends fingerprint rows. Fingerprints accumulate;
// existing rows are never touched.
func (r *AnalyticsRepo) InsertFingerprints(ctx context.Context, fps []*domain.NetworkFingerprint) error {
	if len(fps) == 0 {
		return nil
	}
	return r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO network_fingerprints
			(bssid, ssid, fingerprint_hash, characteristics, classification, risk_level, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, fp := range fps {
			chars, err := json.Marshal(fp.Characteristics)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, fp.BSSID, fp.SSID, fp.Hash, string(chars),
				string(fp.Classification), string(fp.Risk), fp.Confidence,
				domain.FormatTime(fp.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FingerprintsByBSSID returns fingerprints newest first.
func (r *AnalyticsRepo) FingerprintsByBSSID(ctx context.Context, bssid string, limit int) ([]*domain.NetworkFingerprint, error) {
	rows, err := r.pool.Query(ctx, `SELECT bssid, ssid, fingerprint_hash, characteristics,
		classification, risk_level, confidence, created_at
		FROM network_fingerprints WHERE bssid = ? ORDER BY created_at DESC LIMIT ?`, bssid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFingerprints(rows)
}

// RecentFingerprints returns the newest fingerprints across all networks.
func (r *AnalyticsRepo) RecentFingerprints(ctx context.Context, limit int) ([]*domain.NetworkFingerprint, error) {
	rows, err := r.pool.Query(ctx, `SELECT bssid, ssid, fingerprint_hash, characteristics,
		classification, risk_level, confidence, created_at
		FROM network_fingerprints ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFingerprints(rows)
}

func scanFingerprints(rows *sql.Rows) ([]*domain.NetworkFingerprint, error) {
	var out []*domain.NetworkFingerprint
	for rows.Next() {
		var fp domain.NetworkFingerprint
		var chars, created string
		var class, risk string
		if err := rows.Scan(&fp.BSSID, &fp.SSID, &fp.Hash, &chars, &class, &risk,
			&fp.Confidence, &created); err != nil {
			return nil, classify("scan_fingerprint", err)
		}
		fp.Classification = domain.Classification(class)
		fp.Risk = domain.RiskLevel(risk)
		if err := json.Unmarshal([]byte(chars), &fp.Characteristics); err != nil {
			fp.Characteristics = map[string]any{}
		}
		if t, err := domain.ParseTime(created); err == nil {
			fp.CreatedAt = t
		}
		out = append(out, &fp)
	}
	return out, rows.Err()
}

// InsertSuspicious appends suspicious activity rows.
func (r *AnalyticsRepo) InsertSuspicious(ctx context.Context, acts []*domain.SuspiciousActivity) error {
	if len(acts) == 0 {
		return nil
	}
	return r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO suspicious_activities
			(id, session_id, activity_type, severity, target_bssid, target_ssid,
			 evidence, lat, lon, detected_at, analyzed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range acts {
			evidence, err := json.Marshal(a.Evidence)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, a.ID, a.SessionID, string(a.Type), string(a.Severity),
				nullStr(a.TargetBSSID), nullStr(a.TargetSSID), string(evidence),
				nullFloat(a.Latitude), nullFloat(a.Longitude),
				domain.FormatTime(a.DetectedAt), boolToInt(a.Analyzed)); err != nil {
				return err
			}
		}
		return nil
	})
}

// SuspiciousSince returns findings newer than the cutoff, newest first.
func (r *AnalyticsRepo) SuspiciousSince(ctx context.Context, since time.Time, limit int) ([]*domain.SuspiciousActivity, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, activity_type, severity,
		target_bssid, target_ssid, evidence, lat, lon, detected_at, analyzed
		FROM suspicious_activities WHERE detected_at >= ?
		ORDER BY detected_at DESC LIMIT ?`, domain.FormatTime(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SuspiciousActivity
	for rows.Next() {
		var a domain.SuspiciousActivity
		var typ, severity, detected string
		var bssid, ssid, evidence sql.NullString
		var lat, lon sql.NullFloat64
		var analyzed int
		if err := rows.Scan(&a.ID, &a.SessionID, &typ, &severity, &bssid, &ssid,
			&evidence, &lat, &lon, &detected, &analyzed); err != nil {
			return nil, classify("scan_suspicious", err)
		}
		a.Type = domain.ActivityType(typ)
		a.Severity = domain.RiskLevel(severity)
		a.TargetBSSID = bssid.String
		a.TargetSSID = ssid.String
		if evidence.Valid {
			_ = json.Unmarshal([]byte(evidence.String), &a.Evidence)
		}
		a.Latitude = floatPtr(lat)
		a.Longitude = floatPtr(lon)
		a.Analyzed = analyzed != 0
		if t, err := domain.ParseTime(detected); err == nil {
			a.DetectedAt = t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// CountSuspicious returns the number of findings for a BSSID on one day.
func (r *AnalyticsRepo) CountSuspicious(ctx context.Context, bssid, date string) (int, error) {
	var n int
	row := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suspicious_activities
		WHERE target_bssid = ? AND substr(detected_at, 1, 10) = ?`, bssid, date)
	if err := row.Scan(&n); err != nil {
		return 0, classify("count_suspicious", err)
	}
	return n, nil
}

// UpsertAnalytics writes one per-day analytics row, replacing any previous
// row for the same (bssid, date).
func (r *AnalyticsRepo) UpsertAnalytics(ctx context.Context, row *domain.NetworkAnalyticsRow) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO network_analytics
		(bssid, date, total_detections, unique_locations, signal_min, signal_max,
		 signal_mean, signal_variance, coverage_radius_m, mobility_score,
		 encryption_changes, ssid_changes, channel_changes, suspicious_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bssid, date) DO UPDATE SET
			total_detections = excluded.total_detections,
			unique_locations = excluded.unique_locations,
			signal_min = excluded.signal_min,
			signal_max = excluded.signal_max,
			signal_mean = excluded.signal_mean,
			signal_variance = excluded.signal_variance,
			coverage_radius_m = excluded.coverage_radius_m,
			mobility_score = excluded.mobility_score,
			encryption_changes = excluded.encryption_changes,
			ssid_changes = excluded.ssid_changes,
			channel_changes = excluded.channel_changes,
			suspicious_score = excluded.suspicious_score`,
		row.BSSID, row.Date, row.TotalDetections, row.UniqueLocations,
		row.SignalMin, row.SignalMax, row.SignalMean, row.SignalVariance,
		row.CoverageRadiusM, row.MobilityScore,
		row.EncryptionChanges, row.SSIDChanges, row.ChannelChanges, row.SuspiciousScore)
	return err
}

// AnalyticsForDate returns all analytics rows for a calendar day.
func (r *AnalyticsRepo) AnalyticsForDate(ctx context.Context, date string) ([]*domain.NetworkAnalyticsRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT bssid, date, total_detections, unique_locations,
		signal_min, signal_max, signal_mean, signal_variance, coverage_radius_m,
		mobility_score, encryption_changes, ssid_changes, channel_changes, suspicious_score
		FROM network_analytics WHERE date = ? ORDER BY bssid`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.NetworkAnalyticsRow
	for rows.Next() {
		var a domain.NetworkAnalyticsRow
		if err := rows.Scan(&a.BSSID, &a.Date, &a.TotalDetections, &a.UniqueLocations,
			&a.SignalMin, &a.SignalMax, &a.SignalMean, &a.SignalVariance,
			&a.CoverageRadiusM, &a.MobilityScore, &a.EncryptionChanges,
			&a.SSIDChanges, &a.ChannelChanges, &a.SuspiciousScore); err != nil {
			return nil, classify("scan_analytics", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// UpsertAPCache refreshes the last-known state of access points.
func (r *AnalyticsRepo) UpsertAPCache(ctx context.Context, entries []*domain.APCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO ap_cache
			(bssid, ssid, encryption, vendor, lat, lon, last_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(bssid) DO UPDATE SET
				ssid = excluded.ssid,
				encryption = excluded.encryption,
				vendor = excluded.vendor,
				lat = COALESCE(excluded.lat, ap_cache.lat),
				lon = COALESCE(excluded.lon, ap_cache.lon),
				last_time = excluded.last_time`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.BSSID, e.SSID, nullStr(e.Encryption),
				nullStr(e.Vendor), nullFloat(e.Latitude), nullFloat(e.Longitude),
				domain.FormatTime(e.LastTime)); err != nil {
				return err
			}
		}
		return nil
	})
}

// APCache returns every cached access point ordered by last sighting.
func (r *AnalyticsRepo) APCache(ctx context.Context) ([]*domain.APCacheEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT bssid, ssid, encryption, vendor, lat, lon, last_time
		FROM ap_cache ORDER BY last_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.APCacheEntry
	for rows.Next() {
		var e domain.APCacheEntry
		var enc, vendor sql.NullString
		var lat, lon sql.NullFloat64
		var last string
		if err := rows.Scan(&e.BSSID, &e.SSID, &enc, &vendor, &lat, &lon, &last); err != nil {
			return nil, classify("scan_ap_cache", err)
		}
		e.Encryption = enc.String
		e.Vendor = vendor.String
		e.Latitude = floatPtr(lat)
		e.Longitude = floatPtr(lon)
		if t, err := domain.ParseTime(last); err == nil {
			e.LastTime = t
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SetAPLocation stores a localization result on the cache entry.
func (r *AnalyticsRepo) SetAPLocation(ctx context.Context, bssid string, lat, lon float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ap_cache SET lat = ?, lon = ? WHERE bssid = ?`, lat, lon, bssid)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
