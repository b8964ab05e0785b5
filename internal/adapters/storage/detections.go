package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// DetectionRepo reads detection rows. Writes go through the BatchWriter.
type DetectionRepo struct {
	pool *Pool
}

func NewDetectionRepo(pool *Pool) *DetectionRepo {
	return &DetectionRepo{pool: pool}
}

const wifiColumns = `session_id, bssid, ssid, channel, frequency_mhz, signal_dbm,
	encryption, vendor, station_count, lat, lon, altitude, accuracy, heading,
	time, first_seen, last_seen`

// WifiByWindow returns Wi-Fi detections in [from, to), optionally filtered by
// BSSID, newest first.
func (r *DetectionRepo) WifiByWindow(ctx context.Context, from, to time.Time, bssid string, limit int) ([]*domain.WifiDetection, error) {
	query := `SELECT ` + wifiColumns + ` FROM wifi_detections WHERE time >= ? AND time < ?`
	args := []any{domain.FormatTime(from), domain.FormatTime(to)}
	if bssid != "" {
		query += ` AND bssid = ?`
		args = append(args, bssid)
	}
	query += ` ORDER BY time DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWifiRows(rows)
}

// RecentWifi returns the most recent Wi-Fi detections.
func (r *DetectionRepo) RecentWifi(ctx context.Context, limit int) ([]*domain.WifiDetection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+wifiColumns+` FROM wifi_detections ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWifiRows(rows)
}

// Observations returns all positioned sightings of one BSSID ordered by
// time, the input of the localization engine. Rows without coordinates are
// excluded.
func (r *DetectionRepo) Observations(ctx context.Context, bssid string) ([]domain.SignalObservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT lat, lon, signal_dbm, time FROM wifi_detections
		 WHERE bssid = ? AND lat IS NOT NULL AND lon IS NOT NULL
		 ORDER BY time ASC`, bssid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SignalObservation
	for rows.Next() {
		var obs domain.SignalObservation
		var ts string
		if err := rows.Scan(&obs.Lat, &obs.Lon, &obs.RSSI, &ts); err != nil {
			return nil, classify("scan_observation", err)
		}
		if t, err := domain.ParseTime(ts); err == nil {
			obs.Time = t
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// BSSIDsForDay returns the distinct BSSIDs seen on a calendar day.
func (r *DetectionRepo) BSSIDsForDay(ctx context.Context, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT bssid FROM wifi_detections WHERE substr(time, 1, 10) = ?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, classify("scan_bssid", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// WifiForDay returns all sightings of one BSSID on a calendar day, oldest
// first, the input of daily aggregation.
func (r *DetectionRepo) WifiForDay(ctx context.Context, bssid, date string) ([]*domain.WifiDetection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+wifiColumns+` FROM wifi_detections
		 WHERE bssid = ? AND substr(time, 1, 10) = ? ORDER BY time ASC`, bssid, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWifiRows(rows)
}

// RecentBluetooth returns the most recent Bluetooth detections.
func (r *DetectionRepo) RecentBluetooth(ctx context.Context, limit int) ([]*domain.BluetoothDetection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, mac, name, rssi_dbm, device_class, lat, lon, heading, time
		 FROM bluetooth_detections ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BluetoothDetection
	for rows.Next() {
		var d domain.BluetoothDetection
		var name, class sql.NullString
		var lat, lon, heading sql.NullFloat64
		var ts string
		if err := rows.Scan(&d.SessionID, &d.MAC, &name, &d.RSSIDBm, &class,
			&lat, &lon, &heading, &ts); err != nil {
			return nil, classify("scan_bluetooth", err)
		}
		d.Name = name.String
		d.DeviceClass = class.String
		d.Latitude = floatPtr(lat)
		d.Longitude = floatPtr(lon)
		d.Heading = floatPtr(heading)
		if t, err := domain.ParseTime(ts); err == nil {
			d.Time = t
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// LatestTrackPoints returns the newest GPS track points, newest first.
func (r *DetectionRepo) LatestTrackPoints(ctx context.Context, limit int) ([]*domain.GPSTrackPoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, lat, lon, altitude, accuracy, speed, heading,
		        satellites, hdop, vdop, pdop, fix, time
		 FROM gps_tracks ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.GPSTrackPoint
	for rows.Next() {
		var p domain.GPSTrackPoint
		var altitude, accuracy, speed, heading, hdop, vdop, pdop sql.NullFloat64
		var satellites sql.NullInt64
		var fix sql.NullString
		var ts string
		if err := rows.Scan(&p.SessionID, &p.Latitude, &p.Longitude, &altitude, &accuracy,
			&speed, &heading, &satellites, &hdop, &vdop, &pdop, &fix, &ts); err != nil {
			return nil, classify("scan_track", err)
		}
		p.Altitude = floatPtr(altitude)
		p.Accuracy = floatPtr(accuracy)
		p.Speed = floatPtr(speed)
		p.Heading = floatPtr(heading)
		p.Satellites = int(satellites.Int64)
		p.HDOP = floatPtr(hdop)
		p.VDOP = floatPtr(vdop)
		p.PDOP = floatPtr(pdop)
		p.Fix = domain.FixQuality(fix.String)
		if t, err := domain.ParseTime(ts); err == nil {
			p.Time = t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CountSince returns detection counts per source since the cutoff.
func (r *DetectionRepo) CountSince(ctx context.Context, since time.Time) (map[string]int, error) {
	cutoff := domain.FormatTime(since)
	counts := make(map[string]int, 3)
	for table, source := range map[string]string{
		"wifi_detections":      string(domain.SourceWifi),
		"bluetooth_detections": string(domain.SourceBluetooth),
		"cellular_detections":  string(domain.SourceCellular),
	} {
		var n int
		row := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE time >= ?`, cutoff)
		if err := row.Scan(&n); err != nil {
			return nil, classify("count_"+source, err)
		}
		counts[source] = n
	}
	return counts, nil
}

func scanWifiRows(rows *sql.Rows) ([]*domain.WifiDetection, error) {
	var out []*domain.WifiDetection
	for rows.Next() {
		var d domain.WifiDetection
		var channel, freq, stations sql.NullInt64
		var enc, vendor sql.NullString
		var lat, lon, altitude, accuracy, heading sql.NullFloat64
		var ts string
		var firstSeen, lastSeen sql.NullString
		if err := rows.Scan(&d.SessionID, &d.BSSID, &d.SSID, &channel, &freq, &d.SignalDBm,
			&enc, &vendor, &stations, &lat, &lon, &altitude, &accuracy, &heading,
			&ts, &firstSeen, &lastSeen); err != nil {
			return nil, classify("scan_wifi", err)
		}
		d.Channel = int(channel.Int64)
		d.FrequencyMHz = int(freq.Int64)
		d.Encryption = enc.String
		d.Vendor = vendor.String
		d.StationCount = int(stations.Int64)
		d.Latitude = floatPtr(lat)
		d.Longitude = floatPtr(lon)
		d.Altitude = floatPtr(altitude)
		d.Accuracy = floatPtr(accuracy)
		d.Heading = floatPtr(heading)
		if t, err := domain.ParseTime(ts); err == nil {
			d.Time = t
		}
		if firstSeen.Valid {
			if t, err := domain.ParseTime(firstSeen.String); err == nil {
				d.FirstSeen = t
			}
		}
		if lastSeen.Valid {
			if t, err := domain.ParseTime(lastSeen.String); err == nil {
				d.LastSeen = t
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
