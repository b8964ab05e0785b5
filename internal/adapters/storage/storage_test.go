package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := NewPool(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, Migrate(context.Background(), pool))
	return pool
}

func countRows(t *testing.T, pool *Pool, table string) int {
	t.Helper()
	var n int
	// Tables under test are fixed identifiers, not user input.
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func wifiRecord(bssid string, at time.Time) *domain.WifiDetection {
	return &domain.WifiDetection{
		SessionID: "s1",
		BSSID:     bssid,
		SSID:      "Net",
		Channel:   6,
		SignalDBm: -42,
		Time:      at,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	before := countRows(t, pool, "schema_migrations")
	require.Greater(t, before, 0)

	require.NoError(t, Migrate(ctx, pool))
	assert.Equal(t, before, countRows(t, pool, "schema_migrations"))
}

func TestMigrateToleratesFutureVersions(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		9999, domain.FormatTime(time.Now()))
	require.NoError(t, err)

	// A schema from a newer build must not break startup.
	require.NoError(t, Migrate(ctx, pool))
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	pool := newTestPool(t)
	w := NewBatchWriter(pool)

	records := make([]*domain.WifiDetection, defaultBatchSize)
	for i := range records {
		records[i] = wifiRecord("AA:BB:CC:00:00:01", time.Now().UTC())
	}
	w.EnqueueWifi(records)
	w.Start(context.Background())
	defer w.Stop()

	// A full batch flushes well before the 2s ticker fires.
	require.Eventually(t, func() bool {
		return countRows(t, pool, "wifi_detections") == defaultBatchSize
	}, 1500*time.Millisecond, 20*time.Millisecond)
}

func TestBatchWriterFlushesOnTick(t *testing.T) {
	pool := newTestPool(t)
	w := NewBatchWriter(pool)
	w.Start(context.Background())
	defer w.Stop()

	w.EnqueueWifi([]*domain.WifiDetection{
		wifiRecord("AA:BB:CC:00:00:02", time.Now().UTC()),
		wifiRecord("AA:BB:CC:00:00:03", time.Now().UTC()),
	})

	require.Eventually(t, func() bool {
		return countRows(t, pool, "wifi_detections") == 2
	}, 4*time.Second, 50*time.Millisecond)
}

func TestBatchWriterFinalFlushOnStop(t *testing.T) {
	pool := newTestPool(t)
	w := NewBatchWriter(pool)
	w.Start(context.Background())

	w.EnqueueTrackPoint(&domain.GPSTrackPoint{
		SessionID: "s1", Latitude: 41.0, Longitude: 2.0, Time: time.Now().UTC(),
	})
	w.EnqueueBluetooth([]*domain.BluetoothDetection{
		{SessionID: "s1", MAC: "11:22:33:44:55:66", RSSIDBm: -60, Time: time.Now().UTC()},
	})
	w.Stop()

	assert.Equal(t, 1, countRows(t, pool, "gps_tracks"))
	assert.Equal(t, 1, countRows(t, pool, "bluetooth_detections"))
}

func TestArchiveOldMovesRowsTransactionally(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -60)
	recent := time.Now().UTC()
	require.NoError(t, insertWifiBatch(ctx, pool, []*domain.WifiDetection{
		wifiRecord("AA:00:00:00:00:01", old),
		wifiRecord("AA:00:00:00:00:02", old),
		wifiRecord("AA:00:00:00:00:03", recent),
	}))

	moved, err := NewMaintenance(pool).ArchiveOld(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)
	assert.Equal(t, 1, countRows(t, pool, "wifi_detections"))
	assert.Equal(t, 2, countRows(t, pool, "wifi_detections_archive"))
}

func TestHealthWatermarkAdvances(t *testing.T) {
	pool := newTestPool(t)
	repo := NewHealthRepo(pool)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, &domain.HealthSample{
			Time: base.Add(time.Duration(i) * time.Minute), CPUPercent: float64(i),
		}))
	}

	mark, err := repo.Watermark(ctx, "health_sync")
	require.NoError(t, err)
	assert.Empty(t, mark)

	samples, err := repo.After(ctx, domain.FormatTime(base), 10)
	require.NoError(t, err)
	require.Len(t, samples, 2) // strictly newer than the watermark

	require.NoError(t, repo.SetWatermark(ctx, "health_sync", domain.FormatTime(base.Add(time.Minute))))
	mark, err = repo.Watermark(ctx, "health_sync")
	require.NoError(t, err)
	assert.Equal(t, domain.FormatTime(base.Add(time.Minute)), mark)

	samples, err = repo.After(ctx, mark, 10)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestHealthPurgeOlderThan(t *testing.T) {
	pool := newTestPool(t)
	repo := NewHealthRepo(pool)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &domain.HealthSample{
		Time: time.Now().UTC().AddDate(0, 0, -40),
	}))
	require.NoError(t, repo.Insert(ctx, &domain.HealthSample{
		Time: time.Now().UTC(),
	}))

	purged, err := repo.PurgeOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 1, countRows(t, pool, "health_records"))
}

func TestAPCacheUpsertReplacesByBSSID(t *testing.T) {
	pool := newTestPool(t)
	repo := NewAnalyticsRepo(pool)
	ctx := context.Background()

	first := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	require.NoError(t, repo.UpsertAPCache(ctx, []*domain.APCacheEntry{
		{BSSID: "AA:BB:CC:DD:EE:FF", SSID: "Old", LastTime: first},
	}))
	require.NoError(t, repo.UpsertAPCache(ctx, []*domain.APCacheEntry{
		{BSSID: "AA:BB:CC:DD:EE:FF", SSID: "New", LastTime: second},
	}))

	entries, err := repo.APCache(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "New", entries[0].SSID)
	assert.Equal(t, second, entries[0].LastTime)
}

func TestAppStateGeofenceRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	state, err := NewAppState(pool)
	require.NoError(t, err)
	ctx := context.Background()

	fence, err := domain.NewGeofence("depot", []domain.Position{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1},
	})
	require.NoError(t, err)
	fence.EnterMessage = "welcome"
	require.NoError(t, state.SaveGeofence(ctx, fence))

	loaded, err := state.GeofenceByName(ctx, "depot")
	require.NoError(t, err)
	assert.Equal(t, fence.Points, loaded.Points)
	assert.Equal(t, "welcome", loaded.EnterMessage)

	require.NoError(t, state.DeleteGeofence(ctx, "depot"))
	_, err = state.GeofenceByName(ctx, "depot")
	assert.Error(t, err)
}
