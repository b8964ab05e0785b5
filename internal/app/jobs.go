package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/piwardrive/piwardrive/internal/adapters/tiles"
	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/geo"
)

const (
	defaultWifiIface    = "wlan0"
	watcherTriggerFiles = 5000
	syncBatchLimit      = 500
)

// intervalSeconds converts a settings value to a duration, falling back when
// the setting is unset or disabled.
func intervalSeconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// scheduleJobs registers every recurring background job. Intervals are read
// once at startup; a restart picks up changed settings.
func (app *Application) scheduleJobs(ctx context.Context) error {
	s := app.Settings.Snapshot()

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{"wifi_scan", intervalSeconds(s.MapPollAPs, time.Minute), app.runWifiScan},
		{"bluetooth_scan", intervalSeconds(s.MapPollBT, time.Minute), app.runBluetoothScan},
		{"cellular_scan", intervalSeconds(s.MapPollBT, time.Minute), app.runCellularScan},
		{"gps_track", intervalSeconds(s.MapPollGPS, 10*time.Second), app.runTrackUpdate},
		{"health_sample", intervalSeconds(s.HealthPollInterval, 10*time.Second), app.runHealthSample},
		{"daily_rollup", 24 * time.Hour, app.runDailyRollup},
		{"tile_maintenance", intervalSeconds(s.TileMaintenanceInterval, 7*24*time.Hour), app.runTileMaintenance},
		{"remote_sync", syncInterval, app.runRemoteSync},
		{"log_rotation", intervalSeconds(s.LogRotateInterval, 24*time.Hour), app.runLogRotation},
	}
	if s.MapAutoPrefetch {
		jobs = append(jobs, struct {
			name     string
			interval time.Duration
			fn       func(context.Context) error
		}{"route_prefetch", intervalSeconds(s.RoutePrefetchInterval, time.Hour), app.runRoutePrefetch})
	}

	for _, j := range jobs {
		if err := app.Scheduler.Schedule(ctx, j.name, j.interval, j.fn); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	return nil
}

func (app *Application) runWifiScan(ctx context.Context) error {
	ifaces := app.Config.Devices
	if len(ifaces) == 0 {
		ifaces = []string{defaultWifiIface}
	}

	var all []*domain.WifiDetection
	for _, iface := range ifaces {
		all = append(all, app.Executor.ScanWifi(ctx, iface)...)
	}
	if len(all) == 0 {
		return nil
	}
	app.publishWifi(all)

	entries := make([]*domain.APCacheEntry, 0, len(all))
	for _, rec := range all {
		entries = append(entries, &domain.APCacheEntry{
			BSSID:      rec.BSSID,
			SSID:       rec.SSID,
			Encryption: rec.Encryption,
			Vendor:     rec.Vendor,
			Latitude:   rec.Latitude,
			Longitude:  rec.Longitude,
			LastTime:   rec.Time,
		})
	}
	return app.Analytics.UpsertAPCache(ctx, entries)
}

func (app *Application) runBluetoothScan(ctx context.Context) error {
	records := app.Executor.ScanBluetooth(ctx)
	if len(records) == 0 {
		return nil
	}
	app.Writer.EnqueueBluetooth(records)
	app.Stream.PublishBluetooth(ctx, records)
	return nil
}

func (app *Application) runCellularScan(ctx context.Context) error {
	records := app.Executor.ScanCellular(ctx)
	if len(records) == 0 {
		return nil
	}
	app.Writer.EnqueueCellular(records)
	app.Stream.PublishCellular(ctx, records)
	return nil
}

func (app *Application) runTrackUpdate(ctx context.Context) error {
	point, ok := app.GPS.TrackPoint(ctx)
	if !ok {
		return nil
	}
	point.SessionID = app.sessionID
	app.Writer.EnqueueTrackPoint(point)
	app.Geofences.Update(ctx, domain.Position{Lat: point.Latitude, Lon: point.Longitude})
	return nil
}

func (app *Application) runHealthSample(ctx context.Context) error {
	sample, err := app.Sampler.Sample(ctx)
	if err != nil {
		return err
	}
	return app.Health.Insert(ctx, sample)
}

// runDailyRollup recomputes yesterday's analytics, refines AP positions,
// renders the PDF summary and applies the retention policies.
func (app *Application) runDailyRollup(ctx context.Context) error {
	s := app.Settings.Snapshot()
	day := time.Now().UTC().AddDate(0, 0, -1)
	date := day.Format("2006-01-02")
	if date == app.lastAnalyzed {
		return nil
	}

	if _, err := app.Aggregate.AggregateDay(ctx, date); err != nil {
		return fmt.Errorf("aggregate %s: %w", date, err)
	}
	if _, err := app.Locator.LocalizeDay(ctx, date); err != nil {
		return fmt.Errorf("localize %s: %w", date, err)
	}
	app.lastAnalyzed = date

	// Rendering and retention are deferred to the worker pool so a slow
	// report cannot hold up the scheduler slot.
	app.tasks.Enqueue(func(ctx context.Context) error {
		path, err := app.Reports.GenerateDaily(ctx, day)
		if err != nil {
			return err
		}
		slog.Info("daily report written", "path", path)
		return nil
	})
	app.tasks.Enqueue(func(ctx context.Context) error {
		if _, err := app.Health.PurgeOlderThan(ctx, s.HealthRetentionDays); err != nil {
			return err
		}
		_, err := app.Maintenance.ArchiveOld(ctx, s.DetectionRetentionDays)
		return err
	})
	return nil
}

// startTileMaintenance launches the fsnotify watcher that triggers cache
// maintenance when thresholds are crossed between scheduled runs.
func (app *Application) startTileMaintenance(ctx context.Context) {
	s := app.Settings.Snapshot()
	if s.TileCachePath == "" {
		return
	}
	watcher := tiles.NewWatcher(s.TileCachePath, watcherTriggerFiles, s.TileCacheLimitMB, func() {
		if err := app.runTileMaintenance(context.Background()); err != nil {
			slog.Warn("tile maintenance failed", "error", err)
		}
	})
	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("tile watcher stopped", "error", err)
		}
	}()
}

func (app *Application) runTileMaintenance(ctx context.Context) error {
	s := app.Settings.Snapshot()
	if s.TileCachePath == "" {
		return nil
	}
	if _, err := tiles.PurgeOld(s.TileCachePath, s.TileMaxAgeDays); err != nil {
		return err
	}
	if _, err := tiles.EnforceLimit(s.TileCachePath, s.TileCacheLimitMB); err != nil {
		return err
	}
	if s.OfflineTilePath != "" {
		return tiles.VacuumMBTiles(s.OfflineTilePath)
	}
	return nil
}

// runRoutePrefetch projects the recent track forward and warms the tile
// cache along the predicted corridor.
func (app *Application) runRoutePrefetch(ctx context.Context) error {
	s := app.Settings.Snapshot()
	if s.TileCachePath == "" {
		return nil
	}
	points, err := app.Detections.LatestTrackPoints(ctx, 10)
	if err != nil {
		return err
	}
	if len(points) < 2 {
		return nil
	}

	// Newest first in storage; the prefetcher wants chronological order.
	track := make([]geo.Location, len(points))
	for i, p := range points {
		track[len(points)-1-i] = geo.Location{Latitude: p.Latitude, Longitude: p.Longitude}
	}

	downloader := tiles.NewDownloader(defaultTileURL, s.TileCachePath, nil, 0)
	prefetcher := tiles.NewPrefetcher(downloader, 0, prefetchPad, prefetchZoom)
	return prefetcher.PredictivePrefetch(ctx, track)
}

func (app *Application) runRemoteSync(ctx context.Context) error {
	if app.Settings.Snapshot().RemoteSyncURL == "" {
		return nil
	}
	count, err := app.Sync.SyncNewRecords(ctx, syncBatchLimit)
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Info("records synced to remote", "count", count)
	}
	return nil
}

func (app *Application) runLogRotation(ctx context.Context) error {
	s := app.Settings.Snapshot()
	return rotateLogs(app.logPath, s.LogRotateArchives, s.CleanupRotatedLogs)
}
