// Package app wires the adapters and services together and drives the
// process lifecycle: bootstrap, scheduled background work, the HTTP API and
// graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/piwardrive/piwardrive/internal/adapters/oui"
	"github.com/piwardrive/piwardrive/internal/adapters/scanning"
	"github.com/piwardrive/piwardrive/internal/adapters/sensors"
	"github.com/piwardrive/piwardrive/internal/adapters/storage"
	"github.com/piwardrive/piwardrive/internal/adapters/web"
	"github.com/piwardrive/piwardrive/internal/config"
	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/services/analytics"
	"github.com/piwardrive/piwardrive/internal/core/services/auth"
	"github.com/piwardrive/piwardrive/internal/core/services/fingerprint"
	"github.com/piwardrive/piwardrive/internal/core/services/localization"
	"github.com/piwardrive/piwardrive/internal/core/services/notify"
	"github.com/piwardrive/piwardrive/internal/core/services/reporting"
	"github.com/piwardrive/piwardrive/internal/core/services/scheduler"
	"github.com/piwardrive/piwardrive/internal/core/services/security"
	"github.com/piwardrive/piwardrive/internal/core/services/stream"
	syncsvc "github.com/piwardrive/piwardrive/internal/core/services/sync"
	"github.com/piwardrive/piwardrive/internal/core/services/taskqueue"
	"github.com/piwardrive/piwardrive/internal/telemetry"
)

const (
	defaultTileURL = "https://tile.openstreetmap.org"
	defaultLogPath = "/var/log/piwardrive.log"
	prefetchZoom   = 16
	prefetchPad    = 0.01
	syncInterval   = time.Hour
)

// Application is the composition root. Fields are exported for the command
// entrypoints and integration tests.
type Application struct {
	Config   *config.Config
	Settings *config.Manager

	Pool        *storage.Pool
	Detections  *storage.DetectionRepo
	Health      *storage.HealthRepo
	Analytics   *storage.AnalyticsRepo
	AppState    *storage.AppState
	Maintenance *storage.Maintenance
	Writer      *storage.BatchWriter

	GPS         *sensors.GPSDClient
	Orientation *sensors.IIOOrientation
	Sampler     *sensors.HealthSampler
	Vendors     *oui.Store

	Auth      *auth.Service
	Executor  *scanning.Executor
	Stream    *stream.Processor
	Scheduler *scheduler.Scheduler
	Geofences *notify.GeofenceEngine
	Sync      *syncsvc.Client
	Aggregate *analytics.Service
	Locator   *localization.Locator
	Reports   *reporting.Generator
	Web       *web.Server

	tasks        *taskqueue.BackgroundTaskQueue
	passive      *scanning.PassiveCapture
	sessionID    string
	tracerClose  func(context.Context) error
	logPath      string
	lastAnalyzed string
}

// New bootstraps every component. Nothing runs until Run is called.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg, logPath: defaultLogPath}
	if err := app.bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap(ctx context.Context) error {
	telemetry.InitMetrics()
	shutdown, err := telemetry.InitTracer()
	if err != nil {
		slog.Warn("tracer initialization failed", "error", err)
	} else {
		app.tracerClose = shutdown
	}

	settings, err := config.NewManager(app.Config.SettingsPath)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	app.Settings = settings

	if err := app.initStorage(ctx); err != nil {
		return err
	}
	app.initSensors()

	app.Auth = auth.NewService(app.AppState)
	if err := app.Auth.Bootstrap(ctx, app.Config.APIUser, app.Config.APIPasswordHash); err != nil {
		slog.Warn("admin bootstrap failed", "error", err)
	}

	app.initPipeline()
	app.initWeb()
	return nil
}

func (app *Application) initStorage(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	pool, err := storage.NewPool(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	app.Pool = pool
	app.Detections = storage.NewDetectionRepo(pool)
	app.Health = storage.NewHealthRepo(pool)
	app.Analytics = storage.NewAnalyticsRepo(pool)
	app.Maintenance = storage.NewMaintenance(pool)
	app.Writer = storage.NewBatchWriter(pool)

	state, err := storage.NewAppState(pool)
	if err != nil {
		pool.Close()
		return fmt.Errorf("app state: %w", err)
	}
	app.AppState = state
	return nil
}

func (app *Application) initSensors() {
	app.GPS = sensors.NewGPSDClient(app.Config.GPSDHost, app.Config.GPSDPort)
	app.Orientation = sensors.NewIIOOrientation()
	app.Sampler = sensors.NewHealthSampler(filepath.Dir(app.Config.DBPath))
	app.Vendors = oui.NewStore(app.Config.OUIPath)
}

func (app *Application) initPipeline() {
	app.sessionID = uuid.New().String()

	rules := scheduler.NewRules(func() map[string]config.ScanRule {
		return app.Settings.Snapshot().ScanRules
	})
	runner := scanning.NewCommandRunner(scanning.DefaultScanTimeout, nil)
	app.Executor = scanning.NewExecutor(runner,
		scanning.WithRules(rules),
		scanning.WithPosition(app.GPS),
		scanning.WithOrientation(app.Orientation),
		scanning.WithVendorLookup(app.Vendors),
		scanning.WithSession(func() string { return app.sessionID }),
	)

	notifier := notify.NewWebhookNotifier(func() []string {
		return app.Settings.Snapshot().NotificationWebhooks
	})
	app.Geofences = notify.NewGeofenceEngine(app.AppState, notifier)

	app.Stream = stream.New(fingerprint.New(), security.NewEngine(), app.Analytics, notifier,
		stream.WithRateLimit(app.Settings.Snapshot().StreamRateLimit))

	app.Sync = syncsvc.NewClient(app.Health, func() syncsvc.Options {
		s := app.Settings.Snapshot()
		return syncsvc.Options{
			URL:     s.RemoteSyncURL,
			Token:   s.RemoteSyncToken,
			Timeout: time.Duration(s.RemoteSyncTimeout) * time.Second,
			Retries: s.RemoteSyncRetries,
		}
	})

	app.Aggregate = analytics.New(app.Detections, app.Analytics, app.Analytics)
	app.Locator = localization.NewLocator(app.Detections, app.Analytics, func() localization.Params {
		s := app.Settings.Snapshot()
		return localization.Params{
			MinPoints: s.MinLocalizationPoints,
			Kalman: localization.KalmanParams{
				ProcessVariance: s.KalmanProcessVariance,
				MeasureVariance: s.KalmanMeasureVariance,
			},
			Eps:         s.DBSCANEps,
			MinSamples:  s.DBSCANMinSamples,
			WeightPower: s.CentroidRSSIWeightPower,
		}
	})

	reportsDir := app.Settings.Snapshot().ReportsDir
	if reportsDir == "" {
		reportsDir = filepath.Join(app.Config.ExportDir, "reports")
	}
	app.Reports = reporting.NewGenerator(app.Detections, app.Analytics, reportsDir)

	app.Scheduler = scheduler.New()

	if app.Config.PassiveIface != "" || app.Config.CapturePath != "" {
		app.passive = scanning.NewPassiveCapture(
			app.Config.PassiveIface, app.Config.CapturePath,
			app.Vendors, app.GPS, app.publishWifi)
	}
}

func (app *Application) initWeb() {
	app.Web = web.NewServer(app.Config, app.Settings, app.Auth,
		app.Health, app.Analytics, app.AppState,
		web.WithPosition(app.GPS),
		web.WithHealthSampler(app.Sampler),
		web.WithSyncer(app.Sync),
		web.WithTrackStore(app.Detections),
		web.WithStream(app.Stream),
	)
}

// publishWifi feeds a detection batch to both the persistence sink and the
// live stream.
func (app *Application) publishWifi(records []*domain.WifiDetection) {
	if len(records) == 0 {
		return
	}
	app.Writer.EnqueueWifi(records)
	app.Stream.PublishWifi(context.Background(), records)
}

// Run starts the background loops and the API server, then blocks until the
// context is cancelled or the server fails.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("starting piwardrive", "addr", app.Config.Addr, "db", app.Config.DBPath)

	session := &domain.ScanSession{ID: app.sessionID, StartedAt: time.Now().UTC()}
	if err := app.AppState.StartSession(ctx, session); err != nil {
		slog.Warn("scan session start failed", "error", err)
	}

	app.Writer.Start(ctx)
	app.Stream.Start(ctx)
	app.tasks = taskqueue.NewBackgroundTaskQueue(ctx, 2)

	if err := app.Geofences.Reload(ctx); err != nil {
		slog.Warn("geofence load failed", "error", err)
	}

	if app.passive != nil {
		go func() {
			if err := app.passive.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("passive capture stopped", "error", err)
			}
		}()
	}

	app.startTileMaintenance(ctx)
	if err := app.scheduleJobs(ctx); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := app.Web.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("termination signal received")
	case err := <-errChan:
		app.cleanup()
		return err
	}
	app.cleanup()
	return nil
}

func (app *Application) cleanup() {
	slog.Info("shutting down")

	app.Scheduler.CancelAll()
	app.tasks.Stop()
	app.Stream.Stop()
	app.Writer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.AppState.EndSession(ctx, app.sessionID, time.Now().UTC()); err != nil {
		slog.Warn("scan session close failed", "error", err)
	}
	if err := app.GPS.Close(); err != nil {
		slog.Debug("gpsd close", "error", err)
	}
	app.Orientation.Close()
	if app.tracerClose != nil {
		if err := app.tracerClose(ctx); err != nil {
			slog.Debug("tracer shutdown", "error", err)
		}
	}
	if err := app.Pool.Close(); err != nil {
		slog.Warn("database close failed", "error", err)
	}
}
