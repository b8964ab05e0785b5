// Package web serves the HTTP API: REST endpoints over the stores and
// services, plus WebSocket and SSE feeds off the stream processor.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/piwardrive/piwardrive/internal/config"
	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
	"github.com/piwardrive/piwardrive/internal/core/services/stream"
)

const shutdownTimeout = 5 * time.Second

// HealthStore reads persisted health samples.
type HealthStore interface {
	Recent(ctx context.Context, n int) ([]*domain.HealthSample, error)
}

// APStore reads the access-point cache.
type APStore interface {
	APCache(ctx context.Context) ([]*domain.APCacheEntry, error)
}

// StateStore persists dashboard layout and geofences.
type StateStore interface {
	Dashboard(ctx context.Context) (*domain.DashboardSettings, error)
	SaveDashboard(ctx context.Context, settings *domain.DashboardSettings) error
	Geofences(ctx context.Context) ([]*domain.Geofence, error)
	GeofenceByName(ctx context.Context, name string) (*domain.Geofence, error)
	SaveGeofence(ctx context.Context, g *domain.Geofence) error
	DeleteGeofence(ctx context.Context, name string) error
}

// TrackStore reads recent GPS track points for the history feed.
type TrackStore interface {
	LatestTrackPoints(ctx context.Context, limit int) ([]*domain.GPSTrackPoint, error)
}

// Syncer pushes unsynced records to the remote aggregation server.
type Syncer interface {
	SyncNewRecords(ctx context.Context, limit int) (int, error)
}

// ServiceRunner executes an OS service-control command and returns its
// combined output. The default implementation shells out to systemctl.
type ServiceRunner func(ctx context.Context, args ...string) ([]byte, error)

// Server wires the HTTP API together.
type Server struct {
	cfg      *config.Config
	settings *config.Manager
	auth     ports.Authenticator

	health   HealthStore
	aps      APStore
	state    StateStore
	tracks   TrackStore
	syncer   Syncer
	position ports.PositionSource
	sampler  ports.HealthSource
	stream   *stream.Processor

	serviceRunner  ServiceRunner
	logAllowList   []string
	streamInterval time.Duration

	srv *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

func WithPosition(source ports.PositionSource) Option {
	return func(s *Server) { s.position = source }
}

func WithHealthSampler(sampler ports.HealthSource) Option {
	return func(s *Server) { s.sampler = sampler }
}

func WithSyncer(syncer Syncer) Option {
	return func(s *Server) { s.syncer = syncer }
}

func WithTrackStore(tracks TrackStore) Option {
	return func(s *Server) { s.tracks = tracks }
}

func WithStream(processor *stream.Processor) Option {
	return func(s *Server) { s.stream = processor }
}

func WithServiceRunner(runner ServiceRunner) Option {
	return func(s *Server) { s.serviceRunner = runner }
}

// WithLogAllowList sets the log paths /logs may read.
func WithLogAllowList(paths []string) Option {
	return func(s *Server) { s.logAllowList = paths }
}

// WithStreamInterval overrides the polling feed cadence.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) { s.streamInterval = d }
}

func NewServer(cfg *config.Config, settings *config.Manager, auth ports.Authenticator,
	health HealthStore, aps APStore, state StateStore, opts ...Option) *Server {
	s := &Server{
		cfg:           cfg,
		settings:      settings,
		auth:          auth,
		health:        health,
		aps:           aps,
		state:         state,
		serviceRunner: systemctlRunner,
		logAllowList:  []string{"/var/log/syslog", "/var/log/piwardrive.log"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           otelhttp.NewHandler(s.Routes(), "piwardrive-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("web server shutdown", "error", err)
		}
	}()

	slog.Info("web server listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
