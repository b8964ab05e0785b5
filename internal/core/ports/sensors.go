package ports

import (
	"context"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// PositionSource provides the current GPS position. Implementations degrade
// gracefully: on sensor failure they return ok=false instead of an error.
type PositionSource interface {
	// Position returns the current coordinate pair, if a fix is available.
	Position(ctx context.Context) (domain.Position, bool)
	// Accuracy returns the estimated position error in meters.
	Accuracy(ctx context.Context) (float64, bool)
	// FixQuality reports the current fix type.
	FixQuality(ctx context.Context) domain.FixQuality
	// TrackPoint returns a full track point for persistence, if available.
	TrackPoint(ctx context.Context) (*domain.GPSTrackPoint, bool)
	// Close releases the underlying connection.
	Close() error
}

// OrientationSource provides the current device heading.
type OrientationSource interface {
	// Heading returns degrees clockwise from north in [0, 360).
	Heading(ctx context.Context) (float64, bool)
	Close() error
}

// VehicleSource provides vehicle telemetry from an OBD-II dongle.
type VehicleSource interface {
	// SpeedKPH returns the current vehicle speed.
	SpeedKPH(ctx context.Context) (float64, bool)
	// EngineRPM returns the current engine speed.
	EngineRPM(ctx context.Context) (float64, bool)
	Close() error
}

// HealthSource samples node resource usage.
type HealthSource interface {
	Sample(ctx context.Context) (*domain.HealthSample, error)
}
