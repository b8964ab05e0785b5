package ports

import (
	"context"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// VendorLookup resolves a MAC or BSSID to its vendor name.
type VendorLookup interface {
	Lookup(mac string) (string, error)
}

// RuleEvaluator gates scan execution by the configured schedule rules.
type RuleEvaluator interface {
	// Allow reports whether the given scan type may run right now.
	Allow(scanType string) bool
}

// StreamPublisher accepts detection batches for real-time fan-out.
type StreamPublisher interface {
	PublishWifi(ctx context.Context, records []*domain.WifiDetection)
	PublishBluetooth(ctx context.Context, records []*domain.BluetoothDetection)
	PublishCellular(ctx context.Context, records []*domain.CellularDetection)
}

// DetectionSink accepts detection batches for persistence. Implementations
// buffer and flush asynchronously.
type DetectionSink interface {
	EnqueueWifi(records []*domain.WifiDetection)
	EnqueueBluetooth(records []*domain.BluetoothDetection)
	EnqueueCellular(records []*domain.CellularDetection)
	EnqueueTrackPoint(point *domain.GPSTrackPoint)
}
