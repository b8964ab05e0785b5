package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
	"github.com/piwardrive/piwardrive/internal/geo"
)

// GeofenceStore loads and persists geofences with their derived inside state.
type GeofenceStore interface {
	Geofences(ctx context.Context) ([]*domain.Geofence, error)
	SaveGeofence(ctx context.Context, g *domain.Geofence) error
}

// GeofenceEngine tracks which fences contain the current position and emits
// enter/exit events on transitions.
type GeofenceEngine struct {
	store    GeofenceStore
	notifier ports.Notifier

	mu     sync.Mutex
	fences []*domain.Geofence
}

func NewGeofenceEngine(store GeofenceStore, notifier ports.Notifier) *GeofenceEngine {
	return &GeofenceEngine{store: store, notifier: notifier}
}

// Reload replaces the in-memory fence set from the store. Call at startup
// and after fence CRUD.
func (e *GeofenceEngine) Reload(ctx context.Context) error {
	fences, err := e.store.Geofences(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.fences = fences
	e.mu.Unlock()
	return nil
}

// Transition is one enter or exit crossing.
type Transition struct {
	Fence   string          `json:"fence"`
	Entered bool            `json:"entered"`
	Message string          `json:"message,omitempty"`
	At      domain.Position `json:"at"`
}

// Update evaluates the position against every fence, persists state changes
// and notifies on each crossing. Returns the transitions that occurred.
func (e *GeofenceEngine) Update(ctx context.Context, pos domain.Position) []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var transitions []Transition
	for _, fence := range e.fences {
		inside := contains(fence, pos)
		if inside == fence.Inside {
			continue
		}
		fence.Inside = inside

		t := Transition{Fence: fence.Name, Entered: inside, At: pos}
		if inside {
			t.Message = fence.EnterMessage
		} else {
			t.Message = fence.ExitMessage
		}
		transitions = append(transitions, t)

		if err := e.store.SaveGeofence(ctx, fence); err != nil {
			slog.Warn("geofence state persistence failed", "fence", fence.Name, "error", err)
		}
		if e.notifier != nil {
			event := "geofence_exit"
			if inside {
				event = "geofence_enter"
			}
			e.notifier.Notify(ctx, event, t)
		}
	}
	return transitions
}

func contains(fence *domain.Geofence, pos domain.Position) bool {
	poly := make([]geo.Location, len(fence.Points))
	for i, p := range fence.Points {
		poly[i] = geo.Location{Latitude: p.Lat, Longitude: p.Lon}
	}
	return geo.PointInPolygon(pos.Lat, pos.Lon, poly)
}
