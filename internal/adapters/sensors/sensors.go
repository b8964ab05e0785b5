// Package sensors wraps the field hardware the node reads: gpsd, orientation
// sensors, the OBD-II dongle and the RTL-SDR stick. Every adapter connects
// lazily, guards its connection with a mutex, honors a per-call timeout and
// degrades to (zero, false) instead of surfacing errors.
package sensors

import (
	"log/slog"
	"sync"
	"time"
)

// defaultTimeout bounds every sensor call.
const defaultTimeout = time.Second

// availability logs once per up/down transition so a flapping sensor does not
// flood the log.
type availability struct {
	mu    sync.Mutex
	known bool
	up    bool
}

func (a *availability) set(name string, up bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.known && a.up == up {
		return
	}
	a.known = true
	a.up = up
	if up {
		slog.Info("sensor available", "sensor", name)
	} else {
		slog.Warn("sensor unavailable", "sensor", name)
	}
}
