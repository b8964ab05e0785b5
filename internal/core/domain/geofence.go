package domain

import (
	"errors"
	"strings"
)

var (
	ErrEmptyGeofenceName  = errors.New("geofence name cannot be empty")
	ErrUnsafeGeofenceName = errors.New("geofence name contains path separators")
	ErrDegeneratePolygon  = errors.New("geofence polygon needs at least 3 vertices")
)

// Geofence is a named polygon with optional enter/exit notification messages.
// Inside is derived state maintained by the geofence engine as GPS fixes
// arrive; it is persisted so transitions survive restarts.
type Geofence struct {
	Name         string     `json:"name"`
	Points       []Position `json:"points"`
	EnterMessage string     `json:"enter_message,omitempty"`
	ExitMessage  string     `json:"exit_message,omitempty"`
	Inside       bool       `json:"inside"`
}

// NewGeofence creates a validated geofence. Names may not contain path
// separators because they appear in URL paths.
func NewGeofence(name string, points []Position) (*Geofence, error) {
	if name == "" {
		return nil, ErrEmptyGeofenceName
	}
	if strings.ContainsAny(name, "/\\") {
		return nil, ErrUnsafeGeofenceName
	}
	if len(points) < 3 {
		return nil, ErrDegeneratePolygon
	}
	return &Geofence{Name: name, Points: points}, nil
}
