package sensors

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/piwardrive/piwardrive/internal/core/ports"
)

// headingFromAccel derives a compass-style heading in [0, 360) from the
// horizontal acceleration components.
func headingFromAccel(x, y float64) float64 {
	deg := math.Atan2(y, x) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// IIOOrientation reads the industrial-IO accelerometer exposed under sysfs.
type IIOOrientation struct {
	base string // device directory, discovered lazily

	mu    sync.Mutex
	avail availability
}

const iioRoot = "/sys/bus/iio/devices"

func NewIIOOrientation() *IIOOrientation {
	return &IIOOrientation{}
}

var _ ports.OrientationSource = (*IIOOrientation)(nil)

// discoverLocked finds the first iio device exposing raw accel channels.
func (o *IIOOrientation) discoverLocked() bool {
	if o.base != "" {
		return true
	}
	matches, err := filepath.Glob(filepath.Join(iioRoot, "iio:device*"))
	if err != nil {
		return false
	}
	for _, dir := range matches {
		if _, err := os.Stat(filepath.Join(dir, "in_accel_x_raw")); err == nil {
			o.base = dir
			return true
		}
	}
	return false
}

func readRaw(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
}

// Heading implements ports.OrientationSource.
func (o *IIOOrientation) Heading(ctx context.Context) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.discoverLocked() {
		o.avail.set("iio", false)
		return 0, false
	}
	x, errX := readRaw(filepath.Join(o.base, "in_accel_x_raw"))
	y, errY := readRaw(filepath.Join(o.base, "in_accel_y_raw"))
	if errX != nil || errY != nil {
		o.base = "" // device went away, rediscover next call
		o.avail.set("iio", false)
		return 0, false
	}
	o.avail.set("iio", true)
	return headingFromAccel(x, y), true
}

// Close implements ports.OrientationSource.
func (o *IIOOrientation) Close() error { return nil }
