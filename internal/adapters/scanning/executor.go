package scanning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
	"github.com/piwardrive/piwardrive/internal/telemetry"
)

// Executor runs the scan tools and turns their output into enriched
// detection records. Scan failures never propagate: the result is an empty
// slice and a warning.
type Executor struct {
	runner      *CommandRunner
	rules       ports.RuleEvaluator
	position    ports.PositionSource
	orientation ports.OrientationSource
	vendors     ports.VendorLookup
	session     func() string

	// command templates; {iface} is substituted
	wifiCmd     []string
	btCmd       []string
	cellularCmd []string

	mu        sync.Mutex
	wifiHooks []func(*domain.WifiDetection)
	btHooks   []func(*domain.BluetoothDetection)
	cellHooks []func(*domain.CellularDetection)
}

// Option configures an Executor.
type ExecutorOption func(*Executor)

func WithRules(rules ports.RuleEvaluator) ExecutorOption {
	return func(e *Executor) { e.rules = rules }
}

func WithPosition(source ports.PositionSource) ExecutorOption {
	return func(e *Executor) { e.position = source }
}

func WithOrientation(source ports.OrientationSource) ExecutorOption {
	return func(e *Executor) { e.orientation = source }
}

func WithVendorLookup(lookup ports.VendorLookup) ExecutorOption {
	return func(e *Executor) { e.vendors = lookup }
}

func WithSession(session func() string) ExecutorOption {
	return func(e *Executor) { e.session = session }
}

// WithWifiCommand overrides the Wi-Fi scan command template.
func WithWifiCommand(argv ...string) ExecutorOption {
	return func(e *Executor) { e.wifiCmd = argv }
}

func WithBluetoothCommand(argv ...string) ExecutorOption {
	return func(e *Executor) { e.btCmd = argv }
}

func WithCellularCommand(argv ...string) ExecutorOption {
	return func(e *Executor) { e.cellularCmd = argv }
}

func NewExecutor(runner *CommandRunner, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runner:      runner,
		session:     func() string { return domain.AdhocSession },
		wifiCmd:     []string{"iwlist", "{iface}", "scanning"},
		btCmd:       []string{"bluetoothctl", "--timeout", "8", "scan", "on"},
		cellularCmd: []string{"cellscan"},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterWifiPostProcessor adds a hook applied to every parsed Wi-Fi record
// after enrichment.
func (e *Executor) RegisterWifiPostProcessor(fn func(*domain.WifiDetection)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wifiHooks = append(e.wifiHooks, fn)
}

func (e *Executor) RegisterBluetoothPostProcessor(fn func(*domain.BluetoothDetection)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.btHooks = append(e.btHooks, fn)
}

func (e *Executor) RegisterCellularPostProcessor(fn func(*domain.CellularDetection)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cellHooks = append(e.cellHooks, fn)
}

func (e *Executor) allowed(scanType string) bool {
	return e.rules == nil || e.rules.Allow(scanType)
}

// run executes a command template, substituting the interface name.
func (e *Executor) run(ctx context.Context, scanType string, template []string, iface string) ([]byte, bool) {
	argv := make([]string, len(template))
	for i, arg := range template {
		if arg == "{iface}" {
			arg = iface
		}
		argv[i] = arg
	}

	out, err := e.runner.Run(ctx, argv...)
	if err != nil {
		slog.Warn("scan command failed", "type", scanType, "command", argv[0], "error", err)
		telemetry.ScansTotal.WithLabelValues(scanType, "error").Inc()
		return nil, false
	}
	telemetry.ScansTotal.WithLabelValues(scanType, "ok").Inc()
	return out, true
}

// ScanWifi runs one Wi-Fi scan on the interface. Denied rules or failed
// commands yield an empty result.
func (e *Executor) ScanWifi(ctx context.Context, iface string) []*domain.WifiDetection {
	if !e.allowed("wifi") {
		telemetry.ScansTotal.WithLabelValues("wifi", "denied").Inc()
		return nil
	}
	out, ok := e.run(ctx, "wifi", e.wifiCmd, iface)
	if !ok {
		return nil
	}

	records := ParseIwlist(out)
	now := time.Now().UTC()
	session := e.session()
	lat, lon, heading := e.fix(ctx)

	e.mu.Lock()
	hooks := e.wifiHooks
	e.mu.Unlock()

	for _, rec := range records {
		rec.SessionID = session
		rec.Time = now
		rec.Latitude, rec.Longitude, rec.Heading = lat, lon, heading
		if e.vendors != nil {
			if vendor, err := e.vendors.Lookup(rec.BSSID); err == nil {
				rec.Vendor = vendor
			}
		}
		for _, hook := range hooks {
			hook(rec)
		}
	}
	telemetry.DetectionsTotal.WithLabelValues("wifi").Add(float64(len(records)))
	return records
}

// ScanBluetooth runs one Bluetooth discovery pass.
func (e *Executor) ScanBluetooth(ctx context.Context) []*domain.BluetoothDetection {
	if !e.allowed("bluetooth") {
		telemetry.ScansTotal.WithLabelValues("bluetooth", "denied").Inc()
		return nil
	}
	out, ok := e.run(ctx, "bluetooth", e.btCmd, "")
	if !ok {
		return nil
	}

	records := ParseBluetoothctl(out)
	now := time.Now().UTC()
	session := e.session()
	lat, lon, heading := e.fix(ctx)

	e.mu.Lock()
	hooks := e.btHooks
	e.mu.Unlock()

	for _, rec := range records {
		rec.SessionID = session
		rec.Time = now
		rec.Latitude, rec.Longitude, rec.Heading = lat, lon, heading
		if e.vendors != nil {
			if vendor, err := e.vendors.Lookup(rec.MAC); err == nil {
				rec.DeviceClass = vendor
			}
		}
		for _, hook := range hooks {
			hook(rec)
		}
	}
	telemetry.DetectionsTotal.WithLabelValues("bluetooth").Add(float64(len(records)))
	return records
}

// ScanCellular runs one cellular band scan. The scan type is "imsi" for rule
// gating purposes.
func (e *Executor) ScanCellular(ctx context.Context) []*domain.CellularDetection {
	if !e.allowed("imsi") {
		telemetry.ScansTotal.WithLabelValues("imsi", "denied").Inc()
		return nil
	}
	out, ok := e.run(ctx, "imsi", e.cellularCmd, "")
	if !ok {
		return nil
	}

	records := ParseCellularCSV(out)
	now := time.Now().UTC()
	session := e.session()
	lat, lon, heading := e.fix(ctx)

	e.mu.Lock()
	hooks := e.cellHooks
	e.mu.Unlock()

	for _, rec := range records {
		rec.SessionID = session
		rec.Time = now
		rec.Latitude, rec.Longitude, rec.Heading = lat, lon, heading
		for _, hook := range hooks {
			hook(rec)
		}
	}
	telemetry.DetectionsTotal.WithLabelValues("cellular").Add(float64(len(records)))
	return records
}

// ScanWifiAsync runs the scan on its own goroutine so the caller's loop is
// never blocked; the channel carries the single result and closes.
func (e *Executor) ScanWifiAsync(ctx context.Context, iface string) <-chan []*domain.WifiDetection {
	ch := make(chan []*domain.WifiDetection, 1)
	go func() {
		defer close(ch)
		ch <- e.ScanWifi(ctx, iface)
	}()
	return ch
}

func (e *Executor) ScanBluetoothAsync(ctx context.Context) <-chan []*domain.BluetoothDetection {
	ch := make(chan []*domain.BluetoothDetection, 1)
	go func() {
		defer close(ch)
		ch <- e.ScanBluetooth(ctx)
	}()
	return ch
}

func (e *Executor) ScanCellularAsync(ctx context.Context) <-chan []*domain.CellularDetection {
	ch := make(chan []*domain.CellularDetection, 1)
	go func() {
		defer close(ch)
		ch <- e.ScanCellular(ctx)
	}()
	return ch
}

// fix samples the current position and heading once per scan so every record
// of the batch carries the same tag.
func (e *Executor) fix(ctx context.Context) (lat, lon, heading *float64) {
	if e.position != nil {
		if pos, ok := e.position.Position(ctx); ok {
			lat = domain.Float64Ptr(pos.Lat)
			lon = domain.Float64Ptr(pos.Lon)
		}
	}
	if e.orientation != nil {
		if deg, ok := e.orientation.Heading(ctx); ok {
			heading = domain.Float64Ptr(deg)
		}
	}
	return lat, lon, heading
}
