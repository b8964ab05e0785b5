package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrUnknownKey indicates a settings update referenced a key that does
	// not exist in the settings document.
	ErrUnknownKey = errors.New("unknown configuration key")

	// ErrBadValue indicates a settings value failed validation.
	ErrBadValue = errors.New("invalid configuration value")
)

// ScanRule gates a scan type by schedule. All configured conditions must
// pass for the scan to run.
type ScanRule struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Times   []string `json:"times,omitempty"` // "HH:MM-HH:MM" windows
	Days    []string `json:"days,omitempty"`  // weekday names
}

// Settings is the runtime-tunable configuration document persisted as JSON.
// Field tags define the public key names accepted on POST /config.
type Settings struct {
	MapPollAPs              int                 `json:"map_poll_aps"`
	MapPollBT               int                 `json:"map_poll_bt"`
	MapPollGPS              int                 `json:"map_poll_gps"`
	MapPollGPSMax           int                 `json:"map_poll_gps_max"`
	HealthPollInterval      int                 `json:"health_poll_interval"`
	LogRotateInterval       int                 `json:"log_rotate_interval"`
	LogRotateArchives       int                 `json:"log_rotate_archives"`
	CleanupRotatedLogs      bool                `json:"cleanup_rotated_logs"`
	MapUseOffline           bool                `json:"map_use_offline"`
	OfflineTilePath         string              `json:"offline_tile_path"`
	MapAutoPrefetch         bool                `json:"map_auto_prefetch"`
	MapClusterAPs           bool                `json:"map_cluster_aps"`
	MapClusterCapacity      int                 `json:"map_cluster_capacity"`
	TileMaintenanceInterval int                 `json:"tile_maintenance_interval"`
	RoutePrefetchInterval   int                 `json:"route_prefetch_interval"`
	TileCachePath           string              `json:"tile_cache_path"`
	TileMaxAgeDays          int                 `json:"tile_max_age_days"`
	TileCacheLimitMB        int                 `json:"tile_cache_limit_mb"`
	RemoteSyncURL           string              `json:"remote_sync_url"`
	RemoteSyncToken         string              `json:"remote_sync_token"`
	RemoteSyncTimeout       int                 `json:"remote_sync_timeout"`
	RemoteSyncRetries       int                 `json:"remote_sync_retries"`
	NotificationWebhooks    []string            `json:"notification_webhooks"`
	ScanRules               map[string]ScanRule `json:"scan_rules"`
	ReportsDir              string              `json:"reports_dir"`
	DetectionRetentionDays  int                 `json:"detection_retention_days"`
	HealthRetentionDays     int                 `json:"health_retention_days"`
	KalmanProcessVariance   float64             `json:"kalman_process_variance"`
	KalmanMeasureVariance   float64             `json:"kalman_measure_variance"`
	DBSCANEps               float64             `json:"dbscan_eps"`
	DBSCANMinSamples        int                 `json:"dbscan_min_samples"`
	MinLocalizationPoints   int                 `json:"min_localization_points"`
	CentroidRSSIWeightPower float64             `json:"centroid_rssi_weight_power"`
	StreamRateLimit         float64             `json:"stream_rate_limit"`
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() Settings {
	return Settings{
		MapPollAPs:              60,
		MapPollBT:               60,
		MapPollGPS:              10,
		MapPollGPSMax:           30,
		HealthPollInterval:      10,
		LogRotateInterval:       86400,
		LogRotateArchives:       3,
		TileMaintenanceInterval: 604800,
		RoutePrefetchInterval:   3600,
		TileMaxAgeDays:          30,
		TileCacheLimitMB:        512,
		RemoteSyncTimeout:       30,
		RemoteSyncRetries:       3,
		ScanRules:               map[string]ScanRule{},
		DetectionRetentionDays:  30,
		HealthRetentionDays:     30,
		KalmanProcessVariance:   1e-5,
		KalmanMeasureVariance:   1e-2,
		DBSCANEps:               0.0005,
		DBSCANMinSamples:        3,
		MinLocalizationPoints:   5,
		CentroidRSSIWeightPower: 1.5,
		StreamRateLimit:         20,
	}
}

// knownKeys is derived once from the Settings JSON tags; used to reject
// unknown fields on update.
var knownKeys = func() map[string]struct{} {
	raw, _ := json.Marshal(DefaultSettings())
	var m map[string]json.RawMessage
	_ = json.Unmarshal(raw, &m)
	keys := make(map[string]struct{}, len(m))
	for k := range m {
		keys[k] = struct{}{}
	}
	return keys
}()

// Manager owns the settings document. Reads get a copy; updates are
// serialized by the mutex and persisted before they are visible.
type Manager struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

// NewManager loads the settings file at path, falling back to defaults when
// the file does not exist yet.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path, settings: DefaultSettings()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &m.settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Snapshot returns a copy of the current settings for read consumers.
func (m *Manager) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.clone()
}

// Update merges a partial JSON document into the settings. Unknown keys are
// rejected with ErrUnknownKey; the document is persisted on success.
func (m *Manager) Update(patch map[string]json.RawMessage) error {
	for key := range patch {
		if _, ok := knownKeys[key]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := m.settings.clone()
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	if err := merged.validate(); err != nil {
		return err
	}

	if err := save(m.path, merged); err != nil {
		return err
	}
	m.settings = merged
	return nil
}

// Save persists the current settings document.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return save(m.path, m.settings)
}

func save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s Settings) clone() Settings {
	out := s
	out.NotificationWebhooks = append([]string(nil), s.NotificationWebhooks...)
	out.ScanRules = make(map[string]ScanRule, len(s.ScanRules))
	for k, v := range s.ScanRules {
		rule := ScanRule{Times: append([]string(nil), v.Times...), Days: append([]string(nil), v.Days...)}
		if v.Enabled != nil {
			enabled := *v.Enabled
			rule.Enabled = &enabled
		}
		out.ScanRules[k] = rule
	}
	return out
}

func (s Settings) validate() error {
	if s.HealthPollInterval < 0 || s.MapPollAPs < 0 || s.MapPollBT < 0 || s.MapPollGPS < 0 {
		return fmt.Errorf("%w: poll intervals must be non-negative", ErrBadValue)
	}
	if s.TileMaxAgeDays < 0 || s.TileCacheLimitMB < 0 {
		return fmt.Errorf("%w: tile limits must be non-negative", ErrBadValue)
	}
	if s.RemoteSyncRetries < 0 {
		return fmt.Errorf("%w: remote_sync_retries must be non-negative", ErrBadValue)
	}
	if s.StreamRateLimit <= 0 {
		return fmt.Errorf("%w: stream_rate_limit must be positive", ErrBadValue)
	}
	return nil
}
