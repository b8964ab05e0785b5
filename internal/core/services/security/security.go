package security

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// Detector is one pluggable heuristic over a Wi-Fi detection batch.
type Detector interface {
	Name() string
	Detect(batch []*domain.WifiDetection) []*domain.SuspiciousActivity
}

// Engine runs the registered detectors over each batch.
type Engine struct {
	detectors []Detector
}

// NewEngine creates an engine with the default heuristics: hidden SSID,
// evil twin and the deauth signal heuristic.
func NewEngine() *Engine {
	return &Engine{
		detectors: []Detector{
			&HiddenSSIDDetector{},
			&EvilTwinDetector{},
			&DeauthDetector{},
		},
	}
}

// Register adds a custom detector.
func (e *Engine) Register(d Detector) {
	e.detectors = append(e.detectors, d)
}

// Analyze runs every detector over the batch and returns all findings.
func (e *Engine) Analyze(batch []*domain.WifiDetection) []*domain.SuspiciousActivity {
	var out []*domain.SuspiciousActivity
	for _, d := range e.detectors {
		out = append(out, d.Detect(batch)...)
	}
	return out
}

func newActivity(d *domain.WifiDetection, typ domain.ActivityType, severity domain.RiskLevel, evidence map[string]any) *domain.SuspiciousActivity {
	return &domain.SuspiciousActivity{
		ID:          uuid.NewString(),
		SessionID:   d.SessionID,
		Type:        typ,
		Severity:    severity,
		TargetBSSID: d.BSSID,
		TargetSSID:  d.SSID,
		Evidence:    evidence,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		DetectedAt:  time.Now().UTC(),
	}
}

// HiddenSSIDDetector flags every record broadcasting an empty SSID.
type HiddenSSIDDetector struct{}

func (d *HiddenSSIDDetector) Name() string { return "hidden_ssid" }

func (d *HiddenSSIDDetector) Detect(batch []*domain.WifiDetection) []*domain.SuspiciousActivity {
	var out []*domain.SuspiciousActivity
	for _, rec := range batch {
		if rec.SSID != "" {
			continue
		}
		out = append(out, newActivity(rec, domain.ActivityHiddenSSID, domain.RiskLow, map[string]any{
			"bssid": rec.BSSID,
		}))
	}
	return out
}

// EvilTwinDetector groups records by SSID and flags groups where at least two
// BSSIDs advertise the same name with diverging encryption or vendor. Every
// member of a flagged group is reported, carrying the shared group evidence.
type EvilTwinDetector struct{}

func (d *EvilTwinDetector) Name() string { return "evil_twin" }

func (d *EvilTwinDetector) Detect(batch []*domain.WifiDetection) []*domain.SuspiciousActivity {
	groups := make(map[string][]*domain.WifiDetection)
	for _, rec := range batch {
		if rec.SSID == "" {
			continue
		}
		groups[rec.SSID] = append(groups[rec.SSID], rec)
	}

	var out []*domain.SuspiciousActivity
	for ssid, members := range groups {
		bssids := distinct(members, func(r *domain.WifiDetection) string { return r.BSSID })
		if len(bssids) < 2 {
			continue
		}
		encryptions := distinct(members, func(r *domain.WifiDetection) string { return r.Encryption })
		vendors := distinct(members, func(r *domain.WifiDetection) string { return r.Vendor })
		if len(encryptions) < 2 && len(vendors) < 2 {
			continue
		}

		evidence := map[string]any{
			"ssid":        ssid,
			"bssids":      bssids,
			"encryptions": encryptions,
		}
		if len(vendors) >= 2 {
			evidence["vendors"] = vendors
		}
		for _, rec := range members {
			out = append(out, newActivity(rec, domain.ActivityEvilTwin, domain.RiskHigh, evidence))
		}
	}
	return out
}

// DeauthDetector flags access points with no associated stations despite a
// very strong signal, a heuristic for deauthentication floods nearby.
type DeauthDetector struct{}

const deauthSignalThresholdDBm = -40.0

func (d *DeauthDetector) Name() string { return "deauth_attack" }

func (d *DeauthDetector) Detect(batch []*domain.WifiDetection) []*domain.SuspiciousActivity {
	var out []*domain.SuspiciousActivity
	for _, rec := range batch {
		if rec.StationCount != 0 || rec.SignalDBm <= deauthSignalThresholdDBm {
			continue
		}
		out = append(out, newActivity(rec, domain.ActivityDeauthAttack, domain.RiskMedium, map[string]any{
			"bssid":      rec.BSSID,
			"signal_dbm": rec.SignalDBm,
			"stations":   rec.StationCount,
		}))
	}
	return out
}

// distinct collects the sorted set of key values across records. Empty values
// still count as one distinct value so OPEN-vs-empty encryption differences
// stay visible.
func distinct(records []*domain.WifiDetection, key func(*domain.WifiDetection) string) []string {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[key(r)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
