package domain

import "time"

// ActivityType labels a suspicious finding emitted by the security heuristics.
type ActivityType string

const (
	ActivityEvilTwin     ActivityType = "evil_twin"
	ActivityHiddenSSID   ActivityType = "hidden_ssid"
	ActivityDeauthAttack ActivityType = "deauth_attack"
	ActivityRogueAP      ActivityType = "rogue_ap"
)

// IsValid checks if the activity type is recognized.
func (a ActivityType) IsValid() bool {
	switch a {
	case ActivityEvilTwin, ActivityHiddenSSID, ActivityDeauthAttack, ActivityRogueAP:
		return true
	}
	return false
}

// SuspiciousActivity records one security finding for analyst review.
type SuspiciousActivity struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Type        ActivityType   `json:"activity_type"`
	Severity    RiskLevel      `json:"severity"`
	TargetBSSID string         `json:"target_bssid,omitempty"`
	TargetSSID  string         `json:"target_ssid,omitempty"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Latitude    *float64       `json:"lat,omitempty"`
	Longitude   *float64       `json:"lon,omitempty"`
	DetectedAt  time.Time      `json:"detected_at"`
	Analyzed    bool           `json:"analyzed"`
}
