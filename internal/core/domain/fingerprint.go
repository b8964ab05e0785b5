package domain

import "time"

// Classification is the network category assigned by fingerprinting.
type Classification string

const (
	ClassHome           Classification = "home"
	ClassBusiness       Classification = "business"
	ClassPublic         Classification = "public"
	ClassIoTSensor      Classification = "iot_sensor"
	ClassSmartAppliance Classification = "smart_appliance"
	ClassGeneric        Classification = "generic"
)

// IsValid checks if the classification is a recognized category.
func (c Classification) IsValid() bool {
	switch c {
	case ClassHome, ClassBusiness, ClassPublic, ClassIoTSensor, ClassSmartAppliance, ClassGeneric:
		return true
	}
	return false
}

// RiskLevel grades the security exposure of a network or finding.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid checks if the risk level is recognized.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// NetworkFingerprint identifies a network across sightings by a stable hash
// over its canonicalized characteristics. Fingerprints accumulate with
// newest-first semantics; they are never updated in place.
type NetworkFingerprint struct {
	BSSID           string         `json:"bssid"`
	SSID            string         `json:"ssid"`
	Hash            string         `json:"fingerprint_hash"`
	Characteristics map[string]any `json:"characteristics"`
	Classification  Classification `json:"classification"`
	Risk            RiskLevel      `json:"risk_level"`
	Confidence      float64        `json:"confidence"` // [0,1]
	CreatedAt       time.Time      `json:"created_at"`
}
