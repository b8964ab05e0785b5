package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// enterpriseVendors are vendor name fragments that mark managed business
// infrastructure.
var enterpriseVendors = []string{
	"cisco",
	"aruba",
	"hewlett packard",
	"juniper",
	"ruckus",
	"ubiquiti",
	"meraki",
	"extreme networks",
	"fortinet",
	"mist systems",
}

// Service computes network fingerprints from Wi-Fi detections.
type Service struct{}

func New() *Service { return &Service{} }

// Characteristics extracts the canonical characteristic map for one
// detection. Only non-empty fields participate so two sightings of the same
// network through the same sensor hash identically.
func Characteristics(d *domain.WifiDetection) map[string]any {
	m := make(map[string]any, 11)
	put := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	put("vendor", d.Vendor)
	put("encryption", d.Encryption)
	put("cipher_suite", d.CipherSuite)
	put("ht_caps", d.HTCaps)
	put("vht_caps", d.VHTCaps)
	put("he_caps", d.HECaps)
	put("country", d.Country)
	put("device_type", d.DeviceType)
	if d.BeaconInterval > 0 {
		m["beacon_interval"] = d.BeaconInterval
	}
	if d.Channel > 0 {
		m["channel"] = d.Channel
	}
	if d.FrequencyMHz > 0 {
		m["frequency"] = d.FrequencyMHz
	}
	if d.TxPowerDBm != nil {
		m["tx_power"] = *d.TxPowerDBm
	}
	return m
}

// Hash returns the SHA-256 over the canonical JSON rendering of the
// characteristic map. encoding/json sorts map keys, so the hash depends only
// on the map contents, never on insertion order.
func Hash(characteristics map[string]any) (string, error) {
	canonical, err := json.Marshal(characteristics)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint computes the full fingerprint record for one detection.
func (s *Service) Fingerprint(d *domain.WifiDetection) (*domain.NetworkFingerprint, error) {
	chars := Characteristics(d)
	hash, err := Hash(chars)
	if err != nil {
		return nil, err
	}

	class, risk := classify(d)
	confidence := float64(len(chars)) / 10
	if confidence > 1 {
		confidence = 1
	}

	return &domain.NetworkFingerprint{
		BSSID:           d.BSSID,
		SSID:            d.SSID,
		Hash:            hash,
		Characteristics: chars,
		Classification:  class,
		Risk:            risk,
		Confidence:      confidence,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// FingerprintBatch fingerprints a whole detection batch, skipping records
// that fail (none do today; the error path covers future characteristics
// that resist JSON encoding).
func (s *Service) FingerprintBatch(records []*domain.WifiDetection) []*domain.NetworkFingerprint {
	out := make([]*domain.NetworkFingerprint, 0, len(records))
	for _, d := range records {
		fp, err := s.Fingerprint(d)
		if err != nil {
			continue
		}
		out = append(out, fp)
	}
	return out
}

// classify applies the classification rules in order: open networks are
// public at medium risk, enterprise vendors are business, everything else is
// home. WEP anywhere in the encryption string raises the risk to high.
func classify(d *domain.WifiDetection) (domain.Classification, domain.RiskLevel) {
	enc := strings.ToUpper(strings.TrimSpace(d.Encryption))

	var class domain.Classification
	var risk domain.RiskLevel
	switch {
	case enc == "" || enc == "OPEN":
		class, risk = domain.ClassPublic, domain.RiskMedium
	case isEnterpriseVendor(d.Vendor):
		class, risk = domain.ClassBusiness, domain.RiskLow
	default:
		class, risk = domain.ClassHome, domain.RiskLow
	}

	if strings.Contains(enc, "WEP") {
		risk = domain.RiskHigh
	}
	return class, risk
}

func isEnterpriseVendor(vendor string) bool {
	v := strings.ToLower(vendor)
	if v == "" {
		return false
	}
	for _, e := range enterpriseVendors {
		if strings.Contains(v, e) {
			return true
		}
	}
	return false
}
