package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

func wifiRecord(ssid, enc, vendor string) *domain.WifiDetection {
	return &domain.WifiDetection{
		BSSID:        "AA:BB:CC:DD:EE:FF",
		SSID:         ssid,
		Channel:      6,
		FrequencyMHz: 2437,
		Encryption:   enc,
		Vendor:       vendor,
	}
}

func TestHashIsKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"vendor": "Acme", "channel": 6, "encryption": "WPA2"}
	b := map[string]any{"encryption": "WPA2", "channel": 6, "vendor": "Acme"}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashDiffersOnContent(t *testing.T) {
	ha, err := Hash(map[string]any{"vendor": "Acme"})
	require.NoError(t, err)
	hb, err := Hash(map[string]any{"vendor": "Other"})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestEqualCharacteristicsEqualFingerprints(t *testing.T) {
	s := New()

	fp1, err := s.Fingerprint(wifiRecord("Net", "WPA2", "Acme"))
	require.NoError(t, err)
	fp2, err := s.Fingerprint(wifiRecord("Net", "WPA2", "Acme"))
	require.NoError(t, err)
	assert.Equal(t, fp1.Hash, fp2.Hash)

	fp3, err := s.Fingerprint(wifiRecord("Net", "WPA3", "Acme"))
	require.NoError(t, err)
	assert.NotEqual(t, fp1.Hash, fp3.Hash)
}

func TestCharacteristicsSkipEmptyFields(t *testing.T) {
	d := &domain.WifiDetection{BSSID: "AA:BB:CC:DD:EE:FF", Encryption: "WPA2"}
	chars := Characteristics(d)
	assert.Equal(t, map[string]any{"encryption": "WPA2"}, chars)
}

func TestClassificationRules(t *testing.T) {
	tests := []struct {
		name      string
		enc       string
		vendor    string
		wantClass domain.Classification
		wantRisk  domain.RiskLevel
	}{
		{"open network", "OPEN", "Acme", domain.ClassPublic, domain.RiskMedium},
		{"empty encryption", "", "Acme", domain.ClassPublic, domain.RiskMedium},
		{"enterprise vendor", "WPA2", "Cisco Systems, Inc", domain.ClassBusiness, domain.RiskLow},
		{"default home", "WPA2", "TP-LINK TECHNOLOGIES", domain.ClassHome, domain.RiskLow},
		{"wep raises risk", "WEP", "TP-LINK TECHNOLOGIES", domain.ClassHome, domain.RiskHigh},
		{"wep on enterprise", "WPA/WEP", "Aruba Networks", domain.ClassBusiness, domain.RiskHigh},
	}

	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := s.Fingerprint(wifiRecord("Net", tt.enc, tt.vendor))
			require.NoError(t, err)
			assert.Equal(t, tt.wantClass, fp.Classification)
			assert.Equal(t, tt.wantRisk, fp.Risk)
		})
	}
}

func TestConfidenceScaling(t *testing.T) {
	s := New()

	// Minimal record: encryption, channel, frequency = 3 characteristics.
	fp, err := s.Fingerprint(wifiRecord("Net", "WPA2", ""))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, fp.Confidence, 1e-9)

	// Fully populated record caps at 1.0.
	tx := 20.0
	full := wifiRecord("Net", "WPA2", "Acme")
	full.CipherSuite = "CCMP"
	full.BeaconInterval = 100
	full.HTCaps = "HT40"
	full.VHTCaps = "VHT80"
	full.HECaps = "HE160"
	full.Country = "ES"
	full.TxPowerDBm = &tx
	full.DeviceType = "router"
	fp, err = s.Fingerprint(full)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fp.Confidence)
}

func TestFingerprintBatch(t *testing.T) {
	s := New()
	fps := s.FingerprintBatch([]*domain.WifiDetection{
		wifiRecord("A", "WPA2", "Acme"),
		wifiRecord("B", "OPEN", ""),
	})
	require.Len(t, fps, 2)
	assert.Equal(t, "A", fps[0].SSID)
	assert.Equal(t, domain.ClassPublic, fps[1].Classification)
}
