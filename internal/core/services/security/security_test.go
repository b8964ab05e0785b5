package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

func ap(bssid, ssid, enc string) *domain.WifiDetection {
	return &domain.WifiDetection{
		SessionID:  domain.AdhocSession,
		BSSID:      bssid,
		SSID:       ssid,
		Encryption: enc,
	}
}

func TestHiddenSSID(t *testing.T) {
	engine := NewEngine()

	findings := engine.Analyze([]*domain.WifiDetection{
		ap("AA:AA:AA:AA:AA:AA", "", "WPA2"),
	})

	require.Len(t, findings, 1)
	assert.Equal(t, domain.ActivityHiddenSSID, findings[0].Type)
	assert.Equal(t, domain.RiskLow, findings[0].Severity)
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", findings[0].TargetBSSID)
}

func TestEvilTwinTwoBSSIDsDifferentEncryption(t *testing.T) {
	engine := NewEngine()

	findings := engine.Analyze([]*domain.WifiDetection{
		ap("AA", "Home", "WPA2"),
		ap("BB", "Home", "OPEN"),
	})

	var twins []*domain.SuspiciousActivity
	for _, f := range findings {
		if f.Type == domain.ActivityEvilTwin {
			twins = append(twins, f)
		}
	}
	require.Len(t, twins, 2, "every member of the group is flagged")

	for _, f := range twins {
		assert.Equal(t, domain.RiskHigh, f.Severity)
		assert.Equal(t, "Home", f.TargetSSID)
		assert.ElementsMatch(t, []string{"AA", "BB"}, f.Evidence["bssids"])
		assert.ElementsMatch(t, []string{"WPA2", "OPEN"}, f.Evidence["encryptions"])
	}
}

func TestEvilTwinVendorDivergence(t *testing.T) {
	engine := NewEngine()

	a := ap("AA", "Corp", "WPA2")
	a.Vendor = "Cisco"
	b := ap("BB", "Corp", "WPA2")
	b.Vendor = "Unknown Ltd"

	findings := engine.Analyze([]*domain.WifiDetection{a, b})

	var twins int
	for _, f := range findings {
		if f.Type == domain.ActivityEvilTwin {
			twins++
		}
	}
	assert.Equal(t, 2, twins)
}

func TestEvilTwinRequiresDivergence(t *testing.T) {
	engine := NewEngine()

	// Two BSSIDs, same encryption, same vendor: a legitimate mesh, not a twin.
	findings := engine.Analyze([]*domain.WifiDetection{
		ap("AA", "Mesh", "WPA2"),
		ap("BB", "Mesh", "WPA2"),
	})

	for _, f := range findings {
		assert.NotEqual(t, domain.ActivityEvilTwin, f.Type)
	}
}

func TestEvilTwinSingleBSSIDNotFlagged(t *testing.T) {
	engine := NewEngine()

	// Same AP seen twice with an encryption change is not a twin group.
	findings := engine.Analyze([]*domain.WifiDetection{
		ap("AA", "Home", "WPA2"),
		ap("AA", "Home", "OPEN"),
	})

	for _, f := range findings {
		assert.NotEqual(t, domain.ActivityEvilTwin, f.Type)
	}
}

func TestDeauthHeuristic(t *testing.T) {
	engine := NewEngine()

	strong := ap("AA", "Net", "WPA2")
	strong.SignalDBm = -30
	strong.StationCount = 0

	weak := ap("BB", "Net2", "WPA2")
	weak.SignalDBm = -70
	weak.StationCount = 0

	busy := ap("CC", "Net3", "WPA2")
	busy.SignalDBm = -30
	busy.StationCount = 4

	findings := engine.Analyze([]*domain.WifiDetection{strong, weak, busy})

	var deauth []*domain.SuspiciousActivity
	for _, f := range findings {
		if f.Type == domain.ActivityDeauthAttack {
			deauth = append(deauth, f)
		}
	}
	require.Len(t, deauth, 1)
	assert.Equal(t, "AA", deauth[0].TargetBSSID)
	assert.Equal(t, domain.RiskMedium, deauth[0].Severity)
}

func TestFindingsCarryUniqueIDs(t *testing.T) {
	engine := NewEngine()
	findings := engine.Analyze([]*domain.WifiDetection{
		ap("AA", "", ""),
		ap("BB", "", ""),
	})
	require.Len(t, findings, 2)
	assert.NotEqual(t, findings[0].ID, findings[1].ID)
	assert.NotEmpty(t, findings[0].ID)
}
