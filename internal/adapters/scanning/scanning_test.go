package scanning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

const iwlistFixture = `wlan0     Scan completed :
          Cell 01 - Address: AA:BB:CC:DD:EE:FF
                    Channel:6
                    Frequency:2.437 GHz (Channel 6)
                    Quality=70/70  Signal level=-40 dBm
                    Encryption key:on
                    ESSID:"HomeNet"
                    IE: IEEE 802.11i/WPA2 Version 1
          Cell 02 - Address: 11:22:33:44:55:66
                    Channel:36
                    Frequency:5.18 GHz (Channel 36)
                    Quality=40/70  Signal level=-67 dBm
                    Encryption key:off
                    ESSID:"CoffeeShop"
          Cell 03 - Address: 22:33:44:55:66:77
                    Channel:11
                    Signal level=-72 dBm
                    Encryption key:on
                    ESSID:"legacy"
`

func TestParseIwlist(t *testing.T) {
	records := ParseIwlist([]byte(iwlistFixture))
	require.Len(t, records, 3)

	home := records[0]
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", home.BSSID)
	assert.Equal(t, "HomeNet", home.SSID)
	assert.Equal(t, 6, home.Channel)
	assert.Equal(t, 2437, home.FrequencyMHz)
	assert.Equal(t, -40.0, home.SignalDBm)
	assert.Equal(t, "WPA2", home.Encryption)

	assert.Equal(t, "OPEN", records[1].Encryption)
	assert.Equal(t, "CoffeeShop", records[1].SSID)
	assert.Equal(t, 5180, records[1].FrequencyMHz)

	// Encryption on without a WPA IE is WEP.
	assert.Equal(t, "WEP", records[2].Encryption)
}

func TestParseIwlistEmptyOutput(t *testing.T) {
	assert.Empty(t, ParseIwlist(nil))
	assert.Empty(t, ParseIwlist([]byte("wlan0     No scan results\n")))
}

func TestParseBluetoothctl(t *testing.T) {
	out := []byte(`Discovery started
[CHG] Controller 00:11:22:33:44:55 Discovering: yes
[NEW] Device 70:88:6B:83:12:34 JBL Flip 5
[NEW] Device d0:03:4b:aa:bb:cc Pixel 8
[NEW] Device 70:88:6B:83:12:34 JBL Flip 5
[CHG] Device 70:88:6B:83:12:34 RSSI: -54
`)
	records := ParseBluetoothctl(out)
	require.Len(t, records, 2)
	assert.Equal(t, "70:88:6B:83:12:34", records[0].MAC)
	assert.Equal(t, "JBL Flip 5", records[0].Name)
	assert.Equal(t, "D0:03:4B:AA:BB:CC", records[1].MAC)
}

func TestParseCellularCSV(t *testing.T) {
	out := []byte(`# band,cell_id,rssi
LTE,310410-1234,-85.5
GSM,22201-99,-97,222,01,4321,GSM
garbage line
LTE,,  -50
`)
	records := ParseCellularCSV(out)
	require.Len(t, records, 2)

	assert.Equal(t, "LTE", records[0].Band)
	assert.Equal(t, "310410-1234", records[0].CellID)
	assert.Equal(t, -85.5, records[0].SignalDBm)

	assert.Equal(t, "222", records[1].MCC)
	assert.Equal(t, "01", records[1].MNC)
	assert.Equal(t, "4321", records[1].LAC)
	assert.Equal(t, "GSM", records[1].Technology)
}

// fixtureCommand writes content to a temp file and returns a cat argv that
// prints it, standing in for the real scan tool.
func fixtureCommand(t *testing.T, content string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return []string{"cat", path}
}

type stubRules struct{ allowed map[string]bool }

func (s *stubRules) Allow(scanType string) bool { return s.allowed[scanType] }

type stubPosition struct{ lat, lon float64 }

func (s *stubPosition) Position(context.Context) (domain.Position, bool) {
	return domain.Position{Lat: s.lat, Lon: s.lon}, true
}
func (s *stubPosition) Accuracy(context.Context) (float64, bool) { return 5, true }
func (s *stubPosition) FixQuality(context.Context) domain.FixQuality {
	return domain.Fix3D
}
func (s *stubPosition) TrackPoint(context.Context) (*domain.GPSTrackPoint, bool) {
	return nil, false
}
func (s *stubPosition) Close() error { return nil }

type stubVendors struct{}

func (stubVendors) Lookup(mac string) (string, error) { return "Acme Corp", nil }

func TestExecutorScanWifiEnriches(t *testing.T) {
	runner := NewCommandRunner(2*time.Second, nil)
	exec := NewExecutor(runner,
		WithWifiCommand(fixtureCommand(t, iwlistFixture)...),
		WithPosition(&stubPosition{lat: 41.38, lon: 2.17}),
		WithVendorLookup(stubVendors{}),
		WithSession(func() string { return "session-1" }),
	)

	var hooked int
	exec.RegisterWifiPostProcessor(func(*domain.WifiDetection) { hooked++ })

	records := exec.ScanWifi(context.Background(), "wlan0")
	require.Len(t, records, 3)
	assert.Equal(t, 3, hooked)

	for _, rec := range records {
		assert.Equal(t, "session-1", rec.SessionID)
		assert.Equal(t, "Acme Corp", rec.Vendor)
		require.NotNil(t, rec.Latitude)
		assert.Equal(t, 41.38, *rec.Latitude)
		assert.False(t, rec.Time.IsZero())
	}
}

func TestExecutorDeniedRuleSkipsScan(t *testing.T) {
	runner := NewCommandRunner(2*time.Second, nil)
	exec := NewExecutor(runner,
		WithWifiCommand("false"),
		WithRules(&stubRules{allowed: map[string]bool{"bluetooth": true}}),
	)

	assert.Nil(t, exec.ScanWifi(context.Background(), "wlan0"))
	assert.Nil(t, exec.ScanCellular(context.Background()))
}

func TestExecutorFailedCommandYieldsEmpty(t *testing.T) {
	runner := NewCommandRunner(2*time.Second, nil)
	exec := NewExecutor(runner, WithWifiCommand("false"))

	assert.Nil(t, exec.ScanWifi(context.Background(), "wlan0"))
}

func TestExecutorScanWifiAsync(t *testing.T) {
	runner := NewCommandRunner(2*time.Second, nil)
	exec := NewExecutor(runner, WithWifiCommand(fixtureCommand(t, iwlistFixture)...))

	select {
	case records := <-exec.ScanWifiAsync(context.Background(), "wlan0"):
		assert.Len(t, records, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("async scan did not complete")
	}
}

func TestCommandRunnerTimeout(t *testing.T) {
	runner := NewCommandRunner(100*time.Millisecond, nil)
	_, err := runner.Run(context.Background(), "sleep", "5")
	assert.Error(t, err)
}

func TestApplyIE(t *testing.T) {
	rec := &domain.WifiDetection{}
	var wpa, wpa2 bool

	applyIE(&layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDSSID,
		Info: []byte("HomeNet"),
	}, rec, &wpa, &wpa2)
	applyIE(&layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDDSSet,
		Info: []byte{6},
	}, rec, &wpa, &wpa2)
	applyIE(&layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDCountryInfo,
		Info: []byte("ES \x01\x0b\x14"),
	}, rec, &wpa, &wpa2)
	applyIE(&layers.Dot11InformationElement{
		ID: layers.Dot11InformationElementIDRSNInfo,
		// version 1, group cipher 00-0F-AC:4 (CCMP)
		Info: []byte{0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04},
	}, rec, &wpa, &wpa2)
	applyIE(&layers.Dot11InformationElement{
		ID: layers.Dot11InformationElementIDHTCapabilities,
	}, rec, &wpa, &wpa2)

	assert.Equal(t, "HomeNet", rec.SSID)
	assert.Equal(t, 6, rec.Channel)
	assert.Equal(t, "ES", rec.Country)
	assert.Equal(t, "CCMP", rec.CipherSuite)
	assert.Equal(t, "HT", rec.HTCaps)
	assert.True(t, wpa2)
	assert.False(t, wpa)
	assert.Equal(t, "WPA2", encryptionLabel(true, wpa, wpa2))
}

func TestApplyIEVendorWPA(t *testing.T) {
	rec := &domain.WifiDetection{}
	var wpa, wpa2 bool

	applyIE(&layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDVendor,
		Info: []byte{0x00, 0x50, 0xF2, 0x01, 0x01, 0x00},
	}, rec, &wpa, &wpa2)

	assert.True(t, wpa)
	assert.Equal(t, "WPA", encryptionLabel(true, wpa, wpa2))
}

func TestRSNGroupCipher(t *testing.T) {
	assert.Equal(t, "CCMP", rsnGroupCipher([]byte{0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04}))
	assert.Equal(t, "TKIP", rsnGroupCipher([]byte{0x01, 0x00, 0x00, 0x0F, 0xAC, 0x02}))
	assert.Equal(t, "GCMP", rsnGroupCipher([]byte{0x01, 0x00, 0x00, 0x0F, 0xAC, 0x08}))
	assert.Equal(t, "", rsnGroupCipher([]byte{0x02, 0x00, 0x00, 0x0F, 0xAC, 0x04}))
	assert.Equal(t, "", rsnGroupCipher([]byte{0x01, 0x00}))
}

func TestPassiveCaptureRequiresSource(t *testing.T) {
	capture := NewPassiveCapture("", "", nil, nil, func([]*domain.WifiDetection) {})
	err := capture.Run(context.Background())
	assert.Error(t, err)
}
