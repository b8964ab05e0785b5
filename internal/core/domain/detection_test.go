package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWifiDetection(t *testing.T) {
	t.Run("requires bssid", func(t *testing.T) {
		_, err := NewWifiDetection("s1", "", "Home", time.Now())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "bssid", verr.Field)
	})

	t.Run("defaults to adhoc session", func(t *testing.T) {
		d, err := NewWifiDetection("", "AA:BB:CC:DD:EE:FF", "Home", time.Now())
		require.NoError(t, err)
		assert.Equal(t, AdhocSession, d.SessionID)
	})

	t.Run("normalizes time to UTC", func(t *testing.T) {
		loc := time.FixedZone("CEST", 2*3600)
		at := time.Date(2025, 6, 1, 14, 0, 0, 0, loc)
		d, err := NewWifiDetection("s1", "AA:BB:CC:DD:EE:FF", "Home", at)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, d.Time.Location())
		assert.True(t, d.Time.Equal(at))
	})
}

func TestNewBluetoothDetection(t *testing.T) {
	_, err := NewBluetoothDetection("s1", "", "speaker", time.Now())
	assert.ErrorIs(t, err, ErrInvalidRecord)

	d, err := NewBluetoothDetection("s1", "11:22:33:44:55:66", "speaker", time.Now())
	require.NoError(t, err)
	assert.Equal(t, SourceBluetooth, d.Kind())
}

func TestNewCellularDetection(t *testing.T) {
	_, err := NewCellularDetection("s1", "", "B20", time.Now())
	assert.ErrorIs(t, err, ErrInvalidRecord)

	d, err := NewCellularDetection("", "310-410-1234", "B20", time.Now())
	require.NoError(t, err)
	assert.Equal(t, SourceCellular, d.Kind())
	assert.Equal(t, AdhocSession, d.SessionID)
}

func TestHasLocation(t *testing.T) {
	d := &WifiDetection{BSSID: "AA"}
	assert.False(t, d.HasLocation())

	d.Latitude = Float64Ptr(40.0)
	assert.False(t, d.HasLocation(), "latitude alone is not a location")

	d.Longitude = Float64Ptr(-3.7)
	assert.True(t, d.HasLocation())
}

func TestFormatTimeLexicographicOrder(t *testing.T) {
	// Stored timestamps are compared as strings, so string order must match
	// chronological order even across sub-second boundaries.
	times := []time.Time{
		time.Date(2025, 6, 1, 12, 0, 0, 500_000_000, time.UTC),
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
		time.Date(2025, 6, 1, 12, 0, 0, 250_000_000, time.UTC),
	}

	formatted := make([]string, len(times))
	for i, tm := range times {
		formatted[i] = FormatTime(tm)
	}
	sort.Strings(formatted)

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, tm := range times {
		assert.Equal(t, FormatTime(tm), formatted[i])
	}
}

func TestParseTimeRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 45, 123456000, time.UTC)
	parsed, err := ParseTime(FormatTime(at))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(at))

	// Plain RFC3339 from older rows still parses.
	parsed, err = ParseTime("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, parsed.Year())
}

func TestFixQualityFromMode(t *testing.T) {
	tests := []struct {
		mode int
		want FixQuality
	}{
		{1, FixNone},
		{2, Fix2D},
		{3, Fix3D},
		{4, FixDGPS},
		{0, FixUnknown},
		{9, FixUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FixQualityFromMode(tt.mode))
	}
}

func TestNewGeofence(t *testing.T) {
	square := []Position{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

	t.Run("valid", func(t *testing.T) {
		g, err := NewGeofence("depot", square)
		require.NoError(t, err)
		assert.Equal(t, "depot", g.Name)
		assert.False(t, g.Inside)
	})

	t.Run("rejects path separators", func(t *testing.T) {
		_, err := NewGeofence("../etc", square)
		assert.ErrorIs(t, err, ErrUnsafeGeofenceName)
	})

	t.Run("rejects degenerate polygon", func(t *testing.T) {
		_, err := NewGeofence("line", square[:2])
		assert.ErrorIs(t, err, ErrDegeneratePolygon)
	})
}
