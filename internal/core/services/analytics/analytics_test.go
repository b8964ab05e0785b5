package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

func detection(signal float64, enc, ssid string, channel, sec int) *domain.WifiDetection {
	return &domain.WifiDetection{
		SessionID:  domain.AdhocSession,
		BSSID:      "AA:BB:CC:DD:EE:FF",
		SSID:       ssid,
		Channel:    channel,
		SignalDBm:  signal,
		Encryption: enc,
		Time:       time.Date(2026, 8, 26, 10, 0, sec, 0, time.UTC),
	}
}

func located(d *domain.WifiDetection, lat, lon float64) *domain.WifiDetection {
	d.Latitude = domain.Float64Ptr(lat)
	d.Longitude = domain.Float64Ptr(lon)
	return d
}

func TestComputeSignalStatistics(t *testing.T) {
	row := Compute("AA", "2026-08-26", []*domain.WifiDetection{
		detection(-50, "WPA2", "Net", 6, 0),
		detection(-60, "WPA2", "Net", 6, 1),
		detection(-70, "WPA2", "Net", 6, 2),
	})

	assert.Equal(t, 3, row.TotalDetections)
	assert.Equal(t, -70.0, row.SignalMin)
	assert.Equal(t, -50.0, row.SignalMax)
	assert.InDelta(t, -60.0, row.SignalMean, 1e-9)
	assert.InDelta(t, 200.0/3, row.SignalVariance, 1e-6)
	assert.Zero(t, row.EncryptionChanges)
	assert.Zero(t, row.SSIDChanges)
	assert.Zero(t, row.ChannelChanges)
}

func TestComputeCountsChanges(t *testing.T) {
	row := Compute("AA", "2026-08-26", []*domain.WifiDetection{
		detection(-50, "WPA2", "Net", 6, 0),
		detection(-50, "OPEN", "Net", 6, 1),
		detection(-50, "OPEN", "Other", 11, 2),
		detection(-50, "WPA2", "Other", 11, 3),
	})

	assert.Equal(t, 2, row.EncryptionChanges)
	assert.Equal(t, 1, row.SSIDChanges)
	assert.Equal(t, 1, row.ChannelChanges)
}

func TestComputeUniqueLocationsBounded(t *testing.T) {
	// Two sightings in the same rounded cell count once.
	row := Compute("AA", "2026-08-26", []*domain.WifiDetection{
		located(detection(-50, "WPA2", "Net", 6, 0), 41.38000, 2.17000),
		located(detection(-52, "WPA2", "Net", 6, 1), 41.38001, 2.17001),
		located(detection(-54, "WPA2", "Net", 6, 2), 41.39000, 2.18000),
		detection(-56, "WPA2", "Net", 6, 3), // no fix
	})

	assert.Equal(t, 2, row.UniqueLocations)
	assert.LessOrEqual(t, row.UniqueLocations, row.TotalDetections)
	assert.InDelta(t, 0.5, row.MobilityScore, 1e-9)
	assert.Greater(t, row.CoverageRadiusM, 0.0)
}

func TestComputeVarianceNonNegativeOnConstantSeries(t *testing.T) {
	row := Compute("AA", "2026-08-26", []*domain.WifiDetection{
		detection(-63.7, "WPA2", "Net", 6, 0),
		detection(-63.7, "WPA2", "Net", 6, 1),
	})
	assert.GreaterOrEqual(t, row.SignalVariance, 0.0)
}

type fakeWifiSource struct {
	detections map[string][]*domain.WifiDetection
}

func (f *fakeWifiSource) BSSIDsForDay(_ context.Context, _ string) ([]string, error) {
	var out []string
	for bssid := range f.detections {
		out = append(out, bssid)
	}
	return out, nil
}

func (f *fakeWifiSource) WifiForDay(_ context.Context, bssid, _ string) ([]*domain.WifiDetection, error) {
	return f.detections[bssid], nil
}

type fakeFindings struct{ count int }

func (f *fakeFindings) CountSuspicious(_ context.Context, _, _ string) (int, error) {
	return f.count, nil
}

type fakeRowSink struct{ rows []*domain.NetworkAnalyticsRow }

func (f *fakeRowSink) UpsertAnalytics(_ context.Context, row *domain.NetworkAnalyticsRow) error {
	f.rows = append(f.rows, row)
	return nil
}

func TestAggregateDayWritesRows(t *testing.T) {
	source := &fakeWifiSource{detections: map[string][]*domain.WifiDetection{
		"AA": {
			detection(-50, "WPA2", "Net", 6, 0),
			detection(-60, "WPA2", "Net", 6, 1),
		},
	}}
	sink := &fakeRowSink{}

	svc := New(source, &fakeFindings{count: 1}, sink)
	written, err := svc.AggregateDay(context.Background(), "2026-08-26")

	require.NoError(t, err)
	assert.Equal(t, 1, written)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, "2026-08-26", sink.rows[0].Date)
	assert.InDelta(t, 0.5, sink.rows[0].SuspiciousScore, 1e-9)
}

func TestSuspiciousScoreCapsAtOne(t *testing.T) {
	source := &fakeWifiSource{detections: map[string][]*domain.WifiDetection{
		"AA": {detection(-50, "WPA2", "Net", 6, 0)},
	}}
	sink := &fakeRowSink{}

	svc := New(source, &fakeFindings{count: 5}, sink)
	_, err := svc.AggregateDay(context.Background(), "2026-08-26")

	require.NoError(t, err)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, 1.0, sink.rows[0].SuspiciousScore)
}
