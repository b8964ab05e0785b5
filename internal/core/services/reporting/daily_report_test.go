package reporting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

type fakeCounter struct{ counts map[string]int }

func (f *fakeCounter) CountSince(_ context.Context, _ time.Time) (map[string]int, error) {
	return f.counts, nil
}

type fakeAnalytics struct {
	rows     []*domain.NetworkAnalyticsRow
	findings []*domain.SuspiciousActivity
}

func (f *fakeAnalytics) AnalyticsForDate(_ context.Context, _ string) ([]*domain.NetworkAnalyticsRow, error) {
	return f.rows, nil
}

func (f *fakeAnalytics) SuspiciousSince(_ context.Context, _ time.Time, _ int) ([]*domain.SuspiciousActivity, error) {
	return f.findings, nil
}

func TestRenderProducesPDF(t *testing.T) {
	body, err := Render(&DailySummary{
		Date:        "2026-08-26",
		Counts:      map[string]int{"wifi": 120, "bluetooth": 14},
		GeneratedAt: time.Date(2026, 8, 27, 0, 5, 0, 0, time.UTC),
		TopRows: []*domain.NetworkAnalyticsRow{
			{BSSID: "AA:BB:CC:DD:EE:FF", TotalDetections: 40, SignalMean: -62.5},
		},
		Findings: []*domain.SuspiciousActivity{
			{Type: domain.ActivityEvilTwin, Severity: domain.RiskHigh, TargetBSSID: "AA", TargetSSID: "Home"},
		},
	})

	require.NoError(t, err)
	require.NotEmpty(t, body)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestRenderEmptySummary(t *testing.T) {
	body, err := Render(&DailySummary{Date: "2026-08-26", GeneratedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestGenerateDailyWritesFile(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(
		&fakeCounter{counts: map[string]int{"wifi": 3}},
		&fakeAnalytics{},
		dir,
	)

	path, err := gen.GenerateDaily(context.Background(), time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "piwardrive-2026-08-26.pdf"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestSeverityColors(t *testing.T) {
	r, _, _ := severityColor(domain.RiskHigh)
	assert.Equal(t, 220, r)
	_, g, _ := severityColor(domain.RiskLow)
	assert.Equal(t, 167, g)
}
