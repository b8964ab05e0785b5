package analytics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/geo"
)

// coordPrecision is the rounding applied when counting distinct locations;
// 4 decimals is roughly an 11 m cell.
const coordPrecision = 4

// WifiSource yields the stored Wi-Fi detections for the aggregation window.
type WifiSource interface {
	BSSIDsForDay(ctx context.Context, date string) ([]string, error)
	WifiForDay(ctx context.Context, bssid, date string) ([]*domain.WifiDetection, error)
}

// FindingCounter reports how many suspicious findings a BSSID accumulated on
// a given date.
type FindingCounter interface {
	CountSuspicious(ctx context.Context, bssid, date string) (int, error)
}

// RowSink persists the computed rows.
type RowSink interface {
	UpsertAnalytics(ctx context.Context, row *domain.NetworkAnalyticsRow) error
}

// Service recomputes the per-BSSID daily statistics.
type Service struct {
	source   WifiSource
	findings FindingCounter
	sink     RowSink
}

func New(source WifiSource, findings FindingCounter, sink RowSink) *Service {
	return &Service{source: source, findings: findings, sink: sink}
}

// AggregateDay recomputes and upserts the analytics row of every BSSID seen
// on the given date (YYYY-MM-DD, UTC). Per-BSSID failures are logged and the
// run continues; the count of written rows is returned.
func (s *Service) AggregateDay(ctx context.Context, date string) (int, error) {
	bssids, err := s.source.BSSIDsForDay(ctx, date)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, bssid := range bssids {
		detections, err := s.source.WifiForDay(ctx, bssid, date)
		if err != nil {
			slog.Warn("detection fetch failed", "bssid", bssid, "error", err)
			continue
		}
		if len(detections) == 0 {
			continue
		}

		row := Compute(bssid, date, detections)

		if s.findings != nil {
			findings, err := s.findings.CountSuspicious(ctx, bssid, date)
			if err != nil {
				slog.Warn("finding count failed", "bssid", bssid, "error", err)
			} else {
				row.SuspiciousScore = math.Min(1, float64(findings)/float64(row.TotalDetections))
			}
		}

		if err := s.sink.UpsertAnalytics(ctx, row); err != nil {
			slog.Warn("analytics upsert failed", "bssid", bssid, "error", err)
			continue
		}
		written++
	}
	return written, nil
}

// Compute derives the statistics row from one day of detections of a single
// BSSID. The suspicious score is filled in by the caller.
func Compute(bssid, date string, detections []*domain.WifiDetection) *domain.NetworkAnalyticsRow {
	sorted := make([]*domain.WifiDetection, len(detections))
	copy(sorted, detections)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	row := &domain.NetworkAnalyticsRow{
		BSSID:           bssid,
		Date:            date,
		TotalDetections: len(sorted),
		SignalMin:       math.Inf(1),
		SignalMax:       math.Inf(-1),
	}

	var sum, sumSq float64
	locations := make(map[string]struct{})
	var located []*domain.WifiDetection
	for _, d := range sorted {
		sum += d.SignalDBm
		sumSq += d.SignalDBm * d.SignalDBm
		row.SignalMin = math.Min(row.SignalMin, d.SignalDBm)
		row.SignalMax = math.Max(row.SignalMax, d.SignalDBm)

		if d.HasLocation() {
			locations[coordKey(*d.Latitude, *d.Longitude)] = struct{}{}
			located = append(located, d)
		}
	}

	n := float64(len(sorted))
	row.SignalMean = sum / n
	row.SignalVariance = sumSq/n - row.SignalMean*row.SignalMean
	if row.SignalVariance < 0 {
		row.SignalVariance = 0 // float round-off on constant series
	}
	row.UniqueLocations = len(locations)
	row.MobilityScore = float64(len(locations)) / n
	row.CoverageRadiusM = coverageRadius(located)

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Encryption != cur.Encryption {
			row.EncryptionChanges++
		}
		if prev.SSID != cur.SSID {
			row.SSIDChanges++
		}
		if prev.Channel != cur.Channel {
			row.ChannelChanges++
		}
	}
	return row
}

// coverageRadius is the largest distance from the simple centroid of the
// located detections to any of them.
func coverageRadius(located []*domain.WifiDetection) float64 {
	if len(located) < 2 {
		return 0
	}
	var latSum, lonSum float64
	for _, d := range located {
		latSum += *d.Latitude
		lonSum += *d.Longitude
	}
	centerLat := latSum / float64(len(located))
	centerLon := lonSum / float64(len(located))

	var radius float64
	for _, d := range located {
		dist := geo.HaversineM(centerLat, centerLon, *d.Latitude, *d.Longitude)
		if dist > radius {
			radius = dist
		}
	}
	return radius
}

func coordKey(lat, lon float64) string {
	return strconv.FormatFloat(round(lat), 'f', coordPrecision, 64) + "," +
		strconv.FormatFloat(round(lon), 'f', coordPrecision, 64)
}

func round(v float64) float64 {
	scale := math.Pow10(coordPrecision)
	return math.Round(v*scale) / scale
}
