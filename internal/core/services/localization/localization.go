package localization

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// Params collects every tunable of the localization pipeline.
type Params struct {
	MinPoints   int
	Kalman      KalmanParams
	Eps         float64
	MinSamples  int
	WeightPower float64 // p in the centroid weight
}

// DefaultParams mirrors the shipped settings defaults.
func DefaultParams() Params {
	return Params{
		MinPoints:   5,
		Kalman:      DefaultKalmanParams(),
		Eps:         0.0005,
		MinSamples:  3,
		WeightPower: 1.5,
	}
}

// Estimate is the localized position of one access point.
type Estimate struct {
	BSSID string  `json:"bssid"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Localize runs the full pipeline over the observations of one BSSID:
// chronological sort, per-axis Kalman smoothing, DBSCAN outlier removal and
// an RSSI-weighted centroid. Returns false when too few points survive.
func Localize(bssid string, obs []domain.SignalObservation, params Params) (Estimate, bool) {
	if len(obs) < params.MinPoints {
		return Estimate{}, false
	}

	sorted := make([]domain.SignalObservation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	lats := make([]float64, len(sorted))
	lons := make([]float64, len(sorted))
	for i, o := range sorted {
		lats[i] = o.Lat
		lons[i] = o.Lon
	}
	lats = KalmanSmooth(lats, params.Kalman)
	lons = KalmanSmooth(lons, params.Kalman)

	points := make([]Point, len(sorted))
	for i := range sorted {
		points[i] = Point{Lat: lats[i], Lon: lons[i]}
	}
	labels := DBSCAN(points, params.Eps, params.MinSamples)

	var kept []Point
	var rssi []float64
	for i, label := range labels {
		if label == noiseLabel {
			continue
		}
		kept = append(kept, points[i])
		rssi = append(rssi, sorted[i].RSSI)
	}
	if len(kept) == 0 {
		return Estimate{}, false
	}

	lat, lon := WeightedCentroid(kept, rssi, params.WeightPower)
	return Estimate{BSSID: bssid, Lat: lat, Lon: lon}, true
}

// WeightedCentroid averages the points with weights derived from signal
// strength, so stronger sightings pull the estimate toward themselves.
func WeightedCentroid(points []Point, rssi []float64, power float64) (float64, float64) {
	var latSum, lonSum, weightSum float64
	for i, p := range points {
		w := centroidWeight(rssi[i], power)
		latSum += p.Lat * w
		lonSum += p.Lon * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0, 0
	}
	return latSum / weightSum, lonSum / weightSum
}

func centroidWeight(rssi, power float64) float64 {
	denom := math.Pow(100-rssi, power)
	if denom <= 0 {
		return 0.01
	}
	w := 1 / denom
	if w < 0.01 {
		w = 0.01
	}
	return w
}

// EstimateDistance converts an RSSI reading to meters with the log-distance
// path loss model: d = 10^((ref − rssi) / (10·n)).
func EstimateDistance(rssi, refRSSI, exponent float64) float64 {
	if exponent == 0 {
		exponent = 2
	}
	return math.Pow(10, (refRSSI-rssi)/(10*exponent))
}

// ObservationSource yields the positioned sightings stored per access point.
type ObservationSource interface {
	BSSIDsForDay(ctx context.Context, date string) ([]string, error)
	Observations(ctx context.Context, bssid string) ([]domain.SignalObservation, error)
}

// LocationSink persists the computed positions.
type LocationSink interface {
	SetAPLocation(ctx context.Context, bssid string, lat, lon float64) error
}

// Locator binds the pipeline to storage for scheduled runs.
type Locator struct {
	source ObservationSource
	sink   LocationSink
	params func() Params
}

// NewLocator creates a locator. params is consulted per run so settings
// changes apply without restart.
func NewLocator(source ObservationSource, sink LocationSink, params func() Params) *Locator {
	if params == nil {
		params = DefaultParams
	}
	return &Locator{source: source, sink: sink, params: params}
}

// LocalizeDay localizes every BSSID observed on the given date and stores the
// results. Per-BSSID failures are logged and skipped; the run keeps going.
func (l *Locator) LocalizeDay(ctx context.Context, date string) (int, error) {
	bssids, err := l.source.BSSIDsForDay(ctx, date)
	if err != nil {
		return 0, err
	}

	params := l.params()
	located := 0
	for _, bssid := range bssids {
		obs, err := l.source.Observations(ctx, bssid)
		if err != nil {
			slog.Warn("observation fetch failed", "bssid", bssid, "error", err)
			continue
		}
		est, ok := Localize(bssid, obs, params)
		if !ok {
			continue
		}
		if err := l.sink.SetAPLocation(ctx, bssid, est.Lat, est.Lon); err != nil {
			slog.Warn("location persistence failed", "bssid", bssid, "error", err)
			continue
		}
		located++
	}
	return located, nil
}
