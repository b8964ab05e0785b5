package tiles

import (
	"context"
	"log/slog"

	"github.com/piwardrive/piwardrive/internal/geo"
)

// Prefetcher extrapolates the travel direction from the track and downloads
// the tiles the vehicle is about to need.
type Prefetcher struct {
	downloader *Downloader
	lookahead  int
	padDelta   float64
	zoom       int
}

func NewPrefetcher(downloader *Downloader, lookahead int, padDelta float64, zoom int) *Prefetcher {
	if lookahead <= 0 {
		lookahead = 5
	}
	return &Prefetcher{downloader: downloader, lookahead: lookahead, padDelta: padDelta, zoom: zoom}
}

// PredictivePrefetch projects the bearing and step distance of the last two
// track points forward and fetches the tiles covering the padded corridor.
// Fewer than two points is a no-op.
func (p *Prefetcher) PredictivePrefetch(ctx context.Context, track []geo.Location) error {
	if len(track) < 2 {
		return nil
	}
	prev, last := track[len(track)-2], track[len(track)-1]
	bearing := geo.BearingDeg(prev.Latitude, prev.Longitude, last.Latitude, last.Longitude)
	step := geo.HaversineM(prev.Latitude, prev.Longitude, last.Latitude, last.Longitude)
	if step == 0 {
		return nil
	}

	points := []geo.Location{last}
	lat, lon := last.Latitude, last.Longitude
	for i := 0; i < p.lookahead; i++ {
		lat, lon = geo.DestinationPoint(lat, lon, bearing, step)
		points = append(points, geo.Location{Latitude: lat, Longitude: lon})
	}

	box, _ := geo.BBoxOf(points)
	box = box.Pad(p.padDelta)
	slog.Debug("prefetching tiles", "bearing", bearing, "step_m", step, "zoom", p.zoom)
	return p.downloader.FetchBBox(ctx, box, p.zoom, nil)
}
