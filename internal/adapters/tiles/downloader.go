package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/piwardrive/piwardrive/internal/geo"
	"github.com/piwardrive/piwardrive/internal/telemetry"
)

// Downloader fetches missing slippy-map tiles into the cache directory,
// laid out as <dir>/<z>/<x>/<y>.png.
type Downloader struct {
	baseURL string
	dir     string
	client  *http.Client
	workers int
}

// NewDownloader creates a downloader for the given tile server base URL
// (e.g. "https://tile.example.org"). workers <= 0 uses the CPU count.
func NewDownloader(baseURL, dir string, client *http.Client, workers int) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Downloader{baseURL: baseURL, dir: dir, client: client, workers: workers}
}

// FetchBBox downloads every missing tile covering the box at the given zoom.
// progress, if non-nil, is invoked once per completed tile with the running
// count and the total. Existing tiles are skipped and still counted.
func (d *Downloader) FetchBBox(ctx context.Context, box geo.BBox, zoom int, progress func(done, total int)) error {
	minX, minY, maxX, maxY := geo.TileRange(box, zoom)
	total := (maxX - minX + 1) * (maxY - minY + 1)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(d.workers)

	done := make(chan struct{}, total)
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			x, y := x, y
			group.Go(func() error {
				if err := d.fetchTile(ctx, zoom, x, y); err != nil {
					telemetry.TilesDownloaded.WithLabelValues("error").Inc()
					return err
				}
				done <- struct{}{}
				return nil
			})
		}
	}

	finished := 0
	for finished < total {
		select {
		case <-done:
			finished++
			if progress != nil {
				progress(finished, total)
			}
		case <-ctx.Done():
			return group.Wait()
		}
	}
	return group.Wait()
}

// fetchTile downloads one tile unless it is already cached. The write is
// atomic: a temp file renamed into place.
func (d *Downloader) fetchTile(ctx context.Context, z, x, y int) error {
	path := filepath.Join(d.dir, fmt.Sprintf("%d", z), fmt.Sprintf("%d", x), fmt.Sprintf("%d.png", y))
	if _, err := os.Stat(path); err == nil {
		telemetry.TilesDownloaded.WithLabelValues("cached").Inc()
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%d/%d/%d.png", d.baseURL, z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	telemetry.TilesDownloaded.WithLabelValues("ok").Inc()
	return nil
}
