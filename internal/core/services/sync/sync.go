package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/telemetry"
)

// ErrNoRemote is returned when no remote sync URL is configured.
var ErrNoRemote = errors.New("sync: no remote url configured")

const watermarkKey = "health_sync"

// HealthSource yields health samples past the last-synced watermark and
// stores the watermark itself.
type HealthSource interface {
	After(ctx context.Context, watermark string, limit int) ([]*domain.HealthSample, error)
	Watermark(ctx context.Context, key string) (string, error)
	SetWatermark(ctx context.Context, key, value string) error
}

// Options configure the client per call; zero values take the defaults.
type Options struct {
	URL     string
	Token   string
	Timeout time.Duration // per attempt, default 30s
	Retries int           // default 3
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	return o
}

// Client ships local data to the central aggregation service.
type Client struct {
	httpClient *http.Client
	health     HealthSource
	opts       func() Options

	// backoffBase is scaled 1x, 2x, 4x… between attempts.
	backoffBase time.Duration
}

// NewClient creates a sync client. opts is consulted per run so settings
// changes apply without restart.
func NewClient(health HealthSource, opts func() Options) *Client {
	return &Client{
		httpClient:  &http.Client{},
		health:      health,
		opts:        opts,
		backoffBase: time.Second,
	}
}

// UploadDatabase streams the database file to the remote as a multipart
// upload, retrying with exponential backoff on network errors and non-2xx
// responses. The error of the last attempt is returned on final failure.
func (c *Client) UploadDatabase(ctx context.Context, dbPath string) error {
	opts := c.opts().withDefaults()
	if opts.URL == "" {
		return ErrNoRemote
	}

	var lastErr error
	for attempt := 0; attempt < opts.Retries; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			slog.Info("retrying database upload", "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.uploadOnce(ctx, dbPath, opts)
		if lastErr == nil {
			telemetry.SyncUploads.WithLabelValues("ok").Inc()
			return nil
		}
		slog.Warn("database upload failed", "attempt", attempt+1, "error", lastErr)
	}
	telemetry.SyncUploads.WithLabelValues("error").Inc()
	return fmt.Errorf("sync: upload failed after %d attempts: %w", opts.Retries, lastErr)
}

func (c *Client) uploadOnce(ctx context.Context, dbPath string, opts Options) error {
	f, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(dbPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read database: %w", err)
	}
	if err := form.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	setAuth(req, opts.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote returned %s", resp.Status)
	}
	return nil
}

// SyncNewRecords ships health samples recorded since the last successful
// sync. The watermark advances only after the remote accepts the batch, so a
// failed run re-sends the same records next time. Returns the count shipped.
func (c *Client) SyncNewRecords(ctx context.Context, limit int) (int, error) {
	opts := c.opts().withDefaults()
	if opts.URL == "" {
		return 0, ErrNoRemote
	}
	if limit <= 0 {
		limit = 100
	}

	watermark, err := c.health.Watermark(ctx, watermarkKey)
	if err != nil {
		return 0, fmt.Errorf("sync: read watermark: %w", err)
	}
	samples, err := c.health.After(ctx, watermark, limit)
	if err != nil {
		return 0, fmt.Errorf("sync: fetch records: %w", err)
	}
	if len(samples) == 0 {
		return 0, nil
	}

	if err := c.postRecords(ctx, samples, opts); err != nil {
		telemetry.SyncUploads.WithLabelValues("error").Inc()
		return 0, err
	}

	last := samples[len(samples)-1].Time
	if err := c.health.SetWatermark(ctx, watermarkKey, domain.FormatTime(last)); err != nil {
		return len(samples), fmt.Errorf("sync: advance watermark: %w", err)
	}
	telemetry.SyncUploads.WithLabelValues("ok").Inc()
	return len(samples), nil
}

func (c *Client) postRecords(ctx context.Context, samples []*domain.HealthSample, opts Options) error {
	payload, err := json.Marshal(map[string]any{"records": samples})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, opts.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sync: remote returned %s", resp.Status)
	}
	return nil
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
