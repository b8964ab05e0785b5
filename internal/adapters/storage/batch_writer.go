package storage

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
)

const (
	defaultBatchSize     = 128
	defaultFlushInterval = 2 * time.Second
	writeRetries         = 3
	retryBaseDelay       = 100 * time.Millisecond
)

// BatchWriter buffers detection records per kind and flushes them as
// multi-row inserts when the batch size or the flush interval is reached.
// A final flush runs on Stop so a graceful shutdown loses nothing.
type BatchWriter struct {
	pool      *Pool
	batchSize int
	interval  time.Duration

	wifi *batcher[*domain.WifiDetection]
	bt   *batcher[*domain.BluetoothDetection]
	cell *batcher[*domain.CellularDetection]
	gps  *batcher[*domain.GPSTrackPoint]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchWriter creates a writer over the pool with the default batch size
// and flush interval.
func NewBatchWriter(pool *Pool) *BatchWriter {
	w := &BatchWriter{
		pool:      pool,
		batchSize: defaultBatchSize,
		interval:  defaultFlushInterval,
	}
	w.wifi = newBatcher(w, "insert_wifi", insertWifiBatch)
	w.bt = newBatcher(w, "insert_bluetooth", insertBluetoothBatch)
	w.cell = newBatcher(w, "insert_cellular", insertCellularBatch)
	w.gps = newBatcher(w, "insert_gps", insertGPSBatch)
	return w
}

// Start launches the flush loops.
func (w *BatchWriter) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wifi.start(ctx)
	w.bt.start(ctx)
	w.cell.start(ctx)
	w.gps.start(ctx)
}

// Stop forces a final flush of all buffers and waits for the loops to exit.
func (w *BatchWriter) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// EnqueueWifi implements ports.DetectionSink.
func (w *BatchWriter) EnqueueWifi(records []*domain.WifiDetection) {
	for _, r := range records {
		w.wifi.enqueue(r)
	}
}

// EnqueueBluetooth implements ports.DetectionSink.
func (w *BatchWriter) EnqueueBluetooth(records []*domain.BluetoothDetection) {
	for _, r := range records {
		w.bt.enqueue(r)
	}
}

// EnqueueCellular implements ports.DetectionSink.
func (w *BatchWriter) EnqueueCellular(records []*domain.CellularDetection) {
	for _, r := range records {
		w.cell.enqueue(r)
	}
}

// EnqueueTrackPoint implements ports.DetectionSink.
func (w *BatchWriter) EnqueueTrackPoint(point *domain.GPSTrackPoint) {
	w.gps.enqueue(point)
}

var _ ports.DetectionSink = (*BatchWriter)(nil)

// batcher owns the buffered channel and flush loop for one record kind.
type batcher[T any] struct {
	w     *BatchWriter
	op    string
	ch    chan T
	flush func(ctx context.Context, pool *Pool, rows []T) error
}

func newBatcher[T any](w *BatchWriter, op string, flush func(context.Context, *Pool, []T) error) *batcher[T] {
	return &batcher[T]{
		w:     w,
		op:    op,
		ch:    make(chan T, 4*w.batchSize),
		flush: flush,
	}
}

func (b *batcher[T]) enqueue(row T) {
	select {
	case b.ch <- row:
	default:
		// Buffer full: dropping beats blocking the scan path.
		slog.Warn("batch buffer full, dropping record", "op", b.op)
	}
}

func (b *batcher[T]) start(ctx context.Context) {
	b.w.wg.Add(1)
	go func() {
		defer b.w.wg.Done()

		ticker := time.NewTicker(b.w.interval)
		defer ticker.Stop()

		buffer := make([]T, 0, b.w.batchSize)
		for {
			select {
			case <-ctx.Done():
				buffer = b.drainInto(buffer)
				b.flushWithRetry(buffer)
				return
			case row := <-b.ch:
				buffer = append(buffer, row)
				if len(buffer) >= b.w.batchSize {
					b.flushWithRetry(buffer)
					buffer = buffer[:0]
				}
			case <-ticker.C:
				if len(buffer) > 0 {
					b.flushWithRetry(buffer)
					buffer = buffer[:0]
				}
			}
		}
	}()
}

// drainInto collects everything still queued in the channel without blocking.
func (b *batcher[T]) drainInto(buffer []T) []T {
	for {
		select {
		case row := <-b.ch:
			buffer = append(buffer, row)
		default:
			return buffer
		}
	}
}

// flushWithRetry writes a batch, retrying transient errors with exponential
// backoff. Conflicts and corruption are not retried.
func (b *batcher[T]) flushWithRetry(rows []T) {
	if len(rows) == 0 {
		return
	}

	// The flush must survive the caller's cancellation to not lose the final
	// batch; it gets its own deadline instead.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	delay := retryBaseDelay
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		err = b.flush(ctx, b.w.pool, rows)
		if err == nil {
			return
		}
		if !retryable(err) {
			break
		}
		slog.Warn("batch flush retry", "op", b.op, "attempt", attempt+1, "error", err)
	}
	slog.Error("batch flush failed, dropping batch", "op", b.op, "rows", len(rows), "error", err)
}

// nullStr converts optional text for the driver.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullFloat converts optional numeric fields for the driver.
func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// nullTime converts optional timestamps for the driver.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.FormatTime(t)
}

func placeholders(rows, cols int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", cols), ",") + ")"
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(row)
	}
	return sb.String()
}

func insertWifiBatch(ctx context.Context, pool *Pool, rows []*domain.WifiDetection) error {
	const cols = 17
	query := `INSERT INTO wifi_detections
		(session_id, bssid, ssid, channel, frequency_mhz, signal_dbm, encryption, vendor,
		 station_count, lat, lon, altitude, accuracy, heading, time, first_seen, last_seen)
		VALUES ` + placeholders(len(rows), cols)

	args := make([]any, 0, len(rows)*cols)
	for _, r := range rows {
		args = append(args,
			r.SessionID, r.BSSID, r.SSID, r.Channel, r.FrequencyMHz, r.SignalDBm,
			nullStr(r.Encryption), nullStr(r.Vendor), r.StationCount,
			nullFloat(r.Latitude), nullFloat(r.Longitude), nullFloat(r.Altitude),
			nullFloat(r.Accuracy), nullFloat(r.Heading),
			domain.FormatTime(r.Time), nullTime(r.FirstSeen), nullTime(r.LastSeen),
		)
	}
	_, err := pool.Exec(ctx, query, args...)
	return err
}

func insertBluetoothBatch(ctx context.Context, pool *Pool, rows []*domain.BluetoothDetection) error {
	const cols = 9
	query := `INSERT INTO bluetooth_detections
		(session_id, mac, name, rssi_dbm, device_class, lat, lon, heading, time)
		VALUES ` + placeholders(len(rows), cols)

	args := make([]any, 0, len(rows)*cols)
	for _, r := range rows {
		args = append(args,
			r.SessionID, r.MAC, nullStr(r.Name), r.RSSIDBm, nullStr(r.DeviceClass),
			nullFloat(r.Latitude), nullFloat(r.Longitude), nullFloat(r.Heading),
			domain.FormatTime(r.Time),
		)
	}
	_, err := pool.Exec(ctx, query, args...)
	return err
}

func insertCellularBatch(ctx context.Context, pool *Pool, rows []*domain.CellularDetection) error {
	const cols = 12
	query := `INSERT INTO cellular_detections
		(session_id, cell_id, lac, mcc, mnc, technology, band, signal_dbm, lat, lon, heading, time)
		VALUES ` + placeholders(len(rows), cols)

	args := make([]any, 0, len(rows)*cols)
	for _, r := range rows {
		args = append(args,
			r.SessionID, r.CellID, nullStr(r.LAC), nullStr(r.MCC), nullStr(r.MNC),
			nullStr(r.Technology), nullStr(r.Band), r.SignalDBm,
			nullFloat(r.Latitude), nullFloat(r.Longitude), nullFloat(r.Heading),
			domain.FormatTime(r.Time),
		)
	}
	_, err := pool.Exec(ctx, query, args...)
	return err
}

func insertGPSBatch(ctx context.Context, pool *Pool, rows []*domain.GPSTrackPoint) error {
	const cols = 13
	query := `INSERT INTO gps_tracks
		(session_id, lat, lon, altitude, accuracy, speed, heading, satellites, hdop, vdop, pdop, fix, time)
		VALUES ` + placeholders(len(rows), cols)

	args := make([]any, 0, len(rows)*cols)
	for _, r := range rows {
		args = append(args,
			r.SessionID, r.Latitude, r.Longitude, nullFloat(r.Altitude), nullFloat(r.Accuracy),
			nullFloat(r.Speed), nullFloat(r.Heading), r.Satellites,
			nullFloat(r.HDOP), nullFloat(r.VDOP), nullFloat(r.PDOP),
			string(r.Fix), domain.FormatTime(r.Time),
		)
	}
	_, err := pool.Exec(ctx, query, args...)
	return err
}
