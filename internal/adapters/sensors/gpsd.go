package sensors

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
)

// watchCommand enables JSON reports on the gpsd socket.
const watchCommand = `?WATCH={"enable":true,"json":true}` + "\n"

// tpv is the subset of the gpsd TPV report the node consumes.
type tpv struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Alt   *float64 `json:"alt"`
	EPX   *float64 `json:"epx"` // longitude error, meters
	EPY   *float64 `json:"epy"` // latitude error, meters
	Speed *float64 `json:"speed"`
	Track *float64 `json:"track"` // course over ground, degrees
	Time  string   `json:"time"`
}

func parseTPV(line []byte) (*tpv, error) {
	var report tpv
	if err := json.Unmarshal(line, &report); err != nil {
		return nil, err
	}
	if report.Class != "TPV" {
		return nil, nil
	}
	return &report, nil
}

// GPSDClient reads positions from a gpsd daemon over its TCP JSON protocol.
type GPSDClient struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	avail  availability
}

func NewGPSDClient(host string, port int) *GPSDClient {
	if host == "" {
		host = "127.0.0.1"
	}
	if port <= 0 {
		port = 2947
	}
	return &GPSDClient{
		addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		timeout: defaultTimeout,
	}
}

var _ ports.PositionSource = (*GPSDClient)(nil)

func (c *GPSDClient) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		conn.Close()
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *GPSDClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// poll reads reports until a TPV arrives or the deadline passes. The
// connection is dropped on any error so the next call reconnects.
func (c *GPSDClient) poll(ctx context.Context) (*tpv, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		c.avail.set("gpsd", false)
		return nil, false
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.dropLocked()
			c.avail.set("gpsd", false)
			return nil, false
		}
		report, err := parseTPV(line)
		if err != nil || report == nil {
			continue // VERSION, DEVICES, SKY or garbage
		}
		c.avail.set("gpsd", true)
		return report, true
	}
}

// Position implements ports.PositionSource.
func (c *GPSDClient) Position(ctx context.Context) (domain.Position, bool) {
	report, ok := c.poll(ctx)
	if !ok || report.Lat == nil || report.Lon == nil || report.Mode < 2 {
		return domain.Position{}, false
	}
	return domain.Position{Lat: *report.Lat, Lon: *report.Lon}, true
}

// Accuracy implements ports.PositionSource; it reports the larger of the
// horizontal error estimates.
func (c *GPSDClient) Accuracy(ctx context.Context) (float64, bool) {
	report, ok := c.poll(ctx)
	if !ok {
		return 0, false
	}
	var acc float64
	if report.EPX != nil {
		acc = *report.EPX
	}
	if report.EPY != nil && *report.EPY > acc {
		acc = *report.EPY
	}
	if acc == 0 {
		return 0, false
	}
	return acc, true
}

// FixQuality implements ports.PositionSource.
func (c *GPSDClient) FixQuality(ctx context.Context) domain.FixQuality {
	report, ok := c.poll(ctx)
	if !ok {
		return domain.FixUnknown
	}
	return domain.FixQualityFromMode(report.Mode)
}

// TrackPoint implements ports.PositionSource.
func (c *GPSDClient) TrackPoint(ctx context.Context) (*domain.GPSTrackPoint, bool) {
	report, ok := c.poll(ctx)
	if !ok || report.Lat == nil || report.Lon == nil || report.Mode < 2 {
		return nil, false
	}

	point := &domain.GPSTrackPoint{
		SessionID: domain.AdhocSession,
		Latitude:  *report.Lat,
		Longitude: *report.Lon,
		Altitude:  report.Alt,
		Speed:     report.Speed,
		Heading:   report.Track,
		Fix:       domain.FixQualityFromMode(report.Mode),
		Time:      time.Now().UTC(),
	}
	if t, err := time.Parse(time.RFC3339, report.Time); err == nil {
		point.Time = t.UTC()
	}
	if report.EPY != nil {
		point.Accuracy = report.EPY
	} else if report.EPX != nil {
		point.Accuracy = report.EPX
	}
	return point, true
}

// Close implements ports.PositionSource.
func (c *GPSDClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}
