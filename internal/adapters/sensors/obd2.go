package sensors

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/ports"
)

// ELM327 mode-01 PIDs.
const (
	pidEngineRPM = "010C"
	pidSpeed     = "010D"
)

// OBD2Client talks to an ELM327 dongle over its WiFi TCP bridge.
type OBD2Client struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	avail  availability
}

func NewOBD2Client(addr string) *OBD2Client {
	if addr == "" {
		addr = "192.168.0.10:35000" // common ELM327 WiFi default
	}
	return &OBD2Client{addr: addr, timeout: defaultTimeout}
}

var _ ports.VehicleSource = (*OBD2Client)(nil)

func (c *OBD2Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *OBD2Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// query sends one PID request and returns the raw response line.
func (c *OBD2Client) query(ctx context.Context, pid string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		c.avail.set("obd2", false)
		return "", false
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write([]byte(pid + "\r")); err != nil {
		c.dropLocked()
		c.avail.set("obd2", false)
		return "", false
	}
	// ELM327 terminates responses with '>' prompt.
	response, err := c.reader.ReadString('>')
	if err != nil {
		c.dropLocked()
		c.avail.set("obd2", false)
		return "", false
	}
	c.avail.set("obd2", true)
	return response, true
}

// parseOBDBytes extracts the data bytes of a mode-01 response, e.g.
// "41 0D 3C" for PID 0D returns [0x3C].
func parseOBDBytes(response, pid string) []byte {
	want := "41" + strings.ToUpper(pid[2:])
	for _, line := range strings.Split(response, "\r") {
		fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ">"))
		if len(fields) < 3 {
			continue
		}
		if fields[0]+fields[1] != want {
			continue
		}
		var out []byte
		for _, f := range fields[2:] {
			v, err := strconv.ParseUint(f, 16, 8)
			if err != nil {
				return nil
			}
			out = append(out, byte(v))
		}
		return out
	}
	return nil
}

// SpeedKPH implements ports.VehicleSource.
func (c *OBD2Client) SpeedKPH(ctx context.Context) (float64, bool) {
	response, ok := c.query(ctx, pidSpeed)
	if !ok {
		return 0, false
	}
	data := parseOBDBytes(response, pidSpeed)
	if len(data) < 1 {
		return 0, false
	}
	return float64(data[0]), true
}

// EngineRPM implements ports.VehicleSource.
func (c *OBD2Client) EngineRPM(ctx context.Context) (float64, bool) {
	response, ok := c.query(ctx, pidEngineRPM)
	if !ok {
		return 0, false
	}
	data := parseOBDBytes(response, pidEngineRPM)
	if len(data) < 2 {
		return 0, false
	}
	return (float64(data[0])*256 + float64(data[1])) / 4, true
}

// Close implements ports.VehicleSource.
func (c *OBD2Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}
