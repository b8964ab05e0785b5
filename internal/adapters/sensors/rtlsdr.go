package sensors

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// RTLSDRProbe checks whether an RTL-SDR stick is attached and responsive by
// running rtl_test briefly.
type RTLSDRProbe struct {
	binary  string
	timeout time.Duration

	mu    sync.Mutex
	avail availability
}

func NewRTLSDRProbe() *RTLSDRProbe {
	return &RTLSDRProbe{binary: "rtl_test", timeout: 2 * time.Second}
}

// Present reports whether a tuner was found. rtl_test prints the device list
// on stderr and exits non-zero when none is attached.
func (p *RTLSDRProbe) Present(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.binary, "-t").CombinedOutput()
	found := err == nil || strings.Contains(string(out), "Found")
	if strings.Contains(string(out), "No supported devices") {
		found = false
	}
	p.avail.set("rtlsdr", found)
	return found
}
