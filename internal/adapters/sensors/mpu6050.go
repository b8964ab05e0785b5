package sensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/piwardrive/piwardrive/internal/core/ports"
)

// MPU-6050 register map.
const (
	i2cSlaveIoctl = 0x0703 // I2C_SLAVE
	mpu6050Addr   = 0x68
	regPowerMgmt  = 0x6B
	regAccelXOut  = 0x3B
)

// MPU6050 reads the accelerometer over the Linux i2c-dev interface.
type MPU6050 struct {
	bus string // e.g. /dev/i2c-1

	mu    sync.Mutex
	file  *os.File
	awake bool
	avail availability
}

func NewMPU6050(bus int) *MPU6050 {
	return &MPU6050{bus: fmt.Sprintf("/dev/i2c-%d", bus)}
}

var _ ports.OrientationSource = (*MPU6050)(nil)

func (m *MPU6050) connectLocked() error {
	if m.file != nil {
		return nil
	}
	file, err := os.OpenFile(m.bus, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := unix.IoctlSetInt(int(file.Fd()), i2cSlaveIoctl, mpu6050Addr); err != nil {
		file.Close()
		return err
	}
	m.file = file
	m.awake = false
	return nil
}

func (m *MPU6050) dropLocked() {
	if m.file != nil {
		m.file.Close()
		m.file = nil
		m.awake = false
	}
}

// wakeLocked clears the sleep bit the chip powers up with.
func (m *MPU6050) wakeLocked() error {
	if m.awake {
		return nil
	}
	if _, err := m.file.Write([]byte{regPowerMgmt, 0x00}); err != nil {
		return err
	}
	m.awake = true
	return nil
}

// readAccelLocked returns the raw 16-bit X and Y acceleration samples.
func (m *MPU6050) readAccelLocked() (int16, int16, error) {
	if _, err := m.file.Write([]byte{regAccelXOut}); err != nil {
		return 0, 0, err
	}
	buf := make([]byte, 4) // X high/low, Y high/low
	if _, err := m.file.Read(buf); err != nil {
		return 0, 0, err
	}
	x := int16(binary.BigEndian.Uint16(buf[0:2]))
	y := int16(binary.BigEndian.Uint16(buf[2:4]))
	return x, y, nil
}

// Heading implements ports.OrientationSource.
func (m *MPU6050) Heading(ctx context.Context) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		m.avail.set("mpu6050", false)
		return 0, false
	}
	if err := m.wakeLocked(); err != nil {
		m.dropLocked()
		m.avail.set("mpu6050", false)
		return 0, false
	}
	x, y, err := m.readAccelLocked()
	if err != nil {
		m.dropLocked()
		m.avail.set("mpu6050", false)
		return 0, false
	}
	m.avail.set("mpu6050", true)
	return headingFromAccel(float64(x), float64(y)), true
}

// Close implements ports.OrientationSource.
func (m *MPU6050) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()
	return nil
}
