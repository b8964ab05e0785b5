package sensors

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
)

// HealthSampler reads node resource usage with gopsutil.
type HealthSampler struct {
	diskPath string
}

func NewHealthSampler(diskPath string) *HealthSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HealthSampler{diskPath: diskPath}
}

var _ ports.HealthSource = (*HealthSampler)(nil)

// Sample implements ports.HealthSource. CPU temperature is best-effort; the
// other readings fail the sample when unavailable.
func (s *HealthSampler) Sample(ctx context.Context) (*domain.HealthSample, error) {
	sample := &domain.HealthSample{Time: time.Now().UTC()}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(cpuPercents) > 0 {
		sample.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	sample.MemoryPercent = vm.UsedPercent

	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return nil, err
	}
	sample.DiskPercent = usage.UsedPercent

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			if isCPUTemp(t.SensorKey) && t.Temperature > 0 {
				sample.CPUTempC = domain.Float64Ptr(t.Temperature)
				break
			}
		}
	}
	return sample, nil
}

// isCPUTemp matches the sensor keys Raspberry Pi and x86 kernels expose.
func isCPUTemp(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "cpu_thermal") ||
		strings.Contains(key, "coretemp") ||
		strings.Contains(key, "soc_thermal") ||
		strings.Contains(key, "k10temp")
}
