package domain

import "time"

// HealthSample is one reading of node resource usage. Samples are written on
// a fixed schedule and pruned by the health retention policy.
type HealthSample struct {
	Time          time.Time `json:"time"`
	CPUTempC      *float64  `json:"cpu_temp_c,omitempty"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
}
