package sysinfo

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sampler reads host metrics. Every call takes a fresh reading.
type Sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	RAMPercent(ctx context.Context) (float64, error)
	RAMUsedGB(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context) (float64, error)
}

// HostSampler samples the local machine.
type HostSampler struct {
	// CPUInterval is how long a CPU reading averages over.
	CPUInterval time.Duration
	// DiskPath is the mount point reported by DiskPercent.
	DiskPath string
}

func NewHostSampler() *HostSampler {
	return &HostSampler{CPUInterval: time.Second, DiskPath: "/"}
}

func (s *HostSampler) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, s.CPUInterval, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

func (s *HostSampler) RAMPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (s *HostSampler) RAMUsedGB(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return float64(vm.Used) / 1e9, nil
}

func (s *HostSampler) DiskPercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, s.DiskPath)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}
