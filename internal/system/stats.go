package system

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is a point-in-time view of this process and the host.
type ResourceUsage struct {
	RSS            uint64
	CPUPercent     float64
	HostMemTotal   uint64
	HostMemUsedPct float64
}

// Usage samples the current process. Failures of individual probes leave
// the corresponding fields zero.
func Usage() (ResourceUsage, error) {
	var u ResourceUsage

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return u, fmt.Errorf("inspect process: %w", err)
	}
	if mi, err := proc.MemoryInfo(); err == nil {
		u.RSS = mi.RSS
	}
	if pct, err := proc.CPUPercent(); err == nil {
		u.CPUPercent = pct
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		u.HostMemTotal = vm.Total
		u.HostMemUsedPct = vm.UsedPercent
	}
	return u, nil
}

func (u ResourceUsage) String() string {
	return fmt.Sprintf("RSS %.1f MiB | CPU %.1f%% | host memory %.1f%% of %.1f GiB",
		float64(u.RSS)/(1<<20), u.CPUPercent, u.HostMemUsedPct, float64(u.HostMemTotal)/(1<<30))
}
