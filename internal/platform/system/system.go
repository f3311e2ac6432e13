// Package system reports host and process resource usage for the
// introspection API.
package system

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot aggregates usage numbers at one point in time.
type Snapshot struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	ProcessRSS    uint64  `json:"process_rss"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
}

// Collect gathers a snapshot. Individual probe failures leave their
// fields zero instead of failing the whole call.
func Collect() Snapshot {
	snap := Snapshot{
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if info, err := host.Info(); err == nil {
		snap.Hostname = info.Hostname
		snap.Platform = info.Platform
		snap.UptimeSeconds = info.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryTotal = vm.Total
		snap.MemoryUsed = vm.Used
		snap.MemoryPercent = vm.UsedPercent
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			snap.ProcessRSS = memInfo.RSS
		}
	}

	return snap
}
