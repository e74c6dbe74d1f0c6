package collect

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// probeTimeout bounds each device probe; a crashing process must not hang
// on a slow /proc or WMI query.
const probeTimeout = 2 * time.Second

// Hardware is the part of the device description that does not change while
// the process runs.
type Hardware struct {
	Hostname       string
	OS             string
	Platform       string
	Kernel         string
	Virtualization string
	CPUModel       string
	CPUCores       int
	CPUThreads     int
	GPUs           []string
}

// Usage is the live resource usage at collection time.
type Usage struct {
	MemValid   bool
	MemTotalMB float64
	MemUsedMB  float64
	MemPercent float64

	DiskValid   bool
	DiskTotalGB float64
	DiskUsedGB  float64
	DiskPercent float64

	LoadValid bool
	Load      [3]float64

	UptimeValid bool
	HostUptime  time.Duration
}

type deviceProbes struct {
	hardware func(ctx context.Context) Hardware
	usage    func(ctx context.Context) Usage
}

// Device renders host, CPU, memory, disk, load and GPU information.
// Hardware data is probed once and cached.
type Device struct {
	probes deviceProbes

	once     sync.Once
	hardware Hardware
}

// NewDevice creates a device collector backed by gopsutil and ghw.
func NewDevice() *Device {
	return &Device{probes: deviceProbes{hardware: probeHardware, usage: probeUsage}}
}

// CollectInfo implements crash.Collector.
func (d *Device) CollectInfo(*platform.Context) string {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	d.once.Do(func() {
		d.hardware = d.probes.hardware(ctx)
	})
	hw := d.hardware
	u := d.probes.usage(ctx)

	s := Section{Name: "device"}
	s.Add("hostname", hw.Hostname)
	s.Add("os", hw.OS)
	s.Add("platform", hw.Platform)
	s.Add("kernel", hw.Kernel)
	s.Add("virtualization", hw.Virtualization)
	s.Add("cpu_model", hw.CPUModel)
	if hw.CPUCores > 0 {
		s.Addf("cpu_cores", "%d", hw.CPUCores)
	}
	if hw.CPUThreads > 0 {
		s.Addf("cpu_threads", "%d", hw.CPUThreads)
	}
	if u.MemValid {
		s.Addf("mem_total_mb", "%.0f", u.MemTotalMB)
		s.Addf("mem_used_mb", "%.0f", u.MemUsedMB)
		s.Addf("mem_used_percent", "%.1f", u.MemPercent)
	}
	if u.DiskValid {
		s.Addf("disk_total_gb", "%.1f", u.DiskTotalGB)
		s.Addf("disk_used_gb", "%.1f", u.DiskUsedGB)
		s.Addf("disk_used_percent", "%.1f", u.DiskPercent)
	}
	if u.LoadValid {
		s.Addf("load_avg", "%.2f %.2f %.2f", u.Load[0], u.Load[1], u.Load[2])
	}
	if u.UptimeValid {
		s.Add("host_uptime", u.HostUptime.String())
	}
	for i, g := range hw.GPUs {
		s.Add(fmt.Sprintf("gpu_%d", i), g)
	}
	return s.String()
}

func probeHardware(ctx context.Context) Hardware {
	hw := Hardware{OS: runtime.GOOS}

	if info, err := host.InfoWithContext(ctx); err == nil && info != nil {
		hw.Hostname = info.Hostname
		if info.OS != "" {
			hw.OS = info.OS
		}
		hw.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		hw.Kernel = strings.TrimSpace(info.KernelVersion + " " + info.KernelArch)
		if info.VirtualizationSystem != "" {
			hw.Virtualization = strings.TrimSpace(info.VirtualizationSystem + " " + info.VirtualizationRole)
		}
	} else if name, err := os.Hostname(); err == nil {
		hw.Hostname = name
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		hw.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.CountsWithContext(ctx, false); err == nil && cores > 0 {
		hw.CPUCores = cores
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil && threads > 0 {
		hw.CPUThreads = threads
	}

	hw.GPUs = probeGPUs(ctx)
	return hw
}

// probeGPUs asks ghw for graphics cards. ghw has no context support, so the
// call runs on its own goroutine and is abandoned on timeout.
func probeGPUs(ctx context.Context) []string {
	result := make(chan []string, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- nil
			}
		}()
		result <- queryGhwGPU()
	}()

	select {
	case gpus := <-result:
		return gpus
	case <-ctx.Done():
		return nil
	}
}

func queryGhwGPU() []string {
	info, err := ghw.GPU()
	if err != nil || info == nil || len(info.GraphicsCards) == 0 {
		return nil
	}

	gpus := make([]string, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, name)
	}
	return gpus
}

func probeUsage(ctx context.Context) Usage {
	var u Usage

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		u.MemTotalMB = float64(vm.Total) / 1024 / 1024
		u.MemUsedMB = float64(vm.Used) / 1024 / 1024
		u.MemPercent = vm.UsedPercent
		u.MemValid = true
	}
	if usage, err := disk.UsageWithContext(ctx, rootDiskPath()); err == nil && usage != nil {
		u.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
		u.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
		u.DiskPercent = usage.UsedPercent
		u.DiskValid = true
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		u.Load = [3]float64{avg.Load1, avg.Load5, avg.Load15}
		u.LoadValid = true
	}
	if secs, err := host.UptimeWithContext(ctx); err == nil {
		// #nosec G115 -- host uptime in seconds fits in int64
		u.HostUptime = time.Duration(int64(secs)) * time.Second
		u.UptimeValid = true
	}
	return u
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
