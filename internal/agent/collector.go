package agent

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

// Collector gathers one family of host metrics per tick.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string
	// Collect gathers metrics and returns samples.
	Collect(ctx context.Context) ([]models.MetricSample, error)
}

// DefaultCollectors returns every collector the agent ships with.
func DefaultCollectors(host string) []Collector {
	return []Collector{
		NewCPUCollector(host),
		NewMemoryCollector(host),
		NewDiskCollector(host, "/"),
		NewNetworkCollector(host),
		NewProcessCollector(host),
		NewRuntimeCollector(host),
	}
}

func makeSample(host, name, typ string, value float64, unit string) models.MetricSample {
	return models.MetricSample{
		Timestamp: time.Now().Unix(),
		Host:      host,
		Name:      name,
		Type:      typ,
		Value:     value,
		Unit:      unit,
	}
}

type cpuCollector struct {
	host string
}

// NewCPUCollector samples total and per-CPU utilization plus load averages.
func NewCPUCollector(host string) Collector { return &cpuCollector{host: host} }

func (c *cpuCollector) Name() string { return "cpu" }

func (c *cpuCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	var samples []models.MetricSample

	total, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("%w: cpu percent: %v", internalerrors.ErrCollectionFailed, err)
	}
	if len(total) > 0 {
		samples = append(samples, makeSample(c.host, "cpu.total.usage", models.Gauge, total[0], "percent"))
	}

	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err == nil {
		for i, percent := range perCore {
			samples = append(samples, makeSample(c.host, fmt.Sprintf("cpu.core.%d.usage", i), models.Gauge, percent, "percent"))
		}
	}

	counts, err := cpu.CountsWithContext(ctx, true)
	if err == nil {
		samples = append(samples, makeSample(c.host, "cpu.count", models.Gauge, float64(counts), ""))
	}

	avg, err := load.AvgWithContext(ctx)
	if err == nil {
		samples = append(samples,
			makeSample(c.host, "cpu.load.1", models.Gauge, avg.Load1, ""),
			makeSample(c.host, "cpu.load.5", models.Gauge, avg.Load5, ""),
			makeSample(c.host, "cpu.load.15", models.Gauge, avg.Load15, ""),
		)
	}

	return samples, nil
}

type memoryCollector struct {
	host string
}

// NewMemoryCollector samples virtual memory and swap usage.
func NewMemoryCollector(host string) Collector { return &memoryCollector{host: host} }

func (c *memoryCollector) Name() string { return "memory" }

func (c *memoryCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: virtual memory: %v", internalerrors.ErrCollectionFailed, err)
	}
	samples := []models.MetricSample{
		makeSample(c.host, "mem.total", models.Gauge, float64(vm.Total), "bytes"),
		makeSample(c.host, "mem.used", models.Gauge, float64(vm.Used), "bytes"),
		makeSample(c.host, "mem.free", models.Gauge, float64(vm.Free), "bytes"),
		makeSample(c.host, "mem.available", models.Gauge, float64(vm.Available), "bytes"),
		makeSample(c.host, "mem.used_pct", models.Gauge, vm.UsedPercent, "percent"),
	}

	sw, err := mem.SwapMemoryWithContext(ctx)
	if err == nil {
		samples = append(samples,
			makeSample(c.host, "mem.swap.total", models.Gauge, float64(sw.Total), "bytes"),
			makeSample(c.host, "mem.swap.used", models.Gauge, float64(sw.Used), "bytes"),
		)
	}

	return samples, nil
}

type diskCollector struct {
	host string
	path string
}

// NewDiskCollector samples filesystem usage of the given mountpoint.
func NewDiskCollector(host, path string) Collector { return &diskCollector{host: host, path: path} }

func (c *diskCollector) Name() string { return "disk" }

func (c *diskCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	usage, err := disk.UsageWithContext(ctx, c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: disk usage %s: %v", internalerrors.ErrCollectionFailed, c.path, err)
	}
	return []models.MetricSample{
		makeSample(c.host, "disk.total", models.Gauge, float64(usage.Total), "bytes"),
		makeSample(c.host, "disk.used", models.Gauge, float64(usage.Used), "bytes"),
		makeSample(c.host, "disk.free", models.Gauge, float64(usage.Free), "bytes"),
		makeSample(c.host, "disk.used_pct", models.Gauge, usage.UsedPercent, "percent"),
	}, nil
}

type networkCollector struct {
	host string
}

// NewNetworkCollector samples aggregate network IO counters.
func NewNetworkCollector(host string) Collector { return &networkCollector{host: host} }

func (c *networkCollector) Name() string { return "network" }

func (c *networkCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: net io counters: %v", internalerrors.ErrCollectionFailed, err)
	}
	if len(counters) == 0 {
		return nil, nil
	}
	io := counters[0]
	return []models.MetricSample{
		makeSample(c.host, "net.bytes_sent", models.Gauge, float64(io.BytesSent), "bytes"),
		makeSample(c.host, "net.bytes_recv", models.Gauge, float64(io.BytesRecv), "bytes"),
		makeSample(c.host, "net.packets_sent", models.Gauge, float64(io.PacketsSent), ""),
		makeSample(c.host, "net.packets_recv", models.Gauge, float64(io.PacketsRecv), ""),
	}, nil
}

type processCollector struct {
	host string
}

// NewProcessCollector samples the number of running processes.
func NewProcessCollector(host string) Collector { return &processCollector{host: host} }

func (c *processCollector) Name() string { return "process" }

func (c *processCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: process list: %v", internalerrors.ErrCollectionFailed, err)
	}
	return []models.MetricSample{
		makeSample(c.host, "proc.count", models.Gauge, float64(len(pids)), ""),
	}, nil
}

type runtimeCollector struct {
	host string
}

// NewRuntimeCollector samples the agent's own Go runtime statistics plus the
// PollCount counter and RandomValue gauge.
func NewRuntimeCollector(host string) Collector { return &runtimeCollector{host: host} }

func (c *runtimeCollector) Name() string { return "runtime" }

func (c *runtimeCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	var samples []models.MetricSample
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	msValue := reflect.ValueOf(memStats)
	for _, metric := range RuntimeMetrics {
		value := msValue.FieldByName(metric)
		if !value.IsValid() {
			continue
		}
		var floatVal float64
		switch value.Kind() {
		case reflect.Uint32, reflect.Uint64:
			floatVal = float64(value.Uint())
		case reflect.Float64:
			floatVal = value.Float()
		default:
			continue
		}
		samples = append(samples, makeSample(c.host, "runtime."+metric, models.Gauge, floatVal, ""))
	}
	samples = append(samples, makeSample(c.host, "RandomValue", models.Gauge, rand.Float64(), ""))
	samples = append(samples, makeSample(c.host, "PollCount", models.Counter, 1, ""))
	return samples, nil
}
