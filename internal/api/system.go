package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// hostProbeTimeout bounds the gopsutil calls made per request.
const hostProbeTimeout = 2 * time.Second

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Host          *HostMetrics   `json:"host,omitempty"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Readings      ReadingMetrics `json:"readings"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HostMetrics describes the machine the service runs on. Fields the
// platform cannot report are left zero.
type HostMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	ProcessRSSMB  float64 `json:"process_rss_mb"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains broker session statistics.
type MQTTMetrics struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

// ReadingMetrics summarises the latest-reading store.
type ReadingMetrics struct {
	Apartments int `json:"apartments"`
	Registered int `json:"registered"`
}

// handleSystem returns runtime, host and ingest statistics.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	state := s.ingest.State()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT: MQTTMetrics{
			Connected: state == ingestConnected,
			State:     state.String(),
		},
		Readings: ReadingMetrics{
			Apartments: s.store.Len(),
		},
	}

	if s.apartments != nil {
		metrics.Readings.Registered = s.apartments.Count()
	}

	ctx, cancel := context.WithTimeout(r.Context(), hostProbeTimeout)
	defer cancel()
	metrics.Host = s.hostMetrics(ctx)

	writeJSON(w, http.StatusOK, metrics)
}

// hostMetrics gathers host statistics. Individual probe failures are logged
// at debug and leave their field zero; containers commonly hide some of them.
func (s *Server) hostMetrics(ctx context.Context) *HostMetrics {
	host := &HostMetrics{}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		host.CPUPercent = pct[0]
	} else if err != nil {
		s.logger.Debug("cpu probe failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		host.MemoryPercent = vm.UsedPercent
		host.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
	} else {
		s.logger.Debug("memory probe failed", "error", err)
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		host.DiskPercent = du.UsedPercent
	} else {
		s.logger.Debug("disk probe failed", "error", err)
	}

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil { //nolint:gosec // pid fits int32
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			host.ProcessRSSMB = float64(info.RSS) / 1024 / 1024
		}
	}

	return host
}
