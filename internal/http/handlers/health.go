package handlers

import (
	"context"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vodarr/internal/database"
	"github.com/jmylchreest/vodarr/pkg/httpclient"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version       string
	startTime     time.Time
	cbManager     *httpclient.CircuitBreakerManager
	db            *database.DB
	recordingsDir string
}

// NewHealthHandler creates a health handler reporting the given version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		cbManager: httpclient.DefaultManager,
	}
}

// WithCircuitBreakerManager overrides the default circuit breaker manager.
func (h *HealthHandler) WithCircuitBreakerManager(m *httpclient.CircuitBreakerManager) *HealthHandler {
	h.cbManager = m
	return h
}

// WithDB enables database health reporting.
func (h *HealthHandler) WithDB(db *database.DB) *HealthHandler {
	h.db = db
	return h
}

// WithRecordingsDir enables disk usage reporting for the recordings volume.
func (h *HealthHandler) WithRecordingsDir(dir string) *HealthHandler {
	h.recordingsDir = dir
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics, database status and circuit breaker states",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.databaseHealth(ctx)

	var breakers []CircuitBreakerStatus
	if h.cbManager != nil {
		stats := h.cbManager.GetAllStats()
		breakers = make([]CircuitBreakerStatus, 0, len(stats))
		for name, s := range stats {
			breakers = append(breakers, CircuitBreakerStatus{
				Name:     name,
				State:    s.State,
				Failures: s.Failures,
			})
		}
		// Map iteration order is random; keep the output stable.
		sort.Slice(breakers, func(i, j int) bool { return breakers[i].Name < breakers[j].Name })
	}

	status := "healthy"
	if dbHealth.Status == "error" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPU:           h.cpuInfo(ctx),
			Memory:        h.memoryInfo(ctx),
			Disk:          h.diskInfo(ctx),
			Components: HealthComponents{
				Database:        dbHealth,
				CircuitBreakers: breakers,
			},
			Checks: map[string]string{
				"database": dbHealth.Status,
			},
		},
	}, nil
}

// cpuInfo returns CPU load information.
func (h *HealthHandler) cpuInfo(ctx context.Context) CPUInfo {
	info := CPUInfo{
		Cores: runtime.NumCPU(),
	}

	avg, err := load.AvgWithContext(ctx)
	if err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15

		if info.Cores > 0 {
			info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
		}
	}

	return info
}

// memoryInfo returns system and process memory usage.
func (h *HealthHandler) memoryInfo(ctx context.Context) MemoryInfo {
	var info MemoryInfo

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.TotalMB = float64(vm.Total) / 1024 / 1024
		info.UsedMB = float64(vm.Used) / 1024 / 1024
		info.AvailableMB = float64(vm.Available) / 1024 / 1024
		info.UsedPercent = vm.UsedPercent
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil && swap != nil {
		info.SwapTotalMB = float64(swap.Total) / 1024 / 1024
		info.SwapUsedMB = float64(swap.Used) / 1024 / 1024
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if pm, err := proc.MemoryInfoWithContext(ctx); err == nil && pm != nil {
			info.ProcessRSSMB = float64(pm.RSS) / 1024 / 1024
			if info.TotalMB > 0 {
				info.ProcessPercent = info.ProcessRSSMB / info.TotalMB * 100
			}
		}
	}

	return info
}

// diskInfo reports usage of the recordings volume. Nil when no recordings
// directory is configured or the lookup fails.
func (h *HealthHandler) diskInfo(ctx context.Context) *DiskInfo {
	if h.recordingsDir == "" {
		return nil
	}

	usage, err := disk.UsageWithContext(ctx, h.recordingsDir)
	if err != nil {
		return nil
	}

	return &DiskInfo{
		Path:        h.recordingsDir,
		TotalGB:     float64(usage.Total) / 1024 / 1024 / 1024,
		UsedGB:      float64(usage.Used) / 1024 / 1024 / 1024,
		FreeGB:      float64(usage.Free) / 1024 / 1024 / 1024,
		UsedPercent: usage.UsedPercent,
	}
}

// databaseHealth returns database connectivity and pool information.
func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "not_configured"}
	}

	health := DatabaseHealth{
		Status: "ok",
		Driver: h.db.Driver(),
	}

	sqlDB, err := h.db.DB.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.ConnectionPoolSize = stats.MaxOpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle
	if stats.MaxOpenConnections > 0 {
		health.PoolUtilizationPercent = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}

	start := time.Now()
	err = h.db.Ping(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}

	return health
}
