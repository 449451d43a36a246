package coach

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/coach-dss/coach/internal/httputil"
	"github.com/coach-dss/coach/internal/metrics"
)

// =============================================================================
// Standard Response Types
// =============================================================================

// HealthResponse is the standard response for /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// InfoResponse is the standard response for /info.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Lineage    []string       `json:"lineage"`
	Uptime     string         `json:"uptime"`
	Process    *ProcessStats  `json:"process,omitempty"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// ProcessStats reports resource usage of the service process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

// =============================================================================
// Standard Handlers
// =============================================================================

func (m *Microservice) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks := m.HealthStatus(r.Context())
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, HealthResponse{
		Status:    status,
		Service:   m.name,
		Version:   m.version,
		Checks:    checks,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (m *Microservice) infoHandler(w http.ResponseWriter, r *http.Request) {
	resp := InfoResponse{
		Status:    "active",
		Service:   m.name,
		Version:   m.version,
		Lineage:   m.Lineage(),
		Uptime:    m.Uptime().Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if stats, err := processStats(); err == nil {
		resp.Process = stats
	} else {
		m.logger.WithContext(r.Context()).WithError(err).Debug("process stats unavailable")
	}

	if m.statsFn != nil {
		resp.Statistics = m.statsFn()
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func processStats() (*ProcessStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	stats := &ProcessStats{PID: proc.Pid}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats.Threads = threads
	}
	return stats, nil
}

// =============================================================================
// Route Registration
// =============================================================================

func (m *Microservice) registerStandardRoutes() {
	m.router.HandleFunc("/health", m.healthHandler).Methods(http.MethodGet)
	m.router.HandleFunc("/info", m.infoHandler).Methods(http.MethodGet)
	m.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	m.MustRegister(Endpoint{
		Name: "get_api",
		Handler: func(context.Context, Args) (any, error) {
			return m.API(), nil
		},
	})

	if secret := m.SettingString("github_secret", ""); secret != "" {
		m.router.HandleFunc("/github_update", m.githubUpdateHandler(secret)).Methods(http.MethodPost)
	}
}
