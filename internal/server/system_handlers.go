package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/scheduler"
)

// CoverageLister lists the symbols held in the price cache.
type CoverageLister interface {
	Coverage() ([]prices.Coverage, error)
}

// BackupLister lists stored backup archives.
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// JobRunner exposes the job registry for status reads and manual triggers.
type JobRunner interface {
	Jobs() []scheduler.JobStatus
	RunNow(name string) error
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	dataSource  string
	startupTime time.Time
	databases   []*database.DB
	coverage    CoverageLister
	jobs        JobRunner
	backups     BackupLister
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	dataSource string,
	coverage CoverageLister,
	databases ...*database.DB,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		dataSource:  dataSource,
		startupTime: time.Now(),
		databases:   databases,
		coverage:    coverage,
	}
}

// SetJobs enables the job status and manual trigger endpoints
func (h *SystemHandlers) SetJobs(jobs JobRunner) {
	h.jobs = jobs
}

// SetBackups enables the backup listing endpoint
func (h *SystemHandlers) SetBackups(backups BackupLister) {
	h.backups = backups
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string  `json:"status"` // "healthy" or "degraded"
	DataSource    string  `json:"data_source"`
	CachedSymbols int     `json:"cached_symbols"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	Goroutines    int     `json:"goroutines"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	AvailableMB float64 `json:"available_mb,omitempty"`
	UsedPercent float64 `json:"used_percent,omitempty"`
}

// JobsStatusResponse lists the jobs that can be triggered manually
type JobsStatusResponse struct {
	Jobs   []string              `json:"jobs"`
	Status []scheduler.JobStatus `json:"status"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
func (h *SystemHandlers) GetSystemStatusSnapshot() SystemStatusResponse {
	status := "healthy"
	if h.dataSource == "" {
		status = "degraded"
	}

	cached := 0
	if h.coverage != nil {
		coverage, err := h.coverage.Coverage()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read price coverage")
			status = "degraded"
		}
		cached = len(coverage)
	}

	cpuPercent, ramPercent := h.getSystemStats()

	return SystemStatusResponse{
		Status:        status,
		DataSource:    h.dataSource,
		CachedSymbols: cached,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
	}
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, h.GetSystemStatusSnapshot())
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		if db == nil {
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		response.TotalSizeMB += sizeMB
		response.Databases = append(response.Databases, DBInfo{
			Name:      db.Name(),
			Path:      db.Path(),
			SizeMB:    sizeMB,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
		})
	}

	h.writeJSON(w, response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		response.AvailableMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
	}

	h.writeJSON(w, response)
}

// HandleJobsStatus lists registered jobs with their last run
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	resp := JobsStatusResponse{Jobs: []string{}, Status: []scheduler.JobStatus{}}
	if h.jobs != nil {
		resp.Status = h.jobs.Jobs()
		for _, st := range resp.Status {
			resp.Jobs = append(resp.Jobs, st.Name)
		}
	}
	h.writeJSON(w, resp)
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.jobs == nil {
		h.writeJobError(w, http.StatusNotFound, "Job not registered: "+name)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	if err := h.jobs.RunNow(name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			h.writeJobError(w, http.StatusNotFound, "Job not registered: "+name)
		case errors.Is(err, scheduler.ErrJobRunning):
			h.writeJobError(w, http.StatusConflict, err.Error())
		default:
			h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
			h.writeJobError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, map[string]string{"status": "success", "message": name + " completed"})
}

// BackupsResponse lists stored backup archives, newest first
type BackupsResponse struct {
	Backups []reliability.BackupInfo `json:"backups"`
	Count   int                      `json:"count"`
}

// HandleListBackups lists backup archives
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "Backups not configured"})
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
		return
	}
	h.writeJSON(w, BackupsResponse{Backups: backups, Count: len(backups)})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages over a short
// sampling interval
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *SystemHandlers) writeJobError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}
