package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/aristath/greenfin/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	runs        *runs.Repository
	scheduler   *scheduler.Scheduler
	databases   []*database.DB
}

// NewSystemHandlers creates a new system handlers instance. runs and sched may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	runRepo *runs.Repository,
	sched *scheduler.Scheduler,
	databases ...*database.DB,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		runs:        runRepo,
		scheduler:   sched,
		databases:   databases,
	}
}

// LastRunInfo summarizes the most recent pipeline run
type LastRunInfo struct {
	ID         string    `json:"id"`
	FinishedAt time.Time `json:"finished_at"`
	Verdict    string    `json:"verdict"`
	Source     string    `json:"data_source"`
}

// SystemStatusResponse is the system status payload
type SystemStatusResponse struct {
	Status        string       `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	GoVersion     string       `json:"go_version"`
	Goroutines    int          `json:"goroutines"`
	DataDirMB     float64      `json:"data_dir_mb"`
	LastRun       *LastRunInfo `json:"last_run,omitempty"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Profile   string  `json:"profile"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// HandleSystemStatus returns process, host and pipeline status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "ok",
		StartedAt:     h.startupTime,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		DataDirMB:     h.getDirSize(h.dataDir),
	}

	if h.runs != nil {
		run, err := h.runs.Latest(r.Context())
		switch {
		case err == nil:
			response.LastRun = &LastRunInfo{
				ID:         run.ID,
				FinishedAt: run.FinishedAt,
				Verdict:    string(run.Verdict),
				Source:     string(run.Source),
			}
		case !errors.Is(err, runs.ErrRunNotFound):
			h.log.Warn().Err(err).Msg("Failed to load latest run")
		}
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns size statistics of every database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := make([]DBInfo, 0, len(h.databases))
	totalSizeMB := 0.0

	for _, db := range h.databases {
		if db == nil {
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		info := DBInfo{
			Name:      db.Name(),
			Profile:   string(db.Profile()),
			Path:      db.Path(),
			SizeMB:    bytesToMB(stats.SizeBytes),
			WALSizeMB: bytesToMB(stats.WALSizeBytes),
			PageCount: stats.PageCount,
		}
		totalSizeMB += info.SizeMB + info.WALSizeMB
		infos = append(infos, info)
	}

	h.writeJSON(w, map[string]interface{}{
		"databases":     infos,
		"total_size_mb": totalSizeMB,
		"last_checked":  time.Now().Format(time.RFC3339),
	})
}

// HandleJobsStatus lists scheduled jobs with their next activation
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.Entry{}
	if h.scheduler != nil {
		jobs = h.scheduler.Entries()
	}
	h.writeJSON(w, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
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

	return bytesToMB(totalSize)
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms so the endpoint stays responsive.
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

func bytesToMB(n int64) float64 {
	return float64(n) / 1024 / 1024
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
