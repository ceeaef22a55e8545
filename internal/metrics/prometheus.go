// Package metrics exports run statistics in Prometheus textfile format so a
// node_exporter textfile collector can scrape backup health.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mlvd/dirsave/internal/logging"
	"github.com/mlvd/dirsave/pkg/utils"
)

// RunMetrics is the per-run snapshot written to the textfile.
type RunMetrics struct {
	Hostname string
	Version  string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	ExitCode     int
	ErrorCount   int
	WarningCount int

	JobsRun     int
	Uploads     int
	ArchiveSize int64

	KeptDaily      int
	KeptWeekly     int
	KeptMonthly    int
	Deleted        int
	DeleteFailures int
}

// PrometheusExporter writes run metrics for the node_exporter textfile
// collector.
type PrometheusExporter struct {
	textfileDir string
	logger      *logging.Logger
}

// NewPrometheusExporter creates an exporter targeting the given directory.
func NewPrometheusExporter(textfileDir string, logger *logging.Logger) *PrometheusExporter {
	return &PrometheusExporter{
		textfileDir: strings.TrimRight(textfileDir, "/"),
		logger:      logger,
	}
}

// Export writes the snapshot to dirsave.prom, atomically via rename so the
// collector never reads a half-written file.
func (pe *PrometheusExporter) Export(m *RunMetrics) error {
	if pe == nil || m == nil {
		return nil
	}

	if pe.textfileDir == "" {
		return fmt.Errorf("metrics textfile directory is empty")
	}

	if err := utils.EnsureDir(pe.textfileDir); err != nil {
		return fmt.Errorf("create metrics directory %s: %w", pe.textfileDir, err)
	}

	tmpPath := filepath.Join(pe.textfileDir, "dirsave.prom.tmp")
	finalPath := filepath.Join(pe.textfileDir, "dirsave.prom")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create metrics file %s: %w", tmpPath, err)
	}
	defer f.Close()

	writeMetric := func(name, help, value string) {
		fmt.Fprintf(f, "# HELP %s %s\n", name, help)
		fmt.Fprintf(f, "# TYPE %s gauge\n", name)
		fmt.Fprintln(f, value)
	}

	endTs := float64(m.EndTime.Unix())
	if m.EndTime.IsZero() && !m.StartTime.IsZero() {
		endTs = float64(m.StartTime.Unix() + int64(m.Duration.Seconds()))
	}

	// 0=success, 1=warning, 2=error
	status := 0
	if m.ExitCode != 0 {
		status = 2
	} else if m.WarningCount > 0 {
		status = 1
	}

	writeMetric("dirsave_backup_start_time_seconds",
		"Unix timestamp of backup run start",
		fmt.Sprintf("dirsave_backup_start_time_seconds %.0f", float64(m.StartTime.Unix())))

	writeMetric("dirsave_backup_end_time_seconds",
		"Unix timestamp of backup run end",
		fmt.Sprintf("dirsave_backup_end_time_seconds %.0f", endTs))

	writeMetric("dirsave_backup_duration_seconds",
		"Duration of last backup run in seconds",
		fmt.Sprintf("dirsave_backup_duration_seconds %.2f", m.Duration.Seconds()))

	writeMetric("dirsave_backup_exit_code",
		"Exit code of last backup run",
		fmt.Sprintf("dirsave_backup_exit_code %d", m.ExitCode))

	writeMetric("dirsave_backup_status",
		"Status of last backup run (0=success,1=warning,2=error)",
		fmt.Sprintf("dirsave_backup_status %d", status))

	writeMetric("dirsave_backup_errors_total",
		"Errors logged during last backup run",
		fmt.Sprintf("dirsave_backup_errors_total %d", m.ErrorCount))

	writeMetric("dirsave_backup_warnings_total",
		"Warnings logged during last backup run",
		fmt.Sprintf("dirsave_backup_warnings_total %d", m.WarningCount))

	writeMetric("dirsave_backup_jobs_total",
		"Backup jobs executed in last run",
		fmt.Sprintf("dirsave_backup_jobs_total %d", m.JobsRun))

	writeMetric("dirsave_backup_uploads_total",
		"Archives uploaded in last run",
		fmt.Sprintf("dirsave_backup_uploads_total %d", m.Uploads))

	writeMetric("dirsave_backup_archive_size_bytes",
		"Combined size of archives created in last run",
		fmt.Sprintf("dirsave_backup_archive_size_bytes %d", m.ArchiveSize))

	fmt.Fprintf(f, "# HELP dirsave_backup_kept_archives Remote archives retained per tier\n")
	fmt.Fprintf(f, "# TYPE dirsave_backup_kept_archives gauge\n")
	fmt.Fprintf(f, "dirsave_backup_kept_archives{tier=\"daily\"} %d\n", m.KeptDaily)
	fmt.Fprintf(f, "dirsave_backup_kept_archives{tier=\"weekly\"} %d\n", m.KeptWeekly)
	fmt.Fprintf(f, "dirsave_backup_kept_archives{tier=\"monthly\"} %d\n", m.KeptMonthly)

	writeMetric("dirsave_backup_deleted_total",
		"Remote archives deleted in last run",
		fmt.Sprintf("dirsave_backup_deleted_total %d", m.Deleted))

	writeMetric("dirsave_backup_delete_failures_total",
		"Remote archives that failed to delete in last run",
		fmt.Sprintf("dirsave_backup_delete_failures_total %d", m.DeleteFailures))

	fmt.Fprintf(f, "# HELP dirsave_backup_info Static information about this instance\n")
	fmt.Fprintf(f, "# TYPE dirsave_backup_info gauge\n")
	fmt.Fprintf(f, "dirsave_backup_info{hostname=%q,version=%q} 1\n", m.Hostname, m.Version)

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync metrics file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename metrics file to %s: %w", finalPath, err)
	}

	if pe.logger != nil {
		pe.logger.Debug("Prometheus metrics exported to %s", finalPath)
	}

	return nil
}
