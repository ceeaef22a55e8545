package metrics

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mlvd/dirsave/internal/logging"
	"github.com/mlvd/dirsave/internal/types"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger := logging.New(types.LogLevelNone, false)
	logger.SetOutput(io.Discard)
	return logger
}

func sampleMetrics() *RunMetrics {
	start := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)
	return &RunMetrics{
		Hostname:       "backuphost",
		Version:        "1.2.0",
		StartTime:      start,
		EndTime:        start.Add(90 * time.Second),
		Duration:       90 * time.Second,
		ExitCode:       0,
		WarningCount:   1,
		JobsRun:        2,
		Uploads:        2,
		ArchiveSize:    1048576,
		KeptDaily:      2,
		KeptWeekly:     1,
		KeptMonthly:    1,
		Deleted:        3,
		DeleteFailures: 0,
	}
}

func TestExportWritesTextfile(t *testing.T) {
	dir := t.TempDir()
	exporter := NewPrometheusExporter(dir, testLogger(t))

	if err := exporter.Export(sampleMetrics()); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "dirsave.prom"))
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	content := string(data)

	wantLines := []string{
		"dirsave_backup_duration_seconds 90.00",
		"dirsave_backup_exit_code 0",
		"dirsave_backup_status 1", // warnings present
		"dirsave_backup_jobs_total 2",
		"dirsave_backup_uploads_total 2",
		"dirsave_backup_archive_size_bytes 1048576",
		`dirsave_backup_kept_archives{tier="daily"} 2`,
		`dirsave_backup_kept_archives{tier="weekly"} 1`,
		`dirsave_backup_kept_archives{tier="monthly"} 1`,
		"dirsave_backup_deleted_total 3",
		`dirsave_backup_info{hostname="backuphost",version="1.2.0"} 1`,
	}
	for _, line := range wantLines {
		if !strings.Contains(content, line) {
			t.Errorf("metrics file missing %q", line)
		}
	}

	// Every metric must carry HELP and TYPE.
	if strings.Count(content, "# HELP") != strings.Count(content, "# TYPE") {
		t.Error("mismatched HELP/TYPE comment counts")
	}

	if _, err := os.Stat(filepath.Join(dir, "dirsave.prom.tmp")); !os.IsNotExist(err) {
		t.Error("temporary metrics file left behind")
	}
}

func TestExportErrorStatus(t *testing.T) {
	dir := t.TempDir()
	exporter := NewPrometheusExporter(dir, testLogger(t))

	m := sampleMetrics()
	m.ExitCode = 5
	m.ErrorCount = 1
	if err := exporter.Export(m); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "dirsave.prom"))
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(data), "dirsave_backup_status 2") {
		t.Error("exit code 5 should report status 2")
	}
	if !strings.Contains(string(data), "dirsave_backup_exit_code 5") {
		t.Error("metrics file missing exit code")
	}
}

func TestExportEmptyDirRejected(t *testing.T) {
	exporter := NewPrometheusExporter("", testLogger(t))
	if err := exporter.Export(sampleMetrics()); err == nil {
		t.Error("Export() with empty directory succeeded, want error")
	}
}

func TestExportNilMetricsIsNoop(t *testing.T) {
	exporter := NewPrometheusExporter(t.TempDir(), testLogger(t))
	if err := exporter.Export(nil); err != nil {
		t.Errorf("Export(nil) error = %v", err)
	}
}
