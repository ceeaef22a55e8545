package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlvd/dirsave/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dirsave.env")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	src := t.TempDir()
	path := writeConfig(t, `
# minimal configuration
CLOUD_REMOTE="gdrive:backups"
SOURCE_DIR=`+src+`
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.CloudRemote != "gdrive:backups" {
		t.Errorf("CloudRemote = %q, want %q", cfg.CloudRemote, "gdrive:backups")
	}
	if cfg.RetentionDaily != 7 || cfg.RetentionWeekly != 4 || cfg.RetentionMonthly != 6 {
		t.Errorf("retention defaults = %d/%d/%d, want 7/4/6",
			cfg.RetentionDaily, cfg.RetentionWeekly, cfg.RetentionMonthly)
	}
	if cfg.CompressionLevel != 6 {
		t.Errorf("CompressionLevel = %d, want 6", cfg.CompressionLevel)
	}
	if cfg.RcloneTimeoutConnection != 30 || cfg.RcloneTimeoutOperation != 300 {
		t.Errorf("rclone timeouts = %d/%d, want 30/300",
			cfg.RcloneTimeoutConnection, cfg.RcloneTimeoutOperation)
	}
	if cfg.DebugLevel != types.LogLevelInfo {
		t.Errorf("DebugLevel = %v, want info", cfg.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on valid config: %v", err)
	}
}

func TestLoadConfigFullSurface(t *testing.T) {
	src := t.TempDir()
	path := writeConfig(t, `
DEBUG_LEVEL=debug
USE_COLOR=false
CLOUD_REMOTE=s3:bucket/host1   # inline comment
SOURCE_DIR="`+src+`"
BACKUP_PREFIX=etc
RETENTION_DAILY=14
RETENTION_WEEKLY=8
RETENTION_MONTHLY=12
COMPRESSION_LEVEL=9
AUTO_CONFIRM_DELETE=yes
ENCRYPT_ARCHIVE=true
AGE_RECIPIENT=age1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqql9pfyf
AGE_RECIPIENT=age1zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz
RCLONE_RETRIES=5
RCLONE_BWLIMIT=10M
SCHEDULE="0 2 * * *"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DebugLevel != types.LogLevelDebug {
		t.Errorf("DebugLevel = %v, want debug", cfg.DebugLevel)
	}
	if cfg.UseColor {
		t.Error("UseColor = true, want false")
	}
	if cfg.CloudRemote != "s3:bucket/host1" {
		t.Errorf("CloudRemote = %q (inline comment not stripped?)", cfg.CloudRemote)
	}
	if cfg.BackupPrefix != "etc" {
		t.Errorf("BackupPrefix = %q, want %q", cfg.BackupPrefix, "etc")
	}
	if cfg.RetentionDaily != 14 || cfg.RetentionWeekly != 8 || cfg.RetentionMonthly != 12 {
		t.Errorf("retention = %d/%d/%d, want 14/8/12",
			cfg.RetentionDaily, cfg.RetentionWeekly, cfg.RetentionMonthly)
	}
	if !cfg.AutoConfirmDelete {
		t.Error("AutoConfirmDelete = false, want true")
	}
	if !cfg.EncryptArchive {
		t.Error("EncryptArchive = false, want true")
	}
	if len(cfg.AgeRecipients) != 2 {
		t.Errorf("AgeRecipients count = %d, want 2", len(cfg.AgeRecipients))
	}
	if cfg.RcloneRetries != 5 {
		t.Errorf("RcloneRetries = %d, want 5", cfg.RcloneRetries)
	}
	if cfg.Schedule != "0 2 * * *" {
		t.Errorf("Schedule = %q, want %q", cfg.Schedule, "0 2 * * *")
	}
}

func TestValidateErrors(t *testing.T) {
	src := t.TempDir()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing remote",
			mutate:  func(c *Config) { c.CloudRemote = "" },
			wantSub: "CLOUD_REMOTE",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.RetentionWeekly = -1 },
			wantSub: "non-negative",
		},
		{
			name:    "compression too high",
			mutate:  func(c *Config) { c.CompressionLevel = 10 },
			wantSub: "compression level",
		},
		{
			name:    "compression too low",
			mutate:  func(c *Config) { c.CompressionLevel = 0 },
			wantSub: "compression level",
		},
		{
			name:    "missing source dir",
			mutate:  func(c *Config) { c.SourceDir = "" },
			wantSub: "SOURCE_DIR",
		},
		{
			name:    "source dir absent",
			mutate:  func(c *Config) { c.SourceDir = filepath.Join(src, "nope") },
			wantSub: "does not exist",
		},
		{
			name:    "encryption without recipients",
			mutate:  func(c *Config) { c.EncryptArchive = true },
			wantSub: "ENCRYPT_ARCHIVE",
		},
		{
			name:    "zero operation timeout",
			mutate:  func(c *Config) { c.RcloneTimeoutOperation = 0 },
			wantSub: "timeouts must be positive",
		},
		{
			name:    "negative connection timeout",
			mutate:  func(c *Config) { c.RcloneTimeoutConnection = -5 },
			wantSub: "timeouts must be positive",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.RcloneRetries = 0 },
			wantSub: "RCLONE_RETRIES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.CloudRemote = "remote:path"
			cfg.SourceDir = src
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("LoadConfig succeeded on missing file")
	}
}

func TestLoadConfigBadInteger(t *testing.T) {
	path := writeConfig(t, "RETENTION_DAILY=many\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig succeeded with non-integer retention")
	}
}

func TestJobsSingleFromEnv(t *testing.T) {
	src := t.TempDir()
	cfg := Defaults()
	cfg.SourceDir = src
	cfg.BackupPrefix = "www"

	jobs, err := cfg.Jobs()
	if err != nil {
		t.Fatalf("Jobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs count = %d, want 1", len(jobs))
	}
	if jobs[0].SourceDir != src || jobs[0].Prefix != "www" {
		t.Errorf("job = %+v, want source %q prefix %q", jobs[0], src, "www")
	}

	daily, weekly, monthly := jobs[0].RetentionFor(cfg)
	if daily != 7 || weekly != 4 || monthly != 6 {
		t.Errorf("inherited retention = %d/%d/%d, want 7/4/6", daily, weekly, monthly)
	}
}

func TestJobsFromYAMLFile(t *testing.T) {
	srcA := t.TempDir()
	srcB := t.TempDir()
	jobsPath := filepath.Join(t.TempDir(), "jobs.yaml")
	content := `
jobs:
  - name: etc
    source: ` + srcA + `
    prefix: etc
    daily: 3
  - name: www
    source: ` + srcB + `
    prefix: www
`
	if err := os.WriteFile(jobsPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing jobs file: %v", err)
	}

	cfg := Defaults()
	cfg.JobsFile = jobsPath

	jobs, err := cfg.Jobs()
	if err != nil {
		t.Fatalf("Jobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs count = %d, want 2", len(jobs))
	}

	daily, weekly, monthly := jobs[0].RetentionFor(cfg)
	if daily != 3 {
		t.Errorf("job etc daily = %d, want override 3", daily)
	}
	if weekly != 4 || monthly != 6 {
		t.Errorf("job etc weekly/monthly = %d/%d, want inherited 4/6", weekly, monthly)
	}

	daily, _, _ = jobs[1].RetentionFor(cfg)
	if daily != 7 {
		t.Errorf("job www daily = %d, want inherited 7", daily)
	}
}

func TestJobsDuplicatePrefix(t *testing.T) {
	src := t.TempDir()
	jobsPath := filepath.Join(t.TempDir(), "jobs.yaml")
	content := `
jobs:
  - source: ` + src + `
    prefix: same
  - source: ` + src + `
    prefix: same
`
	if err := os.WriteFile(jobsPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing jobs file: %v", err)
	}

	cfg := Defaults()
	cfg.JobsFile = jobsPath

	if _, err := cfg.Jobs(); err == nil {
		t.Fatal("Jobs succeeded with duplicate prefix")
	}
}
