// Package config loads and validates the dirsave.env configuration file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mlvd/dirsave/internal/types"
	"github.com/mlvd/dirsave/pkg/utils"
)

// Keys that may appear multiple times and accumulate values.
var multiValueKeys = map[string]bool{
	"AGE_RECIPIENT": true,
	"RCLONE_FLAGS":  true,
}

// Config contains the full configuration of the backup tool.
type Config struct {
	// General settings
	DebugLevel types.LogLevel
	UseColor   bool
	LogFile    string
	DryRun     bool

	// Backup source
	SourceDir    string
	BackupPrefix string

	// Remote destination (opaque rclone reference, e.g. "gdrive:backups/host1")
	CloudRemote string

	// Retention settings
	RetentionDaily   int
	RetentionWeekly  int
	RetentionMonthly int

	// Archive settings
	CompressionLevel int
	TempDir          string

	// Deletion confirmation
	AutoConfirmDelete bool

	// Encryption settings
	EncryptArchive    bool
	AgeRecipients     []string
	AgePassphraseFile string

	// Rclone settings
	// RcloneTimeoutConnection: timeout for checking if remote is accessible
	// RcloneTimeoutOperation: timeout for a full upload operation
	RcloneTimeoutConnection int
	RcloneTimeoutOperation  int
	RcloneRetries           int
	RcloneBandwidthLimit    string
	RcloneFlags             []string

	// Metrics
	MetricsDir string

	// Daemon mode
	Schedule string

	// Optional multi-job definition file (YAML)
	JobsFile string

	// raw configuration map
	raw map[string]string
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		DebugLevel:              types.LogLevelInfo,
		UseColor:                true,
		RetentionDaily:          7,
		RetentionWeekly:         4,
		RetentionMonthly:        6,
		CompressionLevel:        6,
		TempDir:                 os.TempDir(),
		RcloneTimeoutConnection: 30,
		RcloneTimeoutOperation:  300,
		RcloneRetries:           3,
	}
}

// LoadConfig reads the dirsave.env configuration file.
func LoadConfig(configPath string) (*Config, error) {
	if !utils.FileExists(configPath) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	raw, err := parseEnvFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	cfg := Defaults()
	cfg.raw = raw
	if err := cfg.apply(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if utils.IsComment(line) {
			continue
		}

		key, value, ok := utils.SplitKeyValue(line)
		if !ok {
			return nil, fmt.Errorf("line %d: not a KEY=VALUE line: %q", lineNo, strings.TrimSpace(line))
		}
		key = strings.TrimPrefix(key, "export ")
		key = strings.TrimSpace(key)

		if multiValueKeys[key] {
			if existing, found := values[key]; found && existing != "" {
				values[key] = existing + "\n" + value
				continue
			}
		}
		values[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

func (c *Config) apply() error {
	if v, ok := c.raw["DEBUG_LEVEL"]; ok {
		c.DebugLevel = types.ParseLogLevel(v)
	}
	if v, ok := c.raw["USE_COLOR"]; ok {
		c.UseColor = utils.ParseBool(v)
	}
	c.LogFile = c.stringValue("LOG_FILE", c.LogFile)

	c.SourceDir = c.stringValue("SOURCE_DIR", c.SourceDir)
	c.BackupPrefix = c.stringValue("BACKUP_PREFIX", c.BackupPrefix)
	c.CloudRemote = c.stringValue("CLOUD_REMOTE", c.CloudRemote)

	var err error
	if c.RetentionDaily, err = c.intValue("RETENTION_DAILY", c.RetentionDaily); err != nil {
		return err
	}
	if c.RetentionWeekly, err = c.intValue("RETENTION_WEEKLY", c.RetentionWeekly); err != nil {
		return err
	}
	if c.RetentionMonthly, err = c.intValue("RETENTION_MONTHLY", c.RetentionMonthly); err != nil {
		return err
	}
	if c.CompressionLevel, err = c.intValue("COMPRESSION_LEVEL", c.CompressionLevel); err != nil {
		return err
	}

	c.TempDir = c.stringValue("TEMP_DIR", c.TempDir)

	if v, ok := c.raw["AUTO_CONFIRM_DELETE"]; ok {
		c.AutoConfirmDelete = utils.ParseBool(v)
	}

	if v, ok := c.raw["ENCRYPT_ARCHIVE"]; ok {
		c.EncryptArchive = utils.ParseBool(v)
	}
	c.AgeRecipients = c.listValue("AGE_RECIPIENT")
	c.AgePassphraseFile = c.stringValue("AGE_PASSPHRASE_FILE", c.AgePassphraseFile)

	if c.RcloneTimeoutConnection, err = c.intValue("RCLONE_TIMEOUT_CONNECTION", c.RcloneTimeoutConnection); err != nil {
		return err
	}
	if c.RcloneTimeoutOperation, err = c.intValue("RCLONE_TIMEOUT_OPERATION", c.RcloneTimeoutOperation); err != nil {
		return err
	}
	if c.RcloneRetries, err = c.intValue("RCLONE_RETRIES", c.RcloneRetries); err != nil {
		return err
	}
	c.RcloneBandwidthLimit = c.stringValue("RCLONE_BWLIMIT", c.RcloneBandwidthLimit)
	c.RcloneFlags = c.listValue("RCLONE_FLAGS")

	c.MetricsDir = c.stringValue("METRICS_DIR", c.MetricsDir)
	c.Schedule = c.stringValue("SCHEDULE", c.Schedule)
	c.JobsFile = c.stringValue("JOBS_FILE", c.JobsFile)

	return nil
}

func (c *Config) stringValue(key, fallback string) string {
	if v, ok := c.raw[key]; ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (c *Config) intValue(key string, fallback int) (int, error) {
	v, ok := c.raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, v)
	}
	return n, nil
}

func (c *Config) listValue(key string) []string {
	v, ok := c.raw[key]
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range strings.Split(v, "\n") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Validate checks the configuration surface before any side effect occurs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CloudRemote) == "" {
		return fmt.Errorf("CLOUD_REMOTE is required")
	}

	if c.RetentionDaily < 0 || c.RetentionWeekly < 0 || c.RetentionMonthly < 0 {
		return fmt.Errorf("retention counts must be non-negative (daily=%d weekly=%d monthly=%d)",
			c.RetentionDaily, c.RetentionWeekly, c.RetentionMonthly)
	}

	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression level must be 1-9, got %d", c.CompressionLevel)
	}

	if c.RcloneTimeoutConnection <= 0 || c.RcloneTimeoutOperation <= 0 {
		return fmt.Errorf("rclone timeouts must be positive (connection=%d operation=%d)",
			c.RcloneTimeoutConnection, c.RcloneTimeoutOperation)
	}

	if c.RcloneRetries <= 0 {
		return fmt.Errorf("RCLONE_RETRIES must be positive, got %d", c.RcloneRetries)
	}

	if c.EncryptArchive && len(c.AgeRecipients) == 0 && strings.TrimSpace(c.AgePassphraseFile) == "" {
		return fmt.Errorf("ENCRYPT_ARCHIVE is enabled but no AGE_RECIPIENT or AGE_PASSPHRASE_FILE is configured")
	}

	if c.JobsFile == "" {
		if strings.TrimSpace(c.SourceDir) == "" {
			return fmt.Errorf("SOURCE_DIR is required")
		}
		if !utils.DirExists(c.SourceDir) {
			return fmt.Errorf("source directory does not exist or is not a directory: %s", c.SourceDir)
		}
	}

	return nil
}
