package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mlvd/dirsave/pkg/utils"
)

// Job is one backup stream: a source directory archived under its own prefix,
// with optional per-job retention overrides. Jobs sharing one remote folder
// stay independent because each prefix forms its own backup set.
type Job struct {
	Name      string `yaml:"name"`
	SourceDir string `yaml:"source"`
	Prefix    string `yaml:"prefix"`

	// nil means "inherit from the main configuration"
	Daily   *int `yaml:"daily"`
	Weekly  *int `yaml:"weekly"`
	Monthly *int `yaml:"monthly"`
}

type jobsFile struct {
	Jobs []Job `yaml:"jobs"`
}

// RetentionFor resolves the job's retention counts against the config defaults.
func (j Job) RetentionFor(cfg *Config) (daily, weekly, monthly int) {
	daily, weekly, monthly = cfg.RetentionDaily, cfg.RetentionWeekly, cfg.RetentionMonthly
	if j.Daily != nil {
		daily = *j.Daily
	}
	if j.Weekly != nil {
		weekly = *j.Weekly
	}
	if j.Monthly != nil {
		monthly = *j.Monthly
	}
	return daily, weekly, monthly
}

// Jobs returns the backup jobs for this configuration: the contents of
// JOBS_FILE when configured, otherwise a single job built from the env values.
func (c *Config) Jobs() ([]Job, error) {
	if strings.TrimSpace(c.JobsFile) == "" {
		return []Job{{
			Name:      "default",
			SourceDir: c.SourceDir,
			Prefix:    c.BackupPrefix,
		}}, nil
	}

	data, err := os.ReadFile(c.JobsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file %s: %w", c.JobsFile, err)
	}

	var parsed jobsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file %s: %w", c.JobsFile, err)
	}
	if len(parsed.Jobs) == 0 {
		return nil, fmt.Errorf("jobs file %s defines no jobs", c.JobsFile)
	}

	seen := make(map[string]bool, len(parsed.Jobs))
	for i := range parsed.Jobs {
		job := &parsed.Jobs[i]
		if job.Name == "" {
			job.Name = fmt.Sprintf("job-%d", i+1)
		}
		if strings.TrimSpace(job.SourceDir) == "" {
			return nil, fmt.Errorf("job %q: source is required", job.Name)
		}
		if !utils.DirExists(job.SourceDir) {
			return nil, fmt.Errorf("job %q: source directory does not exist or is not a directory: %s",
				job.Name, job.SourceDir)
		}
		if seen[job.Prefix] {
			return nil, fmt.Errorf("job %q: prefix %q is used by another job; prefixes must be unique per remote",
				job.Name, job.Prefix)
		}
		seen[job.Prefix] = true

		daily, weekly, monthly := job.RetentionFor(c)
		if daily < 0 || weekly < 0 || monthly < 0 {
			return nil, fmt.Errorf("job %q: retention counts must be non-negative", job.Name)
		}
	}

	return parsed.Jobs, nil
}
