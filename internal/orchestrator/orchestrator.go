// Package orchestrator sequences a backup run: preflight, archive, upload,
// remote listing, retention classification and the gated deletion pass.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mlvd/dirsave/internal/config"
	"github.com/mlvd/dirsave/internal/logging"
	"github.com/mlvd/dirsave/internal/retention"
	"github.com/mlvd/dirsave/internal/storage"
	"github.com/mlvd/dirsave/internal/types"
	"github.com/mlvd/dirsave/pkg/utils"
)

// BackupError represents a failure in a specific phase of the run, carrying
// the exit code the process should terminate with.
type BackupError struct {
	Phase string // "preflight", "archive", "upload", "config"
	Err   error
	Code  types.ExitCode
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// ExitCodeForError maps a run error onto the process exit code.
func ExitCodeForError(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Code
	}
	return types.ExitGenericError
}

// Archiver creates the local archive that gets uploaded. Satisfied by
// backup.Archiver; tests substitute a fake.
type Archiver interface {
	CreateArchive(ctx context.Context, sourceDir, outputPath string) error
	Encrypts() bool
}

// ConfirmFunc decides whether the deletion pass may proceed. keptCount is the
// number of archives the policy retains; doomed lists the identifiers that
// would be removed.
type ConfirmFunc func(ctx context.Context, keptCount int, doomed []string) (bool, error)

// JobStats collects the outcome of one backup job for reporting and metrics.
type JobStats struct {
	Job        string
	Identifier string

	ArchiveSize int64
	Uploaded    bool

	KeptDaily   int
	KeptWeekly  int
	KeptMonthly int

	Deleted          int
	DeleteFailed     int
	DeletionsSkipped bool // dry run or operator declined

	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the wall-clock duration of the job.
func (s *JobStats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// RunReport aggregates per-job stats plus the exit code for the whole run.
type RunReport struct {
	Jobs     []*JobStats
	ExitCode types.ExitCode
}

// Orchestrator coordinates the backup pipeline.
type Orchestrator struct {
	logger      *logging.Logger
	cfg         *config.Config
	transport   storage.Transport
	archiver    Archiver
	confirm     ConfirmFunc
	clock       func() time.Time
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(string) error
	dryRun      bool
	autoConfirm bool
}

// New creates an Orchestrator wired to the production filesystem and clock.
func New(logger *logging.Logger, cfg *config.Config, transport storage.Transport, archiver Archiver, dryRun bool) *Orchestrator {
	return &Orchestrator{
		logger:      logger,
		cfg:         cfg,
		transport:   transport,
		archiver:    archiver,
		clock:       time.Now,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		dryRun:      dryRun,
		autoConfirm: cfg.AutoConfirmDelete,
	}
}

// SetConfirm installs the interactive confirmation gate (CLI prompt or TUI
// modal). Without one, pending deletions are skipped with a warning.
func (o *Orchestrator) SetConfirm(fn ConfirmFunc) {
	o.confirm = fn
}

// SetAutoConfirm bypasses the confirmation gate (--yes).
func (o *Orchestrator) SetAutoConfirm(auto bool) {
	o.autoConfirm = auto
}

func (o *Orchestrator) now() time.Time {
	if o.clock != nil {
		return o.clock()
	}
	return time.Now()
}

// RunAll executes every configured job. Jobs are independent: a failing job
// is logged and the remaining jobs still run. The returned error is the
// first job failure, and the report's exit code reflects it.
func (o *Orchestrator) RunAll(ctx context.Context) (*RunReport, error) {
	jobs, err := o.cfg.Jobs()
	if err != nil {
		wrapped := &BackupError{Phase: "config", Err: err, Code: types.ExitConfigError}
		return &RunReport{ExitCode: wrapped.Code}, wrapped
	}

	report := &RunReport{
		Jobs:     make([]*JobStats, 0, len(jobs)),
		ExitCode: types.ExitSuccess,
	}

	var firstErr error
	for _, job := range jobs {
		stats, err := o.Run(ctx, job)
		if stats != nil {
			report.Jobs = append(report.Jobs, stats)
		}
		if err != nil {
			o.logger.Error("Job %q failed: %v", job.Name, err)
			if firstErr == nil {
				firstErr = err
				report.ExitCode = ExitCodeForError(err)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	return report, firstErr
}

// Run executes one backup job end to end. The returned stats are valid even
// on error, describing how far the run got.
func (o *Orchestrator) Run(ctx context.Context, job config.Job) (*JobStats, error) {
	stats := &JobStats{
		Job:       job.Name,
		StartTime: o.now(),
	}
	defer func() {
		stats.EndTime = o.now()
	}()

	// The identifier carries the local calendar date at archive-creation time.
	identifier := retention.BuildIdentifier(o.now(), job.Prefix, o.archiver.Encrypts())
	stats.Identifier = identifier

	o.logger.Step("Backup job %q: %s -> %s", job.Name, job.SourceDir, identifier)

	// Preflight before any side effect: a missing tool or unreachable remote
	// must not leave half-done work behind.
	if err := o.transport.CheckRemote(ctx); err != nil {
		return stats, &BackupError{Phase: "preflight", Err: err, Code: types.ExitToolError}
	}

	if o.dryRun {
		o.logger.Info("[DRY RUN] Would archive %s and upload as %s", job.SourceDir, identifier)
	} else {
		if err := o.archiveAndUpload(ctx, job, identifier, stats); err != nil {
			return stats, err
		}
	}

	o.applyRetention(ctx, job, stats)

	o.logSummary(stats)
	return stats, nil
}

func (o *Orchestrator) archiveAndUpload(ctx context.Context, job config.Job, identifier string, stats *JobStats) error {
	tempDir, err := o.mkdirTemp(o.cfg.TempDir, "dirsave-*")
	if err != nil {
		return &BackupError{
			Phase: "archive",
			Err:   fmt.Errorf("create temp directory: %w", err),
			Code:  types.ExitArchiveError,
		}
	}
	// The local archive is removed whether the upload succeeds or not.
	defer func() {
		if err := o.removeAll(tempDir); err != nil {
			o.logger.Warning("Failed to remove temp directory %s: %v", tempDir, err)
		}
	}()

	archivePath := filepath.Join(tempDir, identifier)
	if err := o.archiver.CreateArchive(ctx, job.SourceDir, archivePath); err != nil {
		return &BackupError{Phase: "archive", Err: err, Code: types.ExitArchiveError}
	}

	if size, err := utils.GetFileSize(archivePath); err == nil {
		stats.ArchiveSize = size
		o.logger.Info("Archive created: %s (%s)", identifier, utils.FormatBytes(size))
	}

	if err := o.transport.Upload(ctx, archivePath, identifier); err != nil {
		return &BackupError{Phase: "upload", Err: err, Code: types.ExitUploadError}
	}
	stats.Uploaded = true
	return nil
}

// applyRetention lists the remote, classifies the backup set and runs the
// gated deletion pass. Every failure in here is non-fatal: the new backup is
// already uploaded, so the run must not be reported as failed.
func (o *Orchestrator) applyRetention(ctx context.Context, job config.Job, stats *JobStats) {
	names, err := o.transport.List(ctx)
	if err != nil {
		o.logger.Warning("Remote listing failed, skipping retention for job %q: %v", job.Name, err)
		return
	}

	records := retention.ParseListing(names, job.Prefix, o.logger)
	if len(records) == 0 {
		o.logger.Info("No prior backups found for job %q, nothing to prune", job.Name)
		return
	}

	daily, weekly, monthly := job.RetentionFor(o.cfg)
	result := retention.Classify(records, daily, weekly, monthly)

	counts := result.Stats()
	stats.KeptDaily = counts[retention.DecisionKeptDaily]
	stats.KeptWeekly = counts[retention.DecisionKeptWeekly]
	stats.KeptMonthly = counts[retention.DecisionKeptMonthly]

	o.logRetentionPlan(job, daily, weekly, monthly, result)

	if len(result.ToDelete) == 0 {
		return
	}

	doomed := make([]string, 0, len(result.ToDelete))
	for _, rec := range result.ToDelete {
		doomed = append(doomed, rec.Identifier)
	}

	if o.dryRun {
		for _, name := range doomed {
			o.logger.Info("[DRY RUN] Would delete %s", name)
		}
		stats.DeletionsSkipped = true
		return
	}

	confirmed, err := o.confirmDeletions(ctx, len(result.Kept), doomed)
	if err != nil {
		o.logger.Warning("Deletion confirmation failed, keeping all remote archives: %v", err)
		stats.DeletionsSkipped = true
		return
	}
	if !confirmed {
		o.logger.Info("Deletion not confirmed, keeping all remote archives")
		stats.DeletionsSkipped = true
		return
	}

	for _, name := range doomed {
		if err := ctx.Err(); err != nil {
			o.logger.Warning("Deletion pass interrupted: %v", err)
			return
		}
		if err := o.transport.Delete(ctx, name); err != nil {
			o.logger.Warning("Failed to delete %s: %v", name, err)
			stats.DeleteFailed++
			continue
		}
		o.logger.Info("Deleted %s", name)
		stats.Deleted++
	}
}

func (o *Orchestrator) confirmDeletions(ctx context.Context, keptCount int, doomed []string) (bool, error) {
	if o.autoConfirm {
		o.logger.Debug("Deletion auto-confirmed (%d archives)", len(doomed))
		return true, nil
	}
	if o.confirm == nil {
		return false, fmt.Errorf("no confirmation gate configured")
	}
	return o.confirm(ctx, keptCount, doomed)
}
