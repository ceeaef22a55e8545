package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/mlvd/dirsave/internal/backup"
	"github.com/mlvd/dirsave/internal/cli"
	"github.com/mlvd/dirsave/internal/config"
	"github.com/mlvd/dirsave/internal/input"
	"github.com/mlvd/dirsave/internal/logging"
	"github.com/mlvd/dirsave/internal/metrics"
	"github.com/mlvd/dirsave/internal/orchestrator"
	"github.com/mlvd/dirsave/internal/scheduler"
	"github.com/mlvd/dirsave/internal/storage"
	"github.com/mlvd/dirsave/internal/tui"
	"github.com/mlvd/dirsave/internal/types"
	"github.com/mlvd/dirsave/internal/version"
)

const exitCodeInterrupted = 128 + int(syscall.SIGINT)

func main() {
	os.Exit(run())
}

func run() int {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(types.ExitPanicError.Int())
		}
	}()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT (Ctrl+C) and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	// Any TUI modal open when the context is cancelled must stop too.
	tui.SetAbortContext(ctx)

	args := cli.Parse()

	if args.ShowVersion {
		cli.ShowVersion()
		return types.ExitSuccess.Int()
	}
	if args.ShowHelp {
		cli.ShowHelp()
		return types.ExitSuccess.Int()
	}

	if args.ShowKey {
		return runShowKey(ctx, args)
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		return types.ExitConfigError.Int()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid configuration: %v\n", err)
		return types.ExitConfigError.Int()
	}

	// CLI log level overrides the configured one
	logLevel := cfg.DebugLevel
	if args.LogLevel != types.LogLevelNone {
		logLevel = args.LogLevel
	}

	logger := logging.New(logLevel, cfg.UseColor)
	logging.SetDefaultLogger(logger)

	if strings.TrimSpace(cfg.LogFile) != "" {
		if err := logger.OpenLogFile(cfg.LogFile); err != nil {
			logger.Warning("Failed to open log file %s: %v", cfg.LogFile, err)
		} else {
			defer func() {
				_ = logger.CloseLogFile()
			}()
		}
	}

	logger.Info("dirsave %s", version.String())
	logger.Info("Configuration file: %s (%s)", args.ConfigPath, args.ConfigPathSource)

	dryRun := args.DryRun || cfg.DryRun
	if dryRun {
		logger.Info("DRY RUN MODE: no archive will be uploaded and no backup will be deleted")
	}

	archiver, err := buildArchiver(cfg, logger, dryRun)
	if err != nil {
		logger.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}

	transport, err := storage.NewRcloneTransport(cfg, logger)
	if err != nil {
		logger.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}

	orch := orchestrator.New(logger, cfg, transport, archiver, dryRun)
	if args.AutoConfirm {
		orch.SetAutoConfirm(true)
	}
	orch.SetConfirm(selectConfirmGate(args.ForceCLI))

	if args.Daemon {
		return runDaemon(ctx, cfg, logger, orch)
	}

	report, runErr := orch.RunAll(ctx)
	exportMetrics(cfg, logger, report)

	if ctx.Err() != nil {
		logger.Warning("Backup run interrupted")
		return exitCodeInterrupted
	}
	if runErr != nil {
		return report.ExitCode.Int()
	}
	return types.ExitSuccess.Int()
}

// buildArchiver assembles the tar.gz archiver, resolving age recipients when
// encryption is enabled.
func buildArchiver(cfg *config.Config, logger *logging.Logger, dryRun bool) (*backup.Archiver, error) {
	archiverCfg := &backup.ArchiverConfig{
		CompressionLevel: cfg.CompressionLevel,
		DryRun:           dryRun,
		EncryptArchive:   cfg.EncryptArchive,
	}

	if cfg.EncryptArchive {
		recipients, err := backup.LoadRecipients(cfg.AgeRecipients, cfg.AgePassphraseFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load age recipients: %w", err)
		}
		archiverCfg.AgeRecipients = recipients
	}

	if err := archiverCfg.Validate(); err != nil {
		return nil, err
	}
	return backup.NewArchiver(logger, archiverCfg), nil
}

// selectConfirmGate picks how pending deletions get confirmed: the TUI modal
// on an interactive terminal, a plain stdin prompt otherwise or when --cli
// is given.
func selectConfirmGate(forceCLI bool) orchestrator.ConfirmFunc {
	if forceCLI || !term.IsTerminal(int(os.Stdin.Fd())) {
		return orchestrator.PromptDeletions(os.Stdin, os.Stdout)
	}
	return func(ctx context.Context, keptCount int, doomed []string) (bool, error) {
		return tui.ConfirmDeletions("Delete expired backups?", keptCount, doomed)
	}
}

// runDaemon keeps the process alive and triggers backup runs on the
// configured cron schedule until the context is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, logger *logging.Logger, orch *orchestrator.Orchestrator) int {
	if strings.TrimSpace(cfg.Schedule) == "" {
		logger.Error("ERROR: --daemon requires SCHEDULE to be configured")
		return types.ExitConfigError.Int()
	}

	sched := scheduler.New(logger, cfg.Schedule, func(runCtx context.Context) {
		report, err := orch.RunAll(runCtx)
		exportMetrics(cfg, logger, report)
		if err != nil {
			logger.Error("Scheduled backup run failed: %v", err)
		}
	})
	if err := sched.Start(ctx); err != nil {
		logger.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}

	logger.Info("Scheduler stopped")
	return types.ExitSuccess.Int()
}

// exportMetrics writes the run outcome for the node_exporter textfile
// collector. Failures are logged but never affect the exit code.
func exportMetrics(cfg *config.Config, logger *logging.Logger, report *orchestrator.RunReport) {
	if strings.TrimSpace(cfg.MetricsDir) == "" || report == nil {
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	run := &metrics.RunMetrics{
		Hostname:     hostname,
		Version:      version.String(),
		EndTime:      time.Now(),
		ExitCode:     report.ExitCode.Int(),
		ErrorCount:   int(logger.ErrorCount()),
		WarningCount: int(logger.WarningCount()),
		JobsRun:      len(report.Jobs),
	}

	for _, job := range report.Jobs {
		if run.StartTime.IsZero() || job.StartTime.Before(run.StartTime) {
			run.StartTime = job.StartTime
		}
		if job.Uploaded {
			run.Uploads++
		}
		run.ArchiveSize += job.ArchiveSize
		run.KeptDaily += job.KeptDaily
		run.KeptWeekly += job.KeptWeekly
		run.KeptMonthly += job.KeptMonthly
		run.Deleted += job.Deleted
		run.DeleteFailures += job.DeleteFailed
	}
	if run.StartTime.IsZero() {
		run.StartTime = run.EndTime
	}
	run.Duration = run.EndTime.Sub(run.StartTime)

	exporter := metrics.NewPrometheusExporter(cfg.MetricsDir, logger)
	if err := exporter.Export(run); err != nil {
		logger.Warning("Failed to export metrics: %v", err)
	}
}

// runShowKey derives the age recipient and identity from a passphrase and
// prints both, so users can configure AGE_RECIPIENT on another machine or
// keep the identity for manual decryption.
func runShowKey(ctx context.Context, args *cli.Args) int {
	passphrase, err := resolvePassphrase(ctx, args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		if input.IsAborted(err) {
			return exitCodeInterrupted
		}
		return types.ExitConfigError.Int()
	}

	key, err := backup.DeriveKeyFromPassphrase(passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return types.ExitGenericError.Int()
	}

	fmt.Printf("Recipient: %s\n", key.Recipient)
	fmt.Printf("Identity:  %s\n", key.Identity)
	return types.ExitSuccess.Int()
}

// resolvePassphrase reads the passphrase from the configured file when one
// exists, otherwise prompts on the terminal.
func resolvePassphrase(ctx context.Context, configPath string) ([]byte, error) {
	if cfg, err := config.LoadConfig(configPath); err == nil {
		if file := strings.TrimSpace(cfg.AgePassphraseFile); file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read passphrase file: %w", err)
			}
			passphrase := []byte(strings.TrimSpace(string(data)))
			if len(passphrase) == 0 {
				return nil, fmt.Errorf("passphrase file %s is empty", file)
			}
			return passphrase, nil
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("no passphrase file configured and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	passphrase, err := input.ReadPasswordWithContext(ctx, term.ReadPassword, int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	return passphrase, nil
}
