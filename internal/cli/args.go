package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mlvd/dirsave/internal/types"
	"github.com/mlvd/dirsave/internal/version"
)

const (
	defaultConfigPath   = "./configs/dirsave.env"
	configSourceDefault = "default path"
	configSourceFlag    = "specified via --config/-c flag"
)

// osExit is swapped out in tests.
var osExit = os.Exit

// Args holds the parsed command-line arguments
type Args struct {
	ConfigPath       string
	ConfigPathSource string
	LogLevel         types.LogLevel
	DryRun           bool
	AutoConfirm      bool
	ForceCLI         bool
	Daemon           bool
	ShowKey          bool
	ShowVersion      bool
	ShowHelp         bool
}

// Parse parses command-line arguments and returns Args struct
func Parse() *Args {
	args := &Args{}

	configFlag := newStringFlag(defaultConfigPath)

	// Define flags
	flag.Var(configFlag, "config", "Path to configuration file")
	flag.Var(configFlag, "c", "Path to configuration file (shorthand)")

	var logLevelStr string
	flag.StringVar(&logLevelStr, "log-level", "",
		"Log level (debug|info|warning|error|critical)")
	flag.StringVar(&logLevelStr, "l", "",
		"Log level (shorthand)")

	flag.BoolVar(&args.DryRun, "dry-run", false,
		"Report what would be uploaded and deleted without touching the remote")
	flag.BoolVar(&args.DryRun, "n", false,
		"Perform a dry run (shorthand)")

	flag.BoolVar(&args.AutoConfirm, "yes", false,
		"Skip the deletion confirmation prompt and delete expired backups unattended")
	flag.BoolVar(&args.AutoConfirm, "y", false,
		"Skip the deletion confirmation prompt (shorthand)")

	flag.BoolVar(&args.ForceCLI, "cli", false,
		"Use a plain stdin prompt instead of the TUI modal when confirming deletions")

	flag.BoolVar(&args.Daemon, "daemon", false,
		"Run continuously, triggering backups on the SCHEDULE cron expression")

	flag.BoolVar(&args.ShowKey, "show-key", false,
		"Derive and print the age recipient and identity from a passphrase, then exit")

	flag.BoolVar(&args.ShowVersion, "version", false,
		"Show version information")
	flag.BoolVar(&args.ShowVersion, "v", false,
		"Show version information (shorthand)")

	flag.BoolVar(&args.ShowHelp, "help", false,
		"Show help message")
	flag.BoolVar(&args.ShowHelp, "h", false,
		"Show help message (shorthand)")

	// Custom usage message
	flag.Usage = func() {
		printHelp(os.Stderr, os.Args[0])
	}

	// Parse flags
	flag.Parse()

	args.ConfigPath = configFlag.value
	if configFlag.set {
		args.ConfigPathSource = configSourceFlag
	} else {
		args.ConfigPathSource = configSourceDefault
	}

	// Parse log level if provided
	if logLevelStr != "" {
		args.LogLevel = parseLogLevel(logLevelStr)
	} else {
		args.LogLevel = types.LogLevelNone // Will be overridden by config
	}

	return args
}

// parseLogLevel converts string to LogLevel
func parseLogLevel(s string) types.LogLevel {
	switch s {
	case "debug", "5":
		return types.LogLevelDebug
	case "info", "4":
		return types.LogLevelInfo
	case "warning", "3":
		return types.LogLevelWarning
	case "error", "2":
		return types.LogLevelError
	case "critical", "1":
		return types.LogLevelCritical
	case "none", "0":
		return types.LogLevelNone
	default:
		return types.LogLevelInfo
	}
}

// ShowHelp displays help message and exits
func ShowHelp() {
	printHelp(os.Stderr, os.Args[0])
	osExit(0)
}

// ShowVersion displays version information and exits
func ShowVersion() {
	printVersion(os.Stdout)
	osExit(0)
}

func printHelp(w io.Writer, argv0 string) {
	fmt.Fprintf(w, "Usage: %s [options]\n\n", argv0)
	fmt.Fprintln(w, "dirsave - directory backup with tiered retention")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	flag.PrintDefaults()
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s -c /etc/dirsave/dirsave.env\n", argv0)
	fmt.Fprintf(w, "  %s --dry-run --log-level debug\n", argv0)
	fmt.Fprintf(w, "  %s --daemon\n", argv0)
	fmt.Fprintf(w, "  %s --version\n", argv0)
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, "dirsave")
	fmt.Fprintf(w, "Version: %s\n", version.String())
}

type stringFlag struct {
	value string
	set   bool
}

func newStringFlag(defaultValue string) *stringFlag {
	return &stringFlag{value: defaultValue}
}

func (s *stringFlag) String() string {
	return s.value
}

func (s *stringFlag) Set(val string) error {
	s.value = val
	s.set = true
	return nil
}
