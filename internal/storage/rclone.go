package storage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/mlvd/dirsave/internal/config"
	"github.com/mlvd/dirsave/internal/logging"
	"github.com/mlvd/dirsave/pkg/utils"
)

// RcloneTransport implements Transport by shelling out to the rclone binary.
// Uses two timeout classes: CONNECTION (for the remote check) and OPERATION
// (for uploads).
type RcloneTransport struct {
	logger       *logging.Logger
	remote       string // rclone remote name (e.g. "gdrive")
	remotePrefix string // path inside the remote where archives live
	flags        []string
	bwLimit      string
	timeoutConn  int // seconds
	timeoutOp    int // seconds
	retries      int

	execCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
	lookPath    func(string) (string, error)
	sleep       func(time.Duration)
}

// NewRcloneTransport builds a transport from CLOUD_REMOTE and the rclone
// tuning knobs. CLOUD_REMOTE is "remote:path"; the path part may be empty.
func NewRcloneTransport(cfg *config.Config, logger *logging.Logger) (*RcloneTransport, error) {
	rawRemote := strings.TrimSpace(cfg.CloudRemote)
	remoteName, basePath := splitRemoteRef(rawRemote)
	if remoteName == "" {
		return nil, fmt.Errorf("CLOUD_REMOTE has no remote name: %q", rawRemote)
	}

	retries := cfg.RcloneRetries
	if retries < 1 {
		retries = 1
	}

	return &RcloneTransport{
		logger:       logger,
		remote:       remoteName,
		remotePrefix: strings.Trim(strings.TrimSpace(basePath), "/"),
		flags:        append([]string(nil), cfg.RcloneFlags...),
		bwLimit:      cfg.RcloneBandwidthLimit,
		timeoutConn:  cfg.RcloneTimeoutConnection,
		timeoutOp:    cfg.RcloneTimeoutOperation,
		retries:      retries,
		execCommand:  defaultExecCommand,
		lookPath:     exec.LookPath,
		sleep:        time.Sleep,
	}, nil
}

// Name returns the storage backend name.
func (t *RcloneTransport) Name() string {
	return "rclone (" + t.remoteLabel() + ")"
}

func (t *RcloneTransport) remoteLabel() string {
	if t.remotePrefix != "" {
		return fmt.Sprintf("%s:%s", t.remote, t.remotePrefix)
	}
	return t.remote + ":"
}

func (t *RcloneTransport) remoteRoot() string {
	return t.remote + ":"
}

func (t *RcloneTransport) remotePathFor(name string) string {
	clean := path.Clean(name)
	if strings.HasPrefix(clean, "..") || strings.Contains(clean, "/") {
		clean = path.Base(clean)
	}
	if t.remotePrefix != "" {
		clean = path.Join(t.remotePrefix, clean)
	}
	return fmt.Sprintf("%s:%s", t.remote, clean)
}

func (t *RcloneTransport) buildArgs(subcommand string, extra ...string) []string {
	args := []string{"rclone", subcommand}
	args = append(args, t.flags...)
	args = append(args, extra...)
	return args
}

func splitRemoteRef(ref string) (remoteName, relPath string) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) < 2 {
		return ref, ""
	}
	return parts[0], parts[1]
}

// HasRclone reports whether the rclone binary is available.
func (t *RcloneTransport) HasRclone() bool {
	lookPath := t.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath("rclone")
	return err == nil
}

type remoteErrorKind string

const (
	remoteErrorTimeout remoteErrorKind = "timeout"
	remoteErrorAuth    remoteErrorKind = "auth"
	remoteErrorPath    remoteErrorKind = "path"
	remoteErrorNetwork remoteErrorKind = "network"
	remoteErrorOther   remoteErrorKind = "other"
)

type remoteCheckError struct {
	kind remoteErrorKind
	msg  string
	err  error
}

func (e *remoteCheckError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *remoteCheckError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// CheckRemote verifies rclone is installed, the remote responds and the
// backup path exists. Uses the CONNECTION timeout and retries transient
// failures with exponential backoff.
func (t *RcloneTransport) CheckRemote(ctx context.Context) error {
	if !t.HasRclone() {
		return &StorageError{
			Operation:   "check_remote",
			Path:        t.remoteLabel(),
			Err:         fmt.Errorf("rclone command not found in PATH"),
			Recoverable: false,
		}
	}

	timeoutSeconds := t.timeoutConn
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	t.logger.Info("Checking remote accessibility: %s (timeout: max %ds)",
		t.remoteLabel(), timeoutSeconds)

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	const maxAttempts = 3

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if timeoutCtx.Err() != nil {
			break
		}

		err := t.checkRemoteOnce(timeoutCtx)
		if err == nil {
			t.logger.Info("Remote %s is accessible", t.remoteLabel())
			return nil
		}
		lastErr = err

		if timeoutCtx.Err() == context.DeadlineExceeded {
			lastErr = &remoteCheckError{
				kind: remoteErrorTimeout,
				msg:  fmt.Sprintf("connection timeout (%ds) - remote did not respond in time", timeoutSeconds),
				err:  err,
			}
			break
		}

		if attempt < maxAttempts {
			// Exponential backoff: 2s, 4s, ...
			waitTime := time.Duration(1<<uint(attempt)) * time.Second
			t.logger.Debug("Remote check attempt %d/%d failed: %v (retrying in %v)",
				attempt, maxAttempts, err, waitTime)
			t.sleep(waitTime)
		}
	}

	t.logRemoteCheckHint(lastErr)
	return &StorageError{
		Operation:   "check_remote",
		Path:        t.remoteLabel(),
		Err:         fmt.Errorf("remote not accessible: %w", lastErr),
		Recoverable: false,
	}
}

func (t *RcloneTransport) logRemoteCheckHint(err error) {
	rcErr, ok := err.(*remoteCheckError)
	if !ok {
		t.logger.Debug("HINT: Check your rclone configuration with: rclone config show %s", t.remote)
		return
	}
	switch rcErr.kind {
	case remoteErrorTimeout:
		t.logger.Debug("HINT: Consider increasing RCLONE_TIMEOUT_CONNECTION for slow remotes")
	case remoteErrorAuth:
		t.logger.Debug("HINT: Check your rclone configuration with: rclone config show %s", t.remote)
	case remoteErrorPath:
		t.logger.Debug("HINT: Verify the path in CLOUD_REMOTE or create it using: rclone mkdir %s", t.remoteLabel())
	case remoteErrorNetwork:
		t.logger.Debug("HINT: Check network connection, DNS and firewall rules")
	default:
		t.logger.Debug("HINT: Check your rclone configuration and network connectivity")
	}
}

func (t *RcloneTransport) checkRemoteOnce(ctx context.Context) error {
	remoteRoot := t.remoteRoot()

	argsRoot := t.buildArgs("lsf", remoteRoot, "--max-depth", "1")
	t.logger.Debug("Running (remote root check): %s", strings.Join(argsRoot, " "))
	output, err := t.exec(ctx, argsRoot[0], argsRoot[1:]...)
	if err != nil {
		return classifyRemoteError("remote", remoteRoot, err, output)
	}

	if t.remotePrefix == "" {
		return nil
	}

	// mkdir is idempotent, so ensuring and verifying the path is one call each.
	remoteBase := t.remoteLabel()
	argsMkdir := t.buildArgs("mkdir", remoteBase)
	t.logger.Debug("Running (remote path ensure): %s", strings.Join(argsMkdir, " "))
	output, err = t.exec(ctx, argsMkdir[0], argsMkdir[1:]...)
	if err != nil {
		return classifyRemoteError("path", remoteBase, err, output)
	}

	argsPath := t.buildArgs("lsf", remoteBase, "--max-depth", "1")
	t.logger.Debug("Running (remote path check): %s", strings.Join(argsPath, " "))
	output, err = t.exec(ctx, argsPath[0], argsPath[1:]...)
	if err != nil {
		return classifyRemoteError("path", remoteBase, err, output)
	}

	return nil
}

func classifyRemoteError(stage, target string, err error, output []byte) error {
	text := strings.ToLower(strings.TrimSpace(string(output)))
	msg := fmt.Sprintf("rclone %s check failed for %s", stage, target)

	return &remoteCheckError{
		kind: detectRemoteErrorKind(text),
		msg:  fmt.Sprintf("%s: %s", msg, strings.TrimSpace(string(output))),
		err:  err,
	}
}

func detectRemoteErrorKind(text string) remoteErrorKind {
	switch {
	case containsAny(text,
		"directory not found",
		"file not found",
		"couldn't find root",
		"path not found"):
		return remoteErrorPath
	case containsAny(text,
		"failed to create file system",
		"couldn't find configuration section",
		"not found in config file",
		"error reading section",
		"401 unauthorized",
		"403 forbidden",
		"access denied",
		"permission denied"):
		return remoteErrorAuth
	case containsAny(text,
		"dial tcp",
		"connection refused",
		"network is unreachable",
		"host is down",
		"no such host"):
		return remoteErrorNetwork
	default:
		return remoteErrorOther
	}
}

func containsAny(text string, substrings ...string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Upload copies localFile to remoteName with retries, then verifies the
// remote size matches. Uses the OPERATION timeout for the whole upload.
func (t *RcloneTransport) Upload(ctx context.Context, localFile, remoteName string) error {
	stat, err := os.Stat(localFile)
	if err != nil {
		return &StorageError{
			Operation:   "upload",
			Path:        localFile,
			Err:         fmt.Errorf("source file not found: %w", err),
			Recoverable: false,
		}
	}

	remoteFile := t.remotePathFor(remoteName)
	t.logger.Info("Uploading %s (%s) -> %s (timeout: %ds)",
		remoteName, utils.FormatBytes(stat.Size()), t.remoteLabel(), t.timeoutOp)

	uploadCtx, cancel := context.WithTimeout(ctx, time.Duration(t.timeoutOp)*time.Second)
	defer cancel()

	if err := t.uploadWithRetry(uploadCtx, localFile, remoteFile); err != nil {
		return &StorageError{
			Operation:   "upload",
			Path:        localFile,
			Err:         err,
			Recoverable: false,
		}
	}

	ok, err := t.verifyUpload(ctx, remoteFile, stat.Size())
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("verification failed")
		}
		return &StorageError{
			Operation:   "verify",
			Path:        remoteFile,
			Err:         err,
			Recoverable: false,
		}
	}

	t.logger.Info("Upload and verification completed for %s", remoteName)
	return nil
}

func (t *RcloneTransport) uploadWithRetry(ctx context.Context, localFile, remoteFile string) error {
	var lastErr error

	for attempt := 1; attempt <= t.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 1 {
			t.logger.Info("Upload retry attempt %d/%d for %s", attempt, t.retries, remoteFile)
		}

		err := t.rcloneCopy(ctx, localFile, remoteFile)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() == context.DeadlineExceeded {
			t.logger.Warning("Upload attempt %d/%d failed: operation timeout (%ds exceeded)",
				attempt, t.retries, t.timeoutOp)
			break
		}
		t.logger.Warning("Upload attempt %d/%d failed: %v", attempt, t.retries, err)

		if attempt < t.retries {
			waitTime := time.Duration(1<<uint(attempt)) * time.Second
			t.logger.Debug("Waiting %v before retry...", waitTime)
			t.sleep(waitTime)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("upload failed: operation timeout (%ds exceeded) after %d attempts",
			t.timeoutOp, t.retries)
	}
	return fmt.Errorf("upload failed after %d attempts: %w", t.retries, lastErr)
}

func (t *RcloneTransport) rcloneCopy(ctx context.Context, localFile, remoteFile string) error {
	args := t.buildArgs("copyto")
	if t.bwLimit != "" {
		args = append(args, "--bwlimit", t.bwLimit)
	}
	args = append(args, localFile, remoteFile)

	t.logger.Debug("Running: %s", strings.Join(args, " "))
	output, err := t.exec(ctx, args[0], args[1:]...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("rclone operation timeout")
		}
		return fmt.Errorf("rclone copy failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// verifyUpload checks the uploaded file via 'rclone lsl' and compares sizes.
func (t *RcloneTransport) verifyUpload(ctx context.Context, remoteFile string, expectedSize int64) (bool, error) {
	args := t.buildArgs("lsl", remoteFile)
	t.logger.Debug("Verification: %s", strings.Join(args, " "))

	output, err := t.exec(ctx, args[0], args[1:]...)
	if err != nil {
		return false, fmt.Errorf("rclone lsl failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	outputStr := strings.TrimSpace(string(output))
	if outputStr == "" {
		return false, fmt.Errorf("empty lsl output - file may not exist")
	}

	// lsl format: "SIZE DATE TIME FILENAME"
	fields := strings.Fields(outputStr)
	if len(fields) < 4 {
		return false, fmt.Errorf("unexpected lsl output format: %s", outputStr)
	}

	var remoteSize int64
	if _, err := fmt.Sscanf(fields[0], "%d", &remoteSize); err != nil {
		return false, fmt.Errorf("cannot parse remote file size: %w", err)
	}
	if remoteSize != expectedSize {
		return false, fmt.Errorf("size mismatch: local=%d remote=%d", expectedSize, remoteSize)
	}

	t.logger.Debug("Verification successful: %s (%s)", remoteFile, utils.FormatBytes(remoteSize))
	return true, nil
}

// List returns the file names in the backup path, one per lsf line.
// Subdirectories are excluded.
func (t *RcloneTransport) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := t.buildArgs("lsf", t.remoteLabel(), "--files-only")
	t.logger.Debug("Running: %s", strings.Join(args, " "))

	output, err := t.exec(ctx, args[0], args[1:]...)
	if err != nil {
		return nil, &StorageError{
			Operation:   "list",
			Path:        t.remoteLabel(),
			Err:         fmt.Errorf("rclone lsf failed: %w: %s", err, strings.TrimSpace(string(output))),
			Recoverable: true,
		}
	}

	lines := strings.Split(string(output), "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Delete removes remoteName from the backup path. A file that is already
// gone counts as deleted.
func (t *RcloneTransport) Delete(ctx context.Context, remoteName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	remoteFile := t.remotePathFor(remoteName)
	args := t.buildArgs("deletefile", remoteFile)
	t.logger.Debug("Running: %s", strings.Join(args, " "))

	output, err := t.exec(ctx, args[0], args[1:]...)
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if isRcloneObjectNotFound(msg) || isRcloneObjectNotFound(err.Error()) {
			t.logger.Debug("File already removed: %s (%s)", remoteName, msg)
			return nil
		}
		return &StorageError{
			Operation:   "delete",
			Path:        remoteFile,
			Err:         fmt.Errorf("rclone deletefile failed: %w: %s", err, msg),
			Recoverable: true,
		}
	}

	t.logger.Debug("Deleted remote file: %s", remoteName)
	return nil
}

func (t *RcloneTransport) exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	if t.execCommand != nil {
		return t.execCommand(ctx, name, args...)
	}
	return defaultExecCommand(ctx, name, args...)
}

func defaultExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func isRcloneObjectNotFound(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "object not found") ||
		strings.Contains(lower, "file not found") ||
		strings.Contains(lower, "directory not found") ||
		strings.Contains(lower, "doesn't exist")
}
