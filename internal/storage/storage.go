// Package storage moves archives to and from the configured rclone remote.
package storage

import (
	"context"
	"fmt"
)

// Transport is the interface the orchestrator uses to talk to the remote.
// The production implementation shells out to rclone; tests substitute an
// in-memory fake.
type Transport interface {
	// Name returns a human-readable backend name for logs.
	Name() string

	// CheckRemote verifies the remote is reachable and the backup path
	// exists, creating it if needed.
	CheckRemote(ctx context.Context) error

	// Upload copies localFile to remoteName inside the backup path and
	// verifies the uploaded size matches.
	Upload(ctx context.Context, localFile, remoteName string) error

	// List returns the file names currently present in the backup path.
	List(ctx context.Context) ([]string, error)

	// Delete removes remoteName from the backup path. Deleting a file that
	// is already gone is not an error.
	Delete(ctx context.Context, remoteName string) error
}

// StorageError wraps a failed storage operation with enough context to decide
// whether the run can continue.
type StorageError struct {
	Operation   string // e.g. "upload", "list", "delete", "check_remote"
	Path        string // local path or remote reference
	Err         error
	Recoverable bool // true if the backup run can proceed despite this error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
