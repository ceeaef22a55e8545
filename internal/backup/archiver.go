// Package backup creates the compressed (and optionally encrypted) archives
// that get shipped to the remote.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/mlvd/dirsave/internal/logging"
)

// Archiver handles tar.gz archive creation.
type Archiver struct {
	logger           *logging.Logger
	compressionLevel int
	dryRun           bool
	encryptArchive   bool
	ageRecipients    []age.Recipient
}

// ArchiverConfig holds configuration for archive creation.
type ArchiverConfig struct {
	CompressionLevel int // 1-9
	DryRun           bool
	EncryptArchive   bool
	AgeRecipients    []age.Recipient
}

// Validate checks if the archiver configuration is valid.
func (a *ArchiverConfig) Validate() error {
	if a.CompressionLevel < 1 || a.CompressionLevel > 9 {
		return fmt.Errorf("gzip compression level must be 1-9, got %d", a.CompressionLevel)
	}
	if a.EncryptArchive && len(a.AgeRecipients) == 0 {
		return fmt.Errorf("encryption enabled but no age recipients configured")
	}
	return nil
}

// NewArchiver creates a new archiver.
func NewArchiver(logger *logging.Logger, config *ArchiverConfig) *Archiver {
	return &Archiver{
		logger:           logger,
		compressionLevel: config.CompressionLevel,
		dryRun:           config.DryRun,
		encryptArchive:   config.EncryptArchive,
		ageRecipients:    append([]age.Recipient(nil), config.AgeRecipients...),
	}
}

// Encrypts returns whether created archives are age-encrypted.
func (a *Archiver) Encrypts() bool {
	return a.encryptArchive
}

func (a *Archiver) wrapEncryptionWriter(base io.Writer) (io.Writer, func() error, error) {
	if !a.encryptArchive {
		return base, func() error { return nil }, nil
	}

	if len(a.ageRecipients) == 0 {
		return nil, nil, fmt.Errorf("encryption enabled but no age recipients configured")
	}

	writer, err := age.Encrypt(base, a.ageRecipients...)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize age encryption: %w", err)
	}

	a.logger.Debug("Encrypting archive via age (streaming)")
	return writer, writer.Close, nil
}

// CreateArchive creates a gzip-compressed tar archive of sourceDir at
// outputPath. The archive contents are rooted at the directory's base name
// and carry normalized ownership (uid/gid zeroed) for portability.
func (a *Archiver) CreateArchive(ctx context.Context, sourceDir, outputPath string) (err error) {
	a.logger.Debug("Creating archive: %s -> %s (gzip level %d)",
		sourceDir, outputPath, a.compressionLevel)

	if a.dryRun {
		a.logger.Info("[DRY RUN] Would create archive: %s", outputPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	writer, finalizeEncryption, err := a.wrapEncryptionWriter(outFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := finalizeEncryption(); cerr != nil && err == nil {
			err = fmt.Errorf("finalize encrypted archive: %w", cerr)
		}
	}()

	gzWriter, err := gzip.NewWriterLevel(writer, a.compressionLevel)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	defer func() {
		if cerr := gzWriter.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("finalize gzip stream: %w", cerr)
		}
	}()

	tarWriter := tar.NewWriter(gzWriter)
	err = a.addToTar(ctx, tarWriter, sourceDir, filepath.Base(sourceDir))
	if closeErr := tarWriter.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write tar stream: %w", err)
	}

	return nil
}

func (a *Archiver) addToTar(ctx context.Context, tarWriter *tar.Writer, sourceDir, baseInArchive string) error {
	return filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			a.logger.Warning("Error accessing path %s: %v", path, err)
			return nil // Continue with other files
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		// Lstat so symlinks are archived as links, not followed.
		linkInfo, err := os.Lstat(path)
		if err != nil {
			a.logger.Warning("Failed to stat path %s: %v", path, err)
			return nil
		}

		var linkTarget string
		if linkInfo.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				a.logger.Warning("Failed to read symlink %s: %v", path, err)
				return nil
			}
		}

		header, err := tar.FileInfoHeader(linkInfo, linkTarget)
		if err != nil {
			a.logger.Warning("Failed to create header for %s: %v", path, err)
			return nil
		}

		// Normalize ownership so archives restore cleanly on any host.
		header.Uid = 0
		header.Gid = 0
		header.Uname = ""
		header.Gname = ""

		archivePath := filepath.Join(baseInArchive, relPath)
		name := strings.ReplaceAll(archivePath, string(filepath.Separator), "/")
		if linkInfo.IsDir() {
			name += "/"
		}
		header.Name = name

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}

		if linkInfo.Mode().IsRegular() {
			file, err := os.Open(path)
			if err != nil {
				a.logger.Warning("Failed to open file %s: %v", path, err)
				return nil
			}
			defer file.Close()

			if _, err := io.Copy(tarWriter, file); err != nil {
				return fmt.Errorf("failed to write file %s to archive: %w", path, err)
			}
		}

		return nil
	})
}
