package imagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
)

// Store manages the fixed-path reference images and the per-request live
// capture files inside a single image directory. Reference images are
// singletons: each write overwrites the previous file at the same path.
type Store struct {
	dir          string
	bankPath     string
	aadhaarPath  string
	snapshotPath string
	logger       *zap.Logger
}

// NewStore builds a store over the configured image directory.
func NewStore(cfg *config.AppConfig, logger *zap.Logger) *Store {
	return &Store{
		dir:          cfg.ImageDir,
		bankPath:     cfg.BankPath(),
		aadhaarPath:  cfg.AadhaarPath(),
		snapshotPath: cfg.SnapshotPath(),
		logger:       logger.Named("imagestore"),
	}
}

// EnsureDir creates the image directory if it does not already exist.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// BankPath returns the fixed path of the bank reference image.
func (s *Store) BankPath() string { return s.bankPath }

// AadhaarPath returns the fixed path of the Aadhaar reference image.
func (s *Store) AadhaarPath() string { return s.aadhaarPath }

// SnapshotPath returns the fixed path of the rolling last-verified snapshot.
func (s *Store) SnapshotPath() string { return s.snapshotPath }

// SnapshotExists reports whether a last-verified snapshot is on disk. The
// file's existence is the only record of whether a login has ever succeeded.
func (s *Store) SnapshotExists() bool {
	_, err := os.Stat(s.snapshotPath)
	return err == nil
}

// LiveCapturePath returns the staging path for an uploaded live capture.
// The path is derived from the request id, so concurrent requests never
// share a temp file.
func (s *Store) LiveCapturePath(requestID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("live_%s.jpg", requestID))
}

// RemoveLive deletes a staged live capture. Missing files are not an error:
// cleanup runs on every exit path and must be idempotent.
func (s *Store) RemoveLive(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove live capture", zap.String("path", path), zap.Error(err))
	}
}

// PromoteSnapshot copies the live capture at livePath into the rolling
// snapshot slot, overwriting any prior snapshot. No backup is kept.
func (s *Store) PromoteSnapshot(livePath string) error {
	src, err := os.Open(livePath)
	if err != nil {
		return fmt.Errorf("open live capture: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.snapshotPath)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return dst.Close()
}

// ResetSnapshot deletes the rolling snapshot, reverting the service to its
// first-login state. Deleting an absent snapshot succeeds.
func (s *Store) ResetSnapshot() error {
	if err := os.Remove(s.snapshotPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
