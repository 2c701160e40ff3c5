package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
)

// FileStore keeps the snapshot at a single well-known path on the local
// filesystem. Writes go to a temp file in the same directory and rename into
// place, so a crash mid-write never corrupts the prior snapshot.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at path, creating the parent
// directory if needed.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the snapshot location.
func (s *FileStore) Path() string { return s.path }

// Write atomically replaces the snapshot file.
func (s *FileStore) Write(_ context.Context, snap ecfr.Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error wins
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error wins
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.logger.Info("snapshot written",
		zap.String("path", s.path),
		zap.Int("agencies", len(snap.Agencies)),
		zap.String("as_of", snap.AsOfDate),
	)
	return nil
}

// Load reads and parses the current snapshot, or ErrNoSnapshot when the file
// does not exist.
func (s *FileStore) Load(_ context.Context) (ecfr.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ecfr.Snapshot{}, ErrNoSnapshot
		}
		return ecfr.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return Unmarshal(data)
}
