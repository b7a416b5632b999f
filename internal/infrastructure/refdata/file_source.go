package refdata

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	lotapp "github.com/reconcile/backend/internal/application/lot"
)

// Ensure FileSource implements SnapshotSource
var _ lotapp.SnapshotSource = (*FileSource)(nil)

// FileSource reads the reference snapshot from a local CSV file. The file is
// re-read on every fetch, so editing it and calling the sync endpoint picks
// up changes without a restart.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource creates a file-backed snapshot source
func NewFileSource(path string, opts ...SourceOption) *FileSource {
	o := applySourceOptions(opts)
	return &FileSource{
		path:   path,
		logger: o.logger,
	}
}

// Fetch reads and parses the snapshot file
func (s *FileSource) Fetch(ctx context.Context) (*lotapp.SnapshotData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference snapshot %s: %w", s.path, err)
	}

	parsed, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("reference snapshot %s: %w", s.path, err)
	}

	s.logger.Debug("reference snapshot file read",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)),
		zap.Int("references", len(parsed.References)),
		zap.Int("corrections", len(parsed.Corrections)))
	return parsed, nil
}

// Describe names the source for logs and run records
func (s *FileSource) Describe() string {
	return "file:" + s.path
}
