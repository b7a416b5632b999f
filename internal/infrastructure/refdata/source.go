package refdata

import (
	"fmt"

	"go.uber.org/zap"

	lotapp "github.com/reconcile/backend/internal/application/lot"
	"github.com/reconcile/backend/internal/infrastructure/config"
)

type sourceOptions struct {
	logger *zap.Logger
}

// SourceOption is a functional option shared by the snapshot sources
type SourceOption func(*sourceOptions)

// WithLogger sets the logger for a snapshot source
func WithLogger(logger *zap.Logger) SourceOption {
	return func(o *sourceOptions) {
		o.logger = logger
	}
}

func applySourceOptions(opts []SourceOption) sourceOptions {
	o := sourceOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSource builds the snapshot source selected by configuration. An empty
// source setting returns nil: snapshot syncing is disabled and the service
// runs against whatever the reference table already holds.
func NewSource(cfg *config.RefdataConfig, opts ...SourceOption) (lotapp.SnapshotSource, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Source {
	case "":
		return nil, nil
	case "file":
		return NewFileSource(cfg.Path, opts...), nil
	case "s3":
		return NewS3Source(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown refdata source %q", cfg.Source)
	}
}
