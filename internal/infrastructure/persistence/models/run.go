package models

import (
	"time"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/shared"
)

// RunModel is the persistence model for the ingest Run aggregate. Error
// details are stored as a JSON document rather than a child table; a run is
// always loaded whole.
type RunModel struct {
	AggregateModel
	Kind             ingest.RunKind   `gorm:"type:varchar(20);not null;index"`
	Source           identity.Source  `gorm:"type:varchar(20);not null;index"`
	FileName         string           `gorm:"type:varchar(255)"`
	FileSize         int64            `gorm:"not null;default:0"`
	TotalRows        int              `gorm:"not null;default:0"`
	Created          int              `gorm:"not null;default:0"`
	Matched          int              `gorm:"not null;default:0"`
	SkippedDuplicate int              `gorm:"not null;default:0"`
	Failed           int              `gorm:"not null;default:0"`
	PagesCommitted   int              `gorm:"not null;default:0"`
	Status           ingest.RunStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	ErrorDetails     string           `gorm:"type:jsonb;default:'[]'"`
	StartedAt        *time.Time       `gorm:"type:timestamptz"`
	CompletedAt      *time.Time       `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (RunModel) TableName() string {
	return "ingest_runs"
}

// ToDomain converts the persistence model to a domain Run aggregate.
func (m *RunModel) ToDomain() *ingest.Run {
	run := &ingest.Run{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		Kind:             m.Kind,
		Source:           m.Source,
		FileName:         m.FileName,
		FileSize:         m.FileSize,
		TotalRows:        m.TotalRows,
		Created:          m.Created,
		Matched:          m.Matched,
		SkippedDuplicate: m.SkippedDuplicate,
		Failed:           m.Failed,
		PagesCommitted:   m.PagesCommitted,
		Status:           m.Status,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
	}

	if m.ErrorDetails != "" {
		_ = run.SetErrorDetailsFromJSON(m.ErrorDetails)
	}

	return run
}

// FromDomain populates the persistence model from a domain Run aggregate.
func (m *RunModel) FromDomain(run *ingest.Run) {
	m.FromDomainAggregateRoot(run.BaseAggregateRoot)
	m.Kind = run.Kind
	m.Source = run.Source
	m.FileName = run.FileName
	m.FileSize = run.FileSize
	m.TotalRows = run.TotalRows
	m.Created = run.Created
	m.Matched = run.Matched
	m.SkippedDuplicate = run.SkippedDuplicate
	m.Failed = run.Failed
	m.PagesCommitted = run.PagesCommitted
	m.Status = run.Status
	m.StartedAt = run.StartedAt
	m.CompletedAt = run.CompletedAt

	if errorJSON, err := run.ErrorDetailsJSON(); err == nil {
		m.ErrorDetails = errorJSON
	} else {
		m.ErrorDetails = "[]"
	}
}

// RunModelFromDomain creates a new persistence model from a domain Run aggregate.
func RunModelFromDomain(run *ingest.Run) *RunModel {
	m := &RunModel{}
	m.FromDomain(run)
	return m
}
