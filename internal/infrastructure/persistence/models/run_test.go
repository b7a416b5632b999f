package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunModel_TableName(t *testing.T) {
	model := RunModel{}
	assert.Equal(t, "ingest_runs", model.TableName())
}

func TestRunModel_ToDomain(t *testing.T) {
	now := time.Now()
	started := now.Add(-5 * time.Minute)

	model := &RunModel{
		AggregateModel: AggregateModel{
			BaseModel: BaseModel{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			Version: 4,
		},
		Kind:             ingest.RunKindDistributions,
		Source:           identity.SourceFeed,
		FileName:         "distributions.csv",
		FileSize:         4096,
		TotalRows:        25,
		Created:          20,
		Matched:          12,
		SkippedDuplicate: 3,
		Failed:           2,
		PagesCommitted:   3,
		Status:           ingest.RunStatusCompleted,
		ErrorDetails:     `[{"row":7,"external_key":"feed-dist-7","code":"INVALID_QUANTITY","message":"Quantity must be positive"}]`,
		StartedAt:        &started,
	}

	domain := model.ToDomain()

	assert.Equal(t, model.ID, domain.ID)
	assert.Equal(t, model.CreatedAt, domain.CreatedAt)
	assert.Equal(t, model.Version, domain.Version)
	assert.Equal(t, model.Kind, domain.Kind)
	assert.Equal(t, model.Source, domain.Source)
	assert.Equal(t, model.FileName, domain.FileName)
	assert.Equal(t, model.FileSize, domain.FileSize)
	assert.Equal(t, model.TotalRows, domain.TotalRows)
	assert.Equal(t, model.Created, domain.Created)
	assert.Equal(t, model.Matched, domain.Matched)
	assert.Equal(t, model.SkippedDuplicate, domain.SkippedDuplicate)
	assert.Equal(t, model.Failed, domain.Failed)
	assert.Equal(t, model.PagesCommitted, domain.PagesCommitted)
	assert.Equal(t, model.Status, domain.Status)
	assert.Equal(t, &started, domain.StartedAt)

	require.Len(t, domain.ErrorDetails, 1)
	assert.Equal(t, 7, domain.ErrorDetails[0].Row)
	assert.Equal(t, "feed-dist-7", domain.ErrorDetails[0].ExternalKey)
	assert.Equal(t, "INVALID_QUANTITY", domain.ErrorDetails[0].Code)
}

func TestRunModel_FromDomain(t *testing.T) {
	run, err := ingest.NewRun(ingest.RunKindOrders, identity.SourceDocument, "orders.csv", 2048)
	require.NoError(t, err)
	require.NoError(t, run.StartProcessing(5))
	require.NoError(t, run.RecordPage(
		ingest.Report{Created: 3, SkippedDuplicate: 1, Failed: 1},
		[]ingest.RunErrorDetail{{Row: 4, Code: "INVALID_SKU", Message: "SKU cannot be empty"}},
	))

	model := &RunModel{}
	model.FromDomain(run)

	assert.Equal(t, run.ID, model.ID)
	assert.Equal(t, run.Version, model.Version)
	assert.Equal(t, ingest.RunKindOrders, model.Kind)
	assert.Equal(t, identity.SourceDocument, model.Source)
	assert.Equal(t, "orders.csv", model.FileName)
	assert.Equal(t, int64(2048), model.FileSize)
	assert.Equal(t, 5, model.TotalRows)
	assert.Equal(t, 3, model.Created)
	assert.Equal(t, 1, model.SkippedDuplicate)
	assert.Equal(t, 1, model.Failed)
	assert.Equal(t, 1, model.PagesCommitted)
	assert.Equal(t, ingest.RunStatusProcessing, model.Status)
	assert.Equal(t, run.StartedAt, model.StartedAt)
	assert.Contains(t, model.ErrorDetails, "INVALID_SKU")
}

func TestRunModel_FromDomainEmptyErrors(t *testing.T) {
	run, err := ingest.NewRun(ingest.RunKindLotReferences, identity.SourceManual, "", 0)
	require.NoError(t, err)

	model := RunModelFromDomain(run)

	assert.NotNil(t, model)
	assert.Equal(t, run.ID, model.ID)
	assert.Equal(t, ingest.RunStatusPending, model.Status)
	assert.Equal(t, "[]", model.ErrorDetails)
}

func TestRunModel_ErrorDetailsRoundTrip(t *testing.T) {
	run, err := ingest.NewRun(ingest.RunKindDistributions, identity.SourceFeed, "", 0)
	require.NoError(t, err)
	require.NoError(t, run.StartProcessing(2))
	require.NoError(t, run.RecordPage(
		ingest.Report{Created: 1, Failed: 1},
		[]ingest.RunErrorDetail{{Row: 2, ExternalKey: "feed-dist-2", Code: "INVALID_QUANTITY", Message: "Quantity must be positive"}},
	))
	require.NoError(t, run.Complete())

	model := RunModelFromDomain(run)
	domainRun := model.ToDomain()

	assert.Equal(t, ingest.RunStatusCompleted, domainRun.Status)
	require.Len(t, domainRun.ErrorDetails, 1)
	assert.Equal(t, 2, domainRun.ErrorDetails[0].Row)
	assert.Equal(t, "feed-dist-2", domainRun.ErrorDetails[0].ExternalKey)
	assert.Equal(t, "INVALID_QUANTITY", domainRun.ErrorDetails[0].Code)
	assert.Equal(t, "Quantity must be positive", domainRun.ErrorDetails[0].Message)
}
