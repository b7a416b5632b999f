package persistence

import (
	"context"
	"testing"

	"github.com/reconcile/backend/internal/domain/lot"
	"github.com/reconcile/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLotReferenceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&lot.LotReference{})
	require.NoError(t, err)

	return db
}

func newTestLotReference(t *testing.T, label string, year int, produced int64, sku string) lot.LotReference {
	ref, err := lot.NewLotReference(label, year, decimal.NewFromInt(produced), sku)
	require.NoError(t, err)
	return *ref
}

func TestGormLotReferenceRepository_UpsertAll(t *testing.T) {
	db := setupLotReferenceTestDB(t)
	repo := NewGormLotReferenceRepository(db)
	ctx := context.Background()

	t.Run("inserts new rows", func(t *testing.T) {
		refs := []lot.LotReference{
			newTestLotReference(t, "LOT-A1", 2025, 100, "VAX-A"),
			newTestLotReference(t, "LOT-B1", 2023, 50, "VAX-B"),
		}

		err := repo.UpsertAll(ctx, refs)
		require.NoError(t, err)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("re-sync updates existing rows in place", func(t *testing.T) {
		refs := []lot.LotReference{
			newTestLotReference(t, "LOT-A1", 2025, 120, "VAX-A"),
			newTestLotReference(t, "LOT-C1", 2026, 80, "VAX-A"),
		}

		err := repo.UpsertAll(ctx, refs)
		require.NoError(t, err)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		found, err := repo.FindByCanonical(ctx, "LOT-A1")
		require.NoError(t, err)
		assert.True(t, found.ProducedQuantity.Equal(decimal.NewFromInt(120)))
	})

	t.Run("empty snapshot is a no-op", func(t *testing.T) {
		err := repo.UpsertAll(ctx, []lot.LotReference{})
		assert.NoError(t, err)
	})
}

func TestGormLotReferenceRepository_FindByCanonical(t *testing.T) {
	db := setupLotReferenceTestDB(t)
	repo := NewGormLotReferenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAll(ctx, []lot.LotReference{
		newTestLotReference(t, "LOT-A1", 2025, 100, "VAX-A"),
	}))

	t.Run("returns the row for a known label", func(t *testing.T) {
		found, err := repo.FindByCanonical(ctx, "LOT-A1")
		require.NoError(t, err)
		assert.Equal(t, 2025, found.ManufacturingYear)
		assert.Equal(t, "VAX-A", found.SKU)
	})

	t.Run("returns ErrNotFound for an unknown label", func(t *testing.T) {
		_, err := repo.FindByCanonical(ctx, "LOT-Z9")
		assert.Equal(t, shared.ErrNotFound, err)
	})
}

func TestGormLotReferenceRepository_FindByCanonicals(t *testing.T) {
	db := setupLotReferenceTestDB(t)
	repo := NewGormLotReferenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAll(ctx, []lot.LotReference{
		newTestLotReference(t, "LOT-A1", 2025, 100, "VAX-A"),
		newTestLotReference(t, "LOT-B1", 2023, 50, "VAX-B"),
		newTestLotReference(t, "LOT-C1", 2026, 80, "VAX-A"),
	}))

	t.Run("returns only the requested labels", func(t *testing.T) {
		refs, err := repo.FindByCanonicals(ctx, []string{"LOT-C1", "LOT-A1", "LOT-MISSING"})
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "LOT-A1", refs[0].LotCanonical)
		assert.Equal(t, "LOT-C1", refs[1].LotCanonical)
	})

	t.Run("returns empty slice for no labels", func(t *testing.T) {
		refs, err := repo.FindByCanonicals(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestGormLotReferenceRepository_FindByMinYear(t *testing.T) {
	db := setupLotReferenceTestDB(t)
	repo := NewGormLotReferenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAll(ctx, []lot.LotReference{
		newTestLotReference(t, "LOT-A1", 2025, 100, "VAX-A"),
		newTestLotReference(t, "LOT-B1", 2023, 50, "VAX-B"),
		newTestLotReference(t, "LOT-C1", 2026, 80, "VAX-A"),
	}))

	t.Run("excludes lots older than the cutoff", func(t *testing.T) {
		refs, err := repo.FindByMinYear(ctx, 2025)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "LOT-A1", refs[0].LotCanonical)
		assert.Equal(t, "LOT-C1", refs[1].LotCanonical)
	})

	t.Run("zero cutoff keeps everything", func(t *testing.T) {
		refs, err := repo.FindByMinYear(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, refs, 3)
	})
}

func TestGormLotReferenceRepository_FindAll(t *testing.T) {
	db := setupLotReferenceTestDB(t)
	repo := NewGormLotReferenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAll(ctx, []lot.LotReference{
		newTestLotReference(t, "LOT-B1", 2023, 50, "VAX-B"),
		newTestLotReference(t, "LOT-A1", 2025, 100, "VAX-A"),
	}))

	refs, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "LOT-A1", refs[0].LotCanonical)
	assert.Equal(t, "LOT-B1", refs[1].LotCanonical)
}
