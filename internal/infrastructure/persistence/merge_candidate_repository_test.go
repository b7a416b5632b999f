package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupMergeCandidateTestDB opens an in-memory database with the merge queue
// schema. TranslateError mirrors the production configuration so unique
// violations surface as gorm.ErrDuplicatedKey.
func setupMergeCandidateTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&identity.MergeCandidate{})
	require.NoError(t, err)

	return db
}

func newPendingCandidate(t *testing.T, idA, idB uuid.UUID) *identity.MergeCandidate {
	mc, err := identity.NewMergeCandidate(idA, idB, identity.ConfidenceWeak, "key prefix overlap")
	require.NoError(t, err)
	return mc
}

func TestGormMergeCandidateRepository_Insert(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	t.Run("inserts a pending candidate", func(t *testing.T) {
		mc := newPendingCandidate(t, uuid.New(), uuid.New())

		err := repo.Insert(ctx, mc)
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, mc.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.MergeStatusPending, found.Status)
		assert.Equal(t, identity.ConfidenceWeak, found.Confidence)
		assert.Equal(t, "key prefix overlap", found.Reason)
	})

	t.Run("pair collision returns ErrAlreadyExists", func(t *testing.T) {
		idA, idB := uuid.New(), uuid.New()
		require.NoError(t, repo.Insert(ctx, newPendingCandidate(t, idA, idB)))

		err := repo.Insert(ctx, newPendingCandidate(t, idA, idB))
		assert.Equal(t, shared.ErrAlreadyExists, err)
	})

	t.Run("reversed pair collides on the same row", func(t *testing.T) {
		idA, idB := uuid.New(), uuid.New()
		require.NoError(t, repo.Insert(ctx, newPendingCandidate(t, idA, idB)))

		err := repo.Insert(ctx, newPendingCandidate(t, idB, idA))
		assert.Equal(t, shared.ErrAlreadyExists, err)
	})
}

func TestGormMergeCandidateRepository_FindByID(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	t.Run("returns not found for non-existent ID", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.Equal(t, shared.ErrNotFound, err)
	})
}

func TestGormMergeCandidateRepository_FindByPair(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	idA, idB := uuid.New(), uuid.New()
	mc := newPendingCandidate(t, idA, idB)
	require.NoError(t, repo.Insert(ctx, mc))

	t.Run("finds the pair in insertion order", func(t *testing.T) {
		found, err := repo.FindByPair(ctx, idA, idB)
		require.NoError(t, err)
		assert.Equal(t, mc.ID, found.ID)
	})

	t.Run("finds the pair in reversed order", func(t *testing.T) {
		found, err := repo.FindByPair(ctx, idB, idA)
		require.NoError(t, err)
		assert.Equal(t, mc.ID, found.ID)
	})

	t.Run("returns not found for an unknown pair", func(t *testing.T) {
		_, err := repo.FindByPair(ctx, uuid.New(), uuid.New())
		assert.Equal(t, shared.ErrNotFound, err)
	})
}

func TestGormMergeCandidateRepository_FindPendingByIdentity(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	target := uuid.New()

	first := newPendingCandidate(t, target, uuid.New())
	require.NoError(t, repo.Insert(ctx, first))

	second := newPendingCandidate(t, uuid.New(), target)
	require.NoError(t, repo.Insert(ctx, second))

	// A reviewed candidate referencing the target must not appear.
	reviewed := newPendingCandidate(t, target, uuid.New())
	require.NoError(t, repo.Insert(ctx, reviewed))
	require.NoError(t, reviewed.Approve(target))
	require.NoError(t, repo.Save(ctx, reviewed))

	// A pending candidate for an unrelated pair must not appear either.
	unrelated := newPendingCandidate(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Insert(ctx, unrelated))

	t.Run("returns pending candidates oldest first", func(t *testing.T) {
		candidates, err := repo.FindPendingByIdentity(ctx, target)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, first.ID, candidates[0].ID)
		assert.Equal(t, second.ID, candidates[1].ID)
	})

	t.Run("returns empty slice for an uninvolved identity", func(t *testing.T) {
		candidates, err := repo.FindPendingByIdentity(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestGormMergeCandidateRepository_FindByStatus(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	pending1 := newPendingCandidate(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Insert(ctx, pending1))
	pending2 := newPendingCandidate(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Insert(ctx, pending2))

	rejected := newPendingCandidate(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Insert(ctx, rejected))
	require.NoError(t, rejected.Reject())
	require.NoError(t, repo.Save(ctx, rejected))

	t.Run("filters by review state", func(t *testing.T) {
		candidates, err := repo.FindByStatus(ctx, identity.MergeStatusPending, shared.Filter{})
		require.NoError(t, err)
		assert.Len(t, candidates, 2)

		candidates, err = repo.FindByStatus(ctx, identity.MergeStatusRejected, shared.Filter{})
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, rejected.ID, candidates[0].ID)
	})

	t.Run("review queue pages oldest first", func(t *testing.T) {
		candidates, err := repo.FindByStatus(ctx, identity.MergeStatusPending, shared.Filter{Page: 1, PageSize: 1})
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, pending1.ID, candidates[0].ID)
	})
}

func TestGormMergeCandidateRepository_Save(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	t.Run("persists an approval", func(t *testing.T) {
		idA, idB := uuid.New(), uuid.New()
		mc := newPendingCandidate(t, idA, idB)
		require.NoError(t, repo.Insert(ctx, mc))

		require.NoError(t, mc.Approve(idB))
		require.NoError(t, repo.Save(ctx, mc))

		found, err := repo.FindByID(ctx, mc.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.MergeStatusMerged, found.Status)
		require.NotNil(t, found.MasterID)
		assert.Equal(t, idB, *found.MasterID)
		assert.NotNil(t, found.ReviewedAt)
		assert.Equal(t, 2, found.Version)
	})
}

func TestGormMergeCandidateRepository_Counts(t *testing.T) {
	db := setupMergeCandidateTestDB(t)
	repo := NewGormMergeCandidateRepository(db)
	ctx := context.Background()

	target := uuid.New()
	require.NoError(t, repo.Insert(ctx, newPendingCandidate(t, target, uuid.New())))
	require.NoError(t, repo.Insert(ctx, newPendingCandidate(t, target, uuid.New())))

	superseded := newPendingCandidate(t, uuid.New(), uuid.New())
	require.NoError(t, repo.Insert(ctx, superseded))
	require.NoError(t, superseded.Supersede())
	require.NoError(t, repo.Save(ctx, superseded))

	t.Run("counts by review state", func(t *testing.T) {
		count, err := repo.CountByStatus(ctx, identity.MergeStatusPending)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = repo.CountByStatus(ctx, identity.MergeStatusSuperseded)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("counts by involved identity", func(t *testing.T) {
		filter := shared.Filter{Filters: map[string]interface{}{"identity_id": target}}
		count, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}
