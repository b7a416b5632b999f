package identity

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMergeCandidate(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()

	t.Run("creates pending candidate with normalized pair order", func(t *testing.T) {
		mc, err := NewMergeCandidate(idB, idA, ConfidenceWeak, "shared key prefix")

		require.NoError(t, err)
		assert.Equal(t, MergeStatusPending, mc.Status)
		assert.Equal(t, ConfidenceWeak, mc.Confidence)
		assert.True(t, strings.Compare(mc.IdentityA.String(), mc.IdentityB.String()) < 0)
		assert.Len(t, mc.GetDomainEvents(), 1)
	})

	t.Run("both argument orders store the same pair", func(t *testing.T) {
		mc1, err := NewMergeCandidate(idA, idB, ConfidenceWeak, "")
		require.NoError(t, err)
		mc2, err := NewMergeCandidate(idB, idA, ConfidenceWeak, "")
		require.NoError(t, err)

		assert.Equal(t, mc1.IdentityA, mc2.IdentityA)
		assert.Equal(t, mc1.IdentityB, mc2.IdentityB)
	})

	t.Run("fails on self pair", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idA, ConfidenceWeak, "")

		assert.Error(t, err)
		assert.Nil(t, mc)
	})

	t.Run("fails on nil identity", func(t *testing.T) {
		mc, err := NewMergeCandidate(uuid.Nil, idB, ConfidenceWeak, "")

		assert.Error(t, err)
		assert.Nil(t, mc)
	})

	t.Run("fails on unknown confidence", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idB, MergeConfidence("certain"), "")

		assert.Error(t, err)
		assert.Nil(t, mc)
	})
}

func TestMergeCandidateApprove(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()

	t.Run("approve marks merged and records master", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idB, ConfidenceWeak, "")
		require.NoError(t, err)
		mc.ClearDomainEvents()

		err = mc.Approve(idA)

		require.NoError(t, err)
		assert.Equal(t, MergeStatusMerged, mc.Status)
		require.NotNil(t, mc.MasterID)
		assert.Equal(t, idA, *mc.MasterID)
		assert.NotNil(t, mc.ReviewedAt)
		assert.Len(t, mc.GetDomainEvents(), 1)
	})

	t.Run("master outside the pair is rejected", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idB, ConfidenceWeak, "")
		require.NoError(t, err)

		err = mc.Approve(uuid.New())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "paired")
		assert.Equal(t, MergeStatusPending, mc.Status)
	})

	t.Run("approve is not allowed twice", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idB, ConfidenceWeak, "")
		require.NoError(t, err)
		require.NoError(t, mc.Approve(idA))

		assert.Error(t, mc.Approve(idB))
	})
}

func TestMergeCandidateReject(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()

	t.Run("reject marks rejected without master", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idB, ConfidenceManual, "operator flagged")
		require.NoError(t, err)

		err = mc.Reject()

		require.NoError(t, err)
		assert.Equal(t, MergeStatusRejected, mc.Status)
		assert.Nil(t, mc.MasterID)
	})

	t.Run("terminal candidate cannot be rejected again", func(t *testing.T) {
		mc, err := NewMergeCandidate(idA, idB, ConfidenceWeak, "")
		require.NoError(t, err)
		require.NoError(t, mc.Reject())

		assert.Error(t, mc.Reject())
	})
}

func TestMergeCandidateSupersede(t *testing.T) {
	mc, err := NewMergeCandidate(uuid.New(), uuid.New(), ConfidenceWeak, "")
	require.NoError(t, err)

	require.NoError(t, mc.Supersede())
	assert.Equal(t, MergeStatusSuperseded, mc.Status)
	assert.True(t, mc.Status.IsTerminal())
	assert.Error(t, mc.Supersede())
}

func TestMergeCandidateOther(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()
	mc, err := NewMergeCandidate(idA, idB, ConfidenceWeak, "")
	require.NoError(t, err)

	other, err := mc.Other(idA)
	require.NoError(t, err)
	assert.Equal(t, idB, other)

	other, err = mc.Other(idB)
	require.NoError(t, err)
	assert.Equal(t, idA, other)

	_, err = mc.Other(uuid.New())
	assert.Error(t, err)
}
