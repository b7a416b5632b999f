package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("zero window is lifetime", func(t *testing.T) {
		assert.True(t, Window{}.IsLifetime())
		assert.False(t, Window{From: &from}.IsLifetime())
		assert.False(t, Window{To: &to}.IsLifetime())
	})

	t.Run("ordered bounds validate", func(t *testing.T) {
		assert.NoError(t, Window{From: &from, To: &to}.Validate())
		assert.NoError(t, Window{From: &from}.Validate())
		assert.NoError(t, Window{}.Validate())
	})

	t.Run("inverted bounds fail", func(t *testing.T) {
		err := Window{From: &to, To: &from}.Validate()
		assert.Error(t, err)
	})
}

func TestNewLotLedgerRow(t *testing.T) {
	t.Run("remaining is produced minus distributed", func(t *testing.T) {
		produced := decimal.NewFromInt(500)
		row := NewLotLedgerRow("A", &produced, decimal.NewFromInt(50))

		require.NotNil(t, row.Remaining)
		assert.True(t, row.Remaining.Equal(decimal.NewFromInt(450)))
		assert.Empty(t, row.Warnings)
	})

	t.Run("unknown production leaves remaining nil", func(t *testing.T) {
		row := NewLotLedgerRow("B", nil, decimal.NewFromInt(50))

		assert.Nil(t, row.TotalProduced)
		assert.Nil(t, row.Remaining)
		assert.Empty(t, row.Warnings)
	})

	t.Run("negative remaining is a warning, not an error", func(t *testing.T) {
		produced := decimal.NewFromInt(100)
		row := NewLotLedgerRow("A", &produced, decimal.NewFromInt(130))

		require.NotNil(t, row.Remaining)
		assert.True(t, row.Remaining.Equal(decimal.NewFromInt(-30)))
		require.Len(t, row.Warnings, 1)
		assert.Contains(t, row.Warnings[0], "exceeds produced quantity")
	})

	t.Run("zero distribution keeps full remaining", func(t *testing.T) {
		produced := decimal.NewFromInt(500)
		row := NewLotLedgerRow("A", &produced, decimal.Zero)

		require.NotNil(t, row.Remaining)
		assert.True(t, row.Remaining.Equal(produced))
	})
}
