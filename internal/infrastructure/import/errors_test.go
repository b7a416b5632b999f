package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowError_Error(t *testing.T) {
	withColumn := NewRowError(7, "quantity", ErrCodeInvalidType, "expected a decimal number")
	assert.Equal(t, `row 7, column "quantity": expected a decimal number`, withColumn.Error())

	withoutColumn := NewRowError(3, "", ErrCodeMalformedRow, "wrong number of fields")
	assert.Equal(t, "row 3: wrong number of fields", withoutColumn.Error())
}

func TestErrorCollection_Cap(t *testing.T) {
	c := NewErrorCollection(3)

	for i := 1; i <= 5; i++ {
		c.Add(NewRowError(i, "sku", ErrCodeRequiredField, "sku is required"))
	}

	assert.Equal(t, 3, c.Count())
	assert.Equal(t, 5, c.TotalCount())
	assert.True(t, c.IsTruncated())
	assert.True(t, c.HasErrors())
	assert.Equal(t, 1, c.Errors()[0].Row)
	assert.Equal(t, 3, c.Errors()[2].Row)
}

func TestErrorCollection_UnderCap(t *testing.T) {
	c := NewErrorCollection(10)
	c.AddAll([]RowError{
		NewRowError(2, "sku", ErrCodeRequiredField, "sku is required"),
		NewRowError(4, "quantity", ErrCodeInvalidType, "expected a decimal number"),
	})

	assert.Equal(t, 2, c.Count())
	assert.Equal(t, 2, c.TotalCount())
	assert.False(t, c.IsTruncated())
}

func TestErrorCollection_DefaultCap(t *testing.T) {
	c := NewErrorCollection(0)

	for i := 0; i < 150; i++ {
		c.Add(NewRowError(i, "", ErrCodeValidation, "bad row"))
	}

	assert.Equal(t, 100, c.Count())
	assert.Equal(t, 150, c.TotalCount())
	assert.True(t, c.IsTruncated())
}
