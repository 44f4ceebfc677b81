package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/newsroom/internal/domain"
)

type sample struct {
	Name  string   `validate:"required"`
	Items []string `validate:"min=1,max=2"`
}

func TestStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Struct(sample{Name: "a", Items: []string{"x"}}))
	})

	t.Run("collects_every_field", func(t *testing.T) {
		err := Struct(sample{})
		var ae *domain.AppError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, domain.CodeValidation, ae.Code)
		assert.Equal(t, "required", ae.Meta["sample.Name"])
		assert.Equal(t, "min", ae.Meta["sample.Items"])
		assert.Contains(t, ae.Message, "sample.Name is required")
	})

	t.Run("max", func(t *testing.T) {
		err := Struct(sample{Name: "a", Items: []string{"x", "y", "z"}})
		var ae *domain.AppError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "sample.Items must be at most 2", ae.Message)
	})
}
