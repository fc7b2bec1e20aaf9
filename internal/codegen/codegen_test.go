package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		length int
		want   int
	}{
		{name: "exam code", length: 6, want: 6},
		{name: "student id", prefix: "STU-", length: 8, want: 12},
		{name: "zero length", prefix: "ADM-", length: 0, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.prefix, tt.length)
			assert.Len(t, got, tt.want)
			assert.True(t, strings.HasPrefix(got, tt.prefix))
			for _, r := range strings.TrimPrefix(got, tt.prefix) {
				assert.Contains(t, alphabet, string(r))
			}
		})
	}
}

func TestUnique(t *testing.T) {
	ctx := context.Background()

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		code, err := Unique(ctx, "", 6, func(context.Context, string) (bool, error) {
			calls++
			return calls < 3, nil
		})
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		_, err := Unique(ctx, "", 6, func(context.Context, string) (bool, error) { return true, nil })
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("store error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Unique(ctx, "", 6, func(context.Context, string) (bool, error) { return false, boom })
		assert.ErrorIs(t, err, boom)
	})
}
