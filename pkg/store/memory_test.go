package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSetRoundTrip", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Set(ctx, "meter", "Watts", "1500"))

		v, err := m.Get(ctx, "meter", "Watts")
		require.NoError(t, err)
		assert.Equal(t, "1500", v)

		n, err := m.GetNumber(ctx, "meter", "Watts")
		require.NoError(t, err)
		assert.Equal(t, 1500.0, n)
	})

	t.Run("MissingKeyIsEmpty", func(t *testing.T) {
		m := NewMemory()
		v, err := m.Get(ctx, "meter", "Watts")
		require.NoError(t, err)
		assert.Equal(t, "", v)

		n, err := m.GetNumber(ctx, "meter", "Watts")
		require.NoError(t, err)
		assert.Equal(t, 0.0, n)
	})

	t.Run("SetOnlyWritesChanges", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Set(ctx, "meter", "Watts", "1500"))
		require.NoError(t, m.Set(ctx, "meter", "Watts", "1500"))
		require.NoError(t, m.Set(ctx, "meter", "Watts", "1500"))
		assert.Equal(t, 1, m.Writes("meter", "Watts"))

		require.NoError(t, m.Set(ctx, "meter", "Watts", "1501"))
		assert.Equal(t, 2, m.Writes("meter", "Watts"))
	})

	t.Run("DevicesAreIsolated", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Set(ctx, "meter", "Watts", "1500"))
		v, err := m.Get(ctx, "meter-house", "Watts")
		require.NoError(t, err)
		assert.Equal(t, "", v)
	})

	t.Run("Default", func(t *testing.T) {
		m := NewMemory()
		v, err := m.Default(ctx, "meter", "DayInterval", "300")
		require.NoError(t, err)
		assert.Equal(t, "300", v)
		assert.True(t, m.Has("meter", "DayInterval"))

		// existing value wins over the fallback
		require.NoError(t, m.Set(ctx, "meter", "DayInterval", "120"))
		v, err = m.Default(ctx, "meter", "DayInterval", "300")
		require.NoError(t, err)
		assert.Equal(t, "120", v)
	})
}
