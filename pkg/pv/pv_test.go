package pv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

func TestMap(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownVendor", func(t *testing.T) {
		m := Configured(store.NewMemory())
		_, err := m.System(ctx, "meter", "acme-solar")
		require.Error(t, err)
		verr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindConfig, verr.Kind)
	})

	t.Run("FailedInitIsNotCached", func(t *testing.T) {
		st := store.NewMemory()
		m := Configured(st)

		_, err := m.System(ctx, "meter", types.VendorEnphaseLocal)
		require.Error(t, err)

		// once the address is configured the next resolution succeeds
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.50"))
		sys, err := m.System(ctx, "meter", types.VendorEnphaseLocal)
		require.NoError(t, err)
		require.NotNil(t, sys)

		// and is cached afterwards
		again, err := m.System(ctx, "meter", types.VendorEnphaseLocal)
		require.NoError(t, err)
		assert.Same(t, sys, again)
	})

	t.Run("DevicesResolveIndependently", func(t *testing.T) {
		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "a", types.KeyIP, "192.168.1.50"))
		require.NoError(t, st.Set(ctx, "b", types.KeyIP, "192.168.1.51"))
		m := Configured(st)

		sysA, err := m.System(ctx, "a", types.VendorEnphaseLocal)
		require.NoError(t, err)
		sysB, err := m.System(ctx, "b", types.VendorEnphaseLocal)
		require.NoError(t, err)
		assert.NotSame(t, sysA, sysB)
	})
}
