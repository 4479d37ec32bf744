package pv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

func TestGinlong(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.August, 19, 12, 0, 0, 0, time.UTC)

	t.Run("Refresh_StringValues", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/loginvalidV2", r.URL.Path)
			assert.Equal(t, "alice", r.URL.Query().Get("username"))
			assert.Equal(t, "secret", r.URL.Query().Get("password"))
			// older portal firmware serves the numbers as strings
			_, _ = w.Write([]byte(`{"power": "3.21", "todayEnergy": "18.4"}`))
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyUserID, "alice"))
		require.NoError(t, st.Set(ctx, "meter", types.KeyToken, "secret"))
		g := newGinlong(st, "meter")
		require.NoError(t, g.Init(ctx))
		g.baseURL = ts.URL
		g.now = func() time.Time { return now }

		r, err := g.Refresh(ctx)
		require.NoError(t, err)
		// power is reported in kW
		assert.Equal(t, 3210.0, r.Watts.Or(-1))
		assert.Equal(t, 18.4, r.DayKWH.Or(-1))
		assert.Equal(t, 18.4, r.WeekKWH.Or(-1))
		assert.Equal(t, 18.4, r.MonthKWH.Or(-1))
		assert.Equal(t, 18.4, r.YearKWH.Or(-1))
		assert.False(t, r.LifeKWH.Present())
	})

	t.Run("Refresh_NumericValues", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"power": 2.5, "todayEnergy": 11}`))
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyUserID, "alice"))
		require.NoError(t, st.Set(ctx, "meter", types.KeyToken, "secret"))
		g := newGinlong(st, "meter")
		require.NoError(t, g.Init(ctx))
		g.baseURL = ts.URL
		g.now = func() time.Time { return now }

		r, err := g.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2500.0, r.Watts.Or(-1))
		assert.Equal(t, 11.0, r.DayKWH.Or(-1))
	})

	t.Run("Refresh_MissingFields", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyUserID, "alice"))
		require.NoError(t, st.Set(ctx, "meter", types.KeyToken, "secret"))
		g := newGinlong(st, "meter")
		require.NoError(t, g.Init(ctx))
		g.baseURL = ts.URL
		g.now = func() time.Time { return now }

		r, err := g.Refresh(ctx)
		require.NoError(t, err)
		assert.False(t, r.Watts.Present())
		assert.False(t, r.DayKWH.Present())
		assert.False(t, r.WeekKWH.Present())
	})
}
