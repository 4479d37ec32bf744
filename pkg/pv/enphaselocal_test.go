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

func TestEnphaseLocal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.August, 19, 12, 0, 0, 0, time.UTC)

	t.Run("Init_MissingIP", func(t *testing.T) {
		st := store.NewMemory()
		e := newEnphaseLocal(st, "meter")
		err := e.Init(ctx)
		require.Error(t, err)
		verr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindConfig, verr.Kind)
	})

	t.Run("Init_InvalidIP", func(t *testing.T) {
		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "not-an-ip"))
		e := newEnphaseLocal(st, "meter")
		err := e.Init(ctx)
		require.Error(t, err)
		verr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindConfig, verr.Kind)
	})

	t.Run("Refresh", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/production", r.URL.Path)
			_, _ = w.Write([]byte(`{
				"wattsNow": 2500,
				"wattHoursToday": 12340,
				"wattHoursSevenDays": 80000,
				"wattHoursLifetime": 5500000
			}`))
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.50"))
		e := newEnphaseLocal(st, "meter")
		require.NoError(t, e.Init(ctx))
		e.baseURL = ts.URL
		e.now = func() time.Time { return now }

		r, err := e.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2500.0, r.Watts.Or(-1))
		assert.Equal(t, 12.34, r.DayKWH.Or(-1))
		assert.Equal(t, 80.0, r.WeekKWH.Or(-1))
		assert.Equal(t, 5500.0, r.LifeKWH.Or(-1))
		// month comes from the daily rollup, year from the month total
		assert.Equal(t, 12.34, r.MonthKWH.Or(-1))
		assert.Equal(t, 12.34, r.YearKWH.Or(-1))
		assert.Equal(t, now.Unix(), r.Timestamp)
		assert.False(t, e.ContinuousPoll())
	})

	t.Run("Refresh_MissingFieldsStayAbsent", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"wattsNow": 0}`))
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.50"))
		e := newEnphaseLocal(st, "meter")
		require.NoError(t, e.Init(ctx))
		e.baseURL = ts.URL
		e.now = func() time.Time { return now }

		r, err := e.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0.0, r.Watts.Or(-1))
		assert.False(t, r.DayKWH.Present())
		assert.False(t, r.WeekKWH.Present())
		assert.False(t, r.MonthKWH.Present())
		assert.False(t, r.LifeKWH.Present())
	})

	t.Run("Refresh_ServerError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.50"))
		e := newEnphaseLocal(st, "meter")
		require.NoError(t, e.Init(ctx))
		e.baseURL = ts.URL

		_, err := e.Refresh(ctx)
		require.Error(t, err)
		verr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindTransport, verr.Kind)
		assert.Equal(t, http.StatusInternalServerError, verr.Code)
	})
}
