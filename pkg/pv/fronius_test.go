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

const froniusInverterBody = `{
	"Head": {"Status": {"Code": 0, "Reason": ""}},
	"Body": {"Data": {
		"PAC": {"Value": 3200},
		"DAY_ENERGY": {"Value": 14500},
		"YEAR_ENERGY": {"Value": 2100000},
		"TOTAL_ENERGY": {"Value": 16000000},
		"IAC": {"Value": 13.5},
		"UAC": {"Value": 236.8},
		"IDC": {"Value": 8.2},
		"UDC": {"Value": 410.5},
		"DeviceStatus": {"StatusCode": 7}
	}}
}`

const froniusFlowBody = `{
	"Head": {"Status": {"Code": 0, "Reason": ""}},
	"Body": {"Data": {"Site": {
		"P_PV": 3200,
		"P_Grid": -500,
		"P_Load": -2700,
		"P_Akku": 250,
		"E_Day": 14500,
		"E_Year": 2100000,
		"E_Total": 16000000
	}}}
}`

func TestFronius(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.August, 19, 12, 0, 0, 0, time.UTC)

	t.Run("Refresh_DeviceAndFlow", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/solar_api/v1/GetInverterRealtimeData.cgi":
				assert.Equal(t, "1", r.URL.Query().Get("DeviceId"))
				_, _ = w.Write([]byte(froniusInverterBody))
			case "/solar_api/v1/GetPowerFlowRealtimeData.fcgi":
				_, _ = w.Write([]byte(froniusFlowBody))
			default:
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.60"))
		require.NoError(t, st.Set(ctx, "meter", types.KeyDeviceID, "1"))
		f := newFronius(st, "meter")
		require.NoError(t, f.Init(ctx))
		f.baseURL = ts.URL
		f.now = func() time.Time { return now }

		r, err := f.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3200.0, r.Watts.Or(-1))
		assert.Equal(t, 14.5, r.DayKWH.Or(-1))
		assert.Equal(t, 2100.0, r.YearKWH.Or(-1))
		assert.Equal(t, 16000.0, r.LifeKWH.Or(-1))
		// week and month come from the rollup
		assert.Equal(t, 14.5, r.WeekKWH.Or(-1))
		assert.Equal(t, 14.5, r.MonthKWH.Or(-1))

		// negative grid flow means exporting
		assert.Equal(t, types.GridStatusSell, r.Aux.GridStatus)
		assert.Equal(t, 500.0, r.Aux.GridWatts.Or(-1))
		// positive battery flow means charging
		assert.Equal(t, types.BatteryStatusCharge, r.Aux.BatteryStatus)
		assert.Equal(t, 250.0, r.Aux.BatteryWatts.Or(-1))
		// load is reported negative but exposed as a magnitude
		assert.Equal(t, 2700.0, r.Aux.HouseWatts.Or(-1))
		assert.True(t, f.ContinuousPoll())

		// electricals are stored directly
		volts, err := st.GetNumber(ctx, "meter", types.KeyACVolts)
		require.NoError(t, err)
		assert.Equal(t, 236.8, volts)
		status, err := st.GetNumber(ctx, "meter", types.KeyInverterStatus)
		require.NoError(t, err)
		assert.Equal(t, 7.0, status)
	})

	t.Run("Refresh_SiteOnly", func(t *testing.T) {
		deviceCalls := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/solar_api/v1/GetInverterRealtimeData.cgi":
				deviceCalls++
				w.WriteHeader(http.StatusNotFound)
			case "/solar_api/v1/GetPowerFlowRealtimeData.fcgi":
				_, _ = w.Write([]byte(froniusFlowBody))
			default:
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
		}))
		defer ts.Close()

		// no DeviceID configured means no per-device call
		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.60"))
		f := newFronius(st, "meter")
		require.NoError(t, f.Init(ctx))
		f.baseURL = ts.URL
		f.now = func() time.Time { return now }

		r, err := f.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, deviceCalls)
		assert.Equal(t, 3200.0, r.Watts.Or(-1))
		assert.Equal(t, 14.5, r.DayKWH.Or(-1))
	})

	t.Run("Refresh_VendorError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"Head": {"Status": {"Code": 8, "Reason": "LNRequestTimeout"}}}`))
		}))
		defer ts.Close()

		st := store.NewMemory()
		require.NoError(t, st.Set(ctx, "meter", types.KeyIP, "192.168.1.60"))
		f := newFronius(st, "meter")
		require.NoError(t, f.Init(ctx))
		f.baseURL = ts.URL

		_, err := f.Refresh(ctx)
		require.Error(t, err)
		verr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindProtocol, verr.Kind)
		assert.Equal(t, 8, verr.Code)
		assert.Contains(t, verr.Error(), "LNRequestTimeout")
	})
}
