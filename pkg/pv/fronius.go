package pv

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/solarmeter/solarmeter/pkg/rollup"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// Fronius reads a Fronius inverter's local Solar API: per-device realtime
// data when an inverter device id is configured, plus the site power-flow
// endpoint for grid/battery/house figures. A device id of "0" means no
// per-device call, only the site view.
type Fronius struct {
	st     store.Store
	device string
	client *http.Client
	agg    *rollup.Aggregator

	deviceID string
	baseURL  string
	now      func() time.Time

	// set when the power-flow response carries grid or battery telemetry,
	// which keeps flowing after dark
	continuous bool
}

func newFronius(st store.Store, device string) *Fronius {
	return &Fronius{
		st:     st,
		device: device,
		client: newClient(),
		agg:    rollup.New(st, device),
		now:    time.Now,
	}
}

func (f *Fronius) Init(ctx context.Context) error {
	ip, err := requireConfig(ctx, f.st, f.device, types.KeyIP)
	if err != nil {
		return err
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return configErr("invalid IPv4 address: %s", ip)
	}
	f.baseURL = "http://" + ip

	if f.deviceID, err = f.st.Get(ctx, f.device, types.KeyDeviceID); err != nil {
		return err
	}
	if f.deviceID == "" {
		f.deviceID = "0"
	}
	return f.agg.Load(ctx, true, true, false)
}

func (f *Fronius) ContinuousPoll() bool {
	return f.continuous
}

type froniusStatus struct {
	Code   int    `json:"Code"`
	Reason string `json:"Reason"`
}

type froniusValue struct {
	Value *float64 `json:"Value"`
}

type froniusCommonData struct {
	PAC          froniusValue `json:"PAC"`
	DayEnergy    froniusValue `json:"DAY_ENERGY"`
	YearEnergy   froniusValue `json:"YEAR_ENERGY"`
	TotalEnergy  froniusValue `json:"TOTAL_ENERGY"`
	IAC          froniusValue `json:"IAC"`
	UAC          froniusValue `json:"UAC"`
	IDC          froniusValue `json:"IDC"`
	UDC          froniusValue `json:"UDC"`
	DeviceStatus struct {
		StatusCode int `json:"StatusCode"`
	} `json:"DeviceStatus"`
}

type froniusInverterData struct {
	Head struct {
		Status froniusStatus `json:"Status"`
	} `json:"Head"`
	Body struct {
		Data froniusCommonData `json:"Data"`
	} `json:"Body"`
}

type froniusPowerFlow struct {
	Head struct {
		Status froniusStatus `json:"Status"`
	} `json:"Head"`
	Body struct {
		Data struct {
			Site struct {
				PPV    *float64 `json:"P_PV"`
				PGrid  *float64 `json:"P_Grid"`
				PLoad  *float64 `json:"P_Load"`
				PAkku  *float64 `json:"P_Akku"`
				EDay   *float64 `json:"E_Day"`
				EYear  *float64 `json:"E_Year"`
				ETotal *float64 `json:"E_Total"`
			} `json:"Site"`
		} `json:"Data"`
	} `json:"Body"`
}

func (f *Fronius) Refresh(ctx context.Context) (types.Reading, error) {
	r := types.Reading{Timestamp: f.now().Unix()}

	if f.deviceID != "0" {
		url := f.baseURL + "/solar_api/v1/GetInverterRealtimeData.cgi?Scope=Device&DeviceId=" +
			f.deviceID + "&DataCollection=CommonInverterData"
		var inv froniusInverterData
		if ferr := getJSON(ctx, f.client, url, &inv); ferr != nil {
			return types.Reading{}, ferr
		}
		if inv.Head.Status.Code != 0 {
			return types.Reading{}, protocolErr(inv.Head.Status.Code, "%s", inv.Head.Status.Reason)
		}

		data := inv.Body.Data
		if data.PAC.Value != nil {
			r.Watts = types.Some(*data.PAC.Value)
		}
		if data.DayEnergy.Value != nil {
			r.DayKWH = types.Some(*data.DayEnergy.Value / 1000)
		}
		if data.YearEnergy.Value != nil {
			r.YearKWH = types.Some(*data.YearEnergy.Value / 1000)
		}
		if data.TotalEnergy.Value != nil {
			r.LifeKWH = types.Some(*data.TotalEnergy.Value / 1000)
		}
		if err := f.storeElectricals(ctx, data); err != nil {
			return types.Reading{}, err
		}
	}

	var flow froniusPowerFlow
	if ferr := getJSON(ctx, f.client, f.baseURL+"/solar_api/v1/GetPowerFlowRealtimeData.fcgi", &flow); ferr != nil {
		return types.Reading{}, ferr
	}
	if flow.Head.Status.Code != 0 {
		return types.Reading{}, protocolErr(flow.Head.Status.Code, "%s", flow.Head.Status.Reason)
	}

	site := flow.Body.Data.Site
	if !r.Watts.Present() && site.PPV != nil {
		r.Watts = types.Some(*site.PPV)
	}
	if !r.DayKWH.Present() && site.EDay != nil {
		r.DayKWH = types.Some(*site.EDay / 1000)
	}
	if !r.YearKWH.Present() && site.EYear != nil {
		r.YearKWH = types.Some(*site.EYear / 1000)
	}
	if !r.LifeKWH.Present() && site.ETotal != nil {
		r.LifeKWH = types.Some(*site.ETotal / 1000)
	}

	if site.PGrid != nil {
		status, watts := flowStatus(*site.PGrid, types.GridStatusSell, types.GridStatusBuy)
		r.Aux.GridStatus = status
		r.Aux.GridWatts = types.Some(watts)
		f.continuous = true
	}
	if site.PAkku != nil {
		status, watts := flowStatus(*site.PAkku, types.BatteryStatusDischarge, types.BatteryStatusCharge)
		r.Aux.BatteryStatus = status
		r.Aux.BatteryWatts = types.Some(watts)
		f.continuous = true
	}
	if site.PLoad != nil {
		load := *site.PLoad
		if load < 0 {
			load = -load
		}
		r.Aux.HouseWatts = types.Some(load)
	}

	if err := f.agg.Derive(ctx, f.now(), &r); err != nil {
		return types.Reading{}, transportErr(0, "failed to derive totals: %v", err)
	}
	return r, nil
}

func (f *Fronius) storeElectricals(ctx context.Context, data froniusCommonData) error {
	set := func(key string, v froniusValue) error {
		if v.Value == nil {
			return nil
		}
		return f.st.SetNumber(ctx, f.device, key, *v.Value)
	}
	if err := set(types.KeyACAmps, data.IAC); err != nil {
		return err
	}
	if err := set(types.KeyACVolts, data.UAC); err != nil {
		return err
	}
	if err := set(types.KeyDCAmps, data.IDC); err != nil {
		return err
	}
	if err := set(types.KeyDCVolts, data.UDC); err != nil {
		return err
	}
	return f.st.SetNumber(ctx, f.device, types.KeyInverterStatus, float64(data.DeviceStatus.StatusCode))
}

// flowStatus maps a signed power-flow value onto a direction label and an
// unsigned magnitude. Negative means energy leaving the system boundary
// (export to grid, discharge from battery).
func flowStatus(v float64, negStatus, posStatus string) (string, float64) {
	switch {
	case v < 0:
		return negStatus, -v
	case v > 0:
		return posStatus, v
	default:
		return types.FlowStatic, 0
	}
}
