package pv

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/solarmeter/solarmeter/pkg/convert"
	"github.com/solarmeter/solarmeter/pkg/log"
	"github.com/solarmeter/solarmeter/pkg/rollup"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// Solarman reads the SolarMAN home portal's device-detail endpoint,
// authenticated by a persistent rememberMe cookie. The payload is a flat map
// of opaque field codes; solarmanFields names the ones we understand and
// everything else is ignored.
type Solarman struct {
	st     store.Store
	device string
	client *http.Client
	agg    *rollup.Aggregator

	deviceID string
	token    string
	baseURL  string
	now      func() time.Time

	continuous bool
}

func newSolarman(st store.Store, device string) *Solarman {
	return &Solarman{
		st:      st,
		device:  device,
		client:  newClient(),
		agg:     rollup.New(st, device),
		baseURL: "https://home.solarman.cn",
		now:     time.Now,
	}
}

func (s *Solarman) Init(ctx context.Context) error {
	var err error
	if s.deviceID, err = requireConfig(ctx, s.st, s.device, types.KeyDeviceID); err != nil {
		return err
	}
	if s.token, err = requireConfig(ctx, s.st, s.device, types.KeyToken); err != nil {
		return err
	}
	return s.agg.Load(ctx, true, false, false)
}

func (s *Solarman) ContinuousPoll() bool {
	return s.continuous
}

type solarmanDetail struct {
	Result struct {
		DeviceWapper struct {
			DataJSON map[string]any `json:"dataJSON"`
		} `json:"deviceWapper"`
	} `json:"result"`
}

// field codes observed from the portal; values may arrive as strings
const (
	smWatts         = "1ab" // output power, W
	smDayKWH        = "1bb" // energy today, kWh
	smLifeKWH       = "1bc" // cumulative energy, kWh
	smMonthKWH      = "1be" // energy this month, kWh
	smYearKWH       = "1bf" // energy this year, kWh
	smGridWatts     = "1ag" // grid flow, W, positive buying
	smGridInKWH     = "1ah" // energy bought today, kWh
	smGridOutKWH    = "1ai" // energy sold today, kWh
	smBatteryWatts  = "1av" // battery flow, W, positive charging
	smBatterySOC    = "1aw" // state of charge, %
	smBatteryInKWH  = "1ax" // charged today, kWh
	smBatteryOutKWH = "1ay" // discharged today, kWh
	smHouseWatts    = "1ao" // consumption power, W
	smHouseKWH      = "1ap" // consumption today, kWh
	smTemperature   = "1df" // inverter temperature, C
	smStatus        = "1at" // inverter status code
)

func (s *Solarman) Refresh(ctx context.Context) (types.Reading, error) {
	form := url.Values{}
	form.Set("deviceId", s.deviceID)
	req, err := http.NewRequestWithContext(ctx, "POST",
		s.baseURL+"/cpro/device/inverter/goDetailAjax.json", strings.NewReader(form.Encode()))
	if err != nil {
		return types.Reading{}, transportErr(0, "failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", "rememberMe="+s.token)

	var res solarmanDetail
	if ferr := fetchJSON(s.client, req, &res); ferr != nil {
		return types.Reading{}, ferr
	}
	data := res.Result.DeviceWapper.DataJSON

	now := s.now()
	r := types.Reading{Timestamp: now.Unix()}
	get := func(code string) types.OptFloat {
		v, ok := data[code]
		if !ok || v == nil {
			return types.None()
		}
		return types.Some(convert.ToNumber(v))
	}

	r.Watts = get(smWatts)
	r.DayKWH = get(smDayKWH)
	r.MonthKWH = get(smMonthKWH)
	r.YearKWH = get(smYearKWH)
	r.LifeKWH = get(smLifeKWH)

	if grid, ok := get(smGridWatts).Value(); ok {
		status, watts := flowStatus(grid, types.GridStatusSell, types.GridStatusBuy)
		r.Aux.GridStatus = status
		r.Aux.GridWatts = types.Some(watts)
		s.continuous = true
	}
	r.Aux.GridInDayKWH = get(smGridInKWH)
	r.Aux.GridOutDayKWH = get(smGridOutKWH)

	if batt, ok := get(smBatteryWatts).Value(); ok {
		status, watts := flowStatus(batt, types.BatteryStatusDischarge, types.BatteryStatusCharge)
		r.Aux.BatteryStatus = status
		r.Aux.BatteryWatts = types.Some(watts)
		s.continuous = true
	}
	r.Aux.BatterySOC = get(smBatterySOC)
	r.Aux.BatteryInDayKWH = get(smBatteryInKWH)
	r.Aux.BatteryOutDayKWH = get(smBatteryOutKWH)
	r.Aux.HouseWatts = get(smHouseWatts)
	r.Aux.HouseDayKWH = get(smHouseKWH)

	if temp, ok := get(smTemperature).Value(); ok {
		if err := s.st.SetNumber(ctx, s.device, types.KeyTemperature, temp); err != nil {
			return types.Reading{}, err
		}
	}
	if status, ok := get(smStatus).Value(); ok {
		if err := s.st.SetNumber(ctx, s.device, types.KeyInverterStatus, status); err != nil {
			return types.Reading{}, err
		}
	}

	log.Ctx(ctx).DebugContext(ctx, "solarman detail",
		slog.Int("fields", len(data)),
		slog.Bool("continuous", s.continuous),
	)

	if err := s.agg.Derive(ctx, now, &r); err != nil {
		return types.Reading{}, transportErr(0, "failed to derive totals: %v", err)
	}
	return r, nil
}
