package pv

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/solarmeter/solarmeter/pkg/convert"
	"github.com/solarmeter/solarmeter/pkg/rollup"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// PVOutput reads the pvoutput.org getstatus endpoint, a positional CSV line:
// date, time, day energy (Wh), power (W), then optional consumption energy,
// consumption power, efficiency, temperature, and voltage. Missing trailing
// fields or "NaN" placeholders are treated as absent.
type PVOutput struct {
	st     store.Store
	device string
	client *http.Client
	agg    *rollup.Aggregator

	apiKey   string
	systemID string
	baseURL  string
	now      func() time.Time
}

func newPVOutput(st store.Store, device string) *PVOutput {
	return &PVOutput{
		st:      st,
		device:  device,
		client:  newClient(),
		agg:     rollup.New(st, device),
		baseURL: "https://pvoutput.org",
		now:     time.Now,
	}
}

func (p *PVOutput) Init(ctx context.Context) error {
	var err error
	if p.apiKey, err = requireConfig(ctx, p.st, p.device, types.KeyAPIKey); err != nil {
		return err
	}
	if p.systemID, err = requireConfig(ctx, p.st, p.device, types.KeySystemID); err != nil {
		return err
	}
	return p.agg.Load(ctx, true, true, true)
}

func (p *PVOutput) ContinuousPoll() bool {
	return false
}

func (p *PVOutput) Refresh(ctx context.Context) (types.Reading, error) {
	q := url.Values{}
	q.Set("key", p.apiKey)
	q.Set("sid", p.systemID)

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/service/r2/getstatus.jsp?"+q.Encode(), nil)
	if err != nil {
		return types.Reading{}, transportErr(0, "failed to build request: %v", err)
	}
	body, ferr := fetchBody(p.client, req)
	if ferr != nil {
		return types.Reading{}, ferr
	}

	fields := strings.Split(strings.TrimSpace(string(body)), ",")
	if len(fields) < 4 {
		return types.Reading{}, transportErr(http.StatusOK, "unexpected response: %q", string(body))
	}

	now := p.now()
	r := types.Reading{Timestamp: now.Unix()}
	if ts, terr := time.ParseInLocation("20060102 15:04", fields[0]+" "+fields[1], time.Local); terr == nil {
		r.Timestamp = ts.Unix()
	}
	r.DayKWH = optField(fields, 2).Map(func(wh float64) float64 { return wh / 1000 })
	r.Watts = optField(fields, 3)
	r.Aux.HouseDayKWH = optField(fields, 4).Map(func(wh float64) float64 { return wh / 1000 })
	r.Aux.HouseWatts = optField(fields, 5)

	if temp := optField(fields, 7); temp.Present() {
		if err := p.st.SetNumber(ctx, p.device, types.KeyTemperature, temp.Or(0)); err != nil {
			return types.Reading{}, fmt.Errorf("failed to store temperature: %w", err)
		}
	}
	if volts := optField(fields, 8); volts.Present() {
		if err := p.st.SetNumber(ctx, p.device, types.KeyACVolts, volts.Or(0)); err != nil {
			return types.Reading{}, fmt.Errorf("failed to store voltage: %w", err)
		}
	}

	if err := p.agg.Derive(ctx, now, &r); err != nil {
		return types.Reading{}, transportErr(0, "failed to derive totals: %v", err)
	}
	return r, nil
}

// optField returns the CSV field at i as a number, absent when the field is
// missing or a "NaN" placeholder.
func optField(fields []string, i int) types.OptFloat {
	if i >= len(fields) {
		return types.None()
	}
	f := strings.TrimSpace(fields[i])
	if f == "" || strings.EqualFold(f, "nan") {
		return types.None()
	}
	return types.Some(convert.ToNumber(f))
}
