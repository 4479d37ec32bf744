package pv

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/solarmeter/solarmeter/pkg/convert"
	"github.com/solarmeter/solarmeter/pkg/rollup"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// Ginlong reads the Ginlong/Solis portal's login endpoint, which doubles as
// the plant status response. It reports only current power (in kW) and daily
// energy; the rest is derived.
type Ginlong struct {
	st     store.Store
	device string
	client *http.Client
	agg    *rollup.Aggregator

	username string
	password string
	baseURL  string
	now      func() time.Time
}

func newGinlong(st store.Store, device string) *Ginlong {
	return &Ginlong{
		st:      st,
		device:  device,
		client:  newClient(),
		agg:     rollup.New(st, device),
		baseURL: "https://m.ginlong.com:9000",
		now:     time.Now,
	}
}

func (g *Ginlong) Init(ctx context.Context) error {
	var err error
	if g.username, err = requireConfig(ctx, g.st, g.device, types.KeyUserID); err != nil {
		return err
	}
	if g.password, err = requireConfig(ctx, g.st, g.device, types.KeyToken); err != nil {
		return err
	}
	return g.agg.Load(ctx, true, true, true)
}

func (g *Ginlong) ContinuousPoll() bool {
	return false
}

// the portal serves numbers as strings on some firmware versions
type ginlongStatus struct {
	Power       any `json:"power"`
	TodayEnergy any `json:"todayEnergy"`
}

func (g *Ginlong) Refresh(ctx context.Context) (types.Reading, error) {
	q := url.Values{}
	q.Set("username", g.username)
	q.Set("password", g.password)

	var res ginlongStatus
	if ferr := getJSON(ctx, g.client, g.baseURL+"/loginvalidV2?"+q.Encode(), &res); ferr != nil {
		return types.Reading{}, ferr
	}

	now := g.now()
	r := types.Reading{Timestamp: now.Unix()}
	if res.Power != nil {
		r.Watts = types.Some(convert.ToNumber(res.Power) * 1000)
	}
	if res.TodayEnergy != nil {
		r.DayKWH = types.Some(convert.ToNumber(res.TodayEnergy))
	}

	if err := g.agg.Derive(ctx, now, &r); err != nil {
		return types.Reading{}, transportErr(0, "failed to derive totals: %v", err)
	}
	return r, nil
}
