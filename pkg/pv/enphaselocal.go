package pv

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/solarmeter/solarmeter/pkg/log"
	"github.com/solarmeter/solarmeter/pkg/rollup"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// EnphaseLocal reads an Enphase Envoy gateway on the local network with a
// single unauthenticated GET. The Envoy reports day, week, and lifetime
// energy; month and year are derived from the daily figure.
type EnphaseLocal struct {
	st     store.Store
	device string
	client *http.Client
	agg    *rollup.Aggregator

	baseURL string
	now     func() time.Time
}

func newEnphaseLocal(st store.Store, device string) *EnphaseLocal {
	return &EnphaseLocal{
		st:     st,
		device: device,
		client: newClient(),
		agg:    rollup.New(st, device),
		now:    time.Now,
	}
}

// Init validates the configured gateway address and loads the month/year
// series the Envoy cannot supply itself.
func (e *EnphaseLocal) Init(ctx context.Context) error {
	ip, err := requireConfig(ctx, e.st, e.device, types.KeyIP)
	if err != nil {
		return err
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return configErr("invalid IPv4 address: %s", ip)
	}
	e.baseURL = "http://" + ip

	return e.agg.Load(ctx, false, true, true)
}

// ContinuousPoll is always false: the Envoy only reports production.
func (e *EnphaseLocal) ContinuousPoll() bool {
	return false
}

type envoyProduction struct {
	WattsNow           *float64 `json:"wattsNow"`
	WattHoursToday     *float64 `json:"wattHoursToday"`
	WattHoursSevenDays *float64 `json:"wattHoursSevenDays"`
	WattHoursLifetime  *float64 `json:"wattHoursLifetime"`
}

// Refresh fetches the production endpoint and converts Wh to kWh.
func (e *EnphaseLocal) Refresh(ctx context.Context) (types.Reading, error) {
	var res envoyProduction
	if ferr := getJSON(ctx, e.client, e.baseURL+"/api/v1/production", &res); ferr != nil {
		return types.Reading{}, ferr
	}

	now := e.now()
	r := types.Reading{Timestamp: now.Unix()}
	if res.WattsNow != nil {
		r.Watts = types.Some(*res.WattsNow)
	}
	if res.WattHoursToday != nil {
		r.DayKWH = types.Some(*res.WattHoursToday / 1000)
	}
	if res.WattHoursSevenDays != nil {
		r.WeekKWH = types.Some(*res.WattHoursSevenDays / 1000)
	}
	if res.WattHoursLifetime != nil {
		r.LifeKWH = types.Some(*res.WattHoursLifetime / 1000)
	}

	log.Ctx(ctx).DebugContext(ctx, "envoy production",
		slog.String("watts", r.Watts.String()),
		slog.String("dayKWH", r.DayKWH.String()),
	)

	if err := e.agg.Derive(ctx, now, &r); err != nil {
		return types.Reading{}, transportErr(0, "failed to derive totals: %v", err)
	}
	return r, nil
}
