// Package poller runs the single-threaded refresh loop: resolve the active
// vendor, fetch one reading, persist what changed, fan energy flows out to
// sub-meter devices, and schedule the next cycle.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/solarmeter/solarmeter/pkg/convert"
	"github.com/solarmeter/solarmeter/pkg/daynight"
	"github.com/solarmeter/solarmeter/pkg/log"
	"github.com/solarmeter/solarmeter/pkg/metrics"
	"github.com/solarmeter/solarmeter/pkg/pv"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// Interval defaults in seconds, written to the store on first run so they can
// be tuned there afterwards.
const (
	defaultDayInterval = 300
	defaultMinInterval = 30
)

// Poller owns the refresh loop for one meter device.
type Poller struct {
	st      store.Store
	vendors *pv.Map
	dn      daynight.Source
	mx      *metrics.Metrics

	device string
	now    func() time.Time

	mu    sync.Mutex
	state types.PollingState
}

// Configured sets up the poller.
func Configured(st store.Store, vendors *pv.Map, dn daynight.Source, mx *metrics.Metrics) *Poller {
	device := lflag.String("meter-device", "meter", "Device id the meter state is stored under")

	p := &Poller{
		st:      st,
		vendors: vendors,
		dn:      dn,
		mx:      mx,
		now:     time.Now,
	}
	lflag.Do(func() {
		p.device = *device
	})
	return p
}

// New returns a poller for explicit dependencies. Tests use this to avoid
// the flag machinery.
func New(st store.Store, vendors *pv.Map, dn daynight.Source, mx *metrics.Metrics, device string, now func() time.Time) *Poller {
	return &Poller{st: st, vendors: vendors, dn: dn, mx: mx, device: device, now: now}
}

// Device returns the meter device id state is stored under.
func (p *Poller) Device() string {
	return p.device
}

// State returns a copy of the current poll bookkeeping.
func (p *Poller) State() types.PollingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run drives cycles until ctx is canceled or a configuration error makes
// further polling pointless.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		delay, rearm, err := p.Cycle(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "poll cycle failed",
				slog.String("device", p.device),
				"error", err,
			)
		}
		if !rearm {
			log.Ctx(ctx).ErrorContext(ctx, "polling stopped until reconfigured",
				slog.String("device", p.device))
			return err
		}
		log.Ctx(ctx).DebugContext(ctx, "next poll scheduled",
			slog.String("device", p.device),
			slog.Duration("delay", delay),
		)
		timer.Reset(delay)
	}
}

// Cycle performs one refresh and returns the delay until the next one.
// rearm is false only for configuration errors, which need operator action.
func (p *Poller) Cycle(ctx context.Context) (delay time.Duration, rearm bool, err error) {
	p.setPolling(true)
	defer p.setPolling(false)
	ctx = log.WithAttrs(ctx, slog.String("device", p.device))
	now := p.now()

	interval, minInterval, err := p.intervals(ctx)
	if err != nil {
		return 0, true, err
	}

	enabled, err := p.st.Default(ctx, p.device, types.KeyEnabled, "true")
	if err != nil {
		return 0, true, err
	}
	if enabled != "true" {
		return interval, true, nil
	}

	vendorID, err := p.st.Get(ctx, p.device, types.KeySystem)
	if err != nil {
		return 0, true, err
	}
	if vendorID == "" {
		err = fmt.Errorf("no vendor configured under %s", types.KeySystem)
		p.recordFailure(ctx, vendorID, 0, err)
		return 0, false, err
	}
	p.setVendor(vendorID)

	sys, err := p.vendors.System(ctx, p.device, vendorID)
	if err != nil {
		p.recordFailure(ctx, vendorID, 0, err)
		if verr, ok := err.(*pv.Error); ok && verr.Kind == pv.KindConfig {
			return 0, false, err
		}
		return interval, true, err
	}
	p.setContinuous(sys.ContinuousPoll())

	r, rerr := p.refresh(ctx, sys)
	if rerr != nil {
		code := 0
		if verr, ok := rerr.(*pv.Error); ok {
			code = verr.Code
			if verr.Kind == pv.KindConfig {
				p.recordFailure(ctx, vendorID, code, rerr)
				return 0, false, rerr
			}
		}
		p.recordFailure(ctx, vendorID, code, rerr)
		return interval, true, rerr
	}

	if err := p.record(ctx, now, r); err != nil {
		return interval, true, err
	}
	p.mx.Observe(p.device, r)
	p.mx.ObserveHTTPCode(p.device, 200)

	d, err := p.nextDelay(ctx, now, sys, interval, minInterval)
	if err != nil {
		return interval, true, err
	}
	return d, true, nil
}

// refresh calls the adapter behind a panic guard so one defective payload
// cannot take the loop down.
func (p *Poller) refresh(ctx context.Context, sys pv.System) (r types.Reading, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected refresh failure: %v", rec)
		}
	}()
	return sys.Refresh(ctx)
}

// intervals loads the tunable cycle bounds, seeding defaults on first run.
func (p *Poller) intervals(ctx context.Context) (interval, minInterval time.Duration, err error) {
	raw, err := p.st.Default(ctx, p.device, types.KeyDayInterval, strconv.Itoa(defaultDayInterval))
	if err != nil {
		return 0, 0, err
	}
	interval = time.Duration(convert.ToNumber(raw)) * time.Second
	if interval <= 0 {
		interval = defaultDayInterval * time.Second
	}

	raw, err = p.st.Default(ctx, p.device, types.KeyMinInterval, strconv.Itoa(defaultMinInterval))
	if err != nil {
		return 0, 0, err
	}
	minInterval = time.Duration(convert.ToNumber(raw)) * time.Second
	if minInterval <= 0 {
		minInterval = defaultMinInterval * time.Second
	}
	return interval, minInterval, nil
}

// record persists an accepted reading. The refresh timestamp only advances
// when watts or day energy actually changed, so a vendor re-serving stale
// data does not masquerade as a fresh sample.
func (p *Poller) record(ctx context.Context, now time.Time, r types.Reading) error {
	wattsChanged, err := p.writeValue(ctx, p.device, types.KeyWatts, r.Watts, nil)
	if err != nil {
		return err
	}
	dayChanged, err := p.writeValue(ctx, p.device, types.KeyDayKWH, r.DayKWH, convert.Floor2)
	if err != nil {
		return err
	}
	if _, err := p.writeValue(ctx, p.device, types.KeyWeekKWH, r.WeekKWH, convert.Floor2); err != nil {
		return err
	}
	if _, err := p.writeValue(ctx, p.device, types.KeyMonthKWH, r.MonthKWH, convert.Floor2); err != nil {
		return err
	}
	if _, err := p.writeValue(ctx, p.device, types.KeyYearKWH, r.YearKWH, convert.Floor0); err != nil {
		return err
	}
	if _, err := p.writeValue(ctx, p.device, types.KeyLifeKWH, r.LifeKWH, convert.Floor0); err != nil {
		return err
	}

	if wattsChanged || dayChanged {
		if err := p.st.SetNumber(ctx, p.device, types.KeyLastRefresh, float64(r.Timestamp)); err != nil {
			return err
		}
	}
	if err := p.st.SetNumber(ctx, p.device, types.KeyLastUpdate, float64(now.Unix())); err != nil {
		return err
	}
	if err := p.st.Set(ctx, p.device, types.KeyStatus, "OK"); err != nil {
		return err
	}
	if err := p.st.SetNumber(ctx, p.device, types.KeyHTTPCode, 200); err != nil {
		return err
	}

	if err := p.recordAux(ctx, r.Aux); err != nil {
		return err
	}
	if err := p.fanOut(ctx, r.Aux); err != nil {
		return err
	}

	p.mu.Lock()
	p.state.LastRefresh = r.Timestamp
	p.state.LastHTTPCode = 200
	p.state.LastStatus = "OK"
	p.mu.Unlock()
	return nil
}

// recordAux stores flow statuses and magnitudes on the meter device itself.
func (p *Poller) recordAux(ctx context.Context, a types.Aux) error {
	if a.GridStatus != "" {
		if err := p.st.Set(ctx, p.device, types.KeyGridStatus, a.GridStatus); err != nil {
			return err
		}
	}
	if a.BatteryStatus != "" {
		if err := p.st.Set(ctx, p.device, types.KeyBatteryStatus, a.BatteryStatus); err != nil {
			return err
		}
	}
	pairs := []struct {
		key string
		v   types.OptFloat
	}{
		{types.KeyGridWatts, a.GridWatts},
		{types.KeyBatteryWatts, a.BatteryWatts},
		{types.KeyBatterySOC, a.BatterySOC},
		{types.KeyHouseWatts, a.HouseWatts},
	}
	for _, pair := range pairs {
		if v, ok := pair.v.Value(); ok {
			if err := p.st.SetNumber(ctx, p.device, pair.key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// fanOut splits bidirectional flows onto per-direction sub-meter devices.
// Only the direction the status names carries the magnitude; the other side
// is zeroed so readers never see both moving at once.
func (p *Poller) fanOut(ctx context.Context, a types.Aux) error {
	if a.GridStatus != "" {
		in, out := types.Some(0), types.Some(0)
		switch a.GridStatus {
		case types.GridStatusBuy:
			in = types.Some(a.GridWatts.Or(0))
		case types.GridStatusSell:
			out = types.Some(a.GridWatts.Or(0))
		}
		if err := p.writeSub(ctx, types.SubMeterGridIn, in, a.GridInDayKWH); err != nil {
			return err
		}
		if err := p.writeSub(ctx, types.SubMeterGridOut, out, a.GridOutDayKWH); err != nil {
			return err
		}
	}
	if a.BatteryStatus != "" {
		in, out := types.Some(0), types.Some(0)
		switch a.BatteryStatus {
		case types.BatteryStatusCharge:
			in = types.Some(a.BatteryWatts.Or(0))
		case types.BatteryStatusDischarge:
			out = types.Some(a.BatteryWatts.Or(0))
		}
		if err := p.writeSub(ctx, types.SubMeterBatteryIn, in, a.BatteryInDayKWH); err != nil {
			return err
		}
		if err := p.writeSub(ctx, types.SubMeterBatteryOut, out, a.BatteryOutDayKWH); err != nil {
			return err
		}
	}
	if a.HouseWatts.Present() || a.HouseDayKWH.Present() {
		if err := p.writeSub(ctx, types.SubMeterHouse, a.HouseWatts, a.HouseDayKWH); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) writeSub(ctx context.Context, suffix string, watts, dayKWH types.OptFloat) error {
	dev := p.device + "-" + suffix
	if v, ok := watts.Value(); ok {
		if err := p.st.SetNumber(ctx, dev, types.KeyWatts, v); err != nil {
			return err
		}
	}
	if v, ok := dayKWH.Value(); ok {
		if err := p.st.SetNumber(ctx, dev, types.KeyDayKWH, convert.Floor2(v)); err != nil {
			return err
		}
	}
	return nil
}

// writeValue rounds and writes a present value under key, reporting whether
// the stored value actually changed. Absent values leave the store untouched.
func (p *Poller) writeValue(ctx context.Context, device, key string, v types.OptFloat, round func(float64) float64) (bool, error) {
	nv, ok := v.Value()
	if !ok {
		return false, nil
	}
	if round != nil {
		nv = round(nv)
	}
	formatted := convert.FormatNumber(nv)

	stored, err := p.st.Get(ctx, device, key)
	if err != nil {
		return false, err
	}
	if stored == formatted {
		return false, nil
	}
	return true, p.st.Set(ctx, device, key, formatted)
}

// nextDelay computes the time until the next cycle. A dark, zero-producing,
// production-only system sleeps until just past sunrise; otherwise the delay
// is phase-aligned to the last accepted refresh so cycles stay evenly spaced
// regardless of how long this one took.
func (p *Poller) nextDelay(ctx context.Context, now time.Time, sys pv.System, interval, minInterval time.Duration) (time.Duration, error) {
	watts, err := p.st.GetNumber(ctx, p.device, types.KeyWatts)
	if err != nil {
		return 0, err
	}

	if watts == 0 && !sys.ContinuousPoll() && p.dn.IsNight(now) {
		d := p.dn.NextSunrise(now).Add(10 * time.Second).Sub(now)
		if d < minInterval {
			d = minInterval
		}
		log.Ctx(ctx).InfoContext(ctx, "suspending polling until sunrise",
			slog.String("device", p.device),
			slog.Duration("delay", d),
		)
		return d, nil
	}

	lastRefresh, err := p.st.GetNumber(ctx, p.device, types.KeyLastRefresh)
	if err != nil {
		return 0, err
	}
	d := interval - now.Sub(time.Unix(int64(lastRefresh), 0))
	if d < minInterval {
		return interval, nil
	}
	return d, nil
}

// recordFailure persists the failure diagnostics and counts it.
func (p *Poller) recordFailure(ctx context.Context, vendorID string, code int, ferr error) {
	kind := "unexpected"
	if verr, ok := ferr.(*pv.Error); ok {
		switch verr.Kind {
		case pv.KindConfig:
			kind = "config"
		case pv.KindTransport:
			kind = "transport"
		case pv.KindProtocol:
			kind = "protocol"
		}
	}
	p.mx.RecordFailure(p.device, kind)
	p.mx.ObserveHTTPCode(p.device, code)

	if err := p.st.SetNumber(ctx, p.device, types.KeyHTTPCode, float64(code)); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store http code", "error", err)
	}
	if err := p.st.Set(ctx, p.device, types.KeyStatus, ferr.Error()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store status", "error", err)
	}

	p.mu.Lock()
	p.state.Vendor = vendorID
	p.state.LastHTTPCode = code
	p.state.LastStatus = ferr.Error()
	p.mu.Unlock()
}

func (p *Poller) setPolling(v bool) {
	p.mu.Lock()
	p.state.Polling = v
	p.mu.Unlock()
}

func (p *Poller) setVendor(id string) {
	p.mu.Lock()
	p.state.Vendor = id
	p.mu.Unlock()
}

func (p *Poller) setContinuous(v bool) {
	p.mu.Lock()
	p.state.ContinuousPoll = v
	p.mu.Unlock()
}
