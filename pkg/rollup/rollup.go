// Package rollup maintains the calendar-indexed rolling series used to
// derive weekly/monthly/yearly totals from daily figures for vendors that do
// not supply them. Week is a trailing 7-slot ring; month and year are
// cumulative from their first slot.
package rollup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/solarmeter/solarmeter/pkg/convert"
	"github.com/solarmeter/solarmeter/pkg/store"
	"github.com/solarmeter/solarmeter/pkg/types"
)

// Series capacities match the calendar positions they are indexed by.
const (
	WeekCapacity  = 7
	MonthCapacity = 31
	YearCapacity  = 12
)

// Series is a fixed-capacity sequence of per-period-unit energy values,
// indexed by 1-based calendar position (day-of-week, day-of-month,
// month-of-year). It is persisted comma-joined under its store key whenever a
// slot changes.
type Series struct {
	key      string
	capacity int
	// trailing series (week) total all slots on every change; cumulative
	// series (month/year) total slots 1..index and reseed at slot 1.
	trailing bool
	values   []float64
}

// LoadSeries reads a series from the store, creating it zeroed when absent.
// Oversized legacy entries (from earlier defective versions) are trimmed from
// the oldest end so the length never exceeds capacity.
func LoadSeries(ctx context.Context, st store.Store, device, key string, capacity int, trailing bool) (*Series, error) {
	s := &Series{
		key:      key,
		capacity: capacity,
		trailing: trailing,
		values:   make([]float64, capacity),
	}

	raw, err := st.Default(ctx, device, key, s.encode())
	if err != nil {
		return nil, fmt.Errorf("failed to load series %s: %w", key, err)
	}

	parts := strings.Split(raw, ",")
	if len(parts) > capacity {
		parts = parts[len(parts)-capacity:]
	}
	for i, p := range parts {
		s.values[i] = convert.ToNumber(p)
	}

	// write back the normalized form; a no-op unless we trimmed
	if err := st.Set(ctx, device, key, s.encode()); err != nil {
		return nil, fmt.Errorf("failed to store series %s: %w", key, err)
	}
	return s, nil
}

// Len returns the number of slots.
func (s *Series) Len() int {
	return s.capacity
}

// Slot returns the stored value at the 1-based index.
func (s *Series) Slot(index int) float64 {
	return s.values[index-1]
}

func (s *Series) encode() string {
	parts := make([]string, s.capacity)
	for i, v := range s.values {
		parts[i] = convert.FormatNumber(v)
	}
	return strings.Join(parts, ",")
}

// Update applies a newly observed per-slot value at the 1-based calendar
// index and returns the resulting period total. It returns absent when the
// input is absent or when the slot already holds the value; callers must
// treat absent as "unchanged, do not overwrite downstream".
func (s *Series) Update(ctx context.Context, st store.Store, device string, index int, newValue types.OptFloat) (types.OptFloat, error) {
	nv, ok := newValue.Value()
	if !ok {
		return types.None(), nil
	}
	if index < 1 || index > s.capacity {
		return types.None(), fmt.Errorf("series %s index %d out of range 1..%d", s.key, index, s.capacity)
	}

	if s.values[index-1] == nv {
		return types.None(), nil
	}
	s.values[index-1] = nv
	if err := st.Set(ctx, device, s.key, s.encode()); err != nil {
		return types.None(), fmt.Errorf("failed to store series %s: %w", s.key, err)
	}

	// on the first day of a cumulative period there is no prior carry to add:
	// the new value seeds the period total
	if !s.trailing && index == 1 {
		return types.Some(nv), nil
	}

	var total float64
	if s.trailing {
		for _, v := range s.values {
			total += v
		}
	} else {
		for i := 0; i < index; i++ {
			total += s.values[i]
		}
	}
	return types.Some(total), nil
}

// Aggregator owns the rolling series a vendor needs. Vendors that already
// report a period total leave that series unloaded.
type Aggregator struct {
	st     store.Store
	device string

	week  *Series
	month *Series
	year  *Series
}

// New creates an Aggregator for the given meter device.
func New(st store.Store, device string) *Aggregator {
	return &Aggregator{st: st, device: device}
}

// Load reads the requested series classes from the store.
func (a *Aggregator) Load(ctx context.Context, week, month, year bool) error {
	var err error
	if week && a.week == nil {
		if a.week, err = LoadSeries(ctx, a.st, a.device, types.KeyWeeklyDaily, WeekCapacity, true); err != nil {
			return err
		}
	}
	if month && a.month == nil {
		if a.month, err = LoadSeries(ctx, a.st, a.device, types.KeyMonthlyDaily, MonthCapacity, false); err != nil {
			return err
		}
	}
	if year && a.year == nil {
		if a.year, err = LoadSeries(ctx, a.st, a.device, types.KeyYearlyMonthly, YearCapacity, false); err != nil {
			return err
		}
	}
	return nil
}

// Derive fills the reading's absent week/month/year totals from its daily
// figure using the loaded series. The year series is fed the month total
// (vendor-supplied or just derived), since its slots hold monthly energy.
// Totals that did not change stay absent so the caller keeps the previously
// stored value.
func (a *Aggregator) Derive(ctx context.Context, now time.Time, r *types.Reading) error {
	if a.week != nil && !r.WeekKWH.Present() {
		total, err := a.week.Update(ctx, a.st, a.device, convert.DayOfWeekIndex(now), r.DayKWH)
		if err != nil {
			return err
		}
		if total.Present() {
			r.WeekKWH = total
		}
	}
	if a.month != nil && !r.MonthKWH.Present() {
		total, err := a.month.Update(ctx, a.st, a.device, convert.DayOfMonthIndex(now), r.DayKWH)
		if err != nil {
			return err
		}
		if total.Present() {
			r.MonthKWH = total
		}
	}
	if a.year != nil && !r.YearKWH.Present() {
		total, err := a.year.Update(ctx, a.st, a.device, convert.MonthIndex(now), r.MonthKWH)
		if err != nil {
			return err
		}
		if total.Present() {
			r.YearKWH = total
		}
	}
	return nil
}
