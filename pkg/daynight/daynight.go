// Package daynight decides whether it is currently night at the configured
// site and when the next sunrise is, so polling can suspend while a
// production-only inverter is guaranteed dark.
package daynight

import (
	"fmt"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/nathan-osman/go-sunrise"
)

// Source answers the two scheduling questions the poller asks.
type Source interface {
	// IsNight reports whether t falls between sunset and the next sunrise at
	// the site.
	IsNight(t time.Time) bool

	// NextSunrise returns the first sunrise strictly after t.
	NextSunrise(t time.Time) time.Time
}

// Solar computes day/night from the site coordinates.
type Solar struct {
	lat float64
	lon float64
}

var _ Source = (*Solar)(nil)

// Configured sets up a Solar source from the site-latitude/site-longitude
// flags. Coordinates default to 0,0 (which is always "day" for practical
// purposes near the equator); operators relying on night suspension must set
// them.
func Configured() *Solar {
	lat := lflag.String("site-latitude", "0", "Site latitude in decimal degrees")
	lon := lflag.String("site-longitude", "0", "Site longitude in decimal degrees")

	var s Solar
	lflag.Do(func() {
		var err error
		if s.lat, err = strconv.ParseFloat(*lat, 64); err != nil {
			panic(fmt.Sprintf("invalid site-latitude %q: %v", *lat, err))
		}
		if s.lon, err = strconv.ParseFloat(*lon, 64); err != nil {
			panic(fmt.Sprintf("invalid site-longitude %q: %v", *lon, err))
		}
	})
	return &s
}

// New returns a Solar source for explicit coordinates. Tests use this to
// avoid the flag machinery.
func New(lat, lon float64) *Solar {
	return &Solar{lat: lat, lon: lon}
}

// IsNight reports whether t is before today's sunrise or after today's
// sunset, in the site's solar terms.
func (s *Solar) IsNight(t time.Time) bool {
	rise, set := sunrise.SunriseSunset(s.lat, s.lon, t.Year(), t.Month(), t.Day())
	if rise.IsZero() && set.IsZero() {
		// polar day/night; without a sunrise there is nothing to wait for
		return false
	}
	return t.Before(rise) || t.After(set)
}

// NextSunrise returns the first sunrise after t, looking up to a few days
// ahead to cover polar edge cases.
func (s *Solar) NextSunrise(t time.Time) time.Time {
	for i := 0; i < 4; i++ {
		day := t.AddDate(0, 0, i)
		rise, _ := sunrise.SunriseSunset(s.lat, s.lon, day.Year(), day.Month(), day.Day())
		if !rise.IsZero() && rise.After(t) {
			return rise
		}
	}
	// no sunrise found; re-check in a day
	return t.Add(24 * time.Hour)
}
