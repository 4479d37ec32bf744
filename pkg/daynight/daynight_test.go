package daynight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSolar(t *testing.T) {
	// Chicago
	s := New(41.88, -87.63)

	t.Run("NoonIsDay", func(t *testing.T) {
		noon := time.Date(2026, time.August, 19, 18, 0, 0, 0, time.UTC) // 13:00 CDT
		assert.False(t, s.IsNight(noon))
	})

	t.Run("MidnightIsNight", func(t *testing.T) {
		midnight := time.Date(2026, time.August, 19, 6, 0, 0, 0, time.UTC) // 01:00 CDT
		assert.True(t, s.IsNight(midnight))
	})

	t.Run("NextSunriseIsAhead", func(t *testing.T) {
		midnight := time.Date(2026, time.August, 19, 6, 0, 0, 0, time.UTC)
		rise := s.NextSunrise(midnight)
		assert.True(t, rise.After(midnight))
		assert.True(t, rise.Before(midnight.Add(24*time.Hour)))
	})

	t.Run("EveningSunriseIsTomorrow", func(t *testing.T) {
		evening := time.Date(2026, time.August, 20, 2, 0, 0, 0, time.UTC) // 21:00 CDT Aug 19
		rise := s.NextSunrise(evening)
		assert.True(t, rise.After(evening))
		assert.True(t, rise.Before(evening.Add(24*time.Hour)))
	})
}
