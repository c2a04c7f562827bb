package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWorkDaysNeverFridayOrWeekend(t *testing.T) {
	start := date(2026, 1, 1)
	for offset := 0; offset < 28; offset++ {
		s := start.AddDate(0, 0, offset).Add(13 * time.Hour)
		for _, n := range []int{1, 4, 9, 40} {
			days := WorkDays(s, n)
			require.Len(t, days, n)
			for i, d := range days {
				wd := d.Weekday()
				assert.NotContains(t, []time.Weekday{time.Friday, time.Saturday, time.Sunday}, wd, "start %s n %d", s, n)
				if i > 0 {
					assert.True(t, d.After(days[i-1]))
				}
			}
		}
	}
}

func TestWorkDaysFridayStart(t *testing.T) {
	friday := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	require.Equal(t, time.Friday, friday.Weekday())

	days := WorkDays(friday, 4)
	assert.Equal(t, []time.Time{
		date(2026, 10, 19),
		date(2026, 10, 20),
		date(2026, 10, 21),
		date(2026, 10, 22),
	}, days)
}

func TestWorkDaysIncludesValidStartAndSkipsLongWeekend(t *testing.T) {
	wednesday := date(2026, 10, 14)
	days := WorkDays(wednesday, 3)
	assert.Equal(t, []time.Time{date(2026, 10, 14), date(2026, 10, 15), date(2026, 10, 19)}, days)
}

func TestWorkDaysDeterministic(t *testing.T) {
	s := time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, WorkDays(s, 12), WorkDays(s, 12))
}

func TestWorkDaysEmpty(t *testing.T) {
	assert.Empty(t, WorkDays(date(2026, 1, 5), 0))
	assert.Empty(t, WorkDays(date(2026, 1, 5), -3))
}

func TestNextWorkDayUsesUTCDate(t *testing.T) {
	// Thursday 23:00 in UTC-5 is already Friday in UTC.
	loc := time.FixedZone("est", -5*3600)
	thuEvening := time.Date(2026, 10, 15, 23, 0, 0, 0, loc)
	assert.Equal(t, date(2026, 10, 19), NextWorkDay(thuEvening))
}
