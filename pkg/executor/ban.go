package executor

import (
	"time"

	"github.com/botaas/flowengine/pkg/domain"
)

// Ban bounds in minutes. Anything shorter than half a minute or a year or
// longer is treated as permanent, matching the platform's own clamping.
const (
	minBanMinutes = 0.5
	maxBanMinutes = 525600
)

var unitMinutes = map[domain.DurationUnit]float64{
	domain.UnitMinutes: 1,
	domain.UnitHours:   60,
	domain.UnitDays:    1440,
	domain.UnitWeeks:   10080,
	domain.UnitMonths:  43200,
}

// BanMinutes converts a ban duration to minutes. permanent is true when no
// value is set or the total falls outside the platform's temporary range.
// An unknown unit counts as minutes.
func BanMinutes(value *float64, unit domain.DurationUnit) (minutes float64, permanent bool) {
	if value == nil {
		return 0, true
	}
	mult, ok := unitMinutes[unit]
	if !ok {
		mult = 1
	}
	total := *value * mult
	if total < minBanMinutes || total >= maxBanMinutes {
		return 0, true
	}
	return total, false
}

// BanUntil returns when a ban placed at now expires, or the zero time for a
// permanent ban.
func BanUntil(now time.Time, value *float64, unit domain.DurationUnit) time.Time {
	minutes, permanent := BanMinutes(value, unit)
	if permanent {
		return time.Time{}
	}
	return now.Add(time.Duration(minutes * float64(time.Minute)))
}
