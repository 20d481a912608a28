package analytics

import (
	"regexp"
	"strconv"
	"time"

	"cmsanalytics/api/models"
)

// DefaultPeriodDays applies when a period token carries no usable number.
const DefaultPeriodDays = 30

// MaxPeriodDays caps a window at ten years so both windows stay within the
// range Postgres timestamps can hold.
const MaxPeriodDays = 3650

var periodDigits = regexp.MustCompile(`\d+`)

// ParsePeriodDays extracts the first integer in token ("30d" -> 30, "7" -> 7).
// Missing, zero or overflowing numbers fall back to DefaultPeriodDays and
// larger ones are capped at MaxPeriodDays.
func ParsePeriodDays(token string) int {
	match := periodDigits.FindString(token)
	if match == "" {
		return DefaultPeriodDays
	}
	days, err := strconv.Atoi(match)
	if err != nil || days <= 0 {
		return DefaultPeriodDays
	}
	if days > MaxPeriodDays {
		return MaxPeriodDays
	}
	return days
}

// ResolvePeriod turns a period token into the current window and the equally
// long window immediately before it. Day boundaries are taken in now's
// location. It never fails.
func ResolvePeriod(token string, now time.Time) models.Period {
	days := ParsePeriodDays(token)

	currentEnd := startOfDay(now).AddDate(0, 0, 1)
	currentStart := startOfDay(now.AddDate(0, 0, -days))

	return models.Period{
		Days: days,
		Current: models.Window{
			Start: currentStart,
			End:   currentEnd,
		},
		Previous: models.Window{
			// The current window spans days+1 calendar days, today included.
			Start: currentStart.AddDate(0, 0, -(days + 1)),
			End:   currentStart,
		},
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
