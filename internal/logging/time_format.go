package logging

import "time"

const (
	sameDayLayout  = "15:04:05.000"
	otherDayLayout = "2006-01-02 15:04:05"
)

func formatTimestamp(ts time.Time) string {
	return formatTimestampAt(ts, time.Now())
}

// formatTimestampAt drops the date for records from the current local day and
// keeps milliseconds there, since a recording rarely spans midnight.
func formatTimestampAt(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	ts, now = ts.In(time.Local), now.In(time.Local)
	if ts.YearDay() == now.YearDay() && ts.Year() == now.Year() {
		return ts.Format(sameDayLayout)
	}
	return ts.Format(otherDayLayout)
}
