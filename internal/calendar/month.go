package calendar

import (
	"fmt"
	"time"
)

// MonthOf returns the year and month shown when the user navigated offset
// months away from the month containing now.
func MonthOf(now time.Time, offset int) (int, time.Month) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, offset, 0)
	return first.Year(), first.Month()
}

// Label renders "October 2026".
func Label(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month.String(), year)
}

// DayTitle renders "18 October" for the day-detail header.
func DayTitle(d Date) string {
	return fmt.Sprintf("%d %s", d.Day, d.Month.String())
}
