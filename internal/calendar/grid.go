// Package calendar builds the Monday-first month grid shown on the calendar
// page and keeps track of the month the user is looking at.
package calendar

import (
	"fmt"
	"time"
)

// Date is a civil date without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its civil date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return DateOf(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// MarshalText writes YYYY-MM-DD, or nothing for the zero date.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts YYYY-MM-DD or an empty value.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Cell is one square of the month grid.
type Cell struct {
	Date       Date
	Day        int
	OtherMonth bool
	Today      bool
	HasTasks   bool
	Selected   bool
}

// Weekdays is the column header of the grid.
var Weekdays = [7]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// DaysIn returns the number of days of a month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MondayOffset is the column of the first day of the month, Monday=0..Sunday=6.
func MondayOffset(year int, month time.Month) int {
	wd := int(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday())
	return (wd + 6) % 7
}

// Grid returns the cells of month in year. Only cells of the month itself
// carry the today, has-tasks and selected flags. hasTasks may be nil.
func Grid(year int, month time.Month, today, selected Date, hasTasks func(Date) bool) []Cell {
	first := Date{Year: year, Month: month, Day: 1}
	lead := MondayOffset(year, month)
	days := DaysIn(year, month)

	total := lead + days
	trail := 0
	if r := total % 7; r != 0 {
		trail = 7 - r
	}

	cells := make([]Cell, 0, total+trail)
	for i := lead; i > 0; i-- {
		d := first.AddDays(-i)
		cells = append(cells, Cell{Date: d, Day: d.Day, OtherMonth: true})
	}
	for day := 1; day <= days; day++ {
		d := Date{Year: year, Month: month, Day: day}
		cells = append(cells, Cell{
			Date:     d,
			Day:      day,
			Today:    d == today,
			HasTasks: hasTasks != nil && hasTasks(d),
			Selected: !selected.IsZero() && d == selected,
		})
	}
	next := first.Time().AddDate(0, 1, 0)
	for i := 0; i < trail; i++ {
		d := DateOf(next.AddDate(0, 0, i))
		cells = append(cells, Cell{Date: d, Day: d.Day, OtherMonth: true})
	}
	return cells
}

// Weeks splits cells into rows of seven.
func Weeks(cells []Cell) [][]Cell {
	var rows [][]Cell
	for i := 0; i+7 <= len(cells); i += 7 {
		rows = append(rows, cells[i:i+7])
	}
	return rows
}
