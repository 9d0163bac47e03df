package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridShapeForEveryMonth(t *testing.T) {
	for year := 1999; year <= 2032; year++ {
		for month := time.January; month <= time.December; month++ {
			cells := Grid(year, month, Date{}, Date{}, nil)

			require.Zero(t, len(cells)%7, "%d-%02d", year, month)

			current := 0
			firstIdx := -1
			for i, c := range cells {
				if !c.OtherMonth {
					current++
					if firstIdx < 0 {
						firstIdx = i
					}
				}
			}
			assert.Equal(t, DaysIn(year, month), current)
			assert.GreaterOrEqual(t, current, 28)
			assert.LessOrEqual(t, current, 31)

			wd := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
			wantCol := (int(wd) + 6) % 7
			assert.Equal(t, wantCol, firstIdx%7, "%d-%02d first cell column", year, month)
		}
	}
}

func TestGridMonthStartingMonday(t *testing.T) {
	// June 2026 starts on a Monday.
	require.Equal(t, time.Monday, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC).Weekday())

	cells := Grid(2026, time.June, Date{}, Date{}, nil)
	assert.False(t, cells[0].OtherMonth)
	assert.Equal(t, 1, cells[0].Day)
}

func TestGridMonthEndingSunday(t *testing.T) {
	// May 2026 ends on a Sunday.
	require.Equal(t, time.Sunday, time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC).Weekday())

	cells := Grid(2026, time.May, Date{}, Date{}, nil)
	last := cells[len(cells)-1]
	assert.False(t, last.OtherMonth)
	assert.Equal(t, 31, last.Day)
}

func TestGridFillerDays(t *testing.T) {
	// October 2026 starts on Thursday: three leading days from September.
	cells := Grid(2026, time.October, Date{}, Date{}, nil)

	require.True(t, cells[0].OtherMonth)
	assert.Equal(t, Date{2026, time.September, 28}, cells[0].Date)
	assert.Equal(t, Date{2026, time.September, 30}, cells[2].Date)
	assert.False(t, cells[3].OtherMonth)

	last := cells[len(cells)-1]
	assert.True(t, last.OtherMonth)
	assert.Equal(t, Date{2026, time.November, 1}, last.Date)
}

func TestGridFlags(t *testing.T) {
	today := Date{2026, time.October, 18}
	selected := Date{2026, time.October, 20}
	due := map[Date]bool{{2026, time.October, 5}: true, {2026, time.September, 29}: true}

	cells := Grid(2026, time.October, today, selected, func(d Date) bool { return due[d] })

	var todayCells, selectedCells, taskCells int
	for _, c := range cells {
		if c.Today {
			todayCells++
			assert.Equal(t, today, c.Date)
		}
		if c.Selected {
			selectedCells++
			assert.Equal(t, selected, c.Date)
		}
		if c.HasTasks {
			taskCells++
			assert.False(t, c.OtherMonth, "filler cells are never flagged")
		}
	}
	assert.Equal(t, 1, todayCells)
	assert.Equal(t, 1, selectedCells)
	assert.Equal(t, 1, taskCells)
}

func TestGridTodayOutsideMonth(t *testing.T) {
	cells := Grid(2026, time.November, Date{2026, time.October, 18}, Date{}, nil)
	for _, c := range cells {
		assert.False(t, c.Today)
	}
}

func TestMonthOfRollover(t *testing.T) {
	now := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)

	y, m := MonthOf(now, -1)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.December, m)

	y, m = MonthOf(now, 1)
	assert.Equal(t, 2026, y)
	assert.Equal(t, time.February, m)

	y, m = MonthOf(now, 12)
	assert.Equal(t, 2027, y)
	assert.Equal(t, time.January, m)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-09")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-09", d.String())

	_, err = ParseDate("09.02.2026")
	assert.Error(t, err)
}

func TestWeeks(t *testing.T) {
	cells := Grid(2026, time.October, Date{}, Date{}, nil)
	rows := Weeks(cells)
	assert.Len(t, rows, len(cells)/7)
	for _, r := range rows {
		assert.Len(t, r, 7)
	}
}

func TestDateText(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalText([]byte("2026-10-18")))
	assert.Equal(t, Date{Year: 2026, Month: time.October, Day: 18}, d)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18", string(out))

	require.NoError(t, d.UnmarshalText(nil))
	assert.True(t, d.IsZero())
	out, err = d.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, out)
}
