// Package board partitions the in-memory task list into the views shown by
// the mini-app: status filters, the today and urgent buckets on the home
// page and the per-day list of the calendar.
package board

import (
	"fmt"
	"strings"
	"time"

	"crmapp/internal/calendar"
	"crmapp/internal/models"
)

// DefaultLimit caps the number of rendered tasks per home bucket.
const DefaultLimit = 5

// Filter selects tasks by status on the task list.
type Filter string

const (
	FilterAll  Filter = "all"
	FilterTodo Filter = "todo"
	FilterDone Filter = "done"
)

// ParseFilter returns FilterAll for unknown values.
func ParseFilter(raw string) Filter {
	switch Filter(raw) {
	case FilterTodo, FilterDone:
		return Filter(raw)
	default:
		return FilterAll
	}
}

// FilterByStatus returns the tasks matching f, preserving order. The input is
// never modified.
func FilterByStatus(tasks []models.Task, f Filter) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		switch f {
		case FilterTodo:
			if t.Done() {
				continue
			}
		case FilterDone:
			if !t.Done() {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// DayKey decides which civil date a task belongs to.
type DayKey string

const (
	// DueDateKey files a task under its due date; tasks without one belong
	// to no day.
	DueDateKey DayKey = "due"
	// CreatedDateKey files a task under its creation date in loc.
	CreatedDateKey DayKey = "created"
)

// ParseDayKey validates a configured day key.
func ParseDayKey(raw string) (DayKey, error) {
	switch DayKey(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DueDateKey:
		return DueDateKey, nil
	case CreatedDateKey:
		return CreatedDateKey, nil
	default:
		return "", fmt.Errorf("unknown day key %q", raw)
	}
}

// DayOf returns the date the task is filed under.
func (k DayKey) DayOf(t models.Task, loc *time.Location) (calendar.Date, bool) {
	if k == CreatedDateKey {
		if t.CreatedAt.IsZero() {
			return calendar.Date{}, false
		}
		if loc == nil {
			loc = time.UTC
		}
		return calendar.DateOf(t.CreatedAt.In(loc)), true
	}
	if t.DueDate == "" {
		return calendar.Date{}, false
	}
	d, err := calendar.ParseDate(t.DueDate)
	if err != nil {
		return calendar.Date{}, false
	}
	return d, true
}

// Bucket is a capped slice of matching tasks plus the full match count.
type Bucket struct {
	Tasks []models.Task
	Count int
}

func capped(tasks []models.Task, limit int) Bucket {
	b := Bucket{Count: len(tasks), Tasks: tasks}
	if limit > 0 && len(tasks) > limit {
		b.Tasks = tasks[:limit]
	}
	return b
}

// Today returns open tasks filed under today.
func Today(tasks []models.Task, today calendar.Date, key DayKey, loc *time.Location, limit int) Bucket {
	var match []models.Task
	for _, t := range tasks {
		if t.Done() {
			continue
		}
		if d, ok := key.DayOf(t, loc); ok && d == today {
			match = append(match, t)
		}
	}
	return capped(match, limit)
}

// Urgent returns open high-priority tasks.
func Urgent(tasks []models.Task, limit int) Bucket {
	var match []models.Task
	for _, t := range tasks {
		if t.Priority == models.PriorityHigh && !t.Done() {
			match = append(match, t)
		}
	}
	return capped(match, limit)
}

// OnDay returns every task filed under day regardless of status.
func OnDay(tasks []models.Task, day calendar.Date, key DayKey, loc *time.Location) []models.Task {
	var match []models.Task
	for _, t := range tasks {
		if d, ok := key.DayOf(t, loc); ok && d == day {
			match = append(match, t)
		}
	}
	return match
}

// Days returns the set of dates that have at least one task.
func Days(tasks []models.Task, key DayKey, loc *time.Location) map[calendar.Date]bool {
	days := make(map[calendar.Date]bool)
	for _, t := range tasks {
		if d, ok := key.DayOf(t, loc); ok {
			days[d] = true
		}
	}
	return days
}
