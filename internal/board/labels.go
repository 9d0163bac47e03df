package board

import (
	"fmt"
	"time"

	"crmapp/internal/calendar"
	"crmapp/internal/models"
)

// Achievement is a profile badge unlocked by completed tasks.
type Achievement struct {
	Icon      string
	Title     string
	Threshold int
	Unlocked  bool
}

var achievementDefs = []Achievement{
	{Icon: "🎯", Title: "First task", Threshold: 1},
	{Icon: "⭐", Title: "Five done", Threshold: 5},
	{Icon: "🔥", Title: "Ten done", Threshold: 10},
	{Icon: "💎", Title: "Fifty done", Threshold: 50},
	{Icon: "👑", Title: "Hundred done", Threshold: 100},
}

// Achievements returns every badge with its unlocked flag for done tasks.
func Achievements(done int) []Achievement {
	out := make([]Achievement, len(achievementDefs))
	for i, a := range achievementDefs {
		a.Unlocked = done >= a.Threshold
		out[i] = a
	}
	return out
}

// DueLabel renders a task's due date relative to today: "Today",
// "Tomorrow" or "2 Jan". The due time is appended when present.
func DueLabel(t models.Task, today calendar.Date) string {
	if t.DueDate == "" {
		return ""
	}
	d, err := calendar.ParseDate(t.DueDate)
	if err != nil {
		return t.DueDate
	}
	var label string
	switch d {
	case today:
		label = "Today"
	case today.AddDays(1):
		label = "Tomorrow"
	default:
		label = fmt.Sprintf("%d %s", d.Day, d.Month.String()[:3])
	}
	if t.DueTime != "" {
		label += " " + t.DueTime
	}
	return label
}

// CreatedLabel renders the creation time relative to now.
func CreatedLabel(ts models.Timestamp, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	diff := now.Sub(ts.Time)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return "today"
	case diff < 48*time.Hour:
		return "yesterday"
	}
	local := ts.In(now.Location())
	return fmt.Sprintf("%d %s", local.Day(), local.Month().String()[:3])
}

// PriorityLabel is the human name of a priority.
func PriorityLabel(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return "🔴 High"
	case models.PriorityLow:
		return "🟢 Low"
	default:
		return "🟡 Medium"
	}
}
