package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"crmapp/internal/app"
	"crmapp/internal/board"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

func (m Model) View() string {
	if !m.vm.Loaded {
		if m.err != nil {
			return errorStyle.Render("Could not load data: "+m.err.Error()) + "\n" + helpStyle.Render("q quit")
		}
		return "Loading…\n"
	}

	var b strings.Builder
	b.WriteString(m.viewTabs())
	b.WriteString("\n\n")

	switch m.vm.Page {
	case app.PageTasks:
		b.WriteString(m.viewTasks())
	case app.PageCalendar:
		b.WriteString(m.viewCalendar())
	case app.PageProfile:
		b.WriteString(m.viewProfile())
	default:
		b.WriteString(m.viewHome())
	}

	if modal := m.viewModal(); modal != "" {
		b.WriteString("\n")
		b.WriteString(modal)
	}
	if len(m.notices) > 0 {
		b.WriteString("\n")
		for _, n := range m.notices {
			b.WriteString(noticeLine(n))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))

	style := borderStyle
	if m.vm.Theme == host.SchemeLight {
		style = lightBorderStyle
	}
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(b.String())
}

func (m Model) viewTabs() string {
	tabs := make([]string, 0, len(app.Pages))
	for i, p := range app.Pages {
		label := fmt.Sprintf("%d %s", i+1, p.Title())
		if p == m.vm.Page {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	ws := mutedStyle.Render("  " + m.vm.Workspace.Name)
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + ws
}

func (m Model) viewHome() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.vm.Greeting))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(m.vm.DateLabel))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%d/%d done  %s %d%%\n\n", m.vm.Stats.Done, m.vm.Stats.Total, progressBar(m.vm.Percent, 20), m.vm.Percent)

	offset := 0
	b.WriteString(headerStyle.Render(fmt.Sprintf("📌 Today (%d)", m.vm.Today.Count)))
	b.WriteString("\n")
	b.WriteString(m.viewRows(m.vm.Today.Rows, offset, "Nothing due today"))
	offset += len(m.vm.Today.Rows)

	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("🔥 Urgent (%d)", m.vm.Urgent.Count)))
	b.WriteString("\n")
	b.WriteString(m.viewRows(m.vm.Urgent.Rows, offset, "No urgent tasks"))
	return b.String()
}

func (m Model) viewTasks() string {
	var b strings.Builder
	if m.vm.TasksView == app.ViewList {
		b.WriteString(headerStyle.Render("List"))
		b.WriteString(mutedStyle.Render("  filter: " + string(m.vm.Filter)))
		b.WriteString("\n")
		b.WriteString(m.viewRows(m.vm.List, 0, "No tasks"))
		return b.String()
	}

	b.WriteString(headerStyle.Render("Board"))
	b.WriteString("\n")
	if len(m.vm.Board) == 0 {
		b.WriteString(mutedStyle.Render("No funnels yet"))
		return b.String()
	}
	offset := 0
	for _, col := range m.vm.Board {
		b.WriteString(fmt.Sprintf("%s (%d)\n", col.Name, len(col.Rows)))
		b.WriteString(m.viewRows(col.Rows, offset, "—"))
		offset += len(col.Rows)
	}
	return b.String()
}

func (m Model) viewCalendar() string {
	var b strings.Builder
	cal := m.vm.Calendar
	b.WriteString(headerStyle.Render("‹ " + cal.Label + " ›"))
	b.WriteString("\n")
	for _, wd := range cal.Weekdays {
		b.WriteString(fmt.Sprintf("%3s ", wd))
	}
	b.WriteString("\n")
	for _, week := range cal.Weeks {
		for _, cell := range week {
			mark := " "
			if cell.HasTasks {
				mark = "•"
			}
			label := fmt.Sprintf("%2d%s", cell.Day, mark)
			switch {
			case cell.OtherMonth:
				label = mutedStyle.Render(label)
			case cell.Selected:
				label = selectedStyle.Render(label)
			case cell.Today:
				label = todayStyle.Render(label)
			}
			b.WriteString(label + " ")
		}
		b.WriteString("\n")
	}
	if cal.SelectedTitle != "" {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(cal.SelectedTitle))
		b.WriteString("\n")
		b.WriteString(m.viewRows(cal.Day, 0, "No tasks on this day"))
	}
	return b.String()
}

func (m Model) viewProfile() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.vm.FullName))
	if m.vm.Handle != "" {
		b.WriteString(mutedStyle.Render(" " + m.vm.Handle))
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Tasks: %d  Done: %d\n\n", m.vm.Stats.Total, m.vm.Stats.Done)

	b.WriteString(headerStyle.Render("Achievements"))
	b.WriteString("\n")
	for _, a := range m.vm.Achievements {
		line := a.Icon + " " + a.Title
		if !a.Unlocked {
			line = mutedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Workspaces"))
	b.WriteString("\n")
	for _, ws := range m.vm.Workspaces {
		prefix := "  "
		if ws.Current {
			prefix = "▸ "
		}
		fmt.Fprintf(&b, "%s%s %s\n", prefix, ws.Name, mutedStyle.Render(ws.RoleLabel()))
	}

	if len(m.vm.Members) > 0 && !bool(m.vm.Workspace.IsPersonal) {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Members"))
		b.WriteString("\n")
		for _, mem := range m.vm.Members {
			fmt.Fprintf(&b, "  %s %s\n", mem.FullName, mutedStyle.Render(mem.RoleLabel()))
		}
	}
	return b.String()
}

func (m Model) viewRows(rows []app.TaskRow, offset int, empty string) string {
	if len(rows) == 0 {
		return mutedStyle.Render(empty) + "\n"
	}
	var b strings.Builder
	for i, r := range rows {
		b.WriteString(m.viewRow(r, offset+i == m.cursor))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewRow(r app.TaskRow, selected bool) string {
	check := "[ ]"
	if r.Done() {
		check = "[x]"
	}
	title := r.Title
	if r.Done() {
		title = doneStyle.Render(title)
	}
	parts := []string{check, priorityStyle(r.Priority).Render("●"), title}
	if r.DueLabel != "" {
		parts = append(parts, mutedStyle.Render("📅 "+r.DueLabel))
	}
	if a := r.Assignee(); a != "" {
		parts = append(parts, mutedStyle.Render(a))
	}
	line := strings.Join(parts, " ")
	if selected {
		return selectedStyle.Render("▸ " + line)
	}
	return "  " + line
}

func (m Model) viewModal() string {
	switch {
	case m.adding:
		return fmt.Sprintf("%s  %s\n%s",
			headerStyle.Render("New task"),
			mutedStyle.Render("priority: "+board.PriorityLabel(m.vm.Modal.Priority)),
			m.input.View())
	case m.vm.Modal.Kind == app.ModalConfirm:
		return warningStyle.Render(m.vm.Modal.ConfirmMessage + " (y/n)")
	}
	return ""
}

func (m Model) help() string {
	switch {
	case m.adding:
		return "enter save • tab priority • esc cancel"
	case m.vm.Modal.Kind == app.ModalConfirm:
		return "y confirm • n cancel"
	}
	parts := []string{"1-4/tab pages", "j/k move", "space toggle", "a add", "d delete"}
	switch m.vm.Page {
	case app.PageTasks:
		parts = append(parts, "v board/list", "f filter")
	case app.PageCalendar:
		parts = append(parts, "h/l day", "</> month")
	}
	return strings.Join(append(parts, "w workspace", "t theme", "r reload", "q quit"), " • ")
}

func noticeLine(n app.Notice) string {
	switch n.Kind {
	case app.NoticeError:
		return errorStyle.Render("✗ " + n.Message)
	case app.NoticeWarning:
		return warningStyle.Render("! " + n.Message)
	default:
		return successStyle.Render("✓ " + n.Message)
	}
}

func priorityStyle(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityHigh:
		return highStyle
	case models.PriorityLow:
		return lowStyle
	default:
		return mediumStyle
	}
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return successStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}
