// Package render turns an app.ViewModel into the mini-app markup.
package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"unicode/utf8"

	"crmapp/internal/app"
	"crmapp/internal/board"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Density selects how much of a task row is shown.
type Density string

const (
	// DensityCard is a board card.
	DensityCard Density = "card"
	// DensityItem is a list or home bucket entry.
	DensityItem Density = "item"
	// DensityDetail is the calendar day list and the task dialog.
	DensityDetail Density = "detail"
)

// Row is the input of the task_row template.
type Row struct {
	app.TaskRow
	Density Density
}

func (r Row) ShowDescription() bool { return r.Density == DensityDetail }
func (r Row) ShowStage() bool { return r.Density != DensityCard }
func (r Row) ShowCreated() bool { return r.Density == DensityCard }

// NavItem is a bottom navigation button.
type NavItem struct {
	Page   app.Page
	Icon   string
	Label  string
	Active bool
}

var navIcons = map[app.Page]string{
	app.PageHome:     "🏠",
	app.PageTasks:    "📋",
	app.PageCalendar: "📅",
	app.PageProfile:  "👤",
}

// Page is the data of a full page render.
type Page struct {
	app.ViewModel
	Effects  []host.Effect
	LivePath string
	Nav      []NavItem
}

// NewPage wraps vm with the navigation and the effects to replay.
func NewPage(vm app.ViewModel, effects []host.Effect, livePath string) Page {
	p := Page{ViewModel: vm, Effects: effects, LivePath: livePath}
	for _, pg := range app.Pages {
		label := pg.Title()
		if pg == app.PageHome {
			label = "Home"
		}
		p.Nav = append(p.Nav, NavItem{Page: pg, Icon: navIcons[pg], Label: label, Active: pg == vm.Page})
	}
	return p
}

// Auth is the data of the page shown before a session exists.
type Auth struct {
	Message string
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	tmpl, err := template.New("crmapp").Funcs(funcs()).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Page writes a complete document.
func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.tmpl.ExecuteTemplate(w, "layout", p)
}

// Auth writes the sign-in page.
func (r *Renderer) Auth(w io.Writer, a Auth) error {
	return r.tmpl.ExecuteTemplate(w, "auth", a)
}

var filterLabels = map[board.Filter]string{
	board.FilterAll:  "All",
	board.FilterTodo: "Active",
	board.FilterDone: "Done",
}

var noticeIcons = map[app.NoticeKind]string{
	app.NoticeSuccess: "✅",
	app.NoticeWarning: "⚠️",
	app.NoticeError:   "❌",
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"row": func(r app.TaskRow, d string) Row {
			return Row{TaskRow: r, Density: Density(d)}
		},
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		"priorities": func() []models.Priority {
			return []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}
		},
		"priorityLabel": board.PriorityLabel,
		"noteColors":    func() []string { return models.NoteColors },
		"filters": func() []board.Filter {
			return []board.Filter{board.FilterAll, board.FilterTodo, board.FilterDone}
		},
		"filterLabel": func(f board.Filter) string { return filterLabels[f] },
		"noticeIcon":  func(k app.NoticeKind) string { return noticeIcons[k] },
		"initial": func(name string) string {
			r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
			if r == utf8.RuneError {
				return "?"
			}
			return strings.ToUpper(string(r))
		},
		"confirmAction": func(m app.ModalView) string {
			switch m.Confirm {
			case app.ConfirmRemoveMember:
				return fmt.Sprintf("/members/%d/delete", m.ConfirmTarget)
			case app.ConfirmDeleteNote:
				return fmt.Sprintf("/notes/%d/delete", m.ConfirmTarget)
			default:
				return fmt.Sprintf("/tasks/%d/delete", m.ConfirmTarget)
			}
		},
	}
}
