package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriorities enumerates the priorities accepted by the task form.
var ValidPriorities = map[Priority]struct{}{
	PriorityLow:    {},
	PriorityMedium: {},
	PriorityHigh:   {},
}

// ParsePriority falls back to medium for unknown input.
func ParsePriority(raw string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := ValidPriorities[p]; ok {
		return p
	}
	return PriorityMedium
}

// Status is the lifecycle state of a task. Anything other than done is open.
type Status string

const (
	StatusTodo Status = "todo"
	StatusDone Status = "done"
)

// User is the profile returned by the backend for the current identity.
type User struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
}

// Handle returns the @-prefixed username or an empty string.
func (u User) Handle() string {
	if u.Username == "" {
		return ""
	}
	return "@" + u.Username
}

// Stats aggregates task completion across every workspace of a user.
type Stats struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Percent returns the rounded completion percentage.
func (s Stats) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(s.Done) / float64(s.Total) * 100))
}

// Flag is a boolean column. The backend serializes SQLite integers, so both
// 0/1 and true/false are accepted.
type Flag bool

// UnmarshalJSON accepts booleans, 0/1 numbers, their string forms and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true", "1":
		*f = true
	case "false", "0", "null", "":
		*f = false
	default:
		return fmt.Errorf("flag: unsupported value %s", data)
	}
	return nil
}

// MarshalJSON writes a JSON boolean.
func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// Workspace is a task collection scope the user belongs to. The listing in
// the user snapshot also carries the caller's membership columns.
type Workspace struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPersonal  Flag   `json:"is_personal"`
	Role        string `json:"role"`
	CustomRole  string `json:"custom_role,omitempty"`
	Permissions
}

// RoleLabel prefers the custom role over the built-in one.
func (w Workspace) RoleLabel() string {
	if w.CustomRole != "" {
		return w.CustomRole
	}
	return w.Role
}

// Funnel is a named pipeline of ordered stages.
type Funnel struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

// Stage is a column of a funnel.
type Stage struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Tasks    []Task `json:"tasks"`
}

// Task is a single card. Optional fields are empty strings or nil when unset.
type Task struct {
	ID               int64     `json:"id"`
	WorkspaceID      int64     `json:"workspace_id"`
	StageID          *int64    `json:"stage_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Priority         Priority  `json:"priority"`
	Status           Status    `json:"status"`
	DueDate          string    `json:"due_date,omitempty"`
	DueTime          string    `json:"due_time,omitempty"`
	AssignedUsername string    `json:"assigned_username,omitempty"`
	CreatedAt        Timestamp `json:"created_at"`
}

// Done reports whether the task is completed.
func (t Task) Done() bool {
	return t.Status == StatusDone
}

// Assignee returns the @-prefixed assignee handle or an empty string.
func (t Task) Assignee() string {
	if t.AssignedUsername == "" {
		return ""
	}
	return "@" + strings.TrimPrefix(t.AssignedUsername, "@")
}

// UnmarshalJSON tolerates null strings for the optional fields.
func (t *Task) UnmarshalJSON(data []byte) error {
	type rawTask struct {
		ID               int64     `json:"id"`
		WorkspaceID      int64     `json:"workspace_id"`
		StageID          *int64    `json:"stage_id"`
		Title            string    `json:"title"`
		Description      *string   `json:"description"`
		Priority         *string   `json:"priority"`
		Status           *string   `json:"status"`
		DueDate          *string   `json:"due_date"`
		DueTime          *string   `json:"due_time"`
		AssignedUsername *string   `json:"assigned_username"`
		CreatedAt        Timestamp `json:"created_at"`
	}
	var raw rawTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Task{
		ID:               raw.ID,
		WorkspaceID:      raw.WorkspaceID,
		StageID:          raw.StageID,
		Title:            raw.Title,
		Description:      deref(raw.Description),
		Priority:         ParsePriority(deref(raw.Priority)),
		Status:           Status(deref(raw.Status)),
		DueDate:          deref(raw.DueDate),
		DueTime:          deref(raw.DueTime),
		AssignedUsername: deref(raw.AssignedUsername),
		CreatedAt:        raw.CreatedAt,
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	return nil
}

// Permissions are the capability flags of a workspace member.
type Permissions struct {
	CanEditTasks     Flag `json:"can_edit_tasks"`
	CanDeleteTasks   Flag `json:"can_delete_tasks"`
	CanAssignTasks   Flag `json:"can_assign_tasks"`
	CanManageMembers Flag `json:"can_manage_members"`
}

// Member is a user's membership in a workspace. ID is the users.id of the
// member row, not the membership row.
type Member struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	FullName   string `json:"full_name"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	CustomRole string `json:"custom_role,omitempty"`
	Permissions
}

// RoleLabel prefers the custom role over the built-in one.
func (m Member) RoleLabel() string {
	if m.CustomRole != "" {
		return m.CustomRole
	}
	return m.Role
}

// TaskInput is the body of the create and update task calls.
type TaskInput struct {
	Title            string   `json:"title"`
	Description      *string  `json:"description"`
	Priority         Priority `json:"priority"`
	DueDate          *string  `json:"due_date"`
	DueTime          *string  `json:"due_time"`
	AssignedUsername *string  `json:"assigned_username"`
}

// MemberInput is the body of the add member call.
type MemberInput struct {
	Username   string  `json:"username"`
	Role       string  `json:"role"`
	CustomRole *string `json:"custom_role"`
	Permissions
}

// MemberUpdate is the partial body of the update member call. Nil fields are
// left unchanged by the backend.
type MemberUpdate struct {
	Role             *string `json:"role,omitempty"`
	CustomRole       *string `json:"custom_role,omitempty"`
	CanEditTasks     *Flag   `json:"can_edit_tasks,omitempty"`
	CanDeleteTasks   *Flag   `json:"can_delete_tasks,omitempty"`
	CanAssignTasks   *Flag   `json:"can_assign_tasks,omitempty"`
	CanManageMembers *Flag   `json:"can_manage_members,omitempty"`
}

// DefaultNoteColor is the sticker color used when none is chosen.
const DefaultNoteColor = "#ffc107"

// NoteColors is the palette offered by the note dialog.
var NoteColors = []string{DefaultNoteColor, "#4caf50", "#2196f3", "#e91e63", "#9c27b0"}

// Note is a dated sticky note of a workspace.
type Note struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	NoteDate    string    `json:"note_date,omitempty"`
	Color       string    `json:"color"`
	CreatedAt   Timestamp `json:"created_at"`
}

// UnmarshalJSON tolerates null content, date and color.
func (n *Note) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          int64     `json:"id"`
		WorkspaceID int64     `json:"workspace_id"`
		UserID      int64     `json:"user_id"`
		Title       string    `json:"title"`
		Content     *string   `json:"content"`
		NoteDate    *string   `json:"note_date"`
		Color       *string   `json:"color"`
		CreatedAt   Timestamp `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Note{
		ID:          raw.ID,
		WorkspaceID: raw.WorkspaceID,
		UserID:      raw.UserID,
		Title:       raw.Title,
		Content:     deref(raw.Content),
		NoteDate:    deref(raw.NoteDate),
		Color:       deref(raw.Color),
		CreatedAt:   raw.CreatedAt,
	}
	if n.Color == "" {
		n.Color = DefaultNoteColor
	}
	return nil
}

// NoteInput is the body of the create and update note calls.
type NoteInput struct {
	Title    string  `json:"title"`
	Content  *string `json:"content"`
	NoteDate *string `json:"note_date"`
	Color    string  `json:"color,omitempty"`
}

// RolePreset is a named set of member permissions.
type RolePreset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Permissions
}

// DefaultRolePresets mirrors the presets served by the backend and is used
// when the presets call is unavailable.
var DefaultRolePresets = []RolePreset{
	{ID: "pm", Name: "PM (Project Manager)", Description: "Full management access",
		Permissions: Permissions{CanEditTasks: true, CanDeleteTasks: true, CanAssignTasks: true, CanManageMembers: true}},
	{ID: "lead", Name: "Production lead", Description: "Full management access",
		Permissions: Permissions{CanEditTasks: true, CanDeleteTasks: true, CanAssignTasks: true, CanManageMembers: true}},
	{ID: "team_lead", Name: "Team lead", Description: "Manages tasks and members",
		Permissions: Permissions{CanEditTasks: true, CanDeleteTasks: true, CanAssignTasks: true, CanManageMembers: true}},
	{ID: "admin", Name: "Admin", Description: "Manages members and deadlines",
		Permissions: Permissions{CanEditTasks: true, CanAssignTasks: true, CanManageMembers: true}},
	{ID: "member", Name: "Member", Description: "Basic access",
		Permissions: Permissions{CanEditTasks: true}},
}

// PresetFor returns the preset with the given id.
func PresetFor(id string) (RolePreset, bool) {
	for _, p := range DefaultRolePresets {
		if p.ID == id {
			return p, true
		}
	}
	return RolePreset{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp decodes the creation times produced by the backend, which may be
// RFC3339 or SQLite's "YYYY-MM-DD HH:MM:SS" without a zone (treated as UTC).
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses any of the supported layouts.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unsupported timestamp %q", raw)
}

// UnmarshalJSON accepts null, empty and any supported layout.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*ts = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalJSON writes RFC3339 or null for the zero value.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339))
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
