// Package backend is a typed client for the remote task-management API the
// mini-app reads from and mutates.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crmapp/internal/models"
)

// UserSnapshot is the response of the user call.
type UserSnapshot struct {
	User       models.User        `json:"user"`
	Workspaces []models.Workspace `json:"workspaces"`
	Stats      models.Stats       `json:"stats"`
}

// Personal returns the user's personal workspace.
func (u UserSnapshot) Personal() (models.Workspace, bool) {
	for _, ws := range u.Workspaces {
		if ws.IsPersonal {
			return ws, true
		}
	}
	return models.Workspace{}, false
}

// WorkspaceSnapshot is the response of the workspace call.
type WorkspaceSnapshot struct {
	Workspace models.Workspace `json:"workspace"`
	Funnels   []models.Funnel  `json:"funnels"`
	Tasks     []models.Task    `json:"tasks"`
	Members   []models.Member  `json:"members"`
}

type taskEnvelope struct {
	Task *models.Task `json:"task"`
}

type membersEnvelope struct {
	Members []models.Member `json:"members"`
}

type notesEnvelope struct {
	Notes []models.Note `json:"notes"`
}

type presetsEnvelope struct {
	Presets []models.RolePreset `json:"presets"`
}

// Client issues requests against the task API. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request. Zero means no client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUser fetches the profile, stats and workspace memberships of a user.
func (c *Client) GetUser(ctx context.Context, userID int64) (UserSnapshot, error) {
	var out UserSnapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/user/%d", userID), nil, &out)
	return out, err
}

// GetWorkspace fetches funnels with their tasks, the flat task list and members.
func (c *Client) GetWorkspace(ctx context.Context, workspaceID int64) (WorkspaceSnapshot, error) {
	var out WorkspaceSnapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/workspace/%d", workspaceID), nil, &out)
	return out, err
}

// CreateTask creates a task in a workspace on behalf of userID.
func (c *Client) CreateTask(ctx context.Context, workspaceID, userID int64, in models.TaskInput) (*models.Task, error) {
	var out taskEnvelope
	path := fmt.Sprintf("/api/tasks/%d/%d", workspaceID, userID)
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// UpdateTask replaces the editable fields of a task.
func (c *Client) UpdateTask(ctx context.Context, taskID int64, in models.TaskInput) (*models.Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/task/%d", taskID), in, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// ToggleTask flips a task between done and open.
func (c *Client) ToggleTask(ctx context.Context, taskID int64) (*models.Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/task/%d/toggle", taskID), nil, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// MoveTask places a task in another funnel stage.
func (c *Client) MoveTask(ctx context.Context, taskID, stageID int64) (*models.Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/task/%d/move/%d", taskID, stageID), nil, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/task/%d", taskID), nil, nil)
}

// AssignTask sets the assignee of a task. The backend reads the username
// from the query string.
func (c *Client) AssignTask(ctx context.Context, taskID int64, username string) (*models.Task, error) {
	var out taskEnvelope
	path := fmt.Sprintf("/api/task/%d/assign?%s", taskID, url.Values{"username": {username}}.Encode())
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// ListNotes returns the notes of a workspace, newest first. A non-empty date
// (YYYY-MM-DD) restricts the list to that day.
func (c *Client) ListNotes(ctx context.Context, workspaceID int64, date string) ([]models.Note, error) {
	var out notesEnvelope
	path := fmt.Sprintf("/api/notes/%d", workspaceID)
	if date != "" {
		path += "?" + url.Values{"date": {date}}.Encode()
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

// CreateNote adds a note on behalf of userID and returns every note of the
// workspace.
func (c *Client) CreateNote(ctx context.Context, workspaceID, userID int64, in models.NoteInput) ([]models.Note, error) {
	var out notesEnvelope
	path := fmt.Sprintf("/api/notes/%d/%d", workspaceID, userID)
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

// UpdateNote changes a note. Nil optional fields are left as they are.
func (c *Client) UpdateNote(ctx context.Context, noteID int64, in models.NoteInput) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/note/%d", noteID), in, nil)
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, noteID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/note/%d", noteID), nil, nil)
}

// AddMember invites a registered user to a workspace and returns the new
// member list.
func (c *Client) AddMember(ctx context.Context, workspaceID int64, in models.MemberInput) ([]models.Member, error) {
	var out membersEnvelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/workspace/%d/members", workspaceID), in, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// UpdateMember changes the role or permissions of the member whose user id is
// memberID and returns the new member list.
func (c *Client) UpdateMember(ctx context.Context, workspaceID, memberID int64, in models.MemberUpdate) ([]models.Member, error) {
	var out membersEnvelope
	path := fmt.Sprintf("/api/workspace/%d/members/%d", workspaceID, memberID)
	if err := c.do(ctx, http.MethodPut, path, in, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// RemoveMember removes a member and returns the remaining member list.
func (c *Client) RemoveMember(ctx context.Context, workspaceID, memberID int64) ([]models.Member, error) {
	var out membersEnvelope
	path := fmt.Sprintf("/api/workspace/%d/members/%d", workspaceID, memberID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// RolePresets lists the predefined member roles.
func (c *Client) RolePresets(ctx context.Context) ([]models.RolePreset, error) {
	var out presetsEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/roles/presets", nil, &out); err != nil {
		return nil, err
	}
	return out.Presets, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
