// Package app owns the page state of a mini-app session and the actions the
// user can trigger on it. Renderers only ever see the ViewModel it projects.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crmapp/internal/backend"
	"crmapp/internal/board"
	"crmapp/internal/host"
	"crmapp/internal/models"
)

// ErrNoIdentity is returned by Bootstrap when neither the host nor the
// configuration supplies a user id.
var ErrNoIdentity = errors.New("no user identity")

// Backend is the part of the task API the controller needs.
type Backend interface {
	GetUser(ctx context.Context, userID int64) (backend.UserSnapshot, error)
	GetWorkspace(ctx context.Context, workspaceID int64) (backend.WorkspaceSnapshot, error)
	CreateTask(ctx context.Context, workspaceID, userID int64, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, taskID int64, in models.TaskInput) (*models.Task, error)
	ToggleTask(ctx context.Context, taskID int64) (*models.Task, error)
	MoveTask(ctx context.Context, taskID, stageID int64) (*models.Task, error)
	DeleteTask(ctx context.Context, taskID int64) error
	AssignTask(ctx context.Context, taskID int64, username string) (*models.Task, error)
	AddMember(ctx context.Context, workspaceID int64, in models.MemberInput) ([]models.Member, error)
	UpdateMember(ctx context.Context, workspaceID, memberID int64, in models.MemberUpdate) ([]models.Member, error)
	RemoveMember(ctx context.Context, workspaceID, memberID int64) ([]models.Member, error)
	ListNotes(ctx context.Context, workspaceID int64, date string) ([]models.Note, error)
	CreateNote(ctx context.Context, workspaceID, userID int64, in models.NoteInput) ([]models.Note, error)
	UpdateNote(ctx context.Context, noteID int64, in models.NoteInput) error
	DeleteNote(ctx context.Context, noteID int64) error
	RolePresets(ctx context.Context) ([]models.RolePreset, error)
}

// Publisher is told about successful mutations so other sessions looking at
// the same workspace can refresh.
type Publisher interface {
	Publish(workspaceID, originUserID int64)
}

// Options tune the projections and the mutation sync policy.
type Options struct {
	DayKey board.DayKey
	// Limit caps the home buckets; zero means board.DefaultLimit.
	Limit int
	// ReloadAfterMutation re-fetches everything after each mutation instead
	// of applying the returned entity.
	ReloadAfterMutation bool
	FallbackUserID      int64
	FallbackName        string
	Location            *time.Location
	Now                 func() time.Time
}

func (o *Options) withDefaults() {
	if o.DayKey == "" {
		o.DayKey = board.DueDateKey
	}
	if o.Limit <= 0 {
		o.Limit = board.DefaultLimit
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Option configures optional collaborators of a Controller.
type Option func(*Controller)

// WithHost sets the initial host.
func WithHost(h host.Host) Option {
	return func(c *Controller) { c.SetHost(h) }
}

// WithStore persists State through s.
func WithStore(s StateStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithPublisher announces mutations through p.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller is the single writer of one user's State and Snapshot. It is
// not safe for concurrent use; Registry serializes access.
type Controller struct {
	backend   Backend
	host      host.Host
	store     StateStore
	publisher Publisher
	logger    *slog.Logger
	opts      Options

	state       State
	snap        Snapshot
	displayName string
	presets     []models.RolePreset
	notices     []Notice
	stale       bool
}

// New returns a Controller with a default State and an empty Snapshot.
func New(b Backend, opts Options, extra ...Option) *Controller {
	opts.withDefaults()
	c := &Controller{
		backend: b,
		host:    host.Nop{},
		logger:  slog.Default(),
		opts:    opts,
	}
	for _, opt := range extra {
		opt(c)
	}
	c.state = DefaultState(0, c.host.ColorScheme())
	return c
}

// SetHost swaps the host, typically once per request.
func (c *Controller) SetHost(h host.Host) {
	if h == nil {
		h = host.Nop{}
	}
	c.host = h
}

// State returns a copy of the current page state.
func (c *Controller) State() State { return c.state }

// Snapshot returns the current backend copy.
func (c *Controller) Snapshot() Snapshot { return c.snap }

// UserID is the resolved identity, zero before Bootstrap.
func (c *Controller) UserID() int64 { return c.state.UserID }

// WorkspaceID is the workspace currently shown.
func (c *Controller) WorkspaceID() int64 { return c.state.WorkspaceID }

// Now is the controller's clock, used as the render time.
func (c *Controller) Now() time.Time { return c.opts.Now() }

// Invalidate marks the snapshot as outdated; the next EnsureFresh reloads.
func (c *Controller) Invalidate() { c.stale = true }

// Stale reports whether the snapshot must be reloaded before rendering.
func (c *Controller) Stale() bool { return c.stale || !c.snap.Loaded }

// Bootstrap resolves the identity, restores persisted state and loads the
// user's data.
func (c *Controller) Bootstrap(ctx context.Context) error {
	userID, name := c.resolveIdentity()
	if userID == 0 {
		c.notify(NoticeError, "Could not determine user")
		return ErrNoIdentity
	}
	c.displayName = name

	c.state = DefaultState(userID, c.host.ColorScheme())
	if c.store != nil {
		saved, ok, err := c.store.Load(ctx, userID)
		switch {
		case err != nil:
			c.logger.Warn("load page state", slog.Int64("user", userID), slog.String("error", err.Error()))
		case ok:
			saved.UserID = userID
			saved.normalize()
			c.state = saved
		}
	}

	c.loadPresets(ctx)
	return c.Reload(ctx)
}

func (c *Controller) resolveIdentity() (int64, string) {
	if id, ok := c.host.Identity(); ok && id.UserID != 0 {
		return id.UserID, id.FirstName
	}
	if c.opts.FallbackUserID != 0 {
		return c.opts.FallbackUserID, ""
	}
	return 0, ""
}

func (c *Controller) loadPresets(ctx context.Context) {
	presets, err := c.backend.RolePresets(ctx)
	if err != nil || len(presets) == 0 {
		c.presets = models.DefaultRolePresets
		return
	}
	c.presets = presets
}

// EnsureFresh reloads when the snapshot was invalidated or never loaded.
func (c *Controller) EnsureFresh(ctx context.Context) error {
	if !c.Stale() {
		return nil
	}
	return c.Reload(ctx)
}

// Reload fetches the user and the current workspace. On failure the previous
// snapshot stays in place. A current workspace that no longer exists is
// replaced by the personal one.
func (c *Controller) Reload(ctx context.Context) error {
	if c.state.UserID == 0 {
		return ErrNoIdentity
	}
	user, err := c.backend.GetUser(ctx, c.state.UserID)
	if err != nil {
		c.fail("load user", err, "Could not load data")
		return err
	}
	c.snap.setUser(user)

	workspaceID := c.state.WorkspaceID
	if _, ok := c.snap.workspace(workspaceID); !ok {
		workspaceID = defaultWorkspace(user, 0)
	}
	if workspaceID == 0 {
		c.state.WorkspaceID = 0
		c.snap.Loaded = true
		c.stale = false
		c.persist(ctx)
		return nil
	}

	err = c.loadWorkspace(ctx, workspaceID)
	if backend.IsNotFound(err) {
		if fallback := defaultWorkspace(user, workspaceID); fallback != 0 {
			c.logger.Warn("workspace vanished", slog.Int64("user", c.state.UserID),
				slog.Int64("workspace", workspaceID), slog.Int64("fallback", fallback))
			err = c.loadWorkspace(ctx, fallback)
		}
	}
	if err != nil {
		c.fail("load workspace", err, "Could not load workspace")
		return err
	}
	return nil
}

// defaultWorkspace picks the personal workspace, else the first listed one,
// skipping except.
func defaultWorkspace(user backend.UserSnapshot, except int64) int64 {
	if personal, ok := user.Personal(); ok && personal.ID != except {
		return personal.ID
	}
	for _, ws := range user.Workspaces {
		if ws.ID != except {
			return ws.ID
		}
	}
	return 0
}

// LoadWorkspace fetches one workspace and makes it current.
func (c *Controller) LoadWorkspace(ctx context.Context, workspaceID int64) error {
	if err := c.loadWorkspace(ctx, workspaceID); err != nil {
		c.fail("load workspace", err, "Could not load workspace")
		return err
	}
	return nil
}

func (c *Controller) loadWorkspace(ctx context.Context, workspaceID int64) error {
	ws, err := c.backend.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	c.snap.setWorkspace(ws)
	c.state.WorkspaceID = workspaceID
	c.stale = false
	c.loadNotes(ctx)

	if c.modalTargetGone() {
		c.state.closeModal()
	}
	c.persist(ctx)
	return nil
}

// modalTargetGone reports whether the open dialog refers to an entity that
// is no longer in the snapshot.
func (c *Controller) modalTargetGone() bool {
	st, snap := c.state, c.snap
	if _, ok := snap.Task(st.SelectedTaskID); st.SelectedTaskID != 0 && !ok {
		return true
	}
	if _, ok := snap.Member(st.SelectedMemberID); st.SelectedMemberID != 0 && !ok {
		return true
	}
	if _, ok := snap.Note(st.SelectedNoteID); st.SelectedNoteID != 0 && !ok {
		return true
	}
	return false
}

// loadNotes refreshes the notes of the current workspace. A failure is only
// logged; the page renders without notes.
func (c *Controller) loadNotes(ctx context.Context) {
	notes, err := c.backend.ListNotes(ctx, c.state.WorkspaceID, "")
	if err != nil {
		c.logger.Warn("load notes", slog.Int64("workspace", c.state.WorkspaceID), slog.String("error", err.Error()))
		notes = nil
	}
	c.snap.Notes = notes
}

// Forget erases the persisted state of userID and resets the controller.
func (c *Controller) Forget(ctx context.Context, userID int64) error {
	c.state = DefaultState(0, c.host.ColorScheme())
	c.snap = Snapshot{}
	c.notices = nil
	if c.store == nil || userID == 0 {
		return nil
	}
	return c.store.Delete(ctx, userID)
}

// SwitchWorkspace loads another workspace and shows its tasks.
func (c *Controller) SwitchWorkspace(ctx context.Context, workspaceID int64) {
	c.host.Impact(host.ImpactLight)
	if err := c.LoadWorkspace(ctx, workspaceID); err != nil {
		return
	}
	c.state.Page = PageTasks
	c.persist(ctx)
	c.notify(NoticeSuccess, "Workspace selected")
}

// persist saves State; failures are logged only.
func (c *Controller) persist(ctx context.Context) {
	if c.store == nil || c.state.UserID == 0 {
		return
	}
	if err := c.store.Save(ctx, c.state); err != nil {
		c.logger.Warn("save page state", slog.Int64("user", c.state.UserID), slog.String("error", err.Error()))
	}
}

func (c *Controller) publish() {
	if c.publisher != nil && c.state.WorkspaceID != 0 {
		c.publisher.Publish(c.state.WorkspaceID, c.state.UserID)
	}
}

// fail logs err and shows a notice with the backend detail when there is one.
func (c *Controller) fail(op string, err error, fallback string) {
	c.logger.Error(op, slog.Int64("user", c.state.UserID), slog.String("error", err.Error()))
	msg := fallback
	if detail := backend.Detail(err); detail != "" {
		msg = detail
	} else {
		var te *backend.TransportError
		if errors.As(err, &te) {
			msg = "Network error: " + te.Err.Error()
		}
	}
	c.notify(NoticeError, msg)
}

func (c *Controller) notify(kind NoticeKind, message string) {
	c.notices = append(c.notices, Notice{ID: uuid.NewString(), Kind: kind, Message: message})
}

// TakeNotices returns the pending notices and clears them.
func (c *Controller) TakeNotices() []Notice {
	out := c.notices
	c.notices = nil
	return out
}
