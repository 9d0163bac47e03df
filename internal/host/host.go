// Package host abstracts the chat-platform webview bridge: injected identity,
// color scheme, haptic feedback and native confirmation dialogs. Every
// capability is optional; Nop is used when no platform is present.
package host

import (
	"context"
	"strings"
	"sync"
)

// Identity is the user injected by the host platform.
type Identity struct {
	UserID    int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Scheme is the host color scheme.
type Scheme string

const (
	SchemeDark  Scheme = "dark"
	SchemeLight Scheme = "light"
)

// ParseScheme defaults to dark.
func ParseScheme(raw string) Scheme {
	if strings.EqualFold(strings.TrimSpace(raw), string(SchemeLight)) {
		return SchemeLight
	}
	return SchemeDark
}

// ImpactStyle is the strength of an impact haptic.
type ImpactStyle string

const (
	ImpactLight  ImpactStyle = "light"
	ImpactMedium ImpactStyle = "medium"
	ImpactHeavy  ImpactStyle = "heavy"
)

// NotificationKind is the flavor of a notification haptic.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyWarning NotificationKind = "warning"
	NotifyError   NotificationKind = "error"
)

// Host is the set of capabilities the view layer consumes from the platform.
type Host interface {
	Identity() (Identity, bool)
	ColorScheme() Scheme
	Impact(style ImpactStyle)
	Notify(kind NotificationKind)
	// Confirm asks the user to approve a destructive action.
	Confirm(ctx context.Context, message string) bool
}

type confirmKey struct{}

// WithConfirmation records on ctx whether the user already answered the
// confirmation dialog on the client side.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, confirmed)
}

// ConfirmationFrom returns the answer stored on ctx, or fallback.
func ConfirmationFrom(ctx context.Context, fallback bool) bool {
	if v, ok := ctx.Value(confirmKey{}).(bool); ok {
		return v
	}
	return fallback
}

// Nop is the host used outside the chat platform. It has no identity, uses
// the dark scheme, ignores haptics and accepts confirmations unless the
// context says otherwise.
type Nop struct{}

func (Nop) Identity() (Identity, bool) { return Identity{}, false }
func (Nop) ColorScheme() Scheme { return SchemeDark }
func (Nop) Impact(ImpactStyle) {}
func (Nop) Notify(NotificationKind) {}
func (Nop) Confirm(ctx context.Context, _ string) bool {
	return ConfirmationFrom(ctx, true)
}

// Effect is a haptic the page must replay on the client.
type Effect struct {
	Kind  string `json:"kind"` // impact, notification
	Style string `json:"style"`
}

// Recorder is the host of a server-side session: identity and scheme come
// from the authenticated request, haptics are queued until the next page
// render and confirmations must have been given by the client.
type Recorder struct {
	identity Identity
	known    bool
	scheme   Scheme

	mu      sync.Mutex
	effects []Effect
}

// NewRecorder returns a Recorder for an optional identity.
func NewRecorder(id Identity, known bool, scheme Scheme) *Recorder {
	return &Recorder{identity: id, known: known, scheme: scheme}
}

func (r *Recorder) Identity() (Identity, bool) { return r.identity, r.known }

func (r *Recorder) ColorScheme() Scheme { return r.scheme }

func (r *Recorder) Impact(style ImpactStyle) {
	r.push(Effect{Kind: "impact", Style: string(style)})
}

func (r *Recorder) Notify(kind NotificationKind) {
	r.push(Effect{Kind: "notification", Style: string(kind)})
}

func (r *Recorder) Confirm(ctx context.Context, _ string) bool {
	return ConfirmationFrom(ctx, false)
}

func (r *Recorder) push(e Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, e)
}

// Drain returns and clears the queued effects.
func (r *Recorder) Drain() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.effects
	r.effects = nil
	return out
}
