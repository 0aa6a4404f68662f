// Package notify renders task events as human-visible notifications.
//
// Only two event shapes notify: an ownership claim and a completion. Releases
// and intermediate status changes stay silent. Exactly one channel is used
// per event: the native capability when its permission is granted, otherwise
// an in-app transient message.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btouchard/beacon/internal/event"
)

// Permission is a native capability's permission state.
type Permission string

const (
	PermissionDefault Permission = "default" // undetermined, may prompt
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Capability abstracts a native notification surface so a no-op test double
// can be substituted deterministically.
type Capability interface {
	PermissionState() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(title, body string) error
}

// InAppSink receives transient in-app messages.
type InAppSink interface {
	Push(message string)
}

// Prompter presents the one-time opt-in prompt for native notifications.
type Prompter interface {
	Confirm(ctx context.Context) bool
}

// Resolver turns identifiers into labels. Defined consumer-side.
type Resolver interface {
	ResolveStory(ctx context.Context, id string) string
	ResolveUser(ctx context.Context, id string) string
}

const nativeTitle = "Beacon"

// Dispatcher maps events to user-visible messages and picks the delivery
// channel. It runs on the consumer's single control flow and is not safe for
// concurrent use.
type Dispatcher struct {
	capability Capability
	inApp      InAppSink
	resolver   Resolver
	prompted   bool
}

// NewDispatcher creates a Dispatcher. capability may be nil when no native
// surface exists; inApp must not be nil.
func NewDispatcher(capability Capability, inApp InAppSink, resolver Resolver) *Dispatcher {
	return &Dispatcher{
		capability: capability,
		inApp:      inApp,
		resolver:   resolver,
	}
}

// NegotiatePermission runs the one-time opt-in. It is safe to call on every
// remount: the prompt shows at most once per session, and only while the
// capability's permission is still undetermined. Accepting requests the
// capability's permission.
func (d *Dispatcher) NegotiatePermission(ctx context.Context, prompt Prompter) {
	if d.capability == nil || d.prompted {
		return
	}
	if d.capability.PermissionState() != PermissionDefault {
		return
	}

	d.prompted = true
	if prompt == nil || !prompt.Confirm(ctx) {
		return
	}

	if _, err := d.capability.RequestPermission(ctx); err != nil {
		slog.Warn("notification permission request failed", "error", err)
	}
}

// HandleEvent renders and delivers at most one notification for e.
func (d *Dispatcher) HandleEvent(ctx context.Context, e event.Event) {
	var verb string
	switch {
	case e.Type == event.TypeOwnershipTaken:
		verb = "claimed"
	case e.Type == event.TypeStatusChanged && e.NewStatus == "completed":
		verb = "completed"
	default:
		return
	}

	actor := d.resolver.ResolveUser(ctx, e.Actor())
	story := d.resolver.ResolveStory(ctx, e.StoryID)
	d.deliver(fmt.Sprintf("%s %s a task in %q", actor, verb, story))
}

func (d *Dispatcher) deliver(msg string) {
	if d.capability != nil && d.capability.PermissionState() == PermissionGranted {
		if err := d.capability.Show(nativeTitle, msg); err != nil {
			// One channel per event: a failed native delivery is logged,
			// not re-sent in-app.
			slog.Warn("native notification failed", "error", err)
		}
		return
	}
	d.inApp.Push(msg)
}
