// Package actor identifies who performs an action. The gateway forwards the
// authenticated user in the X-User-ID and X-User-Email headers; requests
// without them, and background jobs, act as the system.
package actor

import (
	"context"
	"fmt"
	"net/http"
)

// SystemID is the actor ID of scheduled and internal operations
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor is the user or process performing an action
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// System returns the actor used for background work
func System() *Actor {
	return &Actor{ID: SystemID, Email: "system@pharmacy.local"}
}

// IsSystem reports whether a is the system. A nil actor is the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == SystemID
}

// String returns a representation for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	if a.Email == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Email)
}

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor returns a new context with a attached
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, a)
}

// FromContext returns the actor attached to ctx, or nil
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(actorContextKey).(*Actor)
	return a
}

// IDFromContext returns the ID of the actor in ctx, SystemID if there is none
func IDFromContext(ctx context.Context) string {
	if a := FromContext(ctx); a != nil && a.ID != "" {
		return a.ID
	}
	return SystemID
}

// Middleware attaches the actor forwarded by the gateway to the request context
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-User-ID"); id != "" {
			a := &Actor{ID: id, Email: r.Header.Get("X-User-Email")}
			r = r.WithContext(WithActor(r.Context(), a))
		}
		next.ServeHTTP(w, r)
	})
}
