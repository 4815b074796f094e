// internal/session/session.go
package session

import (
	"context"

	"clinicsync/internal/model"
)

// EventKind mirrors the identity provider's auth-state-change stream.
type EventKind string

const (
	KindSignedIn       EventKind = "SIGNED_IN"
	KindTokenRefreshed EventKind = "TOKEN_REFRESHED"
	KindSignedOut      EventKind = "SIGNED_OUT"
)

// Event is one auth-state change with the session payload as of that change.
// A SIGNED_OUT event carries an absent session.
type Event struct {
	Kind    EventKind
	Session model.Session
}

// Source is the identity provider contract: a point query for the current
// session plus a subscription stream of auth-state changes. The provider owns
// session persistence; this process only observes it.
type Source interface {
	GetSession(ctx context.Context) (model.Session, error)
	Subscribe() (events <-chan Event, cancel func())
}
