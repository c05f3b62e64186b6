// Package provider is the contract of the external auth provider: an
// asynchronous credential service that signs identities in and out and
// independently emits session-change events.
//
// Every event carries a monotonically increasing sequence number. A provider
// assigns it when the event is emitted, before the call that caused the event
// returns, so a caller that reads [Provider.LastSeq] after a call knows that
// every event at or below that number was caused by (or precedes) the call.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/multiauth/jwt"
)

var (
	// ErrInvalidCredentials is returned by SignIn for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession is returned by SetSession for an unusable credential.
	ErrInvalidSession = errors.New("invalid session")
	// ErrUnavailable is returned when the provider cannot be reached.
	ErrUnavailable = errors.New("auth provider unavailable")
)

// Credentials are the raw sign-in credentials.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is the opaque credential bundle issued by the provider. Its owner
// is the subject embedded in AccessToken, see [OwnerOf].
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// OwnerOf returns the identity id embedded in the session's access token. The
// UserID field is descriptive only and is not trusted for ownership.
func OwnerOf(s *Session) (string, error) {
	if s == nil || s.AccessToken == "" {
		return "", ErrInvalidSession
	}
	return jwt.SubjectUnverified(s.AccessToken)
}

// EventType is the kind of session change.
type EventType uint8

const (
	// EventSignedIn is a fresh sign-in, including one caused by SetSession.
	EventSignedIn EventType = iota + 1
	// EventTokenRefreshed is a background token refresh of the same session.
	EventTokenRefreshed
	// EventUserUpdated is a change to the signed-in user's record.
	EventUserUpdated
	// EventSignedOut means the provider no longer holds a session.
	EventSignedOut
)

func (t EventType) String() string {
	switch t {
	case EventSignedIn:
		return "signed_in"
	case EventTokenRefreshed:
		return "token_refreshed"
	case EventUserUpdated:
		return "user_updated"
	case EventSignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// Event is one session-change notification. Session is nil when the provider
// holds no session.
type Event struct {
	Seq     uint64
	Type    EventType
	Session *Session
}

// Provider is the external auth provider. Methods may be called from any
// goroutine. Events may be delivered at any time, including while a call is
// in progress.
type Provider interface {
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context) error
	SetSession(ctx context.Context, s *Session) (*Session, error)
	// GetSession returns the current session, or nil when none is held.
	GetSession(ctx context.Context) (*Session, error)
	Events() <-chan Event
	LastSeq() uint64
}
