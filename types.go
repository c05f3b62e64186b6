package multiauth

import (
	"context"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/provider"
)

// Identity is one cached account.
type Identity = identity.Identity

// Role is an identity's resolved role.
type Role = identity.Role

// Credentials are raw sign-in credentials.
type Credentials = provider.Credentials

// LogoutScope selects what Logout signs out.
type LogoutScope uint8

const (
	// LogoutCurrent signs out the active identity and keeps its cached entry.
	LogoutCurrent LogoutScope = iota
	// LogoutAll signs out every cached identity and forgets all of them.
	LogoutAll
)

func (s LogoutScope) String() string {
	if s == LogoutAll {
		return "all"
	}
	return "current"
}

// ProfileResolver turns a raw identity id and email into a populated
// Identity. Errors should carry a failure kind.
type ProfileResolver interface {
	Resolve(ctx context.Context, id, email string) (*identity.Identity, error)
}

// AccountStore is the durable list of cached identities plus the active
// pointer.
type AccountStore interface {
	Load(ctx context.Context) error
	List() []identity.Identity
	Get(id string) (identity.Identity, bool)
	ActiveID() string
	Active() (identity.Identity, bool)
	Upsert(ctx context.Context, id identity.Identity) error
	Remove(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// SessionVault stores one provider session per identity and the optional
// raw credential cache.
type SessionVault interface {
	Get(ctx context.Context, identityID string) (*provider.Session, error)
	Set(ctx context.Context, identityID string, sess *provider.Session) error
	Remove(ctx context.Context, identityID string) error
	MigrateCurrentTo(ctx context.Context, identityID string) error
	SaveCredentials(ctx context.Context, creds provider.Credentials) error
	Credentials(ctx context.Context, email string) (provider.Credentials, error)
	RemoveCredentials(ctx context.Context, email string) error
}

// PushRegistry revokes push-notification registrations for an identity.
type PushRegistry interface {
	Revoke(ctx context.Context, identityID string) error
}

// Navigator moves the UI to a route.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(route string)

// Navigate calls f(route).
func (f NavigatorFunc) Navigate(route string) { f(route) }

type noopPush struct{}

func (noopPush) Revoke(context.Context, string) error { return nil }

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}
