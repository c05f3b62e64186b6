// Package vault keeps one session credential per identity in a storage slot
// keyed by identity id, plus an optional raw credential cache keyed by
// normalized email.
//
// A credential is returned from slot X only when the identity embedded in the
// credential is X. Anything else, including a slot that cannot be decoded, is
// reported as [ErrNotFound] so callers fall back to re-authentication.
package vault

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/kv"
	"github.com/MrEthical07/multiauth/provider"
)

var (
	// ErrNotFound means no usable credential is cached for the identity.
	ErrNotFound = errors.New("no cached session")
	// ErrOwnerMismatch is returned by Set when the session belongs to another identity.
	ErrOwnerMismatch = errors.New("session owner mismatch")
	// ErrNoCurrentSession is returned by MigrateCurrentTo when the provider holds no session.
	ErrNoCurrentSession = errors.New("provider holds no session")
)

// CurrentSession reads the provider's currently held session.
type CurrentSession interface {
	GetSession(ctx context.Context) (*provider.Session, error)
}

// Vault is the per-identity session store.
type Vault struct {
	kv      kv.Store
	current CurrentSession
}

// New creates a [Vault]. current is used by MigrateCurrentTo.
func New(store kv.Store, current CurrentSession) *Vault {
	return &Vault{
		kv:      store,
		current: current,
	}
}

// Get returns the credential cached for identityID.
func (v *Vault) Get(ctx context.Context, identityID string) (*provider.Session, error) {
	if identityID == "" {
		return nil, ErrNotFound
	}
	raw, ok, err := v.kv.Get(ctx, kv.SessionSlotKey(identityID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	var sess provider.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, ErrNotFound
	}
	owner, err := provider.OwnerOf(&sess)
	if err != nil || owner != identityID {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Set stores sess in identityID's slot.
func (v *Vault) Set(ctx context.Context, identityID string, sess *provider.Session) error {
	owner, err := provider.OwnerOf(sess)
	if err != nil {
		return err
	}
	if owner != identityID {
		return ErrOwnerMismatch
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return v.kv.Set(ctx, kv.SessionSlotKey(identityID), string(data))
}

// Remove deletes identityID's slot.
func (v *Vault) Remove(ctx context.Context, identityID string) error {
	return v.kv.Remove(ctx, kv.SessionSlotKey(identityID))
}

// MigrateCurrentTo copies the provider's current session into identityID's
// slot.
func (v *Vault) MigrateCurrentTo(ctx context.Context, identityID string) error {
	if v.current == nil {
		return ErrNoCurrentSession
	}
	sess, err := v.current.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNoCurrentSession
	}
	return v.Set(ctx, identityID, sess)
}

// SaveCredentials caches raw credentials under the normalized email.
func (v *Vault) SaveCredentials(ctx context.Context, creds provider.Credentials) error {
	email := identity.NormalizeEmail(creds.Email)
	if email == "" {
		return ErrNotFound
	}
	creds.Email = email
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return v.kv.Set(ctx, kv.CredentialsCacheKey(email), string(data))
}

// Credentials returns the cached raw credentials for email.
func (v *Vault) Credentials(ctx context.Context, email string) (provider.Credentials, error) {
	key := kv.CredentialsCacheKey(identity.NormalizeEmail(email))
	raw, ok, err := v.kv.Get(ctx, key)
	if err != nil {
		return provider.Credentials{}, err
	}
	if !ok {
		return provider.Credentials{}, ErrNotFound
	}
	var creds provider.Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return provider.Credentials{}, ErrNotFound
	}
	return creds, nil
}

// RemoveCredentials drops the cached raw credentials for email.
func (v *Vault) RemoveCredentials(ctx context.Context, email string) error {
	return v.kv.Remove(ctx, kv.CredentialsCacheKey(identity.NormalizeEmail(email)))
}
