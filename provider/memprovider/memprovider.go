// Package memprovider is an in-process provider.Provider. Sessions are JWTs
// issued by a jwt.Manager, passwords are argon2id hashes and every session
// change is published as a sequenced event.
//
// It is the reference provider for tests and the demo CLI, and exposes a few
// hooks (Refresh, TouchUser, SetUnavailable) that simulate what a hosted
// provider does on its own schedule.
package memprovider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/password"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/google/uuid"
)

// DefaultEventBuffer is the event channel capacity when Config leaves it zero.
const DefaultEventBuffer = 64

// Config configures a [Provider].
type Config struct {
	Tokens      *jwt.Manager
	Hasher      *password.Hasher
	EventBuffer int
	// RevokeOnSignOut makes SignOut invalidate the session's refresh token
	// (global sign-out). By default SignOut only drops the local session and
	// the credential can be reinstalled with SetSession.
	RevokeOnSignOut bool
}

type user struct {
	id           string
	email        string
	passwordHash string
}

// grant is one live refresh token.
type grant struct {
	sid    string
	userID string
	email  string
}

// Provider is safe for concurrent use.
type Provider struct {
	tokens *jwt.Manager
	hasher *password.Hasher
	revoke bool

	mu          sync.Mutex
	users       map[string]user
	grants      map[string]grant
	current     *provider.Session
	unavailable bool
	closed      bool

	events  chan provider.Event
	seq     atomic.Uint64
	dropped atomic.Uint64
	signIns atomic.Uint64
}

// New creates a [Provider].
func New(cfg Config) (*Provider, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("memprovider: token manager required")
	}
	if cfg.Hasher == nil {
		h, err := password.New(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		cfg.Hasher = h
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	return &Provider{
		tokens: cfg.Tokens,
		hasher: cfg.Hasher,
		revoke: cfg.RevokeOnSignOut,
		users:  make(map[string]user),
		grants: make(map[string]grant),
		events: make(chan provider.Event, cfg.EventBuffer),
	}, nil
}

// AddUser registers an account. The password is stored hashed.
func (p *Provider) AddUser(id, email, plain string) error {
	hash, err := p.hasher.Hash(plain)
	if err != nil {
		return err
	}
	email = identity.NormalizeEmail(email)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[email] = user{id: id, email: email, passwordHash: hash}
	return nil
}

// SignIn describes the signin operation and its observable behavior.
func (p *Provider) SignIn(ctx context.Context, creds provider.Credentials) (*provider.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email := identity.NormalizeEmail(creds.Email)

	p.mu.Lock()
	if p.unavailable {
		p.mu.Unlock()
		return nil, provider.ErrUnavailable
	}
	u, ok := p.users[email]
	p.mu.Unlock()
	if !ok {
		return nil, provider.ErrInvalidCredentials
	}

	match, err := p.hasher.Verify(creds.Password, u.passwordHash)
	if err != nil || !match {
		return nil, provider.ErrInvalidCredentials
	}

	g := grant{sid: uuid.NewString(), userID: u.id, email: u.email}
	refresh := uuid.NewString()
	s, err := p.issue(g, refresh)
	if err != nil {
		return nil, err
	}
	p.signIns.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants[refresh] = g
	p.current = s
	p.emitLocked(provider.EventSignedIn, s)
	return s.Clone(), nil
}

// SignOut drops the current session and emits SignedOut. Signing out with
// no session is a no-op.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavailable {
		return provider.ErrUnavailable
	}
	if p.current == nil {
		return nil
	}
	if p.revoke {
		delete(p.grants, p.current.RefreshToken)
	}
	p.current = nil
	p.emitLocked(provider.EventSignedOut, nil)
	return nil
}

// SetSession installs a previously issued session. An expired access token
// is rotated through its refresh token; the returned session is the one now
// held.
func (p *Provider) SetSession(ctx context.Context, s *provider.Session) (*provider.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.RefreshToken == "" {
		return nil, provider.ErrInvalidSession
	}

	p.mu.Lock()
	if p.unavailable {
		p.mu.Unlock()
		return nil, provider.ErrUnavailable
	}
	g, ok := p.grants[s.RefreshToken]
	p.mu.Unlock()
	if !ok {
		return nil, provider.ErrInvalidSession
	}

	var installed *provider.Session
	claims, err := p.tokens.ParseAccess(s.AccessToken)
	switch {
	case err == nil && claims.Subject == g.userID && claims.SID == g.sid:
		installed = s.Clone()
	case err == nil:
		return nil, provider.ErrInvalidSession
	default:
		owner, ownerErr := provider.OwnerOf(s)
		if ownerErr != nil || owner != g.userID {
			return nil, provider.ErrInvalidSession
		}
		installed, err = p.issue(g, s.RefreshToken)
		if err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, still := p.grants[s.RefreshToken]; !still {
		return nil, provider.ErrInvalidSession
	}
	p.current = installed
	p.emitLocked(provider.EventSignedIn, installed)
	return installed.Clone(), nil
}

// GetSession describes the getsession operation and its observable behavior.
func (p *Provider) GetSession(ctx context.Context) (*provider.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavailable {
		return nil, provider.ErrUnavailable
	}
	return p.current.Clone(), nil
}

// Refresh rotates the current access token and emits TokenRefreshed, as a
// hosted provider does shortly before expiry.
func (p *Provider) Refresh(ctx context.Context) (*provider.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	cur := p.current
	var (
		g  grant
		ok bool
	)
	if cur != nil {
		g, ok = p.grants[cur.RefreshToken]
	}
	p.mu.Unlock()
	if !ok {
		return nil, provider.ErrInvalidSession
	}

	s, err := p.issue(g, cur.RefreshToken)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
	p.emitLocked(provider.EventTokenRefreshed, s)
	return s.Clone(), nil
}

// TouchUser emits UserUpdated for the current session.
func (p *Provider) TouchUser() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.emitLocked(provider.EventUserUpdated, p.current)
	}
}

// Revoke invalidates every refresh token issued to userID, as an
// administrator would. The current session is kept in memory but can no
// longer be reinstalled.
func (p *Provider) Revoke(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for token, g := range p.grants {
		if g.userID == userID {
			delete(p.grants, token)
		}
	}
}

// SetUnavailable makes every call fail with provider.ErrUnavailable.
func (p *Provider) SetUnavailable(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = down
}

// Events describes the events operation and its observable behavior.
func (p *Provider) Events() <-chan provider.Event {
	return p.events
}

// LastSeq describes the lastseq operation and its observable behavior.
func (p *Provider) LastSeq() uint64 {
	return p.seq.Load()
}

// Dropped returns how many events were discarded because the channel was full.
func (p *Provider) Dropped() uint64 {
	return p.dropped.Load()
}

// SignIns returns how many successful password sign-ins happened.
func (p *Provider) SignIns() uint64 {
	return p.signIns.Load()
}

// Close stops event delivery and closes the channel.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.events)
}

func (p *Provider) issue(g grant, refresh string) (*provider.Session, error) {
	access, expires, err := p.tokens.CreateAccess(g.userID, g.sid, g.email)
	if err != nil {
		return nil, err
	}
	return &provider.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       g.userID,
		Email:        g.email,
		ExpiresAt:    expires,
	}, nil
}

// emitLocked assigns the next sequence number and publishes without blocking.
// The sequence advances even when the event is dropped.
func (p *Provider) emitLocked(typ provider.EventType, s *provider.Session) {
	ev := provider.Event{Seq: p.seq.Add(1), Type: typ, Session: s.Clone()}
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

var _ provider.Provider = (*Provider)(nil)
