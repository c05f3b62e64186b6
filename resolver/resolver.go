// Package resolver determines an identity's role, tenant and display
// attributes from a fragmented, eventually consistent directory.
//
// Resolution is a prioritized lookup: the canonical profile first, then a
// parallel sweep over role-specific tables. When the data is inconsistent the
// resolver writes the answer back so the next resolution takes the fast path.
package resolver

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/multiauth/failure"
	"github.com/MrEthical07/multiauth/identity"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a whole resolution.
const DefaultTimeout = 30 * time.Second

const op = "resolve"

var (
	// ErrUserDisabled is the blocking failure for a disabled profile.
	ErrUserDisabled = failure.New(failure.CodeUserDisabled, "", nil)
	// ErrTenantInactive is the blocking failure for an inactive or deleted tenant.
	ErrTenantInactive = failure.New(failure.CodeTenantInactive, "", nil)
	// ErrNoRole means neither role nor tenant could be established.
	ErrNoRole = failure.New(failure.CodeNoRole, "", nil)
	// ErrTimeout means the resolution did not finish in time.
	ErrTimeout = failure.New(failure.CodeTransientTimeout, "", nil)
)

// Config tunes a [Resolver].
type Config struct {
	Timeout time.Duration
}

// Resolver runs profile resolution against a [Directory].
type Resolver struct {
	dir     Directory
	timeout time.Duration
	log     logrus.FieldLogger
}

// New creates a [Resolver]. A nil logger discards output.
func New(dir Directory, cfg Config, log logrus.FieldLogger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Resolver{
		dir:     dir,
		timeout: cfg.Timeout,
		log:     log.WithField("component", "resolver"),
	}
}

type resolveResult struct {
	id  *identity.Identity
	err error
}

// Resolve returns the fully populated identity for id and email, or a
// [failure.Error]. The lookup is raced against the configured timeout; a
// directory that ignores cancellation cannot hold the caller past it.
func (r *Resolver) Resolve(ctx context.Context, id, email string) (*identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan resolveResult, 1)
	go func() {
		out, err := r.resolve(ctx, id, email)
		done <- resolveResult{id: out, err: err}
	}()

	select {
	case res := <-done:
		return res.id, res.err
	case <-ctx.Done():
		return nil, failure.Classify(op, ctx.Err())
	}
}

func (r *Resolver) resolve(ctx context.Context, id, email string) (*identity.Identity, error) {
	email = identity.NormalizeEmail(email)
	log := r.log.WithField("identity_id", id)

	profile, err := r.dir.Profile(ctx, id)
	if err != nil {
		return nil, r.classify(err)
	}

	out := &identity.Identity{ID: id, Email: email}
	if profile != nil {
		if profile.Email != "" && out.Email == "" {
			out.Email = identity.NormalizeEmail(profile.Email)
		}
		out.DisplayName = profile.FullName
		out.AvatarURL = profile.AvatarURL
		out.ForcePasswordChange = profile.ForcePasswordChange

		if profile.Role == identity.RolePlatformAdmin {
			out.Role = identity.RolePlatformAdmin
			out.TenantID = profile.TenantID
			return out, nil
		}
		if profile.Status == ProfileDisabled {
			return nil, failure.New(failure.CodeUserDisabled, op, nil)
		}
		out.Role = profile.Role
		out.TenantID = profile.TenantID
	}

	if out.Role == "" {
		m, err := r.lookupMemberships(ctx, id, out.Email)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out.Role = m.Source.Role()
			if out.TenantID == "" {
				out.TenantID = m.TenantID
			}
			if out.DisplayName == "" {
				out.DisplayName = m.Name
			}
		}
	}
	if out.Role == "" && out.TenantID != "" {
		out.Role = identity.RoleStudent
	}
	if out.Role == "" {
		return nil, failure.New(failure.CodeNoRole, op, nil)
	}

	if out.TenantID != "" {
		tenant, err := r.dir.Tenant(ctx, out.TenantID)
		if err != nil {
			return nil, r.classify(err)
		}
		if tenant != nil {
			if tenant.Status == TenantInactive || tenant.Status == TenantDeleted {
				return nil, failure.New(failure.CodeTenantInactive, op, nil)
			}
			out.TenantName = tenant.Name
			out.TenantCode = tenant.Code
		}
	}

	if out.Role == identity.RoleParent {
		r.reconcileParent(ctx, out, log)
	}

	if profile == nil || profile.Role == "" || profile.TenantID == "" {
		if err := r.dir.UpdateProfileRole(ctx, id, out.Role, out.TenantID); err != nil {
			log.WithError(err).Warn("profile self-heal write failed")
		}
	}

	attrs, err := r.dir.Attributes(ctx, out.Role, id, out.Email)
	if err != nil {
		log.WithError(err).Warn("display attribute lookup failed")
	} else if attrs != nil {
		attrs.Apply(out)
	}

	return out, nil
}

// lookupMemberships queries every role table concurrently and returns the
// match with the highest priority. A failed lookup ranked at or above the
// best match fails the resolution, so a lower-privilege role is never
// assigned while a higher one is unknown.
func (r *Resolver) lookupMemberships(ctx context.Context, id, email string) (*Membership, error) {
	results := make([]*Membership, len(Priority))
	errs := make([]error, len(Priority))

	var g errgroup.Group
	for i, src := range Priority {
		i, src := i, src
		g.Go(func() error {
			m, err := r.dir.FindMembership(ctx, src, id, email)
			if m != nil && m.Source != src {
				m.Source = src
			}
			results[i], errs[i] = m, err
			return nil
		})
	}
	_ = g.Wait()

	for i := range Priority {
		if errs[i] != nil {
			return nil, r.classify(errs[i])
		}
		if results[i] != nil {
			return results[i], nil
		}
	}
	return nil, nil
}

// reconcileParent keeps the canonical parent row in sync and links students
// whose parent email matches. Failures never fail the resolution.
func (r *Resolver) reconcileParent(ctx context.Context, id *identity.Identity, log logrus.FieldLogger) {
	err := r.dir.UpsertParent(ctx, ParentRecord{
		ID:       id.ID,
		TenantID: id.TenantID,
		Email:    id.Email,
		FullName: id.DisplayName,
	})
	if err != nil {
		log.WithError(err).Warn("parent upsert failed")
		return
	}
	if id.Email == "" {
		return
	}
	linked, err := r.dir.LinkStudentsByParentEmail(ctx, id.ID, id.TenantID, id.Email)
	if err != nil {
		log.WithError(err).Warn("student auto-link failed")
		return
	}
	if linked > 0 {
		log.WithField("linked", linked).Info("linked students to parent")
	}
}

func (r *Resolver) classify(err error) error {
	return failure.Classify(op, err, ErrUnavailable)
}
