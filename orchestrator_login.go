package multiauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/internal/rate"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/MrEthical07/multiauth/vault"
	"github.com/sirupsen/logrus"
)

// Login signs creds in and makes the resulting identity active.
//
// With adding set, the provider is first signed out of whatever session it
// holds so the new sign-in does not collide with it; the previously active
// identity keeps its cached entry and vault slot. Malformed or throttled
// credentials change nothing; any later failure leaves the provider signed
// out and the state unauthenticated.
func (o *Orchestrator) Login(ctx context.Context, creds Credentials, adding bool) (*Identity, error) {
	if err := o.ready(); err != nil {
		return nil, err
	}
	op := o.begin("login")
	defer o.end(op)

	creds.Email = identity.NormalizeEmail(creds.Email)
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "adding": adding})

	// Shape and throttle rejections happen before the provider is touched,
	// so the current session and state stay as they are.
	if err := o.validate.Struct(creds); err != nil {
		o.metrics.Inc(MetricLoginFailure)
		o.emitAudit(ctx, op, auditEventLoginFailure, false, "", "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err), nil)
		return nil, fmt.Errorf("%w: malformed credentials", ErrInvalidCredentials)
	}

	if err := o.limiter.Check(ctx, creds.Email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			o.metrics.Inc(MetricLoginRateLimited)
			o.emitAudit(ctx, op, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
		// Throttle storage down: fail open, the provider has its own limits.
		log.WithError(err).Warn("login throttle unavailable")
	}

	if adding {
		o.parkCurrentSession(ctx, log)
	}

	sess, err := o.provider.SignIn(ctx, creds)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidCredentials) {
			err = fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		o.loginFailed(ctx, op, creds.Email, err, true)
		return nil, err
	}

	owner, err := provider.OwnerOf(sess)
	if err != nil {
		o.loginFailed(ctx, op, creds.Email, err, false)
		return nil, err
	}

	resolved, err := o.resolve(ctx, owner, firstNonEmpty(sess.Email, creds.Email))
	if err != nil {
		o.loginFailed(ctx, op, creds.Email, err, false)
		return nil, err
	}

	var out Identity
	err = o.commit(op, func() {
		if mErr := o.vault.MigrateCurrentTo(ctx, resolved.ID); mErr != nil {
			log.WithError(mErr).Warn("migrate session into vault slot failed")
		}
		if o.config.Credentials.CacheEnabled {
			if cErr := o.vault.SaveCredentials(ctx, creds); cErr != nil {
				log.WithError(cErr).Warn("cache credentials failed")
			}
		}
		o.activate(ctx, resolved, nil)
		o.navigate(o.config.Routes.LandingFor(resolved.Role))
		o.mu.Lock()
		out = *o.active
		o.mu.Unlock()
	})
	if err != nil {
		o.emitAudit(ctx, op, auditEventLoginFailure, false, resolved.ID, resolved.TenantID, err, nil)
		return nil, err
	}

	if rErr := o.limiter.Reset(ctx, creds.Email); rErr != nil {
		log.WithError(rErr).Warn("reset login throttle failed")
	}
	o.metrics.Inc(MetricLoginSuccess)
	o.emitAudit(ctx, op, auditEventLoginSuccess, true, resolved.ID, resolved.TenantID, nil, func() map[string]string {
		return map[string]string{"adding": fmt.Sprint(adding), "role": string(resolved.Role)}
	})

	return &out, nil
}

// parkCurrentSession saves the provider's current session into its owner's
// slot and signs the provider out, leaving the cached state untouched.
func (o *Orchestrator) parkCurrentSession(ctx context.Context, log logrus.FieldLogger) {
	cur, err := o.provider.GetSession(ctx)
	if err != nil {
		log.WithError(err).Warn("read current session before adding account failed")
	}
	if cur == nil {
		return
	}
	if owner, oErr := provider.OwnerOf(cur); oErr == nil {
		if _, known := o.accounts.Get(owner); known {
			if sErr := o.vault.Set(ctx, owner, cur); sErr != nil && !errors.Is(sErr, vault.ErrOwnerMismatch) {
				log.WithError(sErr).Warn("park current session failed")
			}
		}
	}
	if err := o.provider.SignOut(ctx); err != nil {
		log.WithError(err).Warn("sign out before adding account failed")
	}
}

// loginFailed records a failed login and leaves the provider signed out and
// the state unauthenticated. countAttempt feeds the throttle; only provider
// rejections count.
func (o *Orchestrator) loginFailed(ctx context.Context, op operation, email string, cause error, countAttempt bool) {
	o.metrics.Inc(MetricLoginFailure)
	if countAttempt && errors.Is(cause, ErrInvalidCredentials) {
		if err := o.limiter.Fail(ctx, email); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			o.log.WithError(err).Warn("record failed login failed")
		}
	}
	if o.current(op) {
		o.signOut(ctx, op.name)
	}
	_ = o.commit(op, func() {
		o.mu.Lock()
		o.active = nil
		o.authenticated = false
		o.mu.Unlock()
	})
	o.emitAudit(ctx, op, auditEventLoginFailure, false, "", "", cause, nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
