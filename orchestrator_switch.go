package multiauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/multiauth/failure"
	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/kv"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/MrEthical07/multiauth/vault"
	"github.com/sirupsen/logrus"
)

// SwitchAccount makes the cached identity target active.
//
// When target is already active and authenticated only navigation happens.
// Otherwise the target's vault slot (or, when enabled, its cached raw
// credentials) is applied to the provider, the live session's owner is
// checked against target and the profile is resolved again. Failures commit
// nothing and restore the previous active pointer; the returned error
// matches [ErrSwitchFailed] and the cause.
func (o *Orchestrator) SwitchAccount(ctx context.Context, target string) error {
	if err := o.ready(); err != nil {
		return err
	}
	op := o.begin("switch")
	defer o.end(op)

	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "target_id": target})

	fast := false
	if err := o.commit(op, func() {
		active, authenticated := o.snapshot()
		fast = authenticated && active != nil && active.ID == target
		if fast {
			o.navigate(o.config.Routes.LandingFor(active.Role))
		}
	}); err != nil {
		return err
	}
	if fast {
		o.metrics.Inc(MetricSwitchFastPath)
		o.metrics.Inc(MetricSwitchSuccess)
		return nil
	}

	prevID := o.accounts.ActiveID()
	prev := ""
	if active, authenticated := o.snapshot(); authenticated && active != nil {
		prev = active.ID
	}

	cached, ok := o.accounts.Get(target)
	if !ok {
		return o.switchFailed(ctx, op, prevID, prev, target, ErrUnknownAccount)
	}

	if err := o.kv.Remove(ctx, kv.KeyLoggedOut); err != nil {
		log.WithError(err).Warn("clear logged-out flag failed")
	}
	if err := o.accounts.SetActive(ctx, target); err != nil {
		log.WithError(err).Warn("set active pointer failed")
	}
	if prev != "" {
		o.saveLiveSession(ctx, prev, log)
	}

	if err := o.applyTargetSession(ctx, cached, log); err != nil {
		return o.switchFailed(ctx, op, prevID, prev, target, err)
	}

	live, err := o.provider.GetSession(ctx)
	if err != nil {
		return o.switchFailed(ctx, op, prevID, prev, target, err)
	}
	if live == nil {
		return o.switchFailed(ctx, op, prevID, prev, target, ErrNoLiveSession)
	}

	owner, err := provider.OwnerOf(live)
	if err != nil {
		return o.switchFailed(ctx, op, prevID, prev, target, err)
	}
	if owner != target {
		o.metrics.Inc(MetricSwitchOwnerMismatch)
		if !o.config.Switch.AllowOwnerMismatch {
			return o.switchFailed(ctx, op, prevID, prev, target, failure.New(failure.CodeSessionMismatch, op.name,
				fmt.Errorf("live session belongs to %s", owner)))
		}
		log.WithField("owner_id", owner).Warn("live session owner differs from target, continuing")
	}

	resolved, err := o.resolve(ctx, owner, firstNonEmpty(live.Email, cached.Email))
	if err != nil {
		return o.switchFailed(ctx, op, prevID, prev, target, err)
	}

	if err := o.commit(op, func() {
		o.activate(ctx, resolved, live)
		o.navigate(o.config.Routes.LandingFor(resolved.Role))
	}); err != nil {
		return err
	}

	o.metrics.Inc(MetricSwitchSuccess)
	o.emitAudit(ctx, op, auditEventSwitchSuccess, true, resolved.ID, resolved.TenantID, nil, nil)
	return nil
}

// applyTargetSession hands the target's cached credential to the provider.
func (o *Orchestrator) applyTargetSession(ctx context.Context, target identity.Identity, log logrus.FieldLogger) error {
	sess, err := o.vault.Get(ctx, target.ID)
	switch {
	case err == nil:
		if _, err := o.provider.SetSession(ctx, sess); err != nil {
			return err
		}
		return nil
	case !errors.Is(err, vault.ErrNotFound):
		return err
	}

	if !o.config.Credentials.CacheEnabled {
		return ErrNoCachedSession
	}
	creds, cErr := o.vault.Credentials(ctx, target.Email)
	if cErr != nil {
		if errors.Is(cErr, vault.ErrNotFound) {
			return ErrNoCachedSession
		}
		return cErr
	}

	log.Info("no cached session, signing in with cached credentials")
	o.metrics.Inc(MetricSwitchCredentialFallback)
	if _, err := o.provider.SignIn(ctx, creds); err != nil {
		if errors.Is(err, provider.ErrInvalidCredentials) {
			// Password changed since it was cached.
			if rErr := o.vault.RemoveCredentials(ctx, target.Email); rErr != nil {
				log.WithError(rErr).Warn("drop stale cached credentials failed")
			}
		}
		return err
	}
	return nil
}

// saveLiveSession stores the provider's current session in owner's slot so a
// failed switch can hand it back.
func (o *Orchestrator) saveLiveSession(ctx context.Context, owner string, log logrus.FieldLogger) {
	cur, err := o.provider.GetSession(ctx)
	if err != nil || cur == nil {
		return
	}
	if err := o.vault.Set(ctx, owner, cur); err != nil && !errors.Is(err, vault.ErrOwnerMismatch) {
		log.WithError(err).Warn("save live session before switch failed")
	}
}

// liveOwner returns the owner of the provider's current session, "" when
// there is none.
func (o *Orchestrator) liveOwner(ctx context.Context) (string, error) {
	live, err := o.provider.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if live == nil {
		return "", nil
	}
	return provider.OwnerOf(live)
}

// restoreProvider makes the provider hold prev's session again, or no session
// when prev is empty. It reports whether the provider ended up that way.
func (o *Orchestrator) restoreProvider(ctx context.Context, op operation, prev string) bool {
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "identity_id": prev})

	if owner, err := o.liveOwner(ctx); err == nil && owner == prev {
		return true
	}
	if prev == "" {
		o.signOut(ctx, op.name)
		return true
	}

	sess, err := o.vault.Get(ctx, prev)
	if err != nil {
		log.WithError(err).Warn("no session slot to restore after failed switch")
		return false
	}
	if _, err := o.provider.SetSession(ctx, sess); err != nil {
		log.WithError(err).Warn("restore previous session failed")
		return false
	}
	owner, err := o.liveOwner(ctx)
	if err != nil || owner != prev {
		log.WithField("owner_id", owner).Warn("restored session has the wrong owner")
		return false
	}
	return true
}

// switchFailed undoes a failed switch when op is still current and returns
// the caller-facing error. The provider is handed back the previously active
// identity's session and the pointer goes back to prevID. A blocking failure,
// or a provider that cannot be restored, signs out and clears the
// authenticated state instead.
func (o *Orchestrator) switchFailed(ctx context.Context, op operation, prevID, prev, target string, cause error) error {
	o.metrics.Inc(MetricSwitchFailure)
	o.log.WithError(cause).WithFields(logrus.Fields{"op_id": op.id, "target_id": target}).Warn("switch account failed")

	// A newer operation owns the provider now; leave it alone.
	if !o.current(op) {
		o.emitAudit(ctx, op, auditEventSwitchFailure, false, target, "", cause, nil)
		return errors.Join(ErrSwitchFailed, cause)
	}

	restored := false
	if !failure.IsBlocking(cause) {
		restored = o.restoreProvider(ctx, op, prev)
	}
	if !restored {
		o.signOut(ctx, op.name)
	}
	o.advanceFence()

	_ = o.commit(op, func() {
		if !restored {
			o.deactivate(ctx, false)
			return
		}
		if cur := o.accounts.ActiveID(); cur != prevID {
			if err := o.accounts.SetActive(ctx, prevID); err != nil {
				o.log.WithError(err).Warn("restore active pointer failed")
			}
		}
	})

	o.emitAudit(ctx, op, auditEventSwitchFailure, false, target, "", cause, nil)
	return errors.Join(ErrSwitchFailed, cause)
}
