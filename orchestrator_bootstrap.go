package multiauth

import (
	"context"

	"github.com/MrEthical07/multiauth/failure"
	"github.com/MrEthical07/multiauth/kv"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/sirupsen/logrus"
)

// bootstrap restores state at process start:
//
//   - the logged-out flag surfaces the cached accounts without authenticating;
//   - a live provider session is resolved and activated;
//   - a transient failure keeps the previously active cached identity;
//   - any other failure signs the provider out.
func (o *Orchestrator) bootstrap(ctx context.Context) {
	op := o.begin("bootstrap")
	defer o.finishBootstrap(op)
	log := o.log.WithField("op_id", op.id)

	if err := o.accounts.Load(ctx); err != nil {
		log.WithError(err).Warn("load cached accounts failed")
	}

	flag, loggedOut, err := o.kv.Get(ctx, kv.KeyLoggedOut)
	if err != nil {
		log.WithError(err).Warn("read logged-out flag failed")
	}
	if loggedOut && flag != "" {
		log.Info("explicitly logged out, waiting for login or switch")
		o.emitAudit(ctx, op, auditEventBootstrap, true, "", "", nil, func() map[string]string {
			return map[string]string{"outcome": "logged_out"}
		})
		return
	}

	sess, err := o.provider.GetSession(ctx)
	if err != nil {
		o.degrade(ctx, op, failure.New(failure.CodeTransientNetwork, "bootstrap", err))
		return
	}
	if sess == nil {
		o.emitAudit(ctx, op, auditEventBootstrap, true, "", "", nil, func() map[string]string {
			return map[string]string{"outcome": "no_session"}
		})
		return
	}

	owner, err := provider.OwnerOf(sess)
	if err != nil {
		log.WithError(err).Warn("provider session has no owner")
		o.forceSignOut(ctx, op, "", err)
		return
	}

	resolved, err := o.resolve(ctx, owner, sess.Email)
	if err != nil {
		if failure.IsTransient(err) {
			o.degrade(ctx, op, err)
			return
		}
		o.forceSignOut(ctx, op, owner, err)
		return
	}

	_ = o.commit(op, func() {
		o.activate(ctx, resolved, sess)
	})
	o.emitAudit(ctx, op, auditEventBootstrap, true, resolved.ID, resolved.TenantID, nil, func() map[string]string {
		return map[string]string{"outcome": "resolved"}
	})
}

// degrade keeps the previously active cached identity, authenticated, when
// resolution failed transiently.
func (o *Orchestrator) degrade(ctx context.Context, op operation, cause error) {
	cached, ok := o.accounts.Active()
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "kind": failure.KindOf(cause).String()})

	if !ok {
		log.WithError(cause).Warn("transient bootstrap failure with no cached identity")
		o.emitAudit(ctx, op, auditEventBootstrap, false, "", "", cause, nil)
		return
	}

	o.metrics.Inc(MetricTransientDegrade)
	log.WithError(cause).WithField("identity_id", cached.ID).Warn("transient bootstrap failure, using cached identity")
	_ = o.commit(op, func() {
		o.mu.Lock()
		o.active = &cached
		o.authenticated = true
		o.mu.Unlock()
	})
	o.emitAudit(ctx, op, auditEventBootstrap, true, cached.ID, cached.TenantID, cause, func() map[string]string {
		return map[string]string{"outcome": "degraded"}
	})
}

// forceSignOut signs the provider out and clears the authenticated state
// after a failure that must not be tolerated.
func (o *Orchestrator) forceSignOut(ctx context.Context, op operation, identityID string, cause error) {
	o.metrics.Inc(MetricForcedSignOut)
	o.log.WithError(cause).WithFields(logrus.Fields{
		"op_id":       op.id,
		"identity_id": identityID,
		"code":        string(failure.CodeOf(cause)),
	}).Warn("forcing sign-out")

	o.signOut(ctx, op.name)
	_ = o.commit(op, func() {
		o.deactivate(ctx, false)
	})
	o.emitAudit(ctx, op, auditEventForcedSignOut, true, identityID, "", cause, nil)
}

func (o *Orchestrator) finishBootstrap(op operation) {
	o.end(op)
	o.mu.Lock()
	o.bootstrapped = true
	o.mu.Unlock()
}
