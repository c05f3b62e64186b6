package multiauth

import (
	"context"
	"strings"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/sirupsen/logrus"
)

// Logout signs out the active identity (LogoutCurrent) or every cached
// identity (LogoutAll) and navigates to the entry route.
//
// LogoutCurrent keeps the identity in the account list so it can be picked
// again; its session slot is dropped since that session is no longer valid.
// LogoutAll empties the account list. Failures of individual steps are
// logged, never returned.
func (o *Orchestrator) Logout(ctx context.Context, scope LogoutScope) {
	if err := o.ready(); err != nil {
		o.log.WithError(err).Warn("logout ignored")
		return
	}
	op := o.begin("logout_" + scope.String())
	defer o.end(op)

	if scope == LogoutAll {
		o.logoutAll(ctx, op)
		return
	}
	id := o.logoutCurrent(ctx, op)
	err := o.commit(op, func() {
		o.deactivate(ctx, true)
		o.navigate(o.config.Routes.Entry)
	})
	if err != nil {
		return
	}
	o.metrics.Inc(MetricLogout)
	o.emitAudit(ctx, op, auditEventLogout, true, id, "", nil, nil)
}

// logoutCurrent signs the provider out and drops the active identity's push
// registration and session slot. It returns the identity id, "" when none
// was active.
func (o *Orchestrator) logoutCurrent(ctx context.Context, op operation) string {
	id := o.accounts.ActiveID()
	if active, _ := o.snapshot(); active != nil {
		id = active.ID
	}
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "identity_id": id})

	if err := o.provider.SignOut(ctx); err != nil {
		log.WithError(err).Warn("provider sign-out failed")
	}
	if id == "" {
		return ""
	}
	if err := o.push.Revoke(ctx, id); err != nil {
		log.WithError(err).Warn("revoke push registration failed")
	}
	if err := o.vault.Remove(ctx, id); err != nil {
		log.WithError(err).Warn("remove session slot failed")
	}
	return id
}

// logoutAll applies each cached session in turn so the provider can sign it
// out, then forgets every identity.
func (o *Orchestrator) logoutAll(ctx context.Context, op operation) {
	list := o.accounts.List()
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "count": len(list)})

	for _, id := range list {
		o.signOutCached(ctx, id, log.WithField("identity_id", id.ID))
	}
	if err := o.provider.SignOut(ctx); err != nil {
		log.WithError(err).Warn("final provider sign-out failed")
	}

	err := o.commit(op, func() {
		if err := o.accounts.Clear(ctx); err != nil {
			log.WithError(err).Warn("clear account list failed")
		}
		o.deactivate(ctx, true)
		o.navigate(o.config.Routes.Entry)
	})
	if err != nil {
		return
	}
	o.metrics.Inc(MetricLogoutAll)
	o.emitAudit(ctx, op, auditEventLogoutAll, true, "", "", nil, func() map[string]string {
		ids := make([]string, 0, len(list))
		for _, id := range list {
			ids = append(ids, id.ID)
		}
		return map[string]string{"identities": strings.Join(ids, ",")}
	})
}

func (o *Orchestrator) signOutCached(ctx context.Context, id identity.Identity, log logrus.FieldLogger) {
	if sess, err := o.vault.Get(ctx, id.ID); err == nil {
		if _, err := o.provider.SetSession(ctx, sess); err != nil {
			log.WithError(err).Warn("apply cached session for sign-out failed")
		} else if err := o.provider.SignOut(ctx); err != nil {
			log.WithError(err).Warn("provider sign-out failed")
		}
	}
	if err := o.push.Revoke(ctx, id.ID); err != nil {
		log.WithError(err).Warn("revoke push registration failed")
	}
	if err := o.vault.Remove(ctx, id.ID); err != nil {
		log.WithError(err).Warn("remove session slot failed")
	}
	if err := o.vault.RemoveCredentials(ctx, id.Email); err != nil {
		log.WithError(err).Warn("remove cached credentials failed")
	}
}

// ForgetAccount deletes a cached identity, logging it out first when it is
// active. Its session slot and cached credentials go with it.
func (o *Orchestrator) ForgetAccount(ctx context.Context, id string) {
	if err := o.ready(); err != nil {
		o.log.WithError(err).Warn("forget account ignored")
		return
	}
	op := o.begin("forget")
	defer o.end(op)
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "identity_id": id})

	cached, known := o.accounts.Get(id)
	wasActive := o.accounts.ActiveID() == id
	if active, _ := o.snapshot(); active != nil && active.ID == id {
		wasActive = true
	}
	if wasActive {
		o.logoutCurrent(ctx, op)
	}

	err := o.commit(op, func() {
		if err := o.vault.Remove(ctx, id); err != nil {
			log.WithError(err).Warn("remove session slot failed")
		}
		if known {
			if err := o.vault.RemoveCredentials(ctx, cached.Email); err != nil {
				log.WithError(err).Warn("remove cached credentials failed")
			}
		}
		if err := o.accounts.Remove(ctx, id); err != nil {
			log.WithError(err).Warn("remove cached identity failed")
		}
		if wasActive {
			o.deactivate(ctx, true)
			o.navigate(o.config.Routes.Entry)
		}
	})
	if err != nil {
		return
	}
	o.metrics.Inc(MetricForgetAccount)
	o.emitAudit(ctx, op, auditEventForgetAccount, true, id, cached.TenantID, nil, func() map[string]string {
		return map[string]string{"was_active": boolString(wasActive)}
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
