package multiauth

import (
	"context"
	"time"

	"github.com/MrEthical07/multiauth/failure"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// loop consumes provider events until Dispose or until the provider closes
// its channel.
func (o *Orchestrator) loop() {
	defer close(o.loopDone)

	events := o.provider.Events()
	for {
		select {
		case <-o.stop:
			return
		case <-o.baseCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				o.log.Info("provider event stream closed")
				return
			}
			o.handleEvent(o.baseCtx, ev)
		}
	}
}

// handleEvent applies one provider event unless an explicit operation owns
// the state. Events are dropped while an operation runs, before bootstrap
// completes and when they were caused by an operation that already ended.
func (o *Orchestrator) handleEvent(ctx context.Context, ev provider.Event) {
	o.mu.Lock()
	accepted := o.bootstrapped && o.inflight == 0 && ev.Seq > o.fence && !o.disposed
	gen := o.generation
	var active *Identity
	if o.active != nil {
		c := *o.active
		active = &c
	}
	authenticated := o.authenticated
	o.mu.Unlock()

	log := o.log.WithFields(logrus.Fields{"event": ev.Type.String(), "seq": ev.Seq})
	if !accepted {
		o.metrics.Inc(MetricNotificationDropped)
		log.Debug("provider event dropped")
		return
	}
	op := operation{gen: gen, id: uuid.NewString(), name: "notification", start: time.Now()}

	if ev.Type == provider.EventSignedOut || ev.Session == nil {
		o.applyPassive(ctx, op, log, func() {
			o.deactivate(ctx, false)
		}, "", "")
		return
	}

	owner, err := provider.OwnerOf(ev.Session)
	if err != nil {
		o.metrics.Inc(MetricNotificationDropped)
		log.WithError(err).Warn("provider event session has no owner")
		return
	}
	log = log.WithField("identity_id", owner)

	if authenticated && active != nil && active.ID == owner && ev.Type != provider.EventSignedIn {
		sess := ev.Session
		if o.commitPassive(gen, func() {
			if err := o.vault.Set(ctx, owner, sess); err != nil {
				log.WithError(err).Warn("refresh session slot failed")
			}
		}) {
			o.metrics.Inc(MetricTokenRefreshSkipped)
		} else {
			o.metrics.Inc(MetricNotificationDropped)
		}
		return
	}

	resolved, err := o.resolve(ctx, owner, ev.Session.Email)
	if err != nil {
		if !failure.IsBlocking(err) {
			log.WithError(err).Warn("resolve for provider event failed")
			o.emitAudit(ctx, op, auditEventNotificationApply, false, owner, "", err, nil)
			return
		}
		o.forcePassiveSignOut(ctx, op, owner, err)
		return
	}

	sess := ev.Session
	o.applyPassive(ctx, op, log, func() {
		o.activate(ctx, resolved, sess)
		if ev.Type == provider.EventSignedIn {
			o.navigate(o.config.Routes.LandingFor(resolved.Role))
		}
	}, resolved.ID, resolved.TenantID)
}

func (o *Orchestrator) applyPassive(ctx context.Context, op operation, log logrus.FieldLogger, apply func(), identityID, tenantID string) {
	if !o.commitPassive(op.gen, apply) {
		o.metrics.Inc(MetricNotificationDropped)
		log.Debug("provider event superseded by explicit operation")
		return
	}
	o.metrics.Inc(MetricNotificationApplied)
	o.emitAudit(ctx, op, auditEventNotificationApply, true, identityID, tenantID, nil, nil)
}

// forcePassiveSignOut handles a blocking failure found outside an explicit
// operation. Nothing happens when an explicit operation has started since
// op was accepted.
func (o *Orchestrator) forcePassiveSignOut(ctx context.Context, op operation, identityID string, cause error) {
	if !o.passiveCurrent(op.gen) {
		o.metrics.Inc(MetricNotificationDropped)
		return
	}
	o.log.WithError(cause).WithFields(logrus.Fields{
		"op":          op.name,
		"identity_id": identityID,
		"code":        string(failure.CodeOf(cause)),
	}).Warn("forcing sign-out")

	o.signOut(ctx, op.name)
	if !o.commitPassive(op.gen, func() {
		o.deactivate(ctx, false)
		o.navigate(o.config.Routes.Entry)
	}) {
		return
	}
	o.metrics.Inc(MetricForcedSignOut)
	o.emitAudit(ctx, op, auditEventForcedSignOut, true, identityID, "", cause, nil)
}

func (o *Orchestrator) passiveCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen && o.inflight == 0 && !o.disposed
}
