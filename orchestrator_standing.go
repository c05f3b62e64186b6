package multiauth

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/multiauth/failure"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// startStanding schedules the periodic standing check. Overlapping runs are
// skipped and panics are recovered by the cron chain.
func (o *Orchestrator) startStanding() {
	cfg := o.config.Standing
	if !cfg.Enabled || cfg.Interval <= 0 {
		return
	}

	logger := cron.PrintfLogger(o.log.WithField("job", "standing_check"))
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Interval), func() {
		_ = o.CheckStanding(o.baseCtx)
	}); err != nil {
		o.log.WithError(err).Error("schedule standing check failed")
		return
	}

	o.mu.Lock()
	o.scheduler = c
	o.mu.Unlock()
	c.Start()
}

// CheckStanding re-resolves the active identity. A blocking failure signs
// the provider out, clears the authenticated state and navigates to the
// entry route; any other failure keeps the cached identity. Success
// refreshes the cached identity. Nothing happens while unauthenticated or
// while an explicit operation runs.
func (o *Orchestrator) CheckStanding(ctx context.Context) error {
	if err := o.ready(); err != nil {
		return err
	}

	o.mu.Lock()
	skip := !o.bootstrapped || !o.authenticated || o.active == nil || o.inflight > 0
	gen := o.generation
	var current Identity
	if o.active != nil {
		current = *o.active
	}
	o.mu.Unlock()
	if skip {
		return nil
	}

	o.metrics.Inc(MetricStandingCheck)
	op := operation{gen: gen, id: uuid.NewString(), name: "standing_check", start: time.Now()}
	log := o.log.WithFields(logrus.Fields{"op_id": op.id, "identity_id": current.ID})

	resolved, err := o.resolve(ctx, current.ID, current.Email)
	if err != nil {
		if failure.IsBlocking(err) {
			o.forcePassiveSignOut(ctx, op, current.ID, err)
			return err
		}
		log.WithError(err).WithField("kind", failure.KindOf(err).String()).Warn("standing check failed, keeping cached identity")
		o.emitAudit(ctx, op, auditEventStandingCheckError, false, current.ID, current.TenantID, err, nil)
		return err
	}

	o.commitPassive(gen, func() {
		active, authenticated := o.snapshot()
		if !authenticated || active == nil || active.ID != resolved.ID {
			return
		}
		o.activate(ctx, resolved, nil)
	})
	return nil
}
