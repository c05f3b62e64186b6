package multiauth

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/internal/rate"
	"github.com/MrEthical07/multiauth/kv"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Orchestrator coordinates the cached identities of one device with an
// external auth provider.
//
// Explicit operations (Init, Login, SwitchAccount, Logout, ForgetAccount)
// each take a new generation number when they start and commit only if no
// newer explicit operation has started since. Provider events are handled
// on one goroutine and are dropped while an explicit operation runs, before
// bootstrap completes, or when their sequence number is at or below the
// fence recorded at the end of the last explicit operation.
type Orchestrator struct {
	config   Config
	log      logrus.FieldLogger
	kv       kv.Store
	accounts AccountStore
	vault    SessionVault
	resolver ProfileResolver
	provider provider.Provider
	push     PushRegistry
	nav      Navigator
	limiter  *rate.Limiter
	validate *validator.Validate
	audit    *auditDispatcher
	metrics  *Metrics

	// commitMu is held across a generation check and the writes it guards,
	// so commits are applied in the order they were checked.
	commitMu sync.Mutex

	mu            sync.Mutex
	active        *identity.Identity
	authenticated bool
	generation    uint64
	inflight      int
	fence         uint64
	bootstrapped  bool
	disposed      bool

	initOnce    sync.Once
	disposeOnce sync.Once
	baseCtx     context.Context
	cancel      context.CancelFunc
	scheduler   *cron.Cron
	stop        chan struct{}
	loopDone    chan struct{}
}

// operation is the bookkeeping for one explicit call.
type operation struct {
	gen   uint64
	id    string
	name  string
	start time.Time
}

func (o *Orchestrator) begin(name string) operation {
	o.mu.Lock()
	o.generation++
	o.inflight++
	gen := o.generation
	o.mu.Unlock()

	return operation{gen: gen, id: uuid.NewString(), name: name, start: time.Now()}
}

// end records the provider's latest event sequence as the fence. Every event
// the operation caused was numbered before its provider calls returned.
func (o *Orchestrator) end(op operation) {
	seq := o.provider.LastSeq()

	o.mu.Lock()
	if seq > o.fence {
		o.fence = seq
	}
	o.inflight--
	o.mu.Unlock()
}

// current reports whether op is still the newest explicit operation.
func (o *Orchestrator) current(op operation) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == op.gen && !o.disposed
}

func (o *Orchestrator) advanceFence() {
	seq := o.provider.LastSeq()
	o.mu.Lock()
	if seq > o.fence {
		o.fence = seq
	}
	o.mu.Unlock()
}

// commit runs apply only if op is still the newest explicit operation.
func (o *Orchestrator) commit(op operation, apply func()) error {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()

	o.mu.Lock()
	current := o.generation == op.gen && !o.disposed
	o.mu.Unlock()
	if !current {
		o.metrics.Inc(MetricSuperseded)
		o.log.WithFields(logrus.Fields{"op": op.name, "op_id": op.id}).Info("operation superseded, not committing")
		return ErrSuperseded
	}
	apply()
	return nil
}

// commitPassive runs apply for event or background work accepted at
// generation accepted, provided no explicit operation started since and none
// is running.
func (o *Orchestrator) commitPassive(accepted uint64, apply func()) bool {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()

	o.mu.Lock()
	ok := o.generation == accepted && o.inflight == 0 && !o.disposed
	o.mu.Unlock()
	if !ok {
		return false
	}
	apply()
	return true
}

// activate makes id the authenticated identity. sess, when non-nil, refreshes
// its vault slot. Storage failures are logged; the in-memory state still
// moves.
func (o *Orchestrator) activate(ctx context.Context, id *identity.Identity, sess *provider.Session) {
	log := o.log.WithField("identity_id", id.ID)

	if sess != nil {
		if err := o.vault.Set(ctx, id.ID, sess); err != nil {
			log.WithError(err).Warn("refresh session slot failed")
		}
	}
	if err := o.accounts.Upsert(ctx, *id); err != nil {
		log.WithError(err).Warn("persist identity failed")
	}
	if err := o.accounts.SetActive(ctx, id.ID); err != nil {
		log.WithError(err).Warn("persist active pointer failed")
	}
	if err := o.kv.Remove(ctx, kv.KeyLoggedOut); err != nil {
		log.WithError(err).Warn("clear logged-out flag failed")
	}

	stored, ok := o.accounts.Get(id.ID)
	if !ok {
		stored = *id
	}
	o.mu.Lock()
	o.active = &stored
	o.authenticated = true
	o.mu.Unlock()
}

// deactivate clears the authenticated state and the active pointer.
func (o *Orchestrator) deactivate(ctx context.Context, markLoggedOut bool) {
	if err := o.accounts.SetActive(ctx, ""); err != nil {
		o.log.WithError(err).Warn("clear active pointer failed")
	}
	if markLoggedOut {
		if err := o.kv.Set(ctx, kv.KeyLoggedOut, "1"); err != nil {
			o.log.WithError(err).Warn("set logged-out flag failed")
		}
	}
	o.mu.Lock()
	o.active = nil
	o.authenticated = false
	o.mu.Unlock()
}

// signOut signs the provider out and fences the resulting event.
func (o *Orchestrator) signOut(ctx context.Context, reason string) {
	if err := o.provider.SignOut(ctx); err != nil {
		o.log.WithError(err).WithField("reason", reason).Warn("provider sign-out failed")
	}
	o.advanceFence()
}

func (o *Orchestrator) navigate(route string) {
	if route != "" {
		o.nav.Navigate(route)
	}
}

func (o *Orchestrator) resolve(ctx context.Context, id, email string) (*identity.Identity, error) {
	start := time.Now()
	out, err := o.resolver.Resolve(ctx, id, email)
	o.metrics.Observe(MetricResolveLatency, time.Since(start))
	return out, err
}

func (o *Orchestrator) ready() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return ErrDisposed
	}
	if o.baseCtx == nil {
		return ErrNotInitialized
	}
	return nil
}

/*
====================================
LIFECYCLE
====================================
*/

// Init bootstraps the orchestrator, starts consuming provider events and
// schedules the standing check. Calls after the first return nil.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.Lock()
	disposed := o.disposed
	o.mu.Unlock()
	if disposed {
		return ErrDisposed
	}

	o.initOnce.Do(func() {
		base, cancel := context.WithCancel(context.Background())
		o.mu.Lock()
		o.baseCtx, o.cancel = base, cancel
		o.mu.Unlock()

		go o.loop()
		o.bootstrap(ctx)
		o.startStanding()
	})
	return nil
}

// Dispose stops event handling and the standing check and flushes audit
// events. In-flight operations are not interrupted but will not commit.
func (o *Orchestrator) Dispose() {
	o.disposeOnce.Do(func() {
		o.mu.Lock()
		o.disposed = true
		cancel := o.cancel
		scheduler := o.scheduler
		o.mu.Unlock()

		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		close(o.stop)
		if cancel != nil {
			cancel()
			<-o.loopDone
		}
		o.audit.Close()
	})
}

/*
====================================
READ-ONLY STATE
====================================
*/

// Accounts returns the cached identities in insertion order.
func (o *Orchestrator) Accounts() []Identity {
	return o.accounts.List()
}

// ActiveAccountID returns the active pointer, or "" when none is set.
func (o *Orchestrator) ActiveAccountID() string {
	return o.accounts.ActiveID()
}

// IsAuthenticated describes the isauthenticated operation and its observable behavior.
func (o *Orchestrator) IsAuthenticated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authenticated
}

// IsLoading reports whether an explicit operation is running.
func (o *Orchestrator) IsLoading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight > 0
}

// ActiveIdentity returns a copy of the authenticated identity.
func (o *Orchestrator) ActiveIdentity() (Identity, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Identity{}, false
	}
	return *o.active, true
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
func (o *Orchestrator) MetricsSnapshot() MetricsSnapshot {
	return o.metrics.Snapshot()
}

// Metrics exposes the live counters for exporters.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// AuditDropped returns how many audit events were dropped.
func (o *Orchestrator) AuditDropped() uint64 {
	return o.audit.Dropped()
}

func (o *Orchestrator) snapshot() (active *identity.Identity, authenticated bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		c := *o.active
		active = &c
	}
	return active, o.authenticated
}
