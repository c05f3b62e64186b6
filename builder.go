package multiauth

import (
	"errors"
	"os"

	"github.com/MrEthical07/multiauth/accounts"
	"github.com/MrEthical07/multiauth/internal/rate"
	"github.com/MrEthical07/multiauth/kv"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/MrEthical07/multiauth/resolver"
	"github.com/MrEthical07/multiauth/vault"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Orchestrator]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  kv.Store

	provider  provider.Provider
	directory resolver.Directory
	resolver  ProfileResolver
	accounts  AccountStore
	vault     SessionVault
	push      PushRegistry
	navigator Navigator
	log       logrus.FieldLogger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing persistence and login throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the key-value store. Keys passed to it are not
// namespaced; the store is expected to do that itself. Login throttling still
// needs WithRedis.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithProvider describes the withprovider operation and its observable behavior.
func (b *Builder) WithProvider(p provider.Provider) *Builder {
	b.provider = p
	return b
}

// WithDirectory sets the tenant directory used by the built-in resolver.
func (b *Builder) WithDirectory(dir resolver.Directory) *Builder {
	b.directory = dir
	return b
}

// WithResolver replaces the built-in resolver. WithDirectory is then unused.
func (b *Builder) WithResolver(r ProfileResolver) *Builder {
	b.resolver = r
	return b
}

// WithAccountStore replaces the kv-backed account store.
func (b *Builder) WithAccountStore(s AccountStore) *Builder {
	b.accounts = s
	return b
}

// WithSessionVault replaces the kv-backed session vault.
func (b *Builder) WithSessionVault(v SessionVault) *Builder {
	b.vault = v
	return b
}

// WithPushRegistry describes the withpushregistry operation and its observable behavior.
func (b *Builder) WithPushRegistry(p PushRegistry) *Builder {
	b.push = p
	return b
}

// WithNavigator describes the withnavigator operation and its observable behavior.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the orchestrator. Init must be
// called before any operation.
func (b *Builder) Build() (*Orchestrator, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil && b.store == nil {
		return nil, errors.New("redis client required")
	}
	if b.provider == nil {
		return nil, errors.New("auth provider required")
	}
	if b.resolver == nil && b.directory == nil {
		return nil, errors.New("directory or resolver required")
	}

	log := b.log
	if log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.InfoLevel)
		log = l
	}
	log = log.WithField("component", "orchestrator")

	store := b.store
	if store == nil {
		store = kv.NewRedis(b.redis, cfg.Storage.Namespace(), cfg.Storage.SlotTTL)
	}

	res := b.resolver
	if res == nil {
		res = resolver.New(b.directory, resolver.Config{Timeout: cfg.Resolver.Timeout}, log)
	}

	acc := b.accounts
	if acc == nil {
		acc = accounts.NewStore(store)
	}

	sv := b.vault
	if sv == nil {
		sv = vault.New(store, b.provider)
	}

	push := b.push
	if push == nil {
		push = noopPush{}
	}
	nav := b.navigator
	if nav == nil {
		nav = noopNavigator{}
	}

	o := &Orchestrator{
		config:   cfg,
		log:      log,
		kv:       store,
		accounts: acc,
		vault:    sv,
		resolver: res,
		provider: b.provider,
		push:     push,
		nav:      nav,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  NewMetrics(cfg.Metrics),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if b.redis != nil {
		o.limiter = rate.New(b.redis, cfg.Storage.Namespace(), rate.Config{
			MaxAttempts: cfg.Security.MaxLoginAttempts,
			Cooldown:    cfg.Security.LoginCooldownDuration,
		})
	}
	o.audit = newAuditDispatcher(cfg.Audit, b.auditSink, log)

	b.built = true
	return o, nil
}
