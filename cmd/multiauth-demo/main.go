// Command multiauth-demo walks an orchestrator through a two-account session
// on one device: login, add a second account, switch back and forth, a
// background token refresh, logout and forget.
//
// It runs self-contained on miniredis with an in-memory provider and
// directory. Pass -redis-addr to use a real Redis and -database-url to
// resolve profiles from Postgres instead of the seeded directory.
//
// Run:
//
//	go run ./cmd/multiauth-demo
//	go run ./cmd/multiauth-demo -metrics-addr :9100 -hold 1m
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/directory/postgres"
	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/kv"
	"github.com/MrEthical07/multiauth/metrics/export/prometheus"
	"github.com/MrEthical07/multiauth/provider/memprovider"
	"github.com/MrEthical07/multiauth/resolver"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "optional .env file")
		configPath  = flag.String("config", "", "YAML config file; defaults apply when empty")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		databaseURL = flag.String("database-url", "", "postgres directory DSN; if empty, DATABASE_URL env or the seeded in-memory directory is used")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
		hold        = flag.Duration("hold", 0, "keep running after the walkthrough, until interrupted or the duration passes")
		jsonLogs    = flag.Bool("json", false, "log as JSON")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load env (%s): %v\n", *envFile, err)
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(log, options{
		configPath:  *configPath,
		redisAddr:   firstNonEmpty(*redisAddr, os.Getenv("REDIS_ADDR")),
		databaseURL: firstNonEmpty(*databaseURL, os.Getenv("DATABASE_URL")),
		signingKey:  os.Getenv("MULTIAUTH_SIGNING_KEY"),
		metricsAddr: *metricsAddr,
		hold:        *hold,
	}); err != nil {
		log.WithError(err).Error("demo failed")
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	redisAddr   string
	databaseURL string
	signingKey  string
	metricsAddr string
	hold        time.Duration
}

func run(log *logrus.Logger, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := multiauth.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := multiauth.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		// Lets the walkthrough switch back to a logged-out account.
		cfg.Credentials.CacheEnabled = true
	}
	cfg.Audit.Enabled = true

	client, cleanup, err := openRedis(log, opts.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	store := kv.NewRedis(client, cfg.Storage.Namespace(), cfg.Storage.SlotTTL)
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	latency, err := store.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("redis startup check: %w", err)
	}
	log.WithField("latency", latency).Debug("redis reachable")

	if opts.signingKey == "" {
		opts.signingKey = "multiauth-demo-signing-key-change-me"
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(opts.signingKey),
	})
	if err != nil {
		return err
	}
	prov, err := memprovider.New(memprovider.Config{Tokens: tokens})
	if err != nil {
		return err
	}
	defer prov.Close()
	for _, u := range demoUsers {
		if err := prov.AddUser(u.id, u.email, u.password); err != nil {
			return err
		}
	}

	dir, closeDir, err := openDirectory(ctx, log, opts.databaseURL)
	if err != nil {
		return err
	}
	defer closeDir()

	nav := multiauth.NavigatorFunc(func(route string) {
		log.WithField("route", route).Info("navigate")
	})

	o, err := multiauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(store).
		WithProvider(prov).
		WithDirectory(dir).
		WithNavigator(nav).
		WithLogger(log).
		WithAuditSink(multiauth.NewLogrusSink(log.WithField("component", "audit"))).
		Build()
	if err != nil {
		return err
	}
	defer o.Dispose()

	if opts.metricsAddr != "" {
		srv, err := serveMetrics(log, opts.metricsAddr, o)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := o.Init(ctx); err != nil {
		return err
	}
	if err := walkthrough(ctx, log, o, prov); err != nil {
		return err
	}

	if opts.hold > 0 {
		log.WithField("hold", opts.hold).Info("walkthrough done, holding")
		select {
		case <-ctx.Done():
		case <-time.After(opts.hold):
		}
	}
	return nil
}

func walkthrough(ctx context.Context, log *logrus.Logger, o *multiauth.Orchestrator, prov *memprovider.Provider) error {
	step := func(name string) {
		id, _ := o.ActiveIdentity()
		log.WithFields(logrus.Fields{
			"step":          name,
			"active":        id.ID,
			"role":          id.Role,
			"authenticated": o.IsAuthenticated(),
			"cached":        len(o.Accounts()),
		}).Info("state")
	}
	step("bootstrap")

	student, parent := demoUsers[0], demoUsers[1]

	if _, err := o.Login(ctx, multiauth.Credentials{Email: student.email, Password: student.password}, false); err != nil {
		return fmt.Errorf("login %s: %s: %w", student.email, multiauth.UserMessage(err), err)
	}
	step("login student")

	if _, err := o.Login(ctx, multiauth.Credentials{Email: parent.email, Password: parent.password}, true); err != nil {
		return fmt.Errorf("add %s: %s: %w", parent.email, multiauth.UserMessage(err), err)
	}
	step("add parent")

	if err := o.SwitchAccount(ctx, student.id); err != nil {
		return fmt.Errorf("switch to %s: %s: %w", student.id, multiauth.UserMessage(err), err)
	}
	step("switch to student")

	if _, err := prov.Refresh(ctx); err != nil {
		return fmt.Errorf("provider refresh: %w", err)
	}
	// The refresh event is handled on the orchestrator's event goroutine.
	time.Sleep(100 * time.Millisecond)
	step("background token refresh")

	if err := o.SwitchAccount(ctx, student.id); err != nil {
		return err
	}
	step("switch to active account")

	o.Logout(ctx, multiauth.LogoutCurrent)
	step("logout current")

	if err := o.SwitchAccount(ctx, parent.id); err != nil {
		return fmt.Errorf("switch to %s: %s: %w", parent.id, multiauth.UserMessage(err), err)
	}
	step("switch to parent")

	if err := o.SwitchAccount(ctx, student.id); err != nil {
		// Expected without a credential cache: the student's slot is gone.
		log.WithField("message", multiauth.UserMessage(err)).Warn("switch to logged-out student")
	}
	step("switch to logged-out student")

	o.ForgetAccount(ctx, student.id)
	step("forget student")

	if err := o.CheckStanding(ctx); err != nil {
		log.WithError(err).Warn("standing check")
	}
	step("standing check")

	snap := o.MetricsSnapshot()
	log.WithFields(logrus.Fields{
		"logins":          snap.Counters[multiauth.MetricLoginSuccess],
		"switches":        snap.Counters[multiauth.MetricSwitchSuccess],
		"fast_path":       snap.Counters[multiauth.MetricSwitchFastPath],
		"events_dropped":  snap.Counters[multiauth.MetricNotificationDropped],
		"refresh_skipped": snap.Counters[multiauth.MetricTokenRefreshSkipped],
	}).Info("metrics")
	return nil
}

func openRedis(log *logrus.Logger, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		log.WithField("addr", mr.Addr()).Info("using miniredis")
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	log.WithField("addr", addr).Info("using redis")
	return client, func() { _ = client.Close() }, nil
}

func openDirectory(ctx context.Context, log *logrus.Logger, dsn string) (resolver.Directory, func(), error) {
	if dsn == "" {
		log.Info("using seeded in-memory directory")
		return seedDirectory(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info("using postgres directory")
	dir := postgres.New(pool, log)
	return dir, dir.Close, nil
}

func serveMetrics(log *logrus.Logger, addr string, o *multiauth.Orchestrator) (*http.Server, error) {
	handler, err := prometheus.Handler(o)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return srv, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
