package multiauth

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/multiauth/directory/memory"
	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/jwt"
	"github.com/MrEthical07/multiauth/password"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/MrEthical07/multiauth/provider/memprovider"
	"github.com/MrEthical07/multiauth/resolver"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	userA = "u-a"
	userB = "u-b"
	userC = "u-c"

	emailA = "a@school.io"
	emailB = "b@school.io"
	emailC = "c@school.io"

	passA = "alpha-pass"
	passB = "bravo-pass"
	passC = "charlie-pass"

	tenantT1 = "t1"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// recordingProvider records which provider calls were made.
type recordingProvider struct {
	*memprovider.Provider

	mu    sync.Mutex
	calls []string
	// redirect, when set, is installed by SetSession instead of the
	// requested session.
	redirect *provider.Session
}

func (p *recordingProvider) record(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
}

func (p *recordingProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *recordingProvider) ResetCalls() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

func (p *recordingProvider) SignIn(ctx context.Context, creds provider.Credentials) (*provider.Session, error) {
	p.record("sign_in")
	return p.Provider.SignIn(ctx, creds)
}

func (p *recordingProvider) SignOut(ctx context.Context) error {
	p.record("sign_out")
	return p.Provider.SignOut(ctx)
}

func (p *recordingProvider) SetSession(ctx context.Context, s *provider.Session) (*provider.Session, error) {
	p.record("set_session")
	p.mu.Lock()
	if p.redirect != nil {
		s = p.redirect
	}
	p.mu.Unlock()
	return p.Provider.SetSession(ctx, s)
}

func (p *recordingProvider) GetSession(ctx context.Context) (*provider.Session, error) {
	p.record("get_session")
	return p.Provider.GetSession(ctx)
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

func (n *recordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.routes) == 0 {
		return ""
	}
	return n.routes[len(n.routes)-1]
}

func (n *recordingNavigator) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.routes)
}

type recordingPush struct {
	mu      sync.Mutex
	revoked []string
}

func (p *recordingPush) Revoke(_ context.Context, id string) error {
	p.mu.Lock()
	p.revoked = append(p.revoked, id)
	p.mu.Unlock()
	return nil
}

func (p *recordingPush) Revoked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.revoked))
	copy(out, p.revoked)
	return out
}

type harness struct {
	t    *testing.T
	mr   *miniredis.Miniredis
	rdb  *redis.Client
	prov *recordingProvider
	dir  *memory.Directory
	nav  *recordingNavigator
	push *recordingPush
	cfg  Config
	sink AuditSink
	o    *Orchestrator
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Standing.Enabled = false
	cfg.Resolver.Timeout = 2 * time.Second
	return cfg
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newHarness wires an orchestrator over miniredis, an in-memory provider
// and an in-memory directory holding:
//
//	u-a  student in t1
//	u-b  parent in t1 (via the parents table), with unlinked student s1
//	u-c  faculty in t1
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	return newHarnessWithSink(t, mutate, nil)
}

func newHarnessWithSink(t *testing.T, mutate func(*Config), sink AuditSink) *harness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("orchestrator-test-signing-key-01"),
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.New(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	mem, err := memprovider.New(memprovider.Config{Tokens: tokens, Hasher: hasher, EventBuffer: 256})
	if err != nil {
		t.Fatalf("memprovider: %v", err)
	}
	for _, u := range []struct{ id, email, pass string }{
		{userA, emailA, passA},
		{userB, emailB, passB},
		{userC, emailC, passC},
	} {
		if err := mem.AddUser(u.id, u.email, u.pass); err != nil {
			t.Fatalf("add user: %v", err)
		}
	}

	dir := memory.New()
	dir.PutTenant(resolver.Tenant{ID: tenantT1, Name: "Hill School", Code: "HS", Status: resolver.TenantActive})
	dir.PutProfile(resolver.Profile{ID: userA, Email: emailA, FullName: "Asha", Role: identity.RoleStudent, TenantID: tenantT1, Status: resolver.ProfileActive})
	dir.PutProfile(resolver.Profile{ID: userB, Email: emailB, FullName: "Bina", Status: resolver.ProfileActive})
	dir.PutMembership(resolver.SourceParent, resolver.Membership{RecordID: userB, TenantID: tenantT1, Name: "Bina"}, userB, emailB)
	dir.PutStudent(memory.Student{ID: "s1", TenantID: tenantT1, FullName: "Kid", ParentEmail: emailB})
	dir.PutProfile(resolver.Profile{ID: userC, Email: emailC, FullName: "Chetan", Role: identity.RoleFaculty, TenantID: tenantT1, Status: resolver.ProfileActive})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		t:    t,
		mr:   mr,
		rdb:  rdb,
		prov: &recordingProvider{Provider: mem},
		dir:  dir,
		nav:  &recordingNavigator{},
		push: &recordingPush{},
		cfg:  cfg,
		sink: sink,
	}
	h.o = h.build()
	if err := h.o.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		h.o.Dispose()
		mr.Close()
	})
	return h
}

// build returns a new orchestrator sharing the harness storage, provider and
// directory, as after a process restart.
func (h *harness) build() *Orchestrator {
	h.t.Helper()
	o, err := New().
		WithConfig(h.cfg).
		WithRedis(h.rdb).
		WithProvider(h.prov).
		WithDirectory(h.dir).
		WithNavigator(h.nav).
		WithPushRegistry(h.push).
		WithLogger(quietLogger()).
		WithAuditSink(h.sink).
		Build()
	if err != nil {
		h.t.Fatalf("Build failed: %v", err)
	}
	return o
}

// restart disposes the current orchestrator and starts a new one.
func (h *harness) restart() {
	h.t.Helper()
	h.o.Dispose()
	h.o = h.build()
	if err := h.o.Init(context.Background()); err != nil {
		h.t.Fatalf("Init failed: %v", err)
	}
}

func (h *harness) login(email, pass string, adding bool) *Identity {
	h.t.Helper()
	id, err := h.o.Login(context.Background(), Credentials{Email: email, Password: pass}, adding)
	if err != nil {
		h.t.Fatalf("Login(%s) failed: %v", email, err)
	}
	return id
}

func (h *harness) activeID() string {
	id, ok := h.o.ActiveIdentity()
	if !ok {
		return ""
	}
	return id.ID
}

func (h *harness) liveOwner() string {
	h.t.Helper()
	sess, err := h.prov.Provider.GetSession(context.Background())
	if err != nil {
		h.t.Fatalf("GetSession failed: %v", err)
	}
	if sess == nil {
		return ""
	}
	owner, err := provider.OwnerOf(sess)
	if err != nil {
		h.t.Fatalf("OwnerOf failed: %v", err)
	}
	return owner
}

func hasAccount(list []Identity, id string) bool {
	for _, a := range list {
		if a.ID == id {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
