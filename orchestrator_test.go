package multiauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/multiauth/directory/memory"
	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/resolver"
	"github.com/MrEthical07/multiauth/vault"
)

func TestOperationsBeforeInitFail(t *testing.T) {
	h := newHarness(t, nil)
	o := h.build()

	if _, err := o.Login(context.Background(), Credentials{Email: emailA, Password: passA}, false); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := o.SwitchAccount(context.Background(), userA); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	o.Dispose()
}

func TestOperationsAfterDisposeFail(t *testing.T) {
	h := newHarness(t, nil)
	h.o.Dispose()

	if _, err := h.o.Login(context.Background(), Credentials{Email: emailA, Password: passA}, false); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	if err := h.o.Init(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed from Init, got %v", err)
	}
}

func TestLoginActivatesResolvedIdentity(t *testing.T) {
	h := newHarness(t, nil)

	id := h.login(emailA, passA, false)
	if id.ID != userA || id.Role != identity.RoleStudent || id.TenantName != "Hill School" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !h.o.IsAuthenticated() || h.o.ActiveAccountID() != userA {
		t.Fatalf("expected %s active and authenticated", userA)
	}
	if h.o.IsLoading() {
		t.Fatal("expected loading cleared after login")
	}
	if got := h.nav.Last(); got != "/student" {
		t.Fatalf("expected /student landing, got %q", got)
	}
	if _, err := h.o.vault.Get(context.Background(), userA); err != nil {
		t.Fatalf("expected session slot for %s: %v", userA, err)
	}
	if got := h.o.metrics.Value(MetricLoginSuccess); got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestLoginRejectsMalformedCredentialsWithoutProviderCall(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.ResetCalls()

	_, err := h.o.Login(context.Background(), Credentials{Email: "not-an-email", Password: "x"}, false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	for _, c := range h.prov.Calls() {
		if c == "sign_in" {
			t.Fatal("provider must not be called for malformed credentials")
		}
	}
}

func TestLoginWrongPasswordLeavesUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.o.Login(context.Background(), Credentials{Email: emailA, Password: "wrong"}, false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if h.o.IsAuthenticated() {
		t.Fatal("expected unauthenticated after failed login")
	}
	if got := UserMessage(err); got != "Invalid email or password." {
		t.Fatalf("unexpected user message %q", got)
	}
}

func TestLoginThrottledAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 2
		cfg.Security.LoginCooldownDuration = time.Minute
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.o.Login(ctx, Credentials{Email: emailA, Password: "wrong"}, false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	h.prov.ResetCalls()
	_, err := h.o.Login(ctx, Credentials{Email: strings.ToUpper(emailA), Password: passA}, false)
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if len(h.prov.Calls()) != 0 {
		t.Fatalf("throttled login must not reach the provider, got %v", h.prov.Calls())
	}

	h.mr.FastForward(2 * time.Minute)
	h.login(emailA, passA, false)
}

func TestLoginDisabledProfileSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.dir.PutProfile(resolver.Profile{ID: userC, Email: emailC, Role: identity.RoleFaculty, TenantID: tenantT1, Status: resolver.ProfileDisabled})
	h.dir.PutMembership(resolver.SourceStaff, resolver.Membership{RecordID: "st-1", TenantID: tenantT1}, userC, emailC)
	h.dir.PutMembership(resolver.SourceStudent, resolver.Membership{RecordID: "sd-1", TenantID: tenantT1}, userC, emailC)

	_, err := h.o.Login(context.Background(), Credentials{Email: emailC, Password: passC}, false)
	if !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}
	if h.o.IsAuthenticated() {
		t.Fatal("expected unauthenticated")
	}
	if owner := h.liveOwner(); owner != "" {
		t.Fatalf("expected provider signed out, session owned by %q", owner)
	}
	if !strings.Contains(UserMessage(err), "disabled") {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
}

func TestLoginAddingAccountSignsOutCurrentFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.prov.ResetCalls()

	h.login(emailB, passB, true)

	calls := h.prov.Calls()
	signOut, signIn := -1, -1
	for i, c := range calls {
		if c == "sign_out" && signOut < 0 {
			signOut = i
		}
		if c == "sign_in" && signIn < 0 {
			signIn = i
		}
	}
	if signOut < 0 || signIn < 0 || signOut > signIn {
		t.Fatalf("expected sign_out before sign_in, got %v", calls)
	}

	accounts := h.o.Accounts()
	if !hasAccount(accounts, userA) || !hasAccount(accounts, userB) {
		t.Fatalf("expected both accounts cached, got %+v", accounts)
	}
	if h.o.ActiveAccountID() != userB || h.liveOwner() != userB {
		t.Fatalf("expected %s active and live", userB)
	}
	if _, err := h.o.vault.Get(context.Background(), userA); err != nil {
		t.Fatalf("expected %s slot kept: %v", userA, err)
	}
}

func TestLoginMalformedAddKeepsCurrentSession(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)

	_, err := h.o.Login(context.Background(), Credentials{Email: "nope"}, true)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !h.o.IsAuthenticated() || h.activeID() != userA || h.o.ActiveAccountID() != userA {
		t.Fatalf("expected %s still active, got active=%q pointer=%q", userA, h.activeID(), h.o.ActiveAccountID())
	}
	if got := h.liveOwner(); got != userA {
		t.Fatalf("expected provider to keep %s, got %q", userA, got)
	}
}

func TestLoginRejectedSignsProviderOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)

	_, err := h.o.Login(context.Background(), Credentials{Email: emailB, Password: "wrong"}, false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if h.o.IsAuthenticated() {
		t.Fatal("expected unauthenticated after rejected login")
	}
	if got := h.liveOwner(); got != "" {
		t.Fatalf("expected provider signed out, live owner %q", got)
	}
}

func TestSwitchFastPathMakesNoProviderCall(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.prov.ResetCalls()
	seq := h.prov.LastSeq()
	navs := h.nav.Count()

	if err := h.o.SwitchAccount(context.Background(), userA); err != nil {
		t.Fatalf("fast path switch failed: %v", err)
	}
	if calls := h.prov.Calls(); len(calls) != 0 {
		t.Fatalf("expected no provider calls, got %v", calls)
	}
	if h.prov.LastSeq() != seq {
		t.Fatal("fast path must not cause provider events")
	}
	if h.nav.Count() != navs+1 || h.nav.Last() != "/student" {
		t.Fatalf("expected navigation to /student, got %q", h.nav.Last())
	}
	if got := h.o.metrics.Value(MetricSwitchFastPath); got != 1 {
		t.Fatalf("expected fast path metric 1, got %d", got)
	}
}

func TestSwitchToParentUsesSlotAndLinksStudents(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailB, passB, false)
	h.login(emailA, passA, true)
	upserts := h.dir.Calls(memory.OpUpsertParent)
	signIns := h.prov.SignIns()

	if err := h.o.SwitchAccount(context.Background(), userB); err != nil {
		t.Fatalf("switch failed: %v", err)
	}

	if h.o.ActiveAccountID() != userB || h.activeID() != userB || !h.o.IsAuthenticated() {
		t.Fatalf("expected %s active", userB)
	}
	accounts := h.o.Accounts()
	if len(accounts) != 2 || !hasAccount(accounts, userA) || !hasAccount(accounts, userB) {
		t.Fatalf("expected A and B cached, got %+v", accounts)
	}
	if h.prov.SignIns() != signIns {
		t.Fatal("switch with a cached slot must not sign in with a password")
	}
	if h.dir.Calls(memory.OpUpsertParent) <= upserts {
		t.Fatal("expected a parent upsert during the switch")
	}
	if s, ok := h.dir.Student("s1"); !ok || s.ParentID != userB {
		t.Fatalf("expected s1 linked to %s, got %+v", userB, s)
	}
	if h.nav.Last() != "/parent" {
		t.Fatalf("expected /parent landing, got %q", h.nav.Last())
	}
}

func TestSwitchUnknownAccountFails(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)

	err := h.o.SwitchAccount(context.Background(), "ghost")
	if !errors.Is(err, ErrSwitchFailed) || !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrSwitchFailed joined with ErrUnknownAccount, got %v", err)
	}
	if h.activeID() != userA || h.o.ActiveAccountID() != userA {
		t.Fatalf("failed switch must not change the active identity, pointer=%q", h.o.ActiveAccountID())
	}
	if !h.o.IsAuthenticated() || h.liveOwner() != userA {
		t.Fatalf("expected %s still signed in, live owner %q", userA, h.liveOwner())
	}
}

func TestForgetThenSwitchHasNoCachedSession(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Credentials.CacheEnabled = true })
	ctx := context.Background()
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)

	h.o.ForgetAccount(ctx, userA)

	if hasAccount(h.o.Accounts(), userA) {
		t.Fatal("expected forgotten account removed")
	}
	if _, err := h.o.vault.Get(ctx, userA); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected slot removed, got %v", err)
	}
	if _, err := h.o.vault.Credentials(ctx, emailA); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected cached credentials removed, got %v", err)
	}

	signIns := h.prov.SignIns()
	err := h.o.SwitchAccount(ctx, userA)
	if !errors.Is(err, ErrSwitchFailed) {
		t.Fatalf("expected ErrSwitchFailed, got %v", err)
	}
	if h.prov.SignIns() != signIns {
		t.Fatal("switch to a forgotten account must not reuse credentials")
	}
	if h.activeID() != userB {
		t.Fatalf("expected %s still active", userB)
	}
}

func TestForgetActiveAccountLogsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)

	h.o.ForgetAccount(context.Background(), userA)

	if h.o.IsAuthenticated() || h.o.ActiveAccountID() != "" {
		t.Fatal("expected logged out")
	}
	if len(h.o.Accounts()) != 0 {
		t.Fatalf("expected no accounts, got %+v", h.o.Accounts())
	}
	if h.liveOwner() != "" {
		t.Fatal("expected provider signed out")
	}
	if h.nav.Last() != "/login" {
		t.Fatalf("expected entry route, got %q", h.nav.Last())
	}
}

func TestLogoutCurrentKeepsIdentity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(emailA, passA, false)

	h.o.Logout(ctx, LogoutCurrent)

	if h.o.ActiveAccountID() != "" || h.o.IsAuthenticated() {
		t.Fatal("expected active pointer cleared and unauthenticated")
	}
	if !hasAccount(h.o.Accounts(), userA) {
		t.Fatal("expected identity kept after logout current")
	}
	if got := h.push.Revoked(); len(got) != 1 || got[0] != userA {
		t.Fatalf("expected push revoked for %s, got %v", userA, got)
	}
	if h.liveOwner() != "" {
		t.Fatal("expected provider signed out")
	}
	if h.nav.Last() != "/login" {
		t.Fatalf("expected entry route, got %q", h.nav.Last())
	}

	err := h.o.SwitchAccount(ctx, userA)
	if !errors.Is(err, ErrNoCachedSession) {
		t.Fatalf("expected ErrNoCachedSession after logout, got %v", err)
	}
	if h.o.ActiveAccountID() != "" {
		t.Fatalf("expected pointer restored to empty, got %q", h.o.ActiveAccountID())
	}
}

func TestSwitchFallsBackToCachedCredentials(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Credentials.CacheEnabled = true })
	ctx := context.Background()
	h.login(emailA, passA, false)
	h.o.Logout(ctx, LogoutCurrent)

	if err := h.o.SwitchAccount(ctx, userA); err != nil {
		t.Fatalf("switch with cached credentials failed: %v", err)
	}
	if h.activeID() != userA || h.liveOwner() != userA {
		t.Fatalf("expected %s active and live", userA)
	}
	if got := h.o.metrics.Value(MetricSwitchCredentialFallback); got != 1 {
		t.Fatalf("expected credential fallback metric 1, got %d", got)
	}
}

func TestLogoutAllEmptiesAccounts(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)

	h.o.Logout(context.Background(), LogoutAll)

	if len(h.o.Accounts()) != 0 || h.o.ActiveAccountID() != "" || h.o.IsAuthenticated() {
		t.Fatal("expected everything cleared")
	}
	revoked := h.push.Revoked()
	if len(revoked) != 2 || revoked[0] != userA || revoked[1] != userB {
		t.Fatalf("expected push revoked for both, got %v", revoked)
	}
	if h.liveOwner() != "" {
		t.Fatal("expected provider signed out")
	}
	if h.nav.Last() != "/login" {
		t.Fatalf("expected entry route, got %q", h.nav.Last())
	}
}

func TestSwitchOwnerMismatchAborts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)

	sessB, err := h.prov.Provider.GetSession(ctx)
	if err != nil || sessB == nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	h.prov.redirect = sessB

	err = h.o.SwitchAccount(ctx, userA)
	if !errors.Is(err, ErrSwitchFailed) || !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected mismatch failure, got %v", err)
	}
	if h.o.ActiveAccountID() != userB || h.activeID() != userB {
		t.Fatalf("expected %s kept active after mismatch", userB)
	}
	if got := h.liveOwner(); got != userB {
		t.Fatalf("expected provider to hold %s after mismatch, got %q", userB, got)
	}
	if got := h.o.metrics.Value(MetricSwitchOwnerMismatch); got != 1 {
		t.Fatalf("expected mismatch metric 1, got %d", got)
	}
}

func TestSwitchOwnerMismatchAllowedActivatesOwner(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Switch.AllowOwnerMismatch = true })
	ctx := context.Background()
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)

	sessB, _ := h.prov.Provider.GetSession(ctx)
	h.prov.redirect = sessB

	if err := h.o.SwitchAccount(ctx, userA); err != nil {
		t.Fatalf("expected switch to proceed, got %v", err)
	}
	if h.activeID() != userB {
		t.Fatalf("expected live owner %s activated, got %s", userB, h.activeID())
	}
}

func TestSwitchTransientFailureRestoresPreviousSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)

	h.dir.Fail(memory.OpProfile, resolver.ErrUnavailable)
	err := h.o.SwitchAccount(ctx, userA)
	if !errors.Is(err, ErrSwitchFailed) || !errors.Is(err, ErrTransientNetwork) {
		t.Fatalf("expected transient switch failure, got %v", err)
	}
	if h.activeID() != userB || h.o.ActiveAccountID() != userB || !h.o.IsAuthenticated() {
		t.Fatalf("expected %s kept active, got active=%q pointer=%q", userB, h.activeID(), h.o.ActiveAccountID())
	}
	if got := h.liveOwner(); got != userB {
		t.Fatalf("expected provider to hold %s again, got %q", userB, got)
	}

	// A later refresh of the live session must not finish the failed switch.
	h.dir.Fail(memory.OpProfile, nil)
	skipped := h.o.metrics.Value(MetricTokenRefreshSkipped)
	if _, err := h.prov.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	waitFor(t, "refresh handled", func() bool {
		return h.o.metrics.Value(MetricTokenRefreshSkipped) > skipped
	})
	if h.activeID() != userB || h.o.ActiveAccountID() != userB {
		t.Fatalf("expected %s still active after refresh, got %q", userB, h.activeID())
	}
}

func TestSwitchRejectedSlotKeepsPreviousSession(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)
	h.prov.Revoke(userA)

	err := h.o.SwitchAccount(context.Background(), userA)
	if !errors.Is(err, ErrSwitchFailed) {
		t.Fatalf("expected ErrSwitchFailed, got %v", err)
	}
	if h.activeID() != userB || h.o.ActiveAccountID() != userB || h.liveOwner() != userB {
		t.Fatalf("expected %s active and live, got active=%q live=%q", userB, h.activeID(), h.liveOwner())
	}
}

func TestSwitchUnrestorableSessionSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)
	h.prov.Revoke(userB)
	h.dir.Fail(memory.OpProfile, resolver.ErrUnavailable)

	err := h.o.SwitchAccount(context.Background(), userA)
	if !errors.Is(err, ErrSwitchFailed) {
		t.Fatalf("expected ErrSwitchFailed, got %v", err)
	}
	if h.o.IsAuthenticated() || h.o.ActiveAccountID() != "" {
		t.Fatalf("expected unauthenticated with no pointer, got pointer=%q", h.o.ActiveAccountID())
	}
	if got := h.liveOwner(); got != "" {
		t.Fatalf("expected provider signed out, live owner %q", got)
	}
}

func TestSwitchBlockingFailureSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.login(emailB, passB, true)
	h.dir.PutProfile(resolver.Profile{ID: userA, Email: emailA, FullName: "Asha", Role: identity.RoleStudent, TenantID: tenantT1, Status: resolver.ProfileDisabled})

	err := h.o.SwitchAccount(context.Background(), userA)
	if !errors.Is(err, ErrSwitchFailed) || !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected disabled switch failure, got %v", err)
	}
	if h.o.IsAuthenticated() || h.liveOwner() != "" {
		t.Fatal("expected signed out after a blocking failure")
	}
}

func TestSupersededCommitIsSkipped(t *testing.T) {
	h := newHarness(t, nil)

	first := h.o.begin("first")
	second := h.o.begin("second")

	applied := false
	if err := h.o.commit(first, func() { applied = true }); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if applied {
		t.Fatal("superseded commit must not apply")
	}
	if err := h.o.commit(second, func() { applied = true }); err != nil || !applied {
		t.Fatalf("expected newest commit to apply, err=%v", err)
	}
	h.o.end(first)
	h.o.end(second)

	if got := h.o.metrics.Value(MetricSuperseded); got != 1 {
		t.Fatalf("expected superseded metric 1, got %d", got)
	}
}

func TestLoginSupersededBySwitch(t *testing.T) {
	h := newHarness(t, nil)
	h.dir.SetDelay(300 * time.Millisecond)

	type result struct {
		id  *Identity
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := h.o.Login(context.Background(), Credentials{Email: emailA, Password: passA}, false)
		done <- result{id, err}
	}()

	waitFor(t, "login in flight", h.o.IsLoading)
	waitFor(t, "provider sign-in", func() bool { return h.prov.SignIns() == 1 })
	_ = h.o.SwitchAccount(context.Background(), "ghost")

	res := <-done
	if !errors.Is(res.err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", res.err)
	}
	if h.o.IsAuthenticated() || h.o.ActiveAccountID() != "" {
		t.Fatal("superseded login must not commit")
	}
}
