package multiauth

import (
	"context"
	"testing"

	"github.com/MrEthical07/multiauth/directory/memory"
	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/resolver"
)

func TestBootstrapWithoutSessionStaysUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)

	if h.o.IsAuthenticated() || len(h.o.Accounts()) != 0 {
		t.Fatal("expected empty unauthenticated state")
	}
	if h.o.IsLoading() {
		t.Fatal("expected loading cleared after bootstrap")
	}
}

func TestBootstrapRestoresLiveSession(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	signIns := h.prov.SignIns()

	h.restart()

	if !h.o.IsAuthenticated() || h.activeID() != userA {
		t.Fatalf("expected %s restored, got %q", userA, h.activeID())
	}
	if h.prov.SignIns() != signIns {
		t.Fatal("bootstrap must not sign in with a password")
	}
}

func TestBootstrapTransientFailureKeepsCachedIdentity(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.dir.Fail(memory.OpProfile, resolver.ErrUnavailable)

	h.restart()

	if !h.o.IsAuthenticated() || h.activeID() != userA {
		t.Fatal("expected cached identity kept on transient failure")
	}
	if h.liveOwner() != userA {
		t.Fatal("transient failure must not sign the provider out")
	}
	if got := h.o.metrics.Value(MetricTransientDegrade); got != 1 {
		t.Fatalf("expected degrade metric 1, got %d", got)
	}
}

func TestBootstrapProviderUnavailableKeepsCachedIdentity(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.prov.SetUnavailable(true)

	h.restart()
	h.prov.SetUnavailable(false)

	if !h.o.IsAuthenticated() || h.activeID() != userA {
		t.Fatal("expected cached identity while the provider is unreachable")
	}
}

func TestBootstrapBlockingFailureSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.dir.PutProfile(resolver.Profile{ID: userA, Email: emailA, Role: identity.RoleStudent, TenantID: tenantT1, Status: resolver.ProfileDisabled})

	h.restart()

	if h.o.IsAuthenticated() || h.o.ActiveAccountID() != "" {
		t.Fatal("expected unauthenticated after blocking failure")
	}
	if h.liveOwner() != "" {
		t.Fatal("expected provider signed out")
	}
	if got := h.o.metrics.Value(MetricForcedSignOut); got != 1 {
		t.Fatalf("expected forced sign-out metric 1, got %d", got)
	}
}

func TestBootstrapNoRoleSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.dir.PutProfile(resolver.Profile{ID: userA, Email: emailA, Status: resolver.ProfileActive})

	h.restart()

	if h.o.IsAuthenticated() {
		t.Fatal("expected unauthenticated when no role resolves")
	}
	if h.liveOwner() != "" {
		t.Fatal("expected provider signed out")
	}
}

func TestBootstrapHonoursLoggedOutFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	h.o.Logout(context.Background(), LogoutCurrent)
	h.prov.ResetCalls()

	h.restart()

	if h.o.IsAuthenticated() {
		t.Fatal("expected unauthenticated after explicit logout")
	}
	if !hasAccount(h.o.Accounts(), userA) {
		t.Fatal("expected cached identity listed after restart")
	}
	if calls := h.prov.Calls(); len(calls) != 0 {
		t.Fatalf("expected no provider calls while logged out, got %v", calls)
	}
}
