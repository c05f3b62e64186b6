package internaldefs

import (
	"github.com/MrEthical07/multiauth"
)

// CounterDef names one orchestrator counter.
type CounterDef struct {
	ID   multiauth.MetricID
	Name string
	Help string
}

// HistogramDef names one orchestrator histogram.
type HistogramDef struct {
	ID   multiauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: multiauth.MetricLoginSuccess, Name: "multiauth_login_success_total", Help: "Successful logins."},
	{ID: multiauth.MetricLoginFailure, Name: "multiauth_login_failure_total", Help: "Failed logins."},
	{ID: multiauth.MetricLoginRateLimited, Name: "multiauth_login_rate_limited_total", Help: "Logins refused by the attempt throttle."},
	{ID: multiauth.MetricSwitchSuccess, Name: "multiauth_switch_success_total", Help: "Successful account switches, fast path included."},
	{ID: multiauth.MetricSwitchFailure, Name: "multiauth_switch_failure_total", Help: "Failed account switches."},
	{ID: multiauth.MetricSwitchFastPath, Name: "multiauth_switch_fast_path_total", Help: "Switches to the already active identity."},
	{ID: multiauth.MetricSwitchCredentialFallback, Name: "multiauth_switch_credential_fallback_total", Help: "Switches that signed in with cached credentials."},
	{ID: multiauth.MetricSwitchOwnerMismatch, Name: "multiauth_switch_owner_mismatch_total", Help: "Switches whose live session belonged to another identity."},
	{ID: multiauth.MetricLogout, Name: "multiauth_logout_total", Help: "Logouts of the active identity."},
	{ID: multiauth.MetricLogoutAll, Name: "multiauth_logout_all_total", Help: "Logouts of every cached identity."},
	{ID: multiauth.MetricForgetAccount, Name: "multiauth_forget_account_total", Help: "Cached identities forgotten."},
	{ID: multiauth.MetricSuperseded, Name: "multiauth_superseded_total", Help: "Explicit operations superseded before commit."},
	{ID: multiauth.MetricNotificationApplied, Name: "multiauth_notification_applied_total", Help: "Provider events applied."},
	{ID: multiauth.MetricNotificationDropped, Name: "multiauth_notification_dropped_total", Help: "Provider events dropped."},
	{ID: multiauth.MetricTokenRefreshSkipped, Name: "multiauth_token_refresh_skipped_total", Help: "Provider events handled as token refreshes without resolution."},
	{ID: multiauth.MetricForcedSignOut, Name: "multiauth_forced_sign_out_total", Help: "Sign-outs forced by a blocking failure."},
	{ID: multiauth.MetricTransientDegrade, Name: "multiauth_transient_degrade_total", Help: "Bootstraps that kept the cached identity after a transient failure."},
	{ID: multiauth.MetricStandingCheck, Name: "multiauth_standing_check_total", Help: "Standing checks run."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: multiauth.MetricResolveLatency, Name: "multiauth_resolve_latency_seconds", Help: "Profile resolution latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "multiauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped by the dispatcher."

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 8

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is +Inf.
var HistogramUpperBounds = [BucketCount - 1]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
