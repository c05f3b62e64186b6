package multiauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/multiauth/failure"
)

const (
	auditEventBootstrap          = "bootstrap"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventSwitchSuccess      = "switch_success"
	auditEventSwitchFailure      = "switch_failure"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventForgetAccount      = "forget_account"
	auditEventNotificationApply  = "notification_applied"
	auditEventForcedSignOut      = "forced_sign_out"
	auditEventStandingCheckError = "standing_check_failure"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrNoCachedSession    AuditErrorCode = "no_cached_session"
	auditErrUnknownAccount     AuditErrorCode = "unknown_account"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (o *Orchestrator) emitAudit(
	ctx context.Context,
	op operation,
	eventType string,
	success bool,
	identityID string,
	tenantID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if o == nil || o.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		OpID:       op.id,
		EventType:  eventType,
		IdentityID: identityID,
		TenantID:   tenantID,
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	o.audit.Emit(ctx, event)
}

// auditErrorCode prefers the structured failure code, then the package
// sentinels.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	if code := failure.CodeOf(err); code != "" {
		return AuditErrorCode(strings.ToLower(string(code)))
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrNoCachedSession), errors.Is(err, ErrNoLiveSession):
		return auditErrNoCachedSession
	case errors.Is(err, ErrUnknownAccount):
		return auditErrUnknownAccount
	case errors.Is(err, ErrProviderUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
