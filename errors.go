package multiauth

import (
	"errors"

	"github.com/MrEthical07/multiauth/failure"
	"github.com/MrEthical07/multiauth/provider"
	"github.com/MrEthical07/multiauth/resolver"
)

var (
	// ErrNotInitialized is returned by operations called before Init.
	ErrNotInitialized = errors.New("orchestrator not initialized")
	// ErrDisposed is returned by operations called after Dispose.
	ErrDisposed = errors.New("orchestrator disposed")
	// ErrInvalidCredentials is returned by Login for malformed or rejected credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned by Login while the email is throttled.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSwitchFailed wraps every SwitchAccount failure. The cause is joined.
	ErrSwitchFailed = errors.New("could not switch account, please log in again")
	// ErrUnknownAccount is returned when the target identity is not cached.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrNoCachedSession means the target has no usable vault slot and no cached credentials.
	ErrNoCachedSession = errors.New("no cached session for account")
	// ErrNoLiveSession means the provider held no session after applying one.
	ErrNoLiveSession = errors.New("provider holds no session")
	// ErrSuperseded is returned when a newer explicit operation started
	// before this one could commit. Nothing was committed.
	ErrSuperseded = errors.New("operation superseded")
	// ErrProviderUnavailable mirrors provider.ErrUnavailable.
	ErrProviderUnavailable = provider.ErrUnavailable
)

// Failure sentinels, matched by code with errors.Is.
var (
	ErrUserDisabled     = resolver.ErrUserDisabled
	ErrTenantInactive   = resolver.ErrTenantInactive
	ErrNoRole           = resolver.ErrNoRole
	ErrResolveTimeout   = resolver.ErrTimeout
	ErrTransientNetwork = failure.New(failure.CodeTransientNetwork, "", nil)
	ErrSessionMismatch  = failure.New(failure.CodeSessionMismatch, "", nil)
)

// UserMessage maps an error returned by Login or SwitchAccount to a short
// message safe to show to the user. Raw error text is never returned.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrLoginRateLimited):
		return "Too many attempts. Please wait and try again."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrUserDisabled):
		return "This account has been disabled. Contact your institution."
	case errors.Is(err, ErrTenantInactive):
		return "Your institution's account is not active."
	case errors.Is(err, ErrNoRole):
		return "No role is assigned to this account yet."
	case errors.Is(err, ErrSuperseded):
		return "Another sign-in action is in progress."
	case errors.Is(err, ErrSwitchFailed):
		return "Could not switch account, please log in again."
	case failure.IsTransient(err), errors.Is(err, ErrProviderUnavailable):
		return "Network problem. Check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
