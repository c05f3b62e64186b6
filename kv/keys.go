package kv

// Logical keys. Callers pass these to a [Store]; the store adds its prefix.
const (
	KeyAccountsList    = "accounts-list"
	KeyActiveAccountID = "active-account-id"
	KeyLoggedOut       = "logged-out-flag"
)

// SessionSlotKey is the vault slot for an identity.
func SessionSlotKey(identityID string) string {
	return "session-slot:" + identityID
}

// CredentialsCacheKey is the raw credential cache entry for a normalized email.
func CredentialsCacheKey(normalizedEmail string) string {
	return "credentials-cache:" + normalizedEmail
}
