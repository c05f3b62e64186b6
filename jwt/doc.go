// Package jwt issues and verifies the access tokens carried inside session
// credentials, and extracts a credential's owner id without verification for
// callers (such as the session vault) that only need to know whose session a
// stored credential is.
package jwt
