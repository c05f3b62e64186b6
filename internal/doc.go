// Package internal holds helpers that are private to multiauth.
//
// # Sub-packages
//
//   - rate: Redis-backed fixed-window login throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public multiauth API.
//   - Be imported by any package outside the multiauth module.
package internal
