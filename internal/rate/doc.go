// Package rate throttles interactive logins with Redis fixed-window counters.
//
// Counters are keyed by normalized email under {prefix}:login-attempts:{email}.
// The first failed attempt in a window sets the TTL; later failures only
// increment. A successful login clears the counter.
package rate
