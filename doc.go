// Package authgate implements the token lifecycle and permission-resolution
// core of a backend service: JWT access tokens, long-lived refresh
// sessions persisted in Redis, an access-token revocation blacklist, and a
// role-based permission resolver with an invalidatable in-process cache.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Identity, TokenPair, SessionInfo). User and role data stay
// behind the [UserProvider] and [permission.RoleSource] interfaces supplied by
// the caller; authgate never owns their persistence.
//
// The request boundary lives in the gate subpackage: one verification per
// inbound call, a request-scoped identity context, and composable guards.
//
// # Failure contract
//
// Cryptographic and structural token failures are terminal and never retried.
// Storage failures surface as [ErrStorageUnavailable] so callers can retry at
// the request layer instead of discarding valid credentials.
package authgate
