// Package ttlcache provides a generic, thread-safe TTL cache with an
// injected clock and explicit get/set/invalidate operations.
//
// It exists as a deliberate replacement for the module-level map with a
// hard-coded TTL that quota-style lookups tend to accrete: the clock is
// injectable so expiry is testable, instances are constructor-injected so
// tests and tenants stay isolated, and the serve-stale-on-failure
// behavior of GetOrLoad is part of the documented contract rather than an
// accident of implementation.
//
// # Usage
//
//	quotas := ttlcache.New[string, SendQuota](5 * time.Minute)
//
//	quota, err := quotas.GetOrLoad(ctx, brandID, func(ctx context.Context) (SendQuota, error) {
//	    return provider.FetchQuota(ctx, brandID)
//	})
//
// When the loader fails and an expired entry for the key is still held,
// GetOrLoad returns the stale value instead of the error. Callers that
// cannot tolerate staleness should use Get/Set directly.
package ttlcache
