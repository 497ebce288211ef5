// Package engine caches the value of resolved endpoints.
//
// One EndpointCache exists per distinct endpoint path. A cache serves its
// stored value until the cooldown elapses; the next Get then refreshes it
// according to a Policy:
//
//   - none: one attempt, any failure propagates
//   - retry: up to RetryAmount attempts, RetryDelay apart
//   - retry_or_use_previous: like retry, then falls back to the cached value
//   - use_previous: one attempt, then falls back to the cached value
//
// Only recoverable transport failures (rate limit, server error, service
// unavailable) are retried or answered from cache. Every recoverable failure
// and every success is reported to a Recorder, normally a *health.Tracker.
// Other errors propagate at once and are not reported.
//
// The refresh timestamp is taken before the first attempt, so a failed
// refresh still starts a new cooldown when a value is cached.
package engine
