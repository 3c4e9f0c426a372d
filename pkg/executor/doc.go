// Package executor gates outbound requests per upstream domain.
//
// An [Executor] owns the backoff state of one domain. [Executor.Do] runs a
// unit of work under these controls:
//
//   - Rate-limit retries: an [errors.UpstreamError] with status 429 is
//     retried after the Retry-After delay (seconds or HTTP date), padded with
//     a fixed delay, random jitter, and a penalty proportional to the number
//     of calls currently retrying. Every other failure is returned untouched.
//   - Drain barrier: while any call is backing off, new sends wait until all
//     in-flight work has settled.
//   - Parallel cap: at most MaxParallel units of work execute at once.
//   - Occasional delay: after every N requests all callers share one
//     cooldown, independent of errors.
//   - Steady rate: an optional token bucket paces sends.
//
// The domain's next retry time is the furthest deadline seen across all
// 429 responses, so a later, shorter Retry-After never shortens the wait.
//
// Cancellation of the caller's context is observed at every wait and
// surfaces as [errors.ErrCodeCancelled]. Work that has already started is
// not interrupted by this package; it receives the same context.
//
// A [Manager] lazily creates one executor per domain so backoff never leaks
// between unrelated upstreams:
//
//	m := executor.NewManager(executor.DefaultOptions(), nil)
//	film, err := executor.Call(ctx, m.Executor("letterboxd.com"), func(ctx context.Context) (*Film, error) {
//	    return client.Film(ctx, slug)
//	})
package executor
