// Package cache provides the single-flight TTL cache used wherever the
// gateway memoizes outbound calls.
//
// # Overview
//
// A [Cache] wraps a [Fetcher]. Concurrent callers asking for the same key
// share one in-flight fetch (a [Flight]) instead of issuing duplicate upstream
// calls. Entries move through explicit states:
//
//	Absent -> Pending -> Resolved -> (evicted)
//
// A fetch that fails, or that reports the value as undefined, removes the
// entry so the next caller retries. Rejections are never cached; callers that
// want negative caching store an explicit "not found" value instead.
//
// # Expiry
//
// Resolved entries carry updatedAt and accessedAt stamps. An entry expires
// once now minus its stamp exceeds [Options.Lifetime]. The stamp is
// accessedAt when [Options.AccessResetsLifetime] is set, otherwise updatedAt.
//
// Entries are kept in an ordered index sorted oldest-first by stamp. An
// access that resets the lifetime moves the entry to the end of the index, so
// [Cache.Sweep] can stop at the first entry that has not expired.
//
// # Auto-clean
//
// [Cache.StartAutoClean] schedules sweeps on a timer that reschedules itself
// from each sweep's result. Start and stop are idempotent.
//
//	c := cache.New(fetchFilm, cache.Options{Name: "films", Lifetime: time.Hour})
//	c.StartAutoClean()
//	defer c.StopAutoClean()
//
//	film, ok, err := c.GetOrFetch(ctx, "amelie")
package cache
