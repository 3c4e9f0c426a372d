// Package filter lets independently developed plugins contribute to the same
// outgoing response.
//
// # Extension points
//
// The set of extension points is closed and declared when the [Builder] is
// created. A [Point] binds a name to the response type its filters receive:
//
//	var RelatedHubs = filter.NewPoint[*HubsResponse]("relatedHubs")
//
// # Ordering
//
// Each plugin registers at most one [Func] per point. An optional order of
// plugin ids may be declared per point; declared plugins run in that order,
// plugins without a declared position follow in registration order. The
// registry is frozen by [Builder.Build].
//
// # Invocation
//
// [Run] dispatches every filter concurrently. A filter may [Call.Await] a
// plugin dispatched before it, e.g. to add a synthetic item only when the
// catalog filter found nothing. Shared data is changed inside
// [Call.Mutate], which serializes mutations for one invocation.
//
// Errors and panics of a filter are logged and never propagated: one broken
// plugin cannot break the response.
package filter
