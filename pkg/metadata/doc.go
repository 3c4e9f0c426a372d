// Package metadata resolves items from external sources into media-server
// shaped metadata.
//
// # Overview
//
// One [Provider] exists per external source (a review site, another server
// instance, a request service). Given provider-native ids it produces
// [Item] values, preferring the authoritative copy whenever one exists:
//
//  1. The source's raw item is fetched and turned into [MatchParams].
//  2. The matcher (the discovery catalog when configured, else the backend)
//     is asked for a match. The outcome, a GUID or an explicit "no match",
//     is cached per id.
//  3. All matched GUIDs are looked up on the backend in one batch. Hits are
//     marked IsOnServer.
//  4. GUIDs the backend lacks are looked up on the catalog in one batch when
//     catalog fallback is enabled.
//  5. Everything else is rendered by the source itself when
//     [GetOptions.IncludeUnmatched] is set, and omitted otherwise.
//
// Every returned item carries an [Annotation] recording which source ids and
// backend ids it corresponds to. Annotations never reach the wire.
//
// # Addressing
//
// Items are re-addressed into the provider's namespace so follow-up requests
// come back to the gateway:
//
//	ratingKey  film:amelie          (provider namespace)
//	ratingKey  letterboxd:film:amelie  (QualifiedMetadataIDs)
//	key        /library/metadata/letterboxd://film/amelie
//
// Items found on the backend keep their backend keys unless
// [GetOptions.TransformMatchKeys] is set, so direct backend requests stay
// valid. [Provider.IDsFromKey] recognizes both forms.
//
// # Capabilities
//
// Children and related hubs are optional. A [Source] declares them through
// [Source.Capabilities] and implements [ChildrenSource] or [HubSource];
// [NewProvider] rejects a source whose declarations and methods disagree.
//
// # Failure isolation
//
// A failure resolving one id drops that id from the result. A batch fails
// only when nothing resolved and at least one id failed; the error then
// aggregates every failure.
package metadata
