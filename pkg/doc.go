// Package pkg provides the libraries behind the metagate metadata gateway.
//
// # Overview
//
// Metagate lets a media server show items from external metadata sources.
// A request for an external item is resolved in three steps: the item is
// matched against the media server (the backend), looked up in a discovery
// catalog if the backend lacks it, and otherwise rendered from the source
// itself. The pkg directory is organized by concern:
//
//  1. [ident] - the identifier codec (source:directory:id and source://directory/id)
//  2. [metadata] - the per-source resolution engine
//  3. [cache] - the single-flight TTL cache every provider is built on
//  4. [executor] - per-domain request scheduling with 429 backoff
//  5. [filter] - the response filter pipeline for plugins
//  6. [integrations] - HTTP clients for the media server protocol and peers
//  7. [config], [errors], [observability], [buildinfo] - ambient infrastructure
//
// # Architecture
//
//	HTTP request /library/metadata/<key>
//	         ↓
//	    [ident] parse key, pick the provider that owns the namespace
//	         ↓
//	    [metadata] match ids (cached), batch lookup on backend, then catalog
//	         ↓                                  ↑
//	    [filter] response filters         [integrations] → [executor]
//	         ↓
//	    MediaContainer JSON
//
// # Quick Start
//
//	execs := executor.NewManager(executor.DefaultOptions(), nil)
//	backend, _ := mediaserver.NewClient(mediaserver.Config{
//	    BaseURL:   "http://127.0.0.1:32400",
//	    Token:     token,
//	    Executors: execs,
//	})
//	friend, _ := mediaserver.NewClient(mediaserver.Config{BaseURL: peerURL, Executors: execs})
//	src, _ := peer.New("friend", friend)
//	p, _ := metadata.NewProvider(src, metadata.Config{Backend: backend})
//
//	items, err := p.Get(ctx, []ident.Partial{{Directory: "movie", ID: "42"}},
//	    metadata.GetOptions{IncludeUnmatched: true})
//
// [ident]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/ident
// [metadata]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/metadata
// [cache]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/cache
// [executor]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/executor
// [filter]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/filter
// [integrations]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/integrations
// [config]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/metagate/pkg/buildinfo
package pkg
