// Package integrations provides HTTP clients for the upstreams behind the
// gateway.
//
// # Overview
//
// Each upstream has its own subpackage:
//
//   - [mediaserver]: the authoritative media-server backend and the
//     discovery catalog, which speak the same item protocol
//   - [peer]: another server instance exposed as an external metadata source
//
// # Shared Infrastructure
//
// The [Client] type provides the shared HTTP layer. Every request is
// scheduled on the [executor.Manager] entry for its host, so a 429 from one
// upstream backs off only that upstream:
//
//	execs := executor.NewManager(executor.DefaultOptions(), nil)
//	client := integrations.NewClient(execs, map[string]string{"X-Plex-Token": token})
//	var out Response
//	err := client.Get(ctx, integrations.JoinURL(base, "/library/metadata/1", nil), &out)
//
// Non-2xx responses surface as [errors.UpstreamError] carrying the status
// and headers, transport failures as [errors.ErrCodeNetwork].
//
// [mediaserver]: github.com/matzehuels/metagate/pkg/integrations/mediaserver
// [peer]: github.com/matzehuels/metagate/pkg/integrations/peer
// [executor.Manager]: github.com/matzehuels/metagate/pkg/executor.Manager
// [errors.UpstreamError]: github.com/matzehuels/metagate/pkg/errors.UpstreamError
// [errors.ErrCodeNetwork]: github.com/matzehuels/metagate/pkg/errors.ErrCodeNetwork
package integrations
