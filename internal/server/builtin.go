package server

import (
	"context"

	"github.com/matzehuels/metagate/pkg/filter"
	"github.com/matzehuels/metagate/pkg/metadata"
)

// Built-in plugin ids. They register before any other plugin, so unless
// [filters.order] says otherwise they run first and later filters can
// await them.
const (
	PluginDedupeItems = "dedupe-items"
	PluginPruneHubs   = "prune-hubs"
)

// RegisterBuiltins registers the gateway's own response filters on b.
func RegisterBuiltins(b *filter.Builder) error {
	for _, p := range []filter.Point[*Response]{MetadataPoint, ChildrenPoint} {
		if err := filter.Register(b, p, PluginDedupeItems, dedupeItems); err != nil {
			return err
		}
	}
	return filter.Register(b, RelatedHubsPoint, PluginPruneHubs, pruneHubs)
}

// dedupeItems drops repeated rating keys. Several source ids matched to the
// same backend item otherwise list that item once per id.
func dedupeItems(_ context.Context, r *Response, c *filter.Call) error {
	c.Mutate(func() {
		r.MediaContainer.Metadata = uniqueItems(r.MediaContainer.Metadata)
	})
	return nil
}

// pruneHubs drops empty hubs and hubs whose identifier already appeared.
func pruneHubs(_ context.Context, r *Response, c *filter.Call) error {
	c.Mutate(func() {
		seen := make(map[string]bool, len(r.MediaContainer.Hub))
		hubs := r.MediaContainer.Hub[:0]
		for _, h := range r.MediaContainer.Hub {
			if h == nil || len(h.Metadata) == 0 || seen[h.HubIdentifier] {
				continue
			}
			seen[h.HubIdentifier] = true
			h.Metadata = uniqueItems(h.Metadata)
			h.Size = len(h.Metadata)
			hubs = append(hubs, h)
		}
		r.MediaContainer.Hub = hubs
	})
	return nil
}

func uniqueItems(items []*metadata.Item) []*metadata.Item {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if it == nil {
			continue
		}
		if it.RatingKey != "" {
			if seen[it.RatingKey] {
				continue
			}
			seen[it.RatingKey] = true
		}
		out = append(out, it)
	}
	return out
}
