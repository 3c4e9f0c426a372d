package metadata

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/metagate/pkg/ident"
)

type target struct {
	backend  Backend
	onServer bool
}

// targets lists the backends consulted for matched items, in order.
func (p *Provider[T]) targets() []target {
	out := []target{{p.cfg.Backend, true}}
	if p.cfg.CatalogFallback {
		out = append(out, target{p.cfg.Catalog, false})
	}
	return out
}

// GetChildren returns the children of id. A matched item's children come
// from the backend, then the catalog; otherwise the source's own children
// are resolved like a batch. Sources without children yield none. A failed
// lookup on one target is logged and the next target is tried; it is
// returned only when nothing else can answer.
func (p *Provider[T]) GetChildren(ctx context.Context, id ident.Partial, opts GetOptions) ([]*Item, error) {
	m, err := p.Match(ctx, id)
	if err != nil {
		return nil, err
	}
	var lookupErr error
	if m.Found {
		for _, t := range p.targets() {
			parent, err := p.locate(ctx, t.backend, m.GUID)
			if err != nil {
				p.logger.Warn("children lookup failed", "backend", t.backend.Address(), "guid", m.GUID, "err", err)
				if lookupErr == nil {
					lookupErr = err
				}
				continue
			}
			if parent == nil {
				continue
			}
			children, err := t.backend.GetChildren(ctx, parent.RatingKey)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				p.annotateBackendItem(c, t)
			}
			return children, nil
		}
	}

	cs, ok := p.source.(ChildrenSource[T])
	if !ok || !p.Supports(CapChildren) {
		return nil, lookupErr
	}
	raw, err := p.raw(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := cs.Children(ctx, id, raw)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.Get(ctx, ids, opts)
}

// GetRelatedHubs returns hubs related to id: the backend's (or catalog's)
// hubs for a matched item, followed by the hubs of the source's hub
// providers. Hub providers run in parallel; a failing one is logged and
// dropped.
func (p *Provider[T]) GetRelatedHubs(ctx context.Context, id ident.Partial, opts GetOptions) ([]*Hub, error) {
	m, err := p.Match(ctx, id)
	if err != nil {
		return nil, err
	}

	var hubs []*Hub
	if m.Found {
		hubs = p.backendHubs(ctx, m.GUID)
	}

	hs, ok := p.source.(HubSource[T])
	if !ok || !p.Supports(CapRelatedHubs) {
		return hubs, nil
	}
	raw, err := p.raw(ctx, id)
	if err != nil {
		if len(hubs) > 0 {
			p.logger.Warn("source hubs skipped", "id", id.String(), "err", err)
			return hubs, nil
		}
		return nil, err
	}
	return append(hubs, p.sourceHubs(ctx, hs, id, raw, opts)...), nil
}

func (p *Provider[T]) backendHubs(ctx context.Context, guid string) []*Hub {
	for _, t := range p.targets() {
		parent, err := p.locate(ctx, t.backend, guid)
		if err != nil {
			p.logger.Warn("related hubs lookup failed", "backend", t.backend.Address(), "guid", guid, "err", err)
			continue
		}
		if parent == nil {
			continue
		}
		hubs, err := t.backend.GetRelatedHubs(ctx, parent.RatingKey)
		if err != nil {
			p.logger.Warn("related hubs failed", "backend", t.backend.Address(), "guid", guid, "err", err)
			return nil
		}
		for _, h := range hubs {
			for _, it := range h.Metadata {
				p.annotateBackendItem(it, t)
			}
		}
		return hubs
	}
	return nil
}

func (p *Provider[T]) sourceHubs(ctx context.Context, hs HubSource[T], id ident.Partial, raw T, opts GetOptions) []*Hub {
	providers := hs.HubProviders()
	out := make([]*Hub, len(providers))

	var g errgroup.Group
	for i, hp := range providers {
		g.Go(func() error {
			spec, err := hp.Hub(ctx, id, raw)
			if err != nil {
				p.logger.Warn("hub provider failed", "hub", hp.ID(), "id", id.String(), "err", err)
				return nil
			}
			if spec == nil {
				return nil
			}
			items, err := p.Get(ctx, spec.IDs, opts)
			if err != nil {
				p.logger.Warn("hub items failed", "hub", hp.ID(), "id", id.String(), "err", err)
				return nil
			}
			out[i] = &Hub{
				HubIdentifier: spec.Identifier,
				Title:         spec.Title,
				Type:          spec.Type,
				Size:          len(items),
				More:          spec.More,
				Metadata:      items,
			}
			return nil
		})
	}
	_ = g.Wait()

	hubs := out[:0]
	for _, h := range out {
		if h != nil {
			hubs = append(hubs, h)
		}
	}
	return hubs
}

// locate finds the item with guid on b, or nil.
func (p *Provider[T]) locate(ctx context.Context, b Backend, guid string) (*Item, error) {
	items, err := b.GetByGUID(ctx, []string{guid})
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it != nil && it.GUID == guid {
			return it, nil
		}
	}
	return nil, nil
}

// annotateBackendItem marks an item served by t and links it to a source id
// when its GUID was matched before.
func (p *Provider[T]) annotateBackendItem(it *Item, t target) {
	if it == nil {
		return
	}
	a := it.Annotate()
	a.IsOnServer = t.onServer
	a.BackendIDs[t.backend.Address()] = it.RatingKey
	if it.GUID == "" {
		return
	}
	if id, ok := p.IDForGUID(it.GUID); ok {
		a.MetadataIDs[p.slug] = id
	}
}
