package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/metagate/pkg/cache"
	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/ident"
	"github.com/matzehuels/metagate/pkg/observability"
)

// Default provider settings.
const (
	DefaultMatchConcurrency = 8
	DefaultMatchLifetime    = 6 * time.Hour
	DefaultItemLifetime     = time.Hour
)

// Config wires a [Provider] to its collaborators.
type Config struct {
	// Backend is the authoritative media server. Required.
	Backend Backend

	// Catalog is the discovery catalog. When set it also answers match
	// queries.
	Catalog Backend

	// CatalogFallback looks up GUIDs the backend lacks on the catalog.
	CatalogFallback bool

	// Defaults are the options the HTTP layer uses for this provider.
	Defaults GetOptions

	MatchLifetime        time.Duration
	ItemLifetime         time.Duration
	AccessResetsLifetime bool
	SweepLimit           int

	// MatchConcurrency caps concurrent match lookups per batch.
	MatchConcurrency int

	Logger *log.Logger
	Now    func() time.Time
}

// Resolver is the source-independent view of a [Provider] used by the HTTP
// layer.
type Resolver interface {
	Slug() string
	Options() GetOptions
	Supports(c Capability) bool
	IDsFromKey(key string) (ids []ident.Partial, relativePath string, ok bool)
	Get(ctx context.Context, ids []ident.Partial, opts GetOptions) ([]*Item, error)
	GetChildren(ctx context.Context, id ident.Partial, opts GetOptions) ([]*Item, error)
	GetRelatedHubs(ctx context.Context, id ident.Partial, opts GetOptions) ([]*Hub, error)
	StartAutoClean()
	Close()
}

// Provider resolves the items of one source. Its caches belong to the
// instance.
type Provider[T any] struct {
	source Source[T]
	slug   string
	cfg    Config
	logger *log.Logger

	raws    *cache.Cache[ident.Partial, T]
	matches *cache.Cache[ident.Partial, MatchResult]
	guids   *cache.Cache[string, ident.Partial] // GUID -> id
}

var _ Resolver = (*Provider[any])(nil)

// NewProvider creates a provider for source.
func NewProvider[T any](source Source[T], cfg Config) (*Provider[T], error) {
	if source == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil source")
	}
	slug := source.Slug()
	if err := errors.ValidateSlug(slug); err != nil {
		return nil, err
	}
	if cfg.Backend == nil {
		return nil, errors.New(errors.ErrCodeNotConfigured, "source %q: no backend configured", slug)
	}
	if cfg.CatalogFallback && cfg.Catalog == nil {
		return nil, errors.New(errors.ErrCodeNotConfigured, "source %q: catalog fallback without catalog", slug)
	}
	caps := source.Capabilities()
	if _, ok := source.(ChildrenSource[T]); caps.Has(CapChildren) && !ok {
		return nil, errors.New(errors.ErrCodeInternal, "source %q declares children but does not implement them", slug)
	}
	if _, ok := source.(HubSource[T]); caps.Has(CapRelatedHubs) && !ok {
		return nil, errors.New(errors.ErrCodeInternal, "source %q declares related hubs but does not implement them", slug)
	}

	if cfg.MatchConcurrency <= 0 {
		cfg.MatchConcurrency = DefaultMatchConcurrency
	}
	if cfg.MatchLifetime == 0 {
		cfg.MatchLifetime = DefaultMatchLifetime
	}
	if cfg.ItemLifetime == 0 {
		cfg.ItemLifetime = DefaultItemLifetime
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Provider[T]{
		source: source,
		slug:   slug,
		cfg:    cfg,
		logger: logger.With("source", slug),
	}
	opts := func(name string, lifetime time.Duration) cache.Options {
		return cache.Options{
			Name:                 slug + "." + name,
			Lifetime:             lifetime,
			AccessResetsLifetime: cfg.AccessResetsLifetime,
			SweepLimit:           cfg.SweepLimit,
			Now:                  cfg.Now,
			Logger:               logger,
		}
	}
	p.raws = cache.New(p.fetchRaw, opts("items", cfg.ItemLifetime))
	p.matches = cache.New(p.match, opts("matches", cfg.MatchLifetime))
	p.guids = cache.New[string, ident.Partial](nil, opts("guids", cfg.MatchLifetime))
	return p, nil
}

// Slug returns the source slug.
func (p *Provider[T]) Slug() string { return p.slug }

// Source returns the wrapped source.
func (p *Provider[T]) Source() Source[T] { return p.source }

// Options returns the configured default options.
func (p *Provider[T]) Options() GetOptions { return p.cfg.Defaults }

// Supports reports whether the source implements c.
func (p *Provider[T]) Supports(c Capability) bool { return p.source.Capabilities().Has(c) }

// StartAutoClean starts expiry sweeps on the provider's caches.
func (p *Provider[T]) StartAutoClean() {
	p.raws.StartAutoClean()
	p.matches.StartAutoClean()
	p.guids.StartAutoClean()
}

// Close stops background sweeps.
func (p *Provider[T]) Close() {
	p.raws.StopAutoClean()
	p.matches.StopAutoClean()
	p.guids.StopAutoClean()
}

// IDForGUID returns the source id previously matched to guid.
func (p *Provider[T]) IDForGUID(guid string) (ident.Partial, bool) {
	l := p.guids.Get(guid, true)
	return l.Value, l.Status == cache.Resolved
}

// Match returns the match outcome for id, looking it up if needed.
func (p *Provider[T]) Match(ctx context.Context, id ident.Partial) (MatchResult, error) {
	m, _, err := p.matches.GetOrFetch(ctx, id)
	return m, err
}

// Get resolves ids. See the package documentation for the algorithm.
func (p *Provider[T]) Get(ctx context.Context, ids []ident.Partial, opts GetOptions) ([]*Item, error) {
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, p.slug, len(ids))
	start := time.Now()
	items, err := p.get(ctx, ids, opts)
	hooks.OnResolveComplete(ctx, p.slug, len(items), time.Since(start), err)
	return items, err
}

type resolution struct {
	id    ident.Partial
	match MatchResult
	item  *Item
	err   error
}

func (p *Provider[T]) get(ctx context.Context, ids []ident.Partial, opts GetOptions) ([]*Item, error) {
	seen := make(map[ident.Partial]bool, len(ids))
	res := make([]*resolution, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, &resolution{id: id})
		}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.MatchConcurrency)
	for _, r := range res {
		g.Go(func() error {
			r.match, r.err = p.Match(ctx, r.id)
			return nil
		})
	}
	_ = g.Wait()

	p.lookup(ctx, p.cfg.Backend, true, unresolved(res, true))
	if p.cfg.CatalogFallback {
		p.lookup(ctx, p.cfg.Catalog, false, unresolved(res, true))
	}
	if opts.IncludeUnmatched {
		for _, r := range unresolved(res, false) {
			r.item, r.err = p.render(ctx, r.id)
		}
	}

	var (
		items  []*Item
		failed *multierror.Error
	)
	for _, r := range res {
		if r.err != nil {
			p.logger.Warn("resolve failed", "id", r.id.String(), "err", r.err)
			failed = multierror.Append(failed, fmt.Errorf("%s: %w", r.id, r.err))
			continue
		}
		if r.item == nil {
			continue
		}
		p.stamp(r.id, r.item, opts)
		items = append(items, r.item)
	}
	if len(items) == 0 && failed != nil {
		if len(failed.Errors) == 1 {
			return nil, failed.Errors[0]
		}
		return nil, failed.ErrorOrNil()
	}
	return items, nil
}

// unresolved returns the resolutions without error or item. With
// matchedOnly it keeps only those that have a GUID.
func unresolved(res []*resolution, matchedOnly bool) []*resolution {
	var out []*resolution
	for _, r := range res {
		if r.err != nil || r.item != nil {
			continue
		}
		if matchedOnly && !r.match.Found {
			continue
		}
		out = append(out, r)
	}
	return out
}

// lookup resolves GUIDs on b in one batch.
func (p *Provider[T]) lookup(ctx context.Context, b Backend, onServer bool, res []*resolution) {
	if len(res) == 0 {
		return
	}
	guids := make([]string, 0, len(res))
	seen := make(map[string]bool, len(res))
	for _, r := range res {
		if !seen[r.match.GUID] {
			seen[r.match.GUID] = true
			guids = append(guids, r.match.GUID)
		}
	}

	found, err := b.GetByGUID(ctx, guids)
	if err != nil {
		for _, r := range res {
			r.err = fmt.Errorf("lookup on %s: %w", b.Address(), err)
		}
		return
	}
	byGUID := make(map[string]*Item, len(found))
	for _, it := range found {
		if it != nil && it.GUID != "" {
			byGUID[it.GUID] = it
		}
	}
	for _, r := range res {
		it, ok := byGUID[r.match.GUID]
		if !ok {
			continue
		}
		item := it.Clone()
		a := item.Annotate()
		a.IsOnServer = onServer
		a.BackendIDs[b.Address()] = it.RatingKey
		r.item = item
	}
}

// render produces the source's own preview of id.
func (p *Provider[T]) render(ctx context.Context, id ident.Partial) (*Item, error) {
	raw, err := p.raw(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := p.source.Transform(ctx, id, raw)
	if err != nil || item == nil {
		return nil, err
	}
	item.Annotate().IsOnServer = false
	return item, nil
}

// stamp records id on item and re-addresses it unless it is a backend item
// that keeps its own keys.
func (p *Provider[T]) stamp(id ident.Partial, item *Item, opts GetOptions) {
	a := item.Annotate()
	a.MetadataIDs[p.slug] = id
	if a.IsOnServer && !opts.TransformMatchKeys {
		return
	}
	item.RatingKey = p.RatingKey(id, opts)
	item.Key = p.ItemKey(id, opts)
}

func (p *Provider[T]) raw(ctx context.Context, id ident.Partial) (T, error) {
	raw, ok, err := p.raws.GetOrFetch(ctx, id)
	if err != nil {
		return raw, err
	}
	if !ok {
		return raw, errors.New(errors.ErrCodeNotFound, "%s item %s not found", p.slug, id)
	}
	return raw, nil
}

func (p *Provider[T]) fetchRaw(ctx context.Context, id ident.Partial) (T, bool, error) {
	raw, err := p.source.Fetch(ctx, id)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return raw, true, nil
}

// match is the fetcher of the match cache. A confirmed miss is cached as
// MatchResult{Found: false}.
func (p *Provider[T]) match(ctx context.Context, id ident.Partial) (MatchResult, bool, error) {
	raw, err := p.raw(ctx, id)
	if err != nil {
		return MatchResult{}, false, err
	}
	params, err := p.source.MatchParams(ctx, raw)
	if err != nil {
		return MatchResult{}, false, err
	}
	if params == nil {
		return MatchResult{}, true, nil
	}
	item, err := p.matcher().FindMatch(ctx, *params)
	if err != nil {
		return MatchResult{}, false, err
	}
	if item == nil || item.GUID == "" {
		p.logger.Debug("no match", "id", id.String(), "title", params.Title, "year", params.Year)
		return MatchResult{}, true, nil
	}
	p.guids.Set(item.GUID, id)
	return MatchResult{GUID: item.GUID, Found: true}, true, nil
}

func (p *Provider[T]) matcher() Backend {
	if p.cfg.Catalog != nil {
		return p.cfg.Catalog
	}
	return p.cfg.Backend
}
