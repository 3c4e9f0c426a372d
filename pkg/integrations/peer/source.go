package peer

import (
	"context"
	"slices"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/ident"
	"github.com/matzehuels/metagate/pkg/integrations/mediaserver"
	"github.com/matzehuels/metagate/pkg/metadata"
)

// Server is the part of a media-server client the source needs.
type Server interface {
	Metadata(ctx context.Context, ratingKey string) (*metadata.Item, error)
	GetChildren(ctx context.Context, ratingKey string) ([]*metadata.Item, error)
	GetRelatedHubs(ctx context.Context, ratingKey string) ([]*metadata.Hub, error)
}

var _ Server = (*mediaserver.Client)(nil)

// Source is a peer server seen as a metadata source.
type Source struct {
	slug   string
	server Server
	hubs   []metadata.HubProvider[*metadata.Item]
}

var (
	_ metadata.ChildrenSource[*metadata.Item] = (*Source)(nil)
	_ metadata.HubSource[*metadata.Item]      = (*Source)(nil)
)

// New creates a source named slug. hubs lists the peer hub identifiers to
// expose as related hubs; none exposes the peer's first related hub.
func New(slug string, server Server, hubs ...string) (*Source, error) {
	if err := errors.ValidateSlug(slug); err != nil {
		return nil, err
	}
	if server == nil {
		return nil, errors.New(errors.ErrCodeNotConfigured, "peer %q: no server", slug)
	}
	s := &Source{slug: slug, server: server}
	if len(hubs) == 0 {
		hubs = []string{""}
	}
	for _, h := range hubs {
		s.hubs = append(s.hubs, &relatedHub{source: s, identifier: h})
	}
	return s, nil
}

// ID returns the peer id of a peer item.
func ID(it *metadata.Item) ident.Partial {
	return ident.Partial{Directory: it.Type, ID: it.RatingKey}
}

func (s *Source) Slug() string { return s.slug }

func (s *Source) Capabilities() metadata.Capability {
	return metadata.CapChildren | metadata.CapRelatedHubs
}

func (s *Source) Fetch(ctx context.Context, id ident.Partial) (*metadata.Item, error) {
	return s.server.Metadata(ctx, id.ID)
}

// MatchParams matches on the peer's GUIDs and title. An item with neither
// cannot be matched.
func (s *Source) MatchParams(_ context.Context, raw *metadata.Item) (*metadata.MatchParams, error) {
	ext := raw.ExternalIDs()
	if raw.Title == "" && len(ext) == 0 {
		return nil, nil
	}
	params := &metadata.MatchParams{
		Title:       raw.Title,
		Year:        raw.Year,
		ExternalIDs: ext,
	}
	if raw.Type != "" {
		params.Types = []string{raw.Type}
	}
	return params, nil
}

// Transform renders the peer item. It is marked unavailable because the
// local server cannot play it.
func (s *Source) Transform(_ context.Context, _ ident.Partial, raw *metadata.Item) (*metadata.Item, error) {
	it := raw.Clone()
	it.Annotate().Unavailable = true
	it.ParentRatingKey = ""
	return it, nil
}

func (s *Source) Children(ctx context.Context, _ ident.Partial, raw *metadata.Item) ([]ident.Partial, error) {
	children, err := s.server.GetChildren(ctx, raw.RatingKey)
	if err != nil {
		return nil, err
	}
	ids := make([]ident.Partial, 0, len(children))
	for _, c := range children {
		if c != nil && c.RatingKey != "" {
			ids = append(ids, ID(c))
		}
	}
	return ids, nil
}

func (s *Source) HubProviders() []metadata.HubProvider[*metadata.Item] {
	return slices.Clone(s.hubs)
}

type relatedHub struct {
	source     *Source
	identifier string // empty selects the first hub
}

func (h *relatedHub) ID() string {
	if h.identifier == "" {
		return h.source.slug + ".related"
	}
	return h.source.slug + "." + h.identifier
}

func (h *relatedHub) Hub(ctx context.Context, _ ident.Partial, raw *metadata.Item) (*metadata.HubSpec, error) {
	hubs, err := h.source.server.GetRelatedHubs(ctx, raw.RatingKey)
	if err != nil {
		return nil, err
	}
	for _, hub := range hubs {
		if hub == nil || (h.identifier != "" && hub.HubIdentifier != h.identifier) {
			continue
		}
		spec := &metadata.HubSpec{
			Identifier: h.source.slug + "." + hub.HubIdentifier,
			Title:      hub.Title,
			Type:       hub.Type,
			More:       hub.More,
		}
		for _, it := range hub.Metadata {
			if it != nil && it.RatingKey != "" {
				spec.IDs = append(spec.IDs, ID(it))
			}
		}
		if len(spec.IDs) == 0 {
			return nil, nil
		}
		return spec, nil
	}
	return nil, nil
}
