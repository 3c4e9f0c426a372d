package server

import (
	"net/http"
	"strings"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/filter"
	"github.com/matzehuels/metagate/pkg/ident"
	"github.com/matzehuels/metagate/pkg/metadata"
)

type view int

const (
	viewItems view = iota
	viewChildren
	viewRelated
)

var viewSuffixes = []struct {
	suffix string
	view   view
}{
	{"/children", viewChildren},
	{"/related", viewRelated},
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	slugs := make([]string, len(s.resolvers))
	for i, r := range s.resolvers {
		slugs[i] = r.Slug()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": slugs})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	key, v := requestKey(r)
	if err := errors.ValidateKey(key); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, ids, err := s.route(key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	opts := res.Options()
	values := filter.Values{
		ValueRequestID: RequestID(ctx),
		ValueSource:    res.Slug(),
		ValueKey:       key,
	}
	resp := &Response{}

	switch v {
	case viewItems:
		items, err := res.Get(ctx, ids, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(items) == 0 {
			s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "no items for %s", key))
			return
		}
		resp.MediaContainer.Metadata = items
		filter.Run(ctx, s.filters, MetadataPoint, resp, values)
		resp.MediaContainer.Size = len(resp.MediaContainer.Metadata)

	case viewChildren:
		id, err := single(ids)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		items, err := res.GetChildren(ctx, id, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.MediaContainer.Metadata = items
		filter.Run(ctx, s.filters, ChildrenPoint, resp, values)
		resp.MediaContainer.Size = len(resp.MediaContainer.Metadata)

	case viewRelated:
		id, err := single(ids)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		hubs, err := res.GetRelatedHubs(ctx, id, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.MediaContainer.Hub = hubs
		filter.Run(ctx, s.filters, RelatedHubsPoint, resp, values)
		resp.MediaContainer.Size = len(resp.MediaContainer.Hub)
	}
	resp.MediaContainer.Identifier = res.Slug()
	s.writeJSON(w, http.StatusOK, resp)
}

// requestKey extracts the item key and the requested view. URL-form keys
// keep their percent-encoding so ids round-trip; colon-form keys carry raw
// ids and are taken decoded.
func requestKey(r *http.Request) (string, view) {
	key := strings.TrimPrefix(r.URL.EscapedPath(), metadata.MetadataPath)
	if !strings.Contains(key, "://") {
		key = strings.TrimPrefix(r.URL.Path, metadata.MetadataPath)
	}
	for _, vs := range viewSuffixes {
		if k, ok := strings.CutSuffix(key, vs.suffix); ok && k != "" {
			return k, vs.view
		}
	}
	return key, viewItems
}

// route finds the provider whose namespace contains key.
func (s *Server) route(key string) (metadata.Resolver, []ident.Partial, error) {
	if _, err := ident.Parse(key); err != nil {
		return nil, nil, err
	}
	for _, res := range s.resolvers {
		ids, rel, ok := res.IDsFromKey(key)
		if !ok {
			continue
		}
		if rel != "" {
			return nil, nil, errors.New(errors.ErrCodeNotFound, "%s: unknown path %q", res.Slug(), rel)
		}
		return res, ids, nil
	}
	return nil, nil, errors.New(errors.ErrCodeNotFound, "no source serves %q", key)
}

func single(ids []ident.Partial) (ident.Partial, error) {
	if len(ids) != 1 {
		return ident.Partial{}, errors.New(errors.ErrCodeInvalidInput, "expected one id, got %d", len(ids))
	}
	return ids[0], nil
}
