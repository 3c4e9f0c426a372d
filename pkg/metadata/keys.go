package metadata

import (
	"strings"

	"github.com/matzehuels/metagate/pkg/ident"
)

// MetadataPath is the path prefix of item keys.
const MetadataPath = "/library/metadata/"

// RatingKey returns the rating key of id: the partial id in the provider
// namespace, or slug:partial with QualifiedMetadataIDs.
func (p *Provider[T]) RatingKey(id ident.Partial, opts GetOptions) string {
	if opts.QualifiedMetadataIDs {
		return ident.Qualify(id, p.slug).String()
	}
	return id.String()
}

// ItemKey returns the request path of id. It always carries the slug so
// the gateway can route the request back to this provider.
func (p *Provider[T]) ItemKey(id ident.Partial, opts GetOptions) string {
	if opts.QualifiedMetadataIDs {
		return MetadataPath + ident.Qualify(id, p.slug).String()
	}
	return MetadataPath + ident.Identifier{
		IsURL:     true,
		Source:    p.slug,
		Directory: id.Directory,
		ID:        id.ID,
	}.String()
}

// IDsFromKey recognizes keys in this provider's namespace. Both the colon
// and the URL form are accepted; the id part may list several ids separated
// by commas, which share the key's directory. ok is false for keys of other
// sources and for malformed keys.
func (p *Provider[T]) IDsFromKey(key string) (ids []ident.Partial, relativePath string, ok bool) {
	id, err := ident.Parse(key)
	if err != nil || id.Source != p.slug {
		return nil, "", false
	}
	for part := range strings.SplitSeq(id.ID, ",") {
		if part == "" {
			return nil, "", false
		}
		ids = append(ids, ident.Partial{Directory: id.Directory, ID: part})
	}
	return ids, id.RelativePath, true
}
