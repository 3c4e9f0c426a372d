package metadata

import (
	"context"
	"strings"

	"github.com/matzehuels/metagate/pkg/ident"
)

// Source is an external metadata source. T is the source's raw item type.
type Source[T any] interface {
	// Slug names the source in identifiers, e.g. "letterboxd".
	Slug() string

	// Fetch loads the raw item. A missing item is an error with
	// errors.ErrCodeNotFound.
	Fetch(ctx context.Context, id ident.Partial) (T, error)

	// MatchParams derives backend match parameters. A nil result means the
	// item cannot be matched and is cached as a confirmed miss.
	MatchParams(ctx context.Context, raw T) (*MatchParams, error)

	// Transform renders the raw item as a preview for unmatched ids. Its
	// keys are rewritten by the provider afterwards.
	Transform(ctx context.Context, id ident.Partial, raw T) (*Item, error)

	// Capabilities declares the optional behaviors the source implements.
	Capabilities() Capability
}

// ChildrenSource is implemented by sources declaring [CapChildren].
type ChildrenSource[T any] interface {
	Source[T]

	// Children lists the ids of the item's children in this source.
	Children(ctx context.Context, id ident.Partial, raw T) ([]ident.Partial, error)
}

// HubSource is implemented by sources declaring [CapRelatedHubs].
type HubSource[T any] interface {
	Source[T]

	// HubProviders returns the sub-providers contributing related hubs.
	HubProviders() []HubProvider[T]
}

// HubProvider contributes one related hub for an item.
type HubProvider[T any] interface {
	ID() string

	// Hub returns the hub for the item, or nil when there is none.
	Hub(ctx context.Context, id ident.Partial, raw T) (*HubSpec, error)
}

// HubSpec is a hub whose items are ids of the providing source; the
// provider resolves them like any other batch.
type HubSpec struct {
	Identifier string
	Title      string
	Type       string
	IDs        []ident.Partial
	More       bool
}

// Capability is a set of optional source behaviors.
type Capability uint8

const (
	CapChildren Capability = 1 << iota
	CapRelatedHubs
)

// Has reports whether c includes every capability in o.
func (c Capability) Has(o Capability) bool { return c&o == o }

func (c Capability) String() string {
	var parts []string
	if c.Has(CapChildren) {
		parts = append(parts, "children")
	}
	if c.Has(CapRelatedHubs) {
		parts = append(parts, "relatedHubs")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Backend is a media-server-protocol client: the authoritative backend or
// the discovery catalog.
type Backend interface {
	// Address identifies the backend in [Annotation.BackendIDs].
	Address() string

	// FindMatch returns the best match, or nil without error when there is
	// none.
	FindMatch(ctx context.Context, params MatchParams) (*Item, error)

	// GetByGUID returns the items known for guids. Unknown GUIDs are simply
	// absent from the result.
	GetByGUID(ctx context.Context, guids []string) ([]*Item, error)

	// GetChildren returns the children of the item with ratingKey.
	GetChildren(ctx context.Context, ratingKey string) ([]*Item, error)

	// GetRelatedHubs returns the related hubs of the item with ratingKey.
	GetRelatedHubs(ctx context.Context, ratingKey string) ([]*Hub, error)
}
