package metadata

import (
	"maps"

	"github.com/matzehuels/metagate/pkg/ident"
)

// Item is a metadata item in the media server's native shape.
type Item struct {
	RatingKey       string `json:"ratingKey"`
	Key             string `json:"key"`
	GUID            string `json:"guid,omitempty"`
	Type            string `json:"type"`
	Title           string `json:"title"`
	OriginalTitle   string `json:"originalTitle,omitempty"`
	Year            int    `json:"year,omitempty"`
	Summary         string `json:"summary,omitempty"`
	Thumb           string `json:"thumb,omitempty"`
	Art             string `json:"art,omitempty"`
	Duration        int64  `json:"duration,omitempty"`
	ParentRatingKey string `json:"parentRatingKey,omitempty"`
	ParentTitle     string `json:"parentTitle,omitempty"`
	Index           int    `json:"index,omitempty"`
	ChildCount      int    `json:"childCount,omitempty"`
	GUIDs           []GUID `json:"Guid,omitempty"`

	Annotation *Annotation `json:"-"`
}

// GUID is an external identifier attached to an item, e.g. "imdb://tt0211915".
type GUID struct {
	ID string `json:"id"`
}

// Annotation is gateway bookkeeping attached to a resolved item.
type Annotation struct {
	IsOnServer  bool
	Unavailable bool
	MetadataIDs map[string]ident.Partial // source slug -> id in that source
	BackendIDs  map[string]string        // backend address -> native rating key
}

// Annotate returns the item's annotation, creating it if needed.
func (it *Item) Annotate() *Annotation {
	if it.Annotation == nil {
		it.Annotation = &Annotation{}
	}
	if it.Annotation.MetadataIDs == nil {
		it.Annotation.MetadataIDs = make(map[string]ident.Partial)
	}
	if it.Annotation.BackendIDs == nil {
		it.Annotation.BackendIDs = make(map[string]string)
	}
	return it.Annotation
}

// Clone returns a copy of the item that can be annotated independently.
func (it *Item) Clone() *Item {
	c := *it
	c.GUIDs = append([]GUID(nil), it.GUIDs...)
	if it.Annotation != nil {
		a := *it.Annotation
		a.MetadataIDs = maps.Clone(it.Annotation.MetadataIDs)
		a.BackendIDs = maps.Clone(it.Annotation.BackendIDs)
		c.Annotation = &a
	}
	return &c
}

// ExternalIDs returns the item's GUID and external GUIDs.
func (it *Item) ExternalIDs() []string {
	out := make([]string, 0, len(it.GUIDs)+1)
	if it.GUID != "" {
		out = append(out, it.GUID)
	}
	for _, g := range it.GUIDs {
		out = append(out, g.ID)
	}
	return out
}

// Hub is a titled list of items, e.g. "Similar films".
type Hub struct {
	HubIdentifier string  `json:"hubIdentifier"`
	Title         string  `json:"title"`
	Type          string  `json:"type,omitempty"`
	Size          int     `json:"size"`
	More          bool    `json:"more"`
	Metadata      []*Item `json:"Metadata,omitempty"`
}

// MatchParams describes an item well enough for the backend to find it.
type MatchParams struct {
	Title       string
	Year        int
	Types       []string // e.g. "movie", "show"
	ExternalIDs []string // GUIDs such as "imdb://tt0211915" or "tmdb://194"
}

// GetOptions control how resolved items are addressed and filtered.
type GetOptions struct {
	// IncludeUnmatched renders items without a backend or catalog copy
	// from the source itself. Without it such ids are omitted.
	IncludeUnmatched bool

	// TransformMatchKeys rewrites keys of items found on the backend too.
	TransformMatchKeys bool

	// QualifiedMetadataIDs addresses items in the global namespace
	// (slug:directory:id) instead of the provider namespace.
	QualifiedMetadataIDs bool
}

// MatchResult is a cached match outcome. Found false is a confirmed miss.
type MatchResult struct {
	GUID  string
	Found bool
}
