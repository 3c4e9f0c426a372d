package metadata

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/ident"
)

// =============================================================================
// Fixtures
// =============================================================================

type fakeBackend struct {
	addr string

	mu       sync.Mutex
	byGUID   map[string]*Item
	byTitle  map[string]string // title -> GUID
	children map[string][]*Item
	hubs     map[string][]*Hub

	findCalls   int
	lookupCalls int
	lookupErr   error
}

func newFakeBackend(addr string) *fakeBackend {
	return &fakeBackend{
		addr:     addr,
		byGUID:   map[string]*Item{},
		byTitle:  map[string]string{},
		children: map[string][]*Item{},
		hubs:     map[string][]*Hub{},
	}
}

func (b *fakeBackend) add(guid, ratingKey, title string) {
	b.byGUID[guid] = &Item{GUID: guid, RatingKey: ratingKey, Key: MetadataPath + ratingKey, Title: title, Type: "movie"}
	b.byTitle[title] = guid
}

func (b *fakeBackend) Address() string { return b.addr }

func (b *fakeBackend) FindMatch(_ context.Context, params MatchParams) (*Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findCalls++
	guid, ok := b.byTitle[params.Title]
	if !ok {
		return nil, nil
	}
	return &Item{GUID: guid, Title: params.Title}, nil
}

func (b *fakeBackend) GetByGUID(_ context.Context, guids []string) ([]*Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookupCalls++
	if b.lookupErr != nil {
		return nil, b.lookupErr
	}
	var out []*Item
	for _, g := range guids {
		if it, ok := b.byGUID[g]; ok {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

func (b *fakeBackend) GetChildren(_ context.Context, ratingKey string) ([]*Item, error) {
	return b.children[ratingKey], nil
}

func (b *fakeBackend) GetRelatedHubs(_ context.Context, ratingKey string) ([]*Hub, error) {
	return b.hubs[ratingKey], nil
}

type film struct {
	Title   string
	Year    int
	Members []string
	Similar []string
}

type filmSource struct {
	mu      sync.Mutex
	films   map[string]*film
	fetches map[string]int
	caps    Capability
	hubs    []HubProvider[*film]
}

func newFilmSource() *filmSource {
	return &filmSource{
		films: map[string]*film{
			"amelie":  {Title: "Amélie", Year: 2001, Similar: []string{"delicatessen", "obscure"}},
			"obscure": {Title: "Obscure Short", Year: 1999},
			"blank":   {},
			"trilogy": {Title: "Three Colours", Members: []string{"blue", "white"}},
			"blue":    {Title: "Blue", Year: 1993},
			"white":   {Title: "White", Year: 1994},
		},
		fetches: map[string]int{},
	}
}

func (s *filmSource) Slug() string             { return "ext" }
func (s *filmSource) Capabilities() Capability { return s.caps }

func (s *filmSource) Fetch(_ context.Context, id ident.Partial) (*film, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[id.ID]++
	f, ok := s.films[id.ID]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "film %s not found", id.ID)
	}
	return f, nil
}

func (s *filmSource) MatchParams(_ context.Context, f *film) (*MatchParams, error) {
	if f.Title == "" {
		return nil, nil
	}
	return &MatchParams{Title: f.Title, Year: f.Year, Types: []string{"movie"}}, nil
}

func (s *filmSource) Transform(_ context.Context, id ident.Partial, f *film) (*Item, error) {
	it := &Item{Type: "movie", Title: f.Title, Year: f.Year}
	it.Annotate().Unavailable = true
	return it, nil
}

func (s *filmSource) Children(_ context.Context, id ident.Partial, f *film) ([]ident.Partial, error) {
	var out []ident.Partial
	for _, m := range f.Members {
		out = append(out, ident.Partial{Directory: id.Directory, ID: m})
	}
	return out, nil
}

func (s *filmSource) HubProviders() []HubProvider[*film] { return s.hubs }

type similarHub struct{}

func (similarHub) ID() string { return "similar" }

func (similarHub) Hub(_ context.Context, id ident.Partial, f *film) (*HubSpec, error) {
	spec := &HubSpec{Identifier: "ext.similar", Title: "Similar films", Type: "movie"}
	for _, s := range f.Similar {
		spec.IDs = append(spec.IDs, ident.Partial{Directory: id.Directory, ID: s})
	}
	return spec, nil
}

type brokenHub struct{}

func (brokenHub) ID() string { return "broken" }

func (brokenHub) Hub(context.Context, ident.Partial, *film) (*HubSpec, error) {
	return nil, stderrors.New("scraper changed")
}

func filmID(id string) ident.Partial { return ident.Partial{Directory: "film", ID: id} }

func newTestProvider(t *testing.T, src *filmSource, cfg Config) *Provider[*film] {
	t.Helper()
	p, err := NewProvider[*film](src, cfg)
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

// =============================================================================
// Resolution
// =============================================================================

func TestGetPrefersBackendCopy(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})

	items, err := p.Get(context.Background(), []ident.Partial{filmID("amelie")}, GetOptions{})
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Get() returned %d items, want 1", len(items))
	}
	it := items[0]
	a := it.Annotation
	if !a.IsOnServer {
		t.Error("IsOnServer = false, want true")
	}
	if a.MetadataIDs["ext"] != filmID("amelie") {
		t.Errorf("MetadataIDs[ext] = %+v, want film:amelie", a.MetadataIDs["ext"])
	}
	if a.BackendIDs["backend"] != "101" {
		t.Errorf("BackendIDs = %v, want backend:101", a.BackendIDs)
	}
	if it.RatingKey != "101" || it.Key != MetadataPath+"101" {
		t.Errorf("keys = (%q, %q), want backend keys kept", it.RatingKey, it.Key)
	}
	if backend.byGUID["plex://movie/1"].Annotation != nil {
		t.Error("backend fixture was annotated in place")
	}
}

func TestGetTransformMatchKeys(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})

	items, err := p.Get(context.Background(), []ident.Partial{filmID("amelie")}, GetOptions{
		TransformMatchKeys:   true,
		QualifiedMetadataIDs: true,
	})
	if err != nil || len(items) != 1 {
		t.Fatalf("Get() = %v, %v", items, err)
	}
	if got := items[0].RatingKey; got != "ext:film:amelie" {
		t.Errorf("RatingKey = %q, want ext:film:amelie", got)
	}
	if got := items[0].Key; got != MetadataPath+"ext:film:amelie" {
		t.Errorf("Key = %q", got)
	}
	if items[0].Annotation.BackendIDs["backend"] != "101" {
		t.Error("backend id lost when rewriting keys")
	}
}

func TestGetUnmatched(t *testing.T) {
	backend := newFakeBackend("backend")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})
	ctx := context.Background()

	items, err := p.Get(ctx, []ident.Partial{filmID("obscure")}, GetOptions{})
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Get() without IncludeUnmatched returned %d items, want 0", len(items))
	}

	items, err = p.Get(ctx, []ident.Partial{filmID("obscure")}, GetOptions{IncludeUnmatched: true})
	if err != nil || len(items) != 1 {
		t.Fatalf("Get() = %v, %v", items, err)
	}
	it := items[0]
	if it.Annotation.IsOnServer {
		t.Error("IsOnServer = true for unmatched item")
	}
	if !it.Annotation.Unavailable {
		t.Error("Unavailable set by the source was dropped")
	}
	if it.Annotation.MetadataIDs["ext"] != filmID("obscure") {
		t.Errorf("MetadataIDs = %v", it.Annotation.MetadataIDs)
	}
	if it.RatingKey != "film:obscure" {
		t.Errorf("RatingKey = %q, want film:obscure", it.RatingKey)
	}
	if it.Key != MetadataPath+"ext://film/obscure" {
		t.Errorf("Key = %q, want %sext://film/obscure", it.Key, MetadataPath)
	}
}

func TestNegativeMatchIsCached(t *testing.T) {
	backend := newFakeBackend("backend")
	src := newFilmSource()
	p := newTestProvider(t, src, Config{Backend: backend})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.Get(ctx, []ident.Partial{filmID("obscure")}, GetOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if backend.findCalls != 1 {
		t.Errorf("FindMatch called %d times, want 1", backend.findCalls)
	}
	m, err := p.Match(ctx, filmID("obscure"))
	if err != nil || m.Found {
		t.Errorf("Match() = %+v, %v, want a confirmed miss", m, err)
	}

	// Items without match parameters are confirmed misses too.
	if _, err := p.Get(ctx, []ident.Partial{filmID("blank")}, GetOptions{}); err != nil {
		t.Fatal(err)
	}
	if backend.findCalls != 1 {
		t.Errorf("FindMatch called for an item without params")
	}
}

func TestGetCatalogFallback(t *testing.T) {
	backend := newFakeBackend("backend")
	catalog := newFakeBackend("catalog")
	catalog.add("plex://movie/1", "5d776", "Amélie")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend, Catalog: catalog, CatalogFallback: true})

	items, err := p.Get(context.Background(), []ident.Partial{filmID("amelie")}, GetOptions{})
	if err != nil || len(items) != 1 {
		t.Fatalf("Get() = %v, %v", items, err)
	}
	a := items[0].Annotation
	if a.IsOnServer {
		t.Error("catalog item marked IsOnServer")
	}
	if a.BackendIDs["catalog"] != "5d776" {
		t.Errorf("BackendIDs = %v, want catalog address", a.BackendIDs)
	}
	if items[0].RatingKey != "film:amelie" {
		t.Errorf("RatingKey = %q, catalog items are re-addressed", items[0].RatingKey)
	}
	if backend.findCalls != 0 || catalog.findCalls != 1 {
		t.Errorf("find calls backend=%d catalog=%d, want matching on the catalog", backend.findCalls, catalog.findCalls)
	}
}

func TestGetWithoutCatalogFallback(t *testing.T) {
	backend := newFakeBackend("backend")
	catalog := newFakeBackend("catalog")
	catalog.add("plex://movie/1", "5d776", "Amélie")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend, Catalog: catalog})

	items, err := p.Get(context.Background(), []ident.Partial{filmID("amelie")}, GetOptions{IncludeUnmatched: true})
	if err != nil || len(items) != 1 {
		t.Fatalf("Get() = %v, %v", items, err)
	}
	if _, ok := items[0].Annotation.BackendIDs["catalog"]; ok {
		t.Error("catalog consulted although fallback is disabled")
	}
	if catalog.lookupCalls != 0 {
		t.Errorf("catalog lookups = %d, want 0", catalog.lookupCalls)
	}
}

func TestGetBatchesBackendLookup(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	backend.add("plex://movie/2", "102", "Blue")
	src := newFilmSource()
	p := newTestProvider(t, src, Config{Backend: backend})

	ids := []ident.Partial{filmID("amelie"), filmID("blue"), filmID("amelie")}
	items, err := p.Get(context.Background(), ids, GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("Get() returned %d items, want 2 (deduplicated)", len(items))
	}
	if backend.lookupCalls != 1 {
		t.Errorf("GetByGUID called %d times, want 1", backend.lookupCalls)
	}
	if src.fetches["amelie"] != 1 {
		t.Errorf("amelie fetched %d times, want 1", src.fetches["amelie"])
	}
}

func TestGetIsolatesFailures(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})
	ctx := context.Background()

	items, err := p.Get(ctx, []ident.Partial{filmID("amelie"), filmID("missing")}, GetOptions{})
	if err != nil {
		t.Fatalf("Get() with one failure error = %v, want partial success", err)
	}
	if len(items) != 1 {
		t.Errorf("Get() returned %d items, want 1", len(items))
	}

	_, err = p.Get(ctx, []ident.Partial{filmID("missing")}, GetOptions{})
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Get() error = %v, want NOT_FOUND", err)
	}

	_, err = p.Get(ctx, []ident.Partial{filmID("missing"), filmID("gone")}, GetOptions{})
	if err == nil {
		t.Fatal("Get() with every id failing returned no error")
	}
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("aggregated error = %v, want NOT_FOUND in chain", err)
	}
}

func TestGetEmptyResultWithoutFailureIsNotAnError(t *testing.T) {
	p := newTestProvider(t, newFilmSource(), Config{Backend: newFakeBackend("backend")})
	items, err := p.Get(context.Background(), []ident.Partial{filmID("obscure")}, GetOptions{})
	if err != nil || len(items) != 0 {
		t.Errorf("Get() = %v, %v, want empty result", items, err)
	}
}

func TestGetBackendLookupFailure(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	backend.lookupErr = stderrors.New("backend down")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})

	_, err := p.Get(context.Background(), []ident.Partial{filmID("amelie")}, GetOptions{IncludeUnmatched: true})
	if err == nil {
		t.Fatal("Get() error = nil, want lookup failure")
	}
}

func TestIDForGUID(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})

	if _, ok := p.IDForGUID("plex://movie/1"); ok {
		t.Error("IDForGUID before any match should miss")
	}
	if _, err := p.Match(context.Background(), filmID("amelie")); err != nil {
		t.Fatal(err)
	}
	id, ok := p.IDForGUID("plex://movie/1")
	if !ok || id != filmID("amelie") {
		t.Errorf("IDForGUID() = %+v, %v", id, ok)
	}
}

// =============================================================================
// Keys
// =============================================================================

func TestIDsFromKey(t *testing.T) {
	p := newTestProvider(t, newFilmSource(), Config{Backend: newFakeBackend("backend")})

	tests := []struct {
		key     string
		want    []ident.Partial
		wantRel string
		wantOK  bool
	}{
		{"ext:film:amelie", []ident.Partial{filmID("amelie")}, "", true},
		{"ext:amelie", []ident.Partial{{ID: "amelie"}}, "", true},
		{"ext:film:a,b", []ident.Partial{filmID("a"), filmID("b")}, "", true},
		{"ext://film/amelie", []ident.Partial{filmID("amelie")}, "", true},
		{"ext://film/amelie/similar", []ident.Partial{filmID("amelie")}, "/similar", true},
		{"other:film:amelie", nil, "", false},
		{"12345", nil, "", false},
		{"ext:film:a,", nil, "", false},
		{"ext:", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ids, rel, ok := p.IDsFromKey(tt.key)
			if ok != tt.wantOK || rel != tt.wantRel {
				t.Fatalf("IDsFromKey(%q) = (%v, %q, %v)", tt.key, ids, rel, ok)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids[%d] = %+v, want %+v", i, ids[i], tt.want[i])
				}
			}
		})
	}
}

func TestItemKeyRoundTrip(t *testing.T) {
	p := newTestProvider(t, newFilmSource(), Config{Backend: newFakeBackend("backend")})
	for _, opts := range []GetOptions{{}, {QualifiedMetadataIDs: true}} {
		id := ident.Partial{Directory: "film", ID: "the end?"}
		key := p.ItemKey(id, opts)
		ids, _, ok := p.IDsFromKey(key[len(MetadataPath):])
		if !ok || len(ids) != 1 || ids[0] != id {
			t.Errorf("IDsFromKey(ItemKey(%+v)) = %v, %v", id, ids, ok)
		}
	}
}

// =============================================================================
// Children and hubs
// =============================================================================

func TestGetChildrenFromBackend(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://show/9", "900", "Three Colours")
	backend.children["900"] = []*Item{{RatingKey: "901", GUID: "plex://movie/blue", Title: "Blue"}}
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend})

	children, err := p.GetChildren(context.Background(), filmID("trilogy"), GetOptions{})
	if err != nil || len(children) != 1 {
		t.Fatalf("GetChildren() = %v, %v", children, err)
	}
	a := children[0].Annotation
	if !a.IsOnServer || a.BackendIDs["backend"] != "901" {
		t.Errorf("child annotation = %+v", a)
	}
}

func TestGetChildrenSkipsFailingBackend(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.lookupErr = stderrors.New("backend down")
	catalog := newFakeBackend("catalog")
	catalog.add("plex://show/9", "c900", "Three Colours")
	catalog.children["c900"] = []*Item{{RatingKey: "c901", Title: "Blue"}}
	p := newTestProvider(t, newFilmSource(), Config{Backend: backend, Catalog: catalog, CatalogFallback: true})

	children, err := p.GetChildren(context.Background(), filmID("trilogy"), GetOptions{})
	if err != nil || len(children) != 1 {
		t.Fatalf("GetChildren() = %v, %v, want the catalog's children", children, err)
	}
	if a := children[0].Annotation; a.IsOnServer || a.BackendIDs["catalog"] != "c901" {
		t.Errorf("child annotation = %+v", a)
	}

	// Without another target the lookup failure surfaces.
	only := newTestProvider(t, newFilmSource(), Config{Backend: backend, Catalog: catalog})
	if _, err := only.GetChildren(context.Background(), filmID("trilogy"), GetOptions{}); err == nil {
		t.Error("GetChildren() error = nil, want backend lookup failure")
	}
}

func TestGetChildrenFromSource(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/blue", "201", "Blue")
	src := newFilmSource()
	src.caps = CapChildren
	p := newTestProvider(t, src, Config{Backend: backend})

	children, err := p.GetChildren(context.Background(), filmID("trilogy"), GetOptions{IncludeUnmatched: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("GetChildren() returned %d items, want 2", len(children))
	}
	if !children[0].Annotation.IsOnServer || children[1].Annotation.IsOnServer {
		t.Errorf("children on server = %v, %v, want true, false",
			children[0].Annotation.IsOnServer, children[1].Annotation.IsOnServer)
	}
}

func TestGetChildrenWithoutCapability(t *testing.T) {
	p := newTestProvider(t, newFilmSource(), Config{Backend: newFakeBackend("backend")})
	children, err := p.GetChildren(context.Background(), filmID("trilogy"), GetOptions{})
	if err != nil || len(children) != 0 {
		t.Errorf("GetChildren() = %v, %v, want none", children, err)
	}
}

func TestGetRelatedHubs(t *testing.T) {
	backend := newFakeBackend("backend")
	backend.add("plex://movie/1", "101", "Amélie")
	backend.hubs["101"] = []*Hub{{HubIdentifier: "movie.similar", Title: "More like this", Metadata: []*Item{{RatingKey: "150", GUID: "plex://movie/50"}}}}
	src := newFilmSource()
	src.caps = CapRelatedHubs
	src.hubs = []HubProvider[*film]{similarHub{}, brokenHub{}}
	p := newTestProvider(t, src, Config{Backend: backend})

	hubs, err := p.GetRelatedHubs(context.Background(), filmID("amelie"), GetOptions{IncludeUnmatched: true})
	if err != nil {
		t.Fatalf("GetRelatedHubs() error: %v", err)
	}
	if len(hubs) != 2 {
		t.Fatalf("GetRelatedHubs() returned %d hubs, want backend + similar", len(hubs))
	}
	if hubs[0].HubIdentifier != "movie.similar" || !hubs[0].Metadata[0].Annotation.IsOnServer {
		t.Errorf("backend hub = %+v", hubs[0])
	}
	similar := hubs[1]
	if similar.HubIdentifier != "ext.similar" {
		t.Errorf("second hub = %q, want ext.similar", similar.HubIdentifier)
	}
	// delicatessen is unknown to the source and dropped; obscure renders unmatched.
	if similar.Size != 1 || len(similar.Metadata) != 1 {
		t.Errorf("similar hub size = %d, want 1", similar.Size)
	}
}

// =============================================================================
// Construction
// =============================================================================

type bareSource struct{ caps Capability }

func (bareSource) Slug() string { return "bare" }
func (bareSource) Fetch(context.Context, ident.Partial) (string, error) {
	return "", nil
}
func (bareSource) MatchParams(context.Context, string) (*MatchParams, error) { return nil, nil }
func (bareSource) Transform(context.Context, ident.Partial, string) (*Item, error) {
	return &Item{}, nil
}
func (s bareSource) Capabilities() Capability { return s.caps }

func TestNewProviderValidation(t *testing.T) {
	backend := newFakeBackend("backend")
	tests := []struct {
		name string
		src  Source[string]
		cfg  Config
		code errors.Code
	}{
		{"no backend", bareSource{}, Config{}, errors.ErrCodeNotConfigured},
		{"fallback without catalog", bareSource{}, Config{Backend: backend, CatalogFallback: true}, errors.ErrCodeNotConfigured},
		{"undeclared children", bareSource{caps: CapChildren}, Config{Backend: backend}, errors.ErrCodeInternal},
		{"undeclared hubs", bareSource{caps: CapRelatedHubs}, Config{Backend: backend}, errors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.src, tt.cfg)
			if !errors.Is(err, tt.code) {
				t.Errorf("NewProvider() error = %v, want %s", err, tt.code)
			}
		})
	}

	p, err := NewProvider[string](bareSource{}, Config{Backend: backend})
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}
	if p.Supports(CapChildren) {
		t.Error("Supports(CapChildren) = true for a bare source")
	}
}

func TestCapabilityString(t *testing.T) {
	if got := (CapChildren | CapRelatedHubs).String(); got != "children|relatedHubs" {
		t.Errorf("String() = %q", got)
	}
	if got := Capability(0).String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
}
