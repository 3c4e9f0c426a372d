package mediaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/metadata"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(TokenHeader); got != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: server.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		code    errors.Code
		address string
	}{
		{"missing url", Config{}, errors.ErrCodeNotConfigured, ""},
		{"bad scheme", Config{BaseURL: "ftp://server"}, errors.ErrCodeInvalidInput, ""},
		{"no host", Config{BaseURL: "http://"}, errors.ErrCodeInvalidInput, ""},
		{"default address", Config{BaseURL: "http://Media.local:32400"}, "", "media.local:32400"},
		{"explicit address", Config{BaseURL: "http://media.local", Address: "server-1"}, "", "server-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Fatalf("NewClient() error = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			if c.Address() != tt.address {
				t.Errorf("Address() = %q, want %q", c.Address(), tt.address)
			}
		})
	}
}

func TestFindMatch(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		if r.URL.Path != "/library/metadata/matches" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"MediaContainer":{"size":2,"Metadata":[
			{"ratingKey":"0","title":"No guid"},
			{"ratingKey":"42","guid":"plex://movie/5d776","title":"Amélie","year":2001,"type":"movie"}
		]}}`))
	}))
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	it, err := c.FindMatch(context.Background(), metadata.MatchParams{
		Title:       "Amélie",
		Year:        2001,
		Types:       []string{"movie"},
		ExternalIDs: []string{"imdb://tt0211915", "tmdb://194"},
	})
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if it == nil || it.GUID != "plex://movie/5d776" {
		t.Fatalf("FindMatch() = %+v", it)
	}
	for _, want := range []string{"title=Am%C3%A9lie", "year=2001", "type=movie", "guid=imdb%3A%2F%2Ftt0211915%2Ctmdb%3A%2F%2F194"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestFindMatchNone(t *testing.T) {
	server := newServer(t, map[string]string{
		"/library/metadata/matches": `{"MediaContainer":{"size":0}}`,
	})
	c := newTestClient(t, server)

	it, err := c.FindMatch(context.Background(), metadata.MatchParams{Title: "Nothing"})
	if err != nil || it != nil {
		t.Errorf("FindMatch() = %v, %v; want nil, nil", it, err)
	}
	it, err = c.FindMatch(context.Background(), metadata.MatchParams{})
	if err != nil || it != nil {
		t.Errorf("FindMatch(empty) = %v, %v; want nil, nil", it, err)
	}
}

func TestGetByGUID(t *testing.T) {
	var guid string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guid = r.URL.Query().Get("guid")
		w.Write([]byte(`{"MediaContainer":{"Metadata":[
			{"ratingKey":"42","key":"/library/metadata/42","guid":"plex://movie/a","title":"A","Guid":[{"id":"imdb://tt1"}]}
		]}}`))
	}))
	defer server.Close()

	c, _ := NewClient(Config{BaseURL: server.URL})
	items, err := c.GetByGUID(context.Background(), []string{"plex://movie/a", "plex://movie/b"})
	if err != nil {
		t.Fatalf("GetByGUID() error = %v", err)
	}
	if guid != "plex://movie/a,plex://movie/b" {
		t.Errorf("guid param = %q", guid)
	}
	if len(items) != 1 || items[0].RatingKey != "42" || items[0].GUIDs[0].ID != "imdb://tt1" {
		t.Errorf("GetByGUID() = %+v", items)
	}

	items, err = c.GetByGUID(context.Background(), nil)
	if err != nil || items != nil {
		t.Errorf("GetByGUID(nil) = %v, %v", items, err)
	}
}

func TestMetadata(t *testing.T) {
	server := newServer(t, map[string]string{
		"/library/metadata/42":    `{"MediaContainer":{"Metadata":[{"ratingKey":"42","title":"A"}]}}`,
		"/library/metadata/empty": `{"MediaContainer":{"size":0}}`,
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	it, err := c.Metadata(ctx, "42")
	if err != nil || it.Title != "A" {
		t.Fatalf("Metadata(42) = %+v, %v", it, err)
	}
	if _, err := c.Metadata(ctx, "empty"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Metadata(empty) error = %v, want NOT_FOUND", err)
	}
	if _, err := c.Metadata(ctx, "missing"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Metadata(missing) error = %v, want NOT_FOUND", err)
	}
	if _, err := c.Metadata(ctx, ""); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Metadata(\"\") error = %v, want INVALID_INPUT", err)
	}
}

func TestChildrenAndRelated(t *testing.T) {
	server := newServer(t, map[string]string{
		"/library/metadata/7/children": `{"MediaContainer":{"Metadata":[{"ratingKey":"8","index":1},{"ratingKey":"9","index":2}]}}`,
		"/library/metadata/7/related": `{"MediaContainer":{"Hub":[
			{"hubIdentifier":"movie.similar","title":"Similar","Metadata":[{"ratingKey":"3"}]}
		]}}`,
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	children, err := c.GetChildren(ctx, "7")
	if err != nil || len(children) != 2 || children[1].Index != 2 {
		t.Fatalf("GetChildren() = %+v, %v", children, err)
	}
	hubs, err := c.GetRelatedHubs(ctx, "7")
	if err != nil || len(hubs) != 1 {
		t.Fatalf("GetRelatedHubs() = %+v, %v", hubs, err)
	}
	if hubs[0].Size != 1 || hubs[0].Metadata[0].RatingKey != "3" {
		t.Errorf("hub = %+v", hubs[0])
	}
}

func TestUnauthorized(t *testing.T) {
	server := newServer(t, nil)
	c, _ := NewClient(Config{BaseURL: server.URL, Token: "wrong"})

	_, err := c.GetChildren(context.Background(), "1")
	if !errors.IsUpstreamStatus(err, http.StatusUnauthorized) {
		t.Errorf("error = %v, want upstream 401", err)
	}
}
