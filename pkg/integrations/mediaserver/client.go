package mediaserver

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/executor"
	"github.com/matzehuels/metagate/pkg/integrations"
	"github.com/matzehuels/metagate/pkg/metadata"
)

// TokenHeader carries the access token.
const TokenHeader = "X-Plex-Token"

// Config describes one media server.
type Config struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:32400". Required.
	BaseURL string

	// Token is the access token. Optional.
	Token string

	// Address identifies the server in item annotations. Defaults to the
	// host of BaseURL.
	Address string

	// Executors schedules requests. Nil gets a private manager.
	Executors *executor.Manager
}

// Client talks to one media server.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	address string
}

var _ metadata.Backend = (*Client)(nil)

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeNotConfigured, "media server url not configured")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid media server url %q", cfg.BaseURL)
	}
	addr := cfg.Address
	if addr == "" {
		addr = strings.ToLower(u.Host)
	}
	var headers map[string]string
	if cfg.Token != "" {
		headers = map[string]string{TokenHeader: cfg.Token}
	}
	return &Client{
		Client:  integrations.NewClient(cfg.Executors, headers),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		address: addr,
	}, nil
}

// Address returns the address items of this server are annotated with.
func (c *Client) Address() string { return c.address }

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.baseURL }

// FindMatch asks the server for the best match of params. External ids are
// the strongest hint; title, year and types narrow a title search.
func (c *Client) FindMatch(ctx context.Context, params metadata.MatchParams) (*metadata.Item, error) {
	q := url.Values{}
	if params.Title != "" {
		q.Set("title", params.Title)
	}
	if params.Year > 0 {
		q.Set("year", strconv.Itoa(params.Year))
	}
	if len(params.Types) > 0 {
		q.Set("type", strings.Join(params.Types, ","))
	}
	if len(params.ExternalIDs) > 0 {
		q.Set("guid", strings.Join(params.ExternalIDs, ","))
	}
	if len(q) == 0 {
		return nil, nil
	}

	var resp response
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, "/library/metadata/matches", q), &resp); err != nil {
		if errors.IsUpstreamStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for _, it := range resp.MediaContainer.Metadata {
		if it != nil && it.GUID != "" {
			return it, nil
		}
	}
	return nil, nil
}

// GetByGUID returns the server's items for guids in one request.
func (c *Client) GetByGUID(ctx context.Context, guids []string) ([]*metadata.Item, error) {
	if len(guids) == 0 {
		return nil, nil
	}
	q := url.Values{"guid": {strings.Join(guids, ",")}}
	var resp response
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, "/library/all", q), &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// Metadata returns the item with ratingKey. A missing item is an error with
// [errors.ErrCodeNotFound].
func (c *Client) Metadata(ctx context.Context, ratingKey string) (*metadata.Item, error) {
	resp, err := c.item(ctx, ratingKey, "")
	if err != nil {
		return nil, err
	}
	for _, it := range resp.MediaContainer.Metadata {
		if it != nil {
			return it, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "item %s not found on %s", ratingKey, c.address)
}

// GetChildren returns the children of the item with ratingKey.
func (c *Client) GetChildren(ctx context.Context, ratingKey string) ([]*metadata.Item, error) {
	resp, err := c.item(ctx, ratingKey, "/children")
	if err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// GetRelatedHubs returns the related hubs of the item with ratingKey.
func (c *Client) GetRelatedHubs(ctx context.Context, ratingKey string) ([]*metadata.Hub, error) {
	resp, err := c.item(ctx, ratingKey, "/related")
	if err != nil {
		return nil, err
	}
	for _, h := range resp.MediaContainer.Hub {
		if h.Size == 0 {
			h.Size = len(h.Metadata)
		}
	}
	return resp.MediaContainer.Hub, nil
}

func (c *Client) item(ctx context.Context, ratingKey, suffix string) (*response, error) {
	if ratingKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty rating key")
	}
	path := metadata.MetadataPath + url.PathEscape(ratingKey) + suffix
	var resp response
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, path, nil), &resp); err != nil {
		if errors.IsUpstreamStatus(err, http.StatusNotFound) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "item %s not found on %s", ratingKey, c.address)
		}
		return nil, err
	}
	return &resp, nil
}

type response struct {
	MediaContainer container `json:"MediaContainer"`
}

type container struct {
	Size     int              `json:"size"`
	Metadata []*metadata.Item `json:"Metadata"`
	Hub      []*metadata.Hub  `json:"Hub"`
}
