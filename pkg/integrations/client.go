package integrations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/metagate/pkg/buildinfo"
	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/executor"
	"github.com/matzehuels/metagate/pkg/observability"
)

// Client provides shared HTTP functionality for upstream API clients.
// Every request runs through the request executor of its domain, so retries
// on 429, parallel caps, and pacing apply uniformly.
type Client struct {
	http      *http.Client
	executors *executor.Manager
	headers   map[string]string
}

// NewClient creates a Client that schedules requests on executors and sends
// headers with every request. A nil manager gets a private one with the
// default policy. Pass nil for headers if no default headers are needed.
func NewClient(executors *executor.Manager, headers map[string]string) *Client {
	if executors == nil {
		executors = executor.NewManager(executor.DefaultOptions(), nil)
	}
	return &Client{
		http:      NewHTTPClient(),
		executors: executors,
		headers:   headers,
	}
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
// A non-2xx response yields an [*errors.UpstreamError]. Pass nil for v to
// discard the body.
func (c *Client) GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	return c.executors.Do(ctx, executor.DomainKey(rawURL), func(ctx context.Context) error {
		return c.getJSON(ctx, rawURL, headers, v)
	})
}

func (c *Client) getJSON(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "bad request url %q", rawURL)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	for k, val := range c.headers {
		req.Header.Set(k, val)
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	host, path := req.URL.Host, req.URL.Path
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		if ctx.Err() != nil {
			return errors.Cancelled(ctx.Err())
		}
		return errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", redact(req.URL))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		return &errors.UpstreamError{Status: resp.StatusCode, URL: redact(req.URL), Header: resp.Header}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeUpstream, err, "decode response from %s", redact(req.URL))
	}
	return nil
}

// redact drops the query string, which may carry access tokens.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
