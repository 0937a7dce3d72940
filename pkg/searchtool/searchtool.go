// Package searchtool implements the transport behind the Agent/Tool
// Bridge's optional search tool (spec §4.6): a thin resty client against an
// external web-search API, grounded on Inkedup1114-bitunixbot's resty.Client
// REST transport idiom. The search provider itself is opaque per spec
// scope; this package only wires the HTTP plumbing.
package searchtool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

// Result is one search hit returned by the configured provider.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Client queries an external web-search API over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	rest    *resty.Client
}

// NewClient constructs a search client. An empty baseURL leaves the client
// unconfigured; Search then always reports that state rather than making a
// request.
func NewClient(baseURL, apiKey string) *Client {
	r := resty.New()
	r.SetTimeout(defaultTimeout)
	r.SetRetryCount(2)
	r.SetRetryWaitTime(500 * time.Millisecond)
	return &Client{baseURL: strings.TrimSpace(baseURL), apiKey: apiKey, rest: r}
}

// Search implements toolbridge.Searcher: one query in, one flattened
// human-readable digest of the top results out.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("searchtool: no search provider configured")
	}

	var out searchResponse
	req := c.rest.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&out)
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := req.Get(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("searchtool: request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("searchtool: provider returned status %d", resp.StatusCode())
	}

	return formatResults(out.Results), nil
}

func formatResults(results []Result) string {
	if len(results) == 0 {
		return "no results"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%s: %s (%s)", r.Title, r.Snippet, r.URL)
	}
	return b.String()
}
