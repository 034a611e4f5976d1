package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/internal/tlsutil"
)

// WebSearchName is the identifier of the web search extension.
const WebSearchName = "web_search"

func init() {
	extension.Register(WebSearchName, NewWebSearch)
}

// WebSearchProvider defines the interface for web search backends.
type WebSearchProvider interface {
	// Search performs a web search and returns at most maxResults results.
	Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error)
	// Name returns the provider name.
	Name() string
}

// WebSearchResult represents a single search result.
type WebSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"content"`
}

// WebSearchSettings configures the web search extension.
type WebSearchSettings struct {
	// Endpoint is a JSON search API compatible with SearXNG's format=json.
	Endpoint string `yaml:"search_endpoint"`
	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"search_api_key"`
	// TimeoutSeconds bounds one HTTP request.
	TimeoutSeconds int `yaml:"search_timeout_seconds" default:"15"`
	// CAFile is an extra PEM bundle for endpoints behind a private CA.
	CAFile string `yaml:"search_ca_file"`
}

// WebSearch exposes the "Search Web" command.
type WebSearch struct {
	settings WebSearchSettings
	provider WebSearchProvider
}

var (
	_ extension.Extension    = (*WebSearch)(nil)
	_ extension.Configurable = (*WebSearch)(nil)
)

// NewWebSearch builds the extension from settings.
func NewWebSearch(settings extension.Settings) (extension.Extension, error) {
	cfg := WebSearchSettings{TimeoutSeconds: 15}
	if err := settings.Decode(&cfg); err != nil {
		return nil, err
	}
	w := &WebSearch{settings: cfg}
	if cfg.Endpoint != "" {
		client, err := tlsutil.NewExtensionClient(tlsutil.ClientOptions{
			Extension: WebSearchName,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
			CAFile:    cfg.CAFile,
		})
		if err != nil {
			return nil, fmt.Errorf("web search client: %w", err)
		}
		w.provider = NewHTTPSearchProvider(cfg.Endpoint, cfg.APIKey, client)
	}
	return w, nil
}

// NewWebSearchWithProvider builds the extension around a provider.
func NewWebSearchWithProvider(provider WebSearchProvider) *WebSearch {
	return &WebSearch{provider: provider}
}

func (w *WebSearch) Name() string { return WebSearchName }

func (w *WebSearch) SettingsPrototype() any { return &WebSearchSettings{} }

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results" default:"5"`
}

func (w *WebSearch) Commands() []extension.Command {
	return []extension.Command{
		extension.Typed("Search Web", "search", w.search),
	}
}

func (w *WebSearch) search(ctx context.Context, args searchArgs) (string, error) {
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	if w.provider == nil {
		return "", fmt.Errorf("web search provider not configured")
	}
	if args.MaxResults <= 0 {
		args.MaxResults = 5
	}

	results, err := w.provider.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", args.Query), nil
	}

	var b strings.Builder
	for i, r := range results {
		if i >= args.MaxResults {
			break
		}
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// HTTPSearchProvider queries a JSON search endpoint.
type HTTPSearchProvider struct {
	endpoint string
	client   *resty.Client
}

// NewHTTPSearchProvider creates a provider for endpoint using httpClient.
func NewHTTPSearchProvider(endpoint, apiKey string, httpClient *http.Client) *HTTPSearchProvider {
	client := resty.NewWithClient(httpClient).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPSearchProvider{endpoint: endpoint, client: client}
}

func (p *HTTPSearchProvider) Name() string { return "http" }

type searchResponse struct {
	Results []WebSearchResult `json:"results"`
}

func (p *HTTPSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error) {
	var body searchResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
		}).
		SetResult(&body).
		Get(p.endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode())
	}
	if len(body.Results) > maxResults {
		body.Results = body.Results[:maxResults]
	}
	return body.Results, nil
}
