package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/net/html"
)

const noSearchResult = "No good DuckDuckGo Search Result was found"

// SearchConfig controls the web search adapter.
type SearchConfig struct {
	BaseURL    string // defaults to the DuckDuckGo HTML endpoint
	MaxResults int
}

// SearchResult is one organic hit from the results page.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Search scrapes the DuckDuckGo HTML results page.
type Search struct {
	client *http.Client
	cfg    SearchConfig
}

// NewSearch creates a web search adapter.
func NewSearch(client *http.Client, cfg SearchConfig) *Search {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://html.duckduckgo.com/html/"
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 5
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Search{client: client, cfg: cfg}
}

// Tool exposes the adapter to the agent.
func (s *Search) Tool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: NameWebSearch,
		Desc: "Useful for searching the web for current information, news, and general queries. Input should be a search query.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The search query.",
				Required: true,
			},
		}),
	}
	return New(info, func(ctx context.Context, args json.RawMessage) string {
		return s.Run(ctx, decodeQuery(args))
	})
}

// Run returns the snippets of the top results joined by a space.
func (s *Search) Run(ctx context.Context, query string) string {
	results, err := s.Results(ctx, query)
	if err != nil {
		return fmt.Sprintf("Web search failed: %v", err)
	}
	if len(results) == 0 {
		return noSearchResult
	}

	snippets := make([]string, 0, len(results))
	for _, r := range results {
		if r.Snippet != "" {
			snippets = append(snippets, r.Snippet)
		}
	}
	if len(snippets) == 0 {
		return noSearchResult
	}
	return strings.Join(snippets, " ")
}

// Results fetches and parses up to MaxResults hits.
func (s *Search) Results(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	results := parseResults(doc)
	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}
	return results, nil
}

// parseResults walks the document collecting result blocks in page order.
// Each block is a div carrying the "result" class with a title anchor
// (result__a) and a snippet element (result__snippet).
func parseResults(doc *html.Node) []SearchResult {
	var results []SearchResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := parseResult(n); ok {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results
}

func parseResult(block *html.Node) (SearchResult, bool) {
	var r SearchResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && r.Title == "":
				r.Title = nodeText(n)
				r.Link = resolveLink(attr(n, "href"))
				return
			case hasClass(n, "result__snippet") && r.Snippet == "":
				r.Snippet = nodeText(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(block)

	return r, r.Title != "" || r.Snippet != ""
}

// resolveLink unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func resolveLink(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
