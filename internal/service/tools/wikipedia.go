package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const noWikipediaResult = "No good Wikipedia Search Result was found"

// WikipediaConfig controls how many pages are consulted and how much text is returned.
type WikipediaConfig struct {
	BaseURL  string // defaults to https://<lang>.wikipedia.org/w/api.php
	Lang     string
	TopK     int
	MaxChars int
}

// Wikipedia queries the MediaWiki action API.
type Wikipedia struct {
	client *http.Client
	cfg    WikipediaConfig
}

// NewWikipedia creates a Wikipedia adapter.
func NewWikipedia(client *http.Client, cfg WikipediaConfig) *Wikipedia {
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", cfg.Lang)
	}
	if cfg.TopK < 1 {
		cfg.TopK = 2
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Wikipedia{client: client, cfg: cfg}
}

// Tool exposes the adapter to the agent.
func (w *Wikipedia) Tool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: NameWikipedia,
		Desc: "Useful for searching Wikipedia for detailed information about topics, people, places, and events. Input should be a search query.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The search query.",
				Required: true,
			},
		}),
	}
	return New(info, func(ctx context.Context, args json.RawMessage) string {
		return w.Lookup(ctx, decodeQuery(args))
	})
}

// Lookup returns "Page/Summary" blocks for the best matching articles.
func (w *Wikipedia) Lookup(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return noWikipediaResult
	}

	titles, err := w.search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Wikipedia lookup failed: %v", err)
	}

	summaries := make([]string, 0, len(titles))
	for _, title := range titles {
		page, err := w.extract(ctx, title)
		if err != nil {
			// One broken page should not hide the others.
			continue
		}
		if page.Extract == "" {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("Page: %s\nSummary: %s", page.Title, page.Extract))
	}

	if len(summaries) == 0 {
		return noWikipediaResult
	}
	return truncateRunes(strings.Join(summaries, "\n\n"), w.cfg.MaxChars)
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type wikiPage struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Missing bool   `json:"missing"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages []wikiPage `json:"pages"`
	} `json:"query"`
}

func (w *Wikipedia) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(w.cfg.TopK))
	params.Set("format", "json")
	params.Set("formatversion", "2")

	var resp wikiSearchResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	titles := make([]string, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		if hit.Title != "" {
			titles = append(titles, hit.Title)
		}
	}
	if len(titles) > w.cfg.TopK {
		titles = titles[:w.cfg.TopK]
	}
	return titles, nil
}

func (w *Wikipedia) extract(ctx context.Context, title string) (wikiPage, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("redirects", "1")
	params.Set("titles", title)
	params.Set("format", "json")
	params.Set("formatversion", "2")

	var resp wikiExtractResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return wikiPage{}, fmt.Errorf("extract %q: %w", title, err)
	}

	for _, page := range resp.Query.Pages {
		if !page.Missing {
			page.Extract = strings.TrimSpace(page.Extract)
			return page, nil
		}
	}
	return wikiPage{}, fmt.Errorf("page %q not found", title)
}

func (w *Wikipedia) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
