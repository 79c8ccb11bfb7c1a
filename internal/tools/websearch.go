package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/velichko/resumed/internal/engine"
)

const (
	searchTimeout    = 15 * time.Second
	searchUserAgent  = "Mozilla/5.0 (compatible; resumed/1.0)"
	maxSearchResults = 5
)

// SearchResult is one hit from the web search backend.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// WebSearcher queries a web search backend.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// DuckDuckGo searches the DuckDuckGo HTML endpoint, which needs no API
// key and returns server-rendered results that parse with plain selectors.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGo creates a client for the DuckDuckGo HTML endpoint. An
// empty baseURL uses the public endpoint.
func NewDuckDuckGo(baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com"
	}
	return &DuckDuckGo{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: searchTimeout,
		},
	}
}

// Search runs the query and returns up to maxSearchResults hits.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := d.baseURL + "/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	var results []SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find(".result__a").Text())
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())
		if title == "" {
			return true
		}
		results = append(results, SearchResult{Title: title, Snippet: snippet})
		return len(results) < maxSearchResults
	})

	return results, nil
}

// searchReply is what the model receives back from job_search and
// career_advice_search.
type searchReply struct {
	Results []SearchResult `json:"results,omitempty"`
	Message string         `json:"message,omitempty"`
}

// NewJobSearch builds the job_search tool over a web search backend.
func NewJobSearch(searcher WebSearcher) Tool {
	return Tool{
		Name:        "job_search",
		Description: "Search the web for current job openings matching a role, skill set, or location.",
		Parameters: engine.Schema{
			Type: "object",
			Properties: map[string]engine.SchemaProperty{
				"query": {Type: "string", Description: "Job search query, e.g. role plus location"},
			},
			Required: []string{"query"},
		},
		Handler: searchHandler(searcher, "job openings"),
	}
}

// NewCareerAdviceSearch builds the career_advice_search tool over the
// same backend, biased toward advice content.
func NewCareerAdviceSearch(searcher WebSearcher) Tool {
	return Tool{
		Name:        "career_advice_search",
		Description: "Search the web for career advice, interview preparation, and industry guidance.",
		Parameters: engine.Schema{
			Type: "object",
			Properties: map[string]engine.SchemaProperty{
				"query": {Type: "string", Description: "Career advice topic to research"},
			},
			Required: []string{"query"},
		},
		Handler: searchHandler(searcher, "career advice"),
	}
}

func searchHandler(searcher WebSearcher, topic string) Handler {
	return func(ctx context.Context, threadID string, args json.RawMessage) (any, error) {
		var in struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("parsing arguments: %w", err)
		}
		if in.Query == "" {
			return nil, fmt.Errorf("query must not be empty")
		}

		results, err := searcher.Search(ctx, in.Query)
		if err != nil {
			// Search outages degrade to a message rather than failing
			// the whole turn.
			return searchReply{
				Message: fmt.Sprintf("The web search for %s is unavailable right now. Answer from general knowledge and say the search could not be performed.", topic),
			}, nil
		}
		if len(results) == 0 {
			return searchReply{
				Message: fmt.Sprintf("No %s results were found for %q. Suggest the user refine the query.", topic, in.Query),
			}, nil
		}
		return searchReply{Results: results}, nil
	}
}
