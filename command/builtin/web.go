package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/martinemde/thinkloop/command"
)

const maxSearchBody = 1 << 20

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

func webSearchCommand(client *http.Client, endpoint string, logger *zap.Logger) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "web_search",
			Description: "Search the web and return titles, URLs and snippets of the top results.",
			Params: []command.Param{
				{Name: "query", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "Search terms"},
				{Name: "num_results", Type: command.TypeInteger, Constraint: "min=1,max=10", Description: fmt.Sprintf("Number of results (default %d)", DefaultSearchCount)},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			query, _ := args.String("query")
			n := args.IntOr("num_results", DefaultSearchCount)

			results, err := searchDuckDuckGo(ctx, client, endpoint, query, n)
			if err != nil {
				logger.Warn("web search failed", zap.String("query", query), zap.Error(err))
				return command.Failure(err), nil
			}
			if len(results) == 0 {
				return command.Success("no results for " + query), nil
			}
			return command.Success(results), nil
		},
	}
}

func searchDuckDuckGo(ctx context.Context, client *http.Client, endpoint, query string, max int) ([]SearchResult, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) thinkloop")
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return parseSearchResults(doc, max), nil
}

// parseSearchResults walks DuckDuckGo's HTML results page. Each hit is a
// div.result holding a.result__a (title, link) and a.result__snippet.
func parseSearchResults(doc *html.Node, max int) []SearchResult {
	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if r := extractResult(n); r.URL != "" && r.Title != "" {
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

func extractResult(n *html.Node) SearchResult {
	var r SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				r.URL = resolveRedirect(attr(n, "href"))
				r.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				r.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// resolveRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil || !strings.HasSuffix(u.Host, "duckduckgo.com") || u.Path != "/l/" {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
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

func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
