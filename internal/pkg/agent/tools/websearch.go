package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// DefaultWebSearchURL DuckDuckGo HTML 搜索入口，无需 API key。
const DefaultWebSearchURL = "https://html.duckduckgo.com/html/"

type webResult struct {
	Title   string
	URL     string
	Snippet string
}

// WebSearch 通用网页搜索。
type WebSearch struct {
	client     *resty.Client
	endpoint   string
	maxResults int
}

// NewWebSearch 创建网页搜索工具。
func NewWebSearch(cfg Config) *WebSearch {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &WebSearch{
		client:     newRestClient(cfg.Timeout, cfg.UserAgent),
		endpoint:   orDefault(cfg.WebSearchURL, DefaultWebSearchURL),
		maxResults: maxResults,
	}
}

func (w *WebSearch) Name() string        { return NameWebSearch }
func (w *WebSearch) Description() string { return "Search the web for information" }

// Invoke 执行搜索并格式化结果。
func (w *WebSearch) Invoke(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Error searching the web: empty query"
	}

	results, err := w.search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error searching the web: %v", err)
	}
	if len(results) == 0 {
		return "No results found for the given query."
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		var b strings.Builder
		b.WriteString("Title: " + r.Title + "\n")
		b.WriteString("URL: " + r.URL)
		if r.Snippet != "" {
			b.WriteString("\nSnippet: " + r.Snippet)
		}
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "\n\n")
}

func (w *WebSearch) search(ctx context.Context, query string) ([]webResult, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetQueryParam("q", query).
		Get(w.endpoint)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	return parseWebResults(body, w.maxResults)
}

// parseWebResults 解析 DuckDuckGo HTML 结果页。
func parseWebResults(body []byte, limit int) ([]webResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []webResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}

		results = append(results, webResult{
			Title:   title,
			URL:     resolveRedirect(href),
			Snippet: strings.Join(strings.Fields(s.Find(".result__snippet").First().Text()), " "),
		})
		return len(results) < limit
	})
	return results, nil
}

// resolveRedirect 还原 DuckDuckGo 跳转链接中的真实地址（uddg 参数）。
func resolveRedirect(href string) string {
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
