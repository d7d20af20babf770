package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// DefaultArxivURL arXiv 查询接口地址。
const DefaultArxivURL = "https://export.arxiv.org"

// arXiv 返回 Atom feed，字段都在 http://www.w3.org/2005/Atom 命名空间下。
type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	Title     string       `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string       `xml:"http://www.w3.org/2005/Atom summary"`
	Published string       `xml:"http://www.w3.org/2005/Atom published"`
	Authors   []atomAuthor `xml:"http://www.w3.org/2005/Atom author"`
	Links     []atomLink   `xml:"http://www.w3.org/2005/Atom link"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// ArxivSearch 预印本检索。
type ArxivSearch struct {
	client     *resty.Client
	baseURL    string
	maxResults int
}

// NewArxivSearch 创建 arXiv 检索工具。
func NewArxivSearch(cfg Config) *ArxivSearch {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &ArxivSearch{
		client:     newRestClient(cfg.Timeout, cfg.UserAgent),
		baseURL:    strings.TrimRight(orDefault(cfg.ArxivURL, DefaultArxivURL), "/"),
		maxResults: maxResults,
	}
}

func (a *ArxivSearch) Name() string        { return NameArxivSearch }
func (a *ArxivSearch) Description() string { return "Search for research papers on arXiv" }

// Invoke 按相关度取前 N 条，每条一段：Title/Authors/Published/URL/Summary。
func (a *ArxivSearch) Invoke(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Error searching arXiv: empty query"
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search_query": "all:" + query,
			"start":        "0",
			"max_results":  strconv.Itoa(a.maxResults),
			"sortBy":       "relevance",
			"sortOrder":    "descending",
		}).
		Get(a.baseURL + "/api/query")
	if err != nil {
		return fmt.Sprintf("Error searching arXiv: %v", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Sprintf("Error searching arXiv: HTTP %d", resp.StatusCode())
	}

	var feed atomFeed
	if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
		return fmt.Sprintf("Error searching arXiv: %v", err)
	}
	if len(feed.Entries) == 0 {
		return "No results found on arXiv for this query."
	}

	entries := feed.Entries
	if len(entries) > a.maxResults {
		entries = entries[:a.maxResults]
	}
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, formatEntry(e))
	}
	return strings.Join(blocks, "\n\n")
}

func formatEntry(e atomEntry) string {
	names := make([]string, 0, len(e.Authors))
	for _, au := range e.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			names = append(names, name)
		}
	}
	authors := "Unknown"
	if len(names) > 0 {
		authors = strings.Join(names, ", ")
	}

	link := "No URL available"
	for _, l := range e.Links {
		if l.Rel == "alternate" && l.Href != "" {
			link = l.Href
			break
		}
	}

	return "Title: " + collapse(e.Title) + "\n" +
		"Authors: " + authors + "\n" +
		"Published: " + strings.TrimSpace(e.Published) + "\n" +
		"URL: " + link + "\n" +
		"Summary: " + collapse(e.Summary)
}

// collapse 合并 Atom 文本中的换行与多余空白。
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
