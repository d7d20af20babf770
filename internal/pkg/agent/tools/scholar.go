package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/kart-io/sentinel-scholar/pkg/utils/json"
)

// DefaultScholarURL Semantic Scholar Graph API 地址。
const DefaultScholarURL = "https://api.semanticscholar.org"

const scholarFields = "title,authors,year,abstract,citationCount,url"

type scholarResponse struct {
	Total int            `json:"total"`
	Data  []scholarPaper `json:"data"`
}

type scholarPaper struct {
	PaperID       string          `json:"paperId"`
	Title         string          `json:"title"`
	Authors       []scholarAuthor `json:"authors"`
	Year          int             `json:"year"`
	Abstract      string          `json:"abstract"`
	CitationCount int             `json:"citationCount"`
	URL           string          `json:"url"`
}

type scholarAuthor struct {
	Name string `json:"name"`
}

// ScholarSearch 学术论文检索。
type ScholarSearch struct {
	client     *resty.Client
	baseURL    string
	apiKey     string
	maxResults int
}

// NewScholarSearch 创建学术检索工具。
func NewScholarSearch(cfg Config) *ScholarSearch {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &ScholarSearch{
		client:     newRestClient(cfg.Timeout, cfg.UserAgent),
		baseURL:    strings.TrimRight(orDefault(cfg.ScholarURL, DefaultScholarURL), "/"),
		apiKey:     cfg.ScholarAPIKey,
		maxResults: maxResults,
	}
}

func (s *ScholarSearch) Name() string { return NameScholarSearch }
func (s *ScholarSearch) Description() string {
	return "Search for academic papers and publications with citation counts"
}

// Invoke 执行检索，每篇论文一段：Title/Authors/Year/Citations/URL/Abstract。
func (s *ScholarSearch) Invoke(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Error searching Semantic Scholar: empty query"
	}

	papers, err := s.search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error searching Semantic Scholar: %v", err)
	}
	if len(papers) == 0 {
		return "No papers found on Semantic Scholar for this query."
	}

	blocks := make([]string, len(papers))
	for i, p := range papers {
		blocks[i] = formatPaper(p)
	}
	return strings.Join(blocks, "\n\n")
}

func (s *ScholarSearch) search(ctx context.Context, query string) ([]scholarPaper, error) {
	req := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"query":  query,
			"limit":  strconv.Itoa(s.maxResults),
			"fields": scholarFields,
		})
	if s.apiKey != "" {
		req.SetHeader("x-api-key", s.apiKey)
	}

	resp, err := req.Get(s.baseURL + "/graph/v1/paper/search")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode())
	}

	var out scholarResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if len(out.Data) > s.maxResults {
		out.Data = out.Data[:s.maxResults]
	}
	return out.Data, nil
}

func formatPaper(p scholarPaper) string {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	year := "Unknown"
	if p.Year > 0 {
		year = strconv.Itoa(p.Year)
	}
	authors := "Unknown"
	if len(names) > 0 {
		authors = strings.Join(names, ", ")
	}

	return "Title: " + orDefault(p.Title, "No title") + "\n" +
		"Authors: " + authors + "\n" +
		"Year: " + year + "\n" +
		"Citations: " + strconv.Itoa(p.CitationCount) + "\n" +
		"URL: " + orDefault(p.URL, "No URL available") + "\n" +
		"Abstract: " + orDefault(p.Abstract, "No abstract available")
}
