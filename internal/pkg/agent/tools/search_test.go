package tools_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-scholar/internal/pkg/agent/tools"
	"github.com/kart-io/sentinel-scholar/internal/pkg/rag/docutil"
)

const duckHTML = `<html><body>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fattention&amp;rut=abc">Attention Is All You Need</a>
  </h2>
  <a class="result__snippet" href="#">The dominant sequence
     transduction models are based on recurrent networks.</a>
</div>
<div class="result results_links web-result">
  <h2 class="result__title"><a class="result__a" href="https://example.org/bert">BERT</a></h2>
  <a class="result__snippet">Pre-training of deep bidirectional transformers.</a>
</div>
<div class="result results_links web-result">
  <h2 class="result__title"><a class="result__a" href="https://example.org/gpt">GPT</a></h2>
</div>
</body></html>`

const scholarJSON = `{"total":2,"data":[
 {"paperId":"1","title":"Attention Is All You Need","authors":[{"name":"Ashish Vaswani"},{"name":"Noam Shazeer"}],
  "year":2017,"abstract":"We propose the Transformer.","citationCount":90000,"url":"https://www.semanticscholar.org/paper/1"},
 {"paperId":"2","title":"","authors":[],"year":0,"abstract":"","citationCount":0,"url":""}
]}`

const arxivXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <entry>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models.  </summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
</feed>`

const emptyArxivXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>ArXiv Query</title></feed>`

const oversizedArxivXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><title>First</title><summary>a</summary><published>2020</published><author><name> </name></author></entry>
  <entry><title>Second</title><summary>b</summary><published>2021</published></entry>
  <entry><title>Third</title><summary>c</summary><published>2022</published></entry>
</feed>`

func serve(t *testing.T, status int, contentType, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("解析结果", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "text/html", duckHTML, func(r *http.Request) {
			assert.Equal(t, "transformer attention", r.URL.Query().Get("q"))
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
		})
		tool := tools.NewWebSearch(tools.Config{WebSearchURL: srv.URL, MaxResults: 2})

		out := tool.Invoke(ctx, "transformer attention")
		assert.Equal(t, "Title: Attention Is All You Need\n"+
			"URL: https://example.com/attention\n"+
			"Snippet: The dominant sequence transduction models are based on recurrent networks.\n\n"+
			"Title: BERT\n"+
			"URL: https://example.org/bert\n"+
			"Snippet: Pre-training of deep bidirectional transformers.", out)
	})

	t.Run("无结果", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "text/html", "<html><body>nothing</body></html>", nil)
		out := tools.NewWebSearch(tools.Config{WebSearchURL: srv.URL}).Invoke(ctx, "zzz")
		assert.Equal(t, "No results found for the given query.", out)
	})

	t.Run("HTTP 错误", func(t *testing.T) {
		srv := serve(t, http.StatusForbidden, "text/html", "blocked", nil)
		out := tools.NewWebSearch(tools.Config{WebSearchURL: srv.URL}).Invoke(ctx, "q")
		assert.Equal(t, "Error searching the web: HTTP 403", out)
	})

	t.Run("连接失败", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "text/html", "", nil)
		srv.Close()
		out := tools.NewWebSearch(tools.Config{WebSearchURL: srv.URL}).Invoke(ctx, "q")
		assert.True(t, strings.HasPrefix(out, "Error searching the web: "), out)
	})
}

func TestScholarSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("格式化论文", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/json", scholarJSON, func(r *http.Request) {
			assert.Equal(t, "/graph/v1/paper/search", r.URL.Path)
			assert.Equal(t, "attention", r.URL.Query().Get("query"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		})
		tool := tools.NewScholarSearch(tools.Config{ScholarURL: srv.URL, ScholarAPIKey: "secret"})

		out := tool.Invoke(ctx, "attention")
		blocks := strings.Split(out, "\n\n")
		require.Len(t, blocks, 2)
		assert.Equal(t, "Title: Attention Is All You Need\n"+
			"Authors: Ashish Vaswani, Noam Shazeer\n"+
			"Year: 2017\n"+
			"Citations: 90000\n"+
			"URL: https://www.semanticscholar.org/paper/1\n"+
			"Abstract: We propose the Transformer.", blocks[0])
		assert.Equal(t, "Title: No title\nAuthors: Unknown\nYear: Unknown\nCitations: 0\n"+
			"URL: No URL available\nAbstract: No abstract available", blocks[1])
	})

	t.Run("无结果", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/json", `{"total":0,"data":[]}`, nil)
		out := tools.NewScholarSearch(tools.Config{ScholarURL: srv.URL}).Invoke(ctx, "q")
		assert.Equal(t, "No papers found on Semantic Scholar for this query.", out)
	})

	t.Run("限流", func(t *testing.T) {
		srv := serve(t, http.StatusTooManyRequests, "application/json", `{"message":"Too Many Requests"}`, nil)
		out := tools.NewScholarSearch(tools.Config{ScholarURL: srv.URL}).Invoke(ctx, "q")
		assert.Equal(t, "Error searching Semantic Scholar: HTTP 429", out)
	})

	t.Run("响应格式错误", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/json", `{"data": "oops"`, nil)
		out := tools.NewScholarSearch(tools.Config{ScholarURL: srv.URL}).Invoke(ctx, "q")
		assert.True(t, strings.HasPrefix(out, "Error searching Semantic Scholar: malformed response"), out)
	})
}

func TestArxivSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("解析 Atom", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/atom+xml", arxivXML, func(r *http.Request) {
			assert.Equal(t, "/api/query", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "all:attention", q.Get("search_query"))
			assert.Equal(t, "5", q.Get("max_results"))
			assert.Equal(t, "relevance", q.Get("sortBy"))
		})
		out := tools.NewArxivSearch(tools.Config{ArxivURL: srv.URL}).Invoke(ctx, "attention")
		assert.Equal(t, "Title: Attention Is All You Need\n"+
			"Authors: Ashish Vaswani, Noam Shazeer\n"+
			"Published: 2017-06-12T17:57:34Z\n"+
			"URL: http://arxiv.org/abs/1706.03762v7\n"+
			"Summary: The dominant sequence transduction models.", out)
	})

	t.Run("无结果", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/atom+xml", emptyArxivXML, nil)
		out := tools.NewArxivSearch(tools.Config{ArxivURL: srv.URL}).Invoke(ctx, "q")
		assert.Equal(t, "No results found on arXiv for this query.", out)
	})

	t.Run("超出条数截断且缺作者", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/atom+xml", oversizedArxivXML, nil)
		out := tools.NewArxivSearch(tools.Config{ArxivURL: srv.URL, MaxResults: 2}).Invoke(ctx, "q")
		assert.Equal(t, "Title: First\n"+
			"Authors: Unknown\n"+
			"Published: 2020\n"+
			"URL: No URL available\n"+
			"Summary: a\n\n"+
			"Title: Second\n"+
			"Authors: Unknown\n"+
			"Published: 2021\n"+
			"URL: No URL available\n"+
			"Summary: b", out)
		assert.NotContains(t, out, "Third")
	})

	t.Run("非 200", func(t *testing.T) {
		srv := serve(t, http.StatusServiceUnavailable, "text/plain", "down", nil)
		out := tools.NewArxivSearch(tools.Config{ArxivURL: srv.URL}).Invoke(ctx, "q")
		assert.Equal(t, "Error searching arXiv: HTTP 503", out)
	})

	t.Run("XML 损坏", func(t *testing.T) {
		srv := serve(t, http.StatusOK, "application/atom+xml", "<feed><entry>", nil)
		out := tools.NewArxivSearch(tools.Config{ArxivURL: srv.URL}).Invoke(ctx, "q")
		assert.True(t, strings.HasPrefix(out, "Error searching arXiv: "), out)
	})
}

func TestDocumentReader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("abcdefghij"), 0o644))

	reader := tools.NewDocumentReader(dir, docutil.Extractor{}, 4)
	ctx := context.Background()

	assert.Equal(t, "abcd", reader.Invoke(ctx, `"notes.txt"`))
	assert.True(t, strings.HasPrefix(reader.Invoke(ctx, "../secret.txt"), "Error reading document: "))
	assert.True(t, strings.HasPrefix(reader.Invoke(ctx, "missing.txt"), "Error reading document: "))
}
